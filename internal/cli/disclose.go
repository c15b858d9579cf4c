package cli

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ed25519"

	"github.com/roach88/custody/internal/disclosure"
	"github.com/roach88/custody/internal/ledger"
)

// DiscloseOptions holds flags for the disclose commands.
type DiscloseOptions struct {
	*RootOptions
	Seed    string
	Path    []string
	MaxPath int
	Key     string
	Message string
}

// NewDiscloseCommand creates the disclose command and its subcommands.
// Both run offline; nothing is recorded in a database.
func NewDiscloseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiscloseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "disclose",
		Short: "Offline disclosure helpers",
		Long: `Compute disclosure roots and produce signature claims without a database.

Use "custody invoke disclose" or "custody invoke verify-signature-claim" to
record the same computations in the audit log.`,
	}

	root := &cobra.Command{
		Use:   "root",
		Short: "Fold a disclosure path into a seed",
		Long: `Fold each path element into the seed with SHA3-256 and print the root.

Example:
  custody disclose root --seed <64 hex> --path <64 hex>,<64 hex>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscloseRoot(opts, cmd)
		},
	}
	root.Flags().StringVar(&opts.Seed, "seed", "", "32-byte seed digest as hex (required)")
	_ = root.MarkFlagRequired("seed")
	root.Flags().StringSliceVar(&opts.Path, "path", nil, "path digests as hex, comma separated (required)")
	_ = root.MarkFlagRequired("path")
	root.Flags().IntVar(&opts.MaxPath, "max-path", disclosure.DefaultMaxPath, "longest accepted path")

	sign := &cobra.Command{
		Use:   "sign",
		Short: "Sign a message for verify-signature-claim",
		Long: `Sign a message with an ed25519 key and print the signer account and the
signature hex that verify-signature-claim accepts.

Example:
  custody disclose sign --key <64 hex seed> --message "release lot 7"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscloseSign(opts, cmd)
		},
	}
	sign.Flags().StringVar(&opts.Key, "key", "", "32-byte ed25519 private key seed as hex (required)")
	_ = sign.MarkFlagRequired("key")
	sign.Flags().StringVar(&opts.Message, "message", "", "message to sign")

	cmd.AddCommand(root, sign)
	return cmd
}

// DisclosureView is the output of disclose root.
type DisclosureView struct {
	Root string `json:"root"`
	Path int    `json:"path_length"`
}

// SignatureView is the output of disclose sign.
type SignatureView struct {
	Account       string `json:"account"`
	MessageDigest string `json:"message_digest"`
	Signature     string `json:"signature"`
}

func runDiscloseRoot(opts *DiscloseOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	seed, err := ledger.ParseDigest(opts.Seed)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidInput, "", fmt.Sprintf("--seed: %v", err), nil)
		return WrapExitError(ExitCommandError, "invalid --seed", err)
	}
	path := make([]ledger.Digest, len(opts.Path))
	for i, p := range opts.Path {
		path[i], err = ledger.ParseDigest(p)
		if err != nil {
			_ = formatter.Error(ErrCodeInvalidInput, "", fmt.Sprintf("--path element %d: %v", i, err), nil)
			return WrapExitError(ExitCommandError, "invalid --path", err)
		}
	}

	root, err := disclosure.ComputeDisclosureRootN(ledger.StandardHasher{}, seed, path, opts.MaxPath)
	if err != nil {
		_ = formatter.Error("INVALID_ARGUMENT", "", err.Error(), nil)
		return WrapExitError(ExitFailure, "disclosure rejected", err)
	}
	return formatter.Success(DisclosureView{Root: root.String(), Path: len(path)}, root.String())
}

func runDiscloseSign(opts *DiscloseOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	seed, err := hex.DecodeString(opts.Key)
	if err != nil || len(seed) != ed25519.SeedSize {
		_ = formatter.Error(ErrCodeInvalidInput, "", fmt.Sprintf("--key must be %d bytes of hex", ed25519.SeedSize), nil)
		return NewExitError(ExitCommandError, "invalid --key")
	}
	priv := ed25519.NewKeyFromSeed(seed)

	h := ledger.StandardHasher{}
	digest := h.Digest32([]byte(opts.Message))
	view := SignatureView{
		Account:       string(ledger.AccountForKey(h, priv.Public().(ed25519.PublicKey))),
		MessageDigest: digest.String(),
		Signature:     hex.EncodeToString(ledger.SignClaim(priv, digest)),
	}
	text := fmt.Sprintf("account:   %s\nsignature: %s", view.Account, view.Signature)
	return formatter.Success(view, text)
}
