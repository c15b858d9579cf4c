package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/custody/internal/config"
	"github.com/roach88/custody/internal/harness"
)

// FileValidation is the validation outcome of one file.
type FileValidation struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"` // "config" | "scenario"
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate config and scenario files",
		Long: `Validate engine config files and harness scenarios without running them.

.cue files are configs. YAML files with a top-level "steps" key are
scenarios; other YAML files are configs. Unknown keys are errors in both.

Exit codes:
  0 - All files valid
  1 - At least one file invalid`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		fv := validateFile(path)
		formatter.VerboseLog("%s: %s valid=%t", path, fv.Kind, fv.Valid)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if !result.Valid {
		var lines []string
		for _, fv := range result.Files {
			if !fv.Valid {
				lines = append(lines, fmt.Sprintf("%s: %s", fv.Path, fv.Error))
			}
		}
		if err := formatter.Error(ErrCodeInvalidInput, "", strings.Join(lines, "\n"), result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}
	return formatter.Success(result, fmt.Sprintf("✓ %d file(s) valid", len(result.Files)))
}

func validateFile(path string) FileValidation {
	fv := FileValidation{Path: path, Kind: "config"}

	kind, err := detectKind(path)
	if err != nil {
		fv.Error = err.Error()
		return fv
	}
	fv.Kind = kind

	switch kind {
	case "scenario":
		_, err = harness.LoadScenario(path)
	default:
		_, err = config.Load(path)
	}
	if err != nil {
		fv.Error = err.Error()
		return fv
	}
	fv.Valid = true
	return fv
}

// detectKind sniffs whether a file is a config or a scenario.
func detectKind(path string) (string, error) {
	ext := filepath.Ext(path)
	if ext == ".cue" {
		return "config", nil
	}
	if ext != ".yaml" && ext != ".yml" {
		return "", fmt.Errorf("unsupported extension %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var top map[string]any
	if err := yaml.Unmarshal(data, &top); err != nil {
		return "", fmt.Errorf("parse yaml: %w", err)
	}
	if _, ok := top["steps"]; ok {
		return "scenario", nil
	}
	return "config", nil
}
