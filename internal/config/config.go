// Package config holds the engine parameters and loads them from YAML or CUE.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/custody/internal/chamber"
)

//go:embed schema.cue
var schemaCUE string

// Config carries every tunable the engine and the control surface consult.
// Tick values are in host logical clock units.
type Config struct {
	Guardian          chamber.AccountID `yaml:"guardian" json:"guardian"`
	Custody           chamber.AccountID `yaml:"custody" json:"custody"`
	RetrievalDelay    uint64            `yaml:"retrieval_delay" json:"retrieval_delay"`
	MaxDuration       uint64            `yaml:"max_duration" json:"max_duration"`
	MaxFeePercentage  uint64            `yaml:"max_fee_percentage" json:"max_fee_percentage"`
	MaxFragments      int               `yaml:"max_fragments" json:"max_fragments"`
	MaxDisclosurePath int               `yaml:"max_disclosure_path" json:"max_disclosure_path"`
	MinCooldown       uint64            `yaml:"min_cooldown" json:"min_cooldown"`
	MaxCooldown       uint64            `yaml:"max_cooldown" json:"max_cooldown"`
	MinJustification  int               `yaml:"min_justification" json:"min_justification"`
	MaxJustification  int               `yaml:"max_justification" json:"max_justification"`
	MinScheduleDelay  uint64            `yaml:"min_schedule_delay" json:"min_schedule_delay"`
}

// Default returns the stock parameters.
func Default() Config {
	return Config{
		Guardian:          "guardian",
		Custody:           "custody",
		RetrievalDelay:    100,
		MaxDuration:       1_000_000,
		MaxFeePercentage:  10,
		MaxFragments:      5,
		MaxDisclosurePath: 10,
		MinCooldown:       10,
		MaxCooldown:       100_000,
		MinJustification:  10,
		MaxJustification:  256,
		MinScheduleDelay:  10,
	}
}

// Validate checks the parameters are internally consistent.
func (c Config) Validate() error {
	var errs []error
	if c.Guardian == "" {
		errs = append(errs, errors.New("guardian is required"))
	}
	if c.Custody == "" {
		errs = append(errs, errors.New("custody is required"))
	}
	if c.Guardian != "" && c.Guardian == c.Custody {
		errs = append(errs, errors.New("guardian and custody must differ"))
	}
	if c.MaxDuration == 0 {
		errs = append(errs, errors.New("max_duration must be positive"))
	}
	if c.MaxFeePercentage > 100 {
		errs = append(errs, fmt.Errorf("max_fee_percentage %d exceeds 100", c.MaxFeePercentage))
	}
	if c.MaxFragments < 1 {
		errs = append(errs, errors.New("max_fragments must be at least 1"))
	}
	if c.MaxDisclosurePath < 1 {
		errs = append(errs, errors.New("max_disclosure_path must be at least 1"))
	}
	if c.MinCooldown > c.MaxCooldown {
		errs = append(errs, fmt.Errorf("min_cooldown %d exceeds max_cooldown %d", c.MinCooldown, c.MaxCooldown))
	}
	if c.MinJustification < 0 || c.MinJustification > c.MaxJustification {
		errs = append(errs, fmt.Errorf("justification bounds [%d, %d] are invalid", c.MinJustification, c.MaxJustification))
	}
	return errors.Join(errs...)
}

// Load reads a config file, overlaying it on Default. The format is chosen by
// extension: .yaml/.yml or .cue. Unknown keys are rejected in both formats.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	case ".cue":
		cfg, err = ParseCUE(path, data)
	default:
		return Config{}, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseYAML decodes YAML over Default and validates the result.
func ParseYAML(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseCUE unifies the file with the embedded #Config schema, then decodes
// it over Default. filename is used for error positions only.
func ParseCUE(filename string, data []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}

	cfg := Default()
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, formatCUEError(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// formatCUEError reduces a CUE error list to its first entry with position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		return fmt.Errorf("%s: %s", pos[0], first.Error())
	}
	return first
}
