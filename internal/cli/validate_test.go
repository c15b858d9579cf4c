package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validScenarioYAML = `name: tiny
description: one vault
balances:
  alice: 10
steps:
  - op: create-vault
    caller: alice
    args: { beneficiary: bob, quantity: 10, duration: 5 }
    expect:
      code: OK
assertions:
  - type: balance
    account: custody
    amount: 10
`

func TestDetectKind(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		want    string
		wantErr bool
	}{
		{"cue config", "custody.cue", `guardian: "g"`, "config", false},
		{"yaml config", "custody.yaml", "guardian: g\n", "config", false},
		{"yml scenario", "s.yml", validScenarioYAML, "scenario", false},
		{"empty yaml", "empty.yaml", "", "config", false},
		{"unsupported", "custody.toml", "", "", true},
		{"broken yaml", "broken.yaml", "steps: [", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			kind, err := detectKind(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestValidate_AllValid(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "custody.yaml", "guardian: arbiter\nmax_fragments: 3\n")
	cue := writeFile(t, dir, "custody.cue", "min_cooldown: 1\n")
	scenario := writeFile(t, dir, "tiny.yaml", validScenarioYAML)

	out, _, err := execute(t, "validate", cfg, cue, scenario)
	require.NoError(t, err)
	assert.Equal(t, "✓ 3 file(s) valid\n", out)
}

func TestValidate_ReportsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "custody.yaml", "guardian: arbiter\n")
	typo := writeFile(t, dir, "typo.yaml", "guardain: arbiter\n")
	badScenario := writeFile(t, dir, "bad.yaml", "name: bad\nsteps: []\n")

	out, _, err := execute(t, "validate", good, typo, badScenario, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string           `json:"code"`
			Details ValidationResult `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeInvalidInput, resp.Error.Code)

	files := resp.Error.Details.Files
	require.Len(t, files, 3)
	assert.True(t, files[0].Valid)
	assert.False(t, files[1].Valid)
	assert.Equal(t, "config", files[1].Kind)
	assert.False(t, files[2].Valid)
	assert.Equal(t, "scenario", files[2].Kind)
	assert.NotEmpty(t, files[2].Error)
}

func TestValidate_MissingFile(t *testing.T) {
	out, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, out, "missing.yaml")
}

func TestValidate_RequiresArgs(t *testing.T) {
	_, _, err := execute(t, "validate")
	require.Error(t, err)
}
