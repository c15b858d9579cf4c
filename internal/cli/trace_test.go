package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tracedWorkspace holds two chambers and three events.
func tracedWorkspace(t *testing.T) workspace {
	t.Helper()
	ws := seedVault(t)
	_, _, err := ws.invoke(t, "create-vault", "alice", 1, `{"beneficiary":"carol","quantity":100,"duration":10}`)
	require.NoError(t, err)
	_, _, err = ws.invoke(t, "finalize", "alice", 2, `{"chamber_id":1}`)
	require.NoError(t, err)
	return ws
}

func TestTrace_All(t *testing.T) {
	ws := tracedWorkspace(t)

	out, _, err := execute(t, "trace", "--db", ws.db)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "#1 create-vault by alice at tick 0 "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "#2 create-vault by alice at tick 1 "), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "#3 finalize by alice at tick 2 "), lines[2])
}

func TestTrace_ByChamber(t *testing.T) {
	ws := tracedWorkspace(t)

	out, _, err := execute(t, "trace", "--db", ws.db, "--chamber", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "#1 create-vault")
	assert.Contains(t, lines[1], "#3 finalize")
}

func TestTrace_ByAction(t *testing.T) {
	ws := tracedWorkspace(t)

	out, _, err := execute(t, "trace", "--db", ws.db, "--action", "finalize", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []eventView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(3), resp.Data[0].Seq)
	assert.Equal(t, "bob", resp.Data[0].Fields["recipient"])
}

func TestTrace_NoMatches(t *testing.T) {
	ws := tracedWorkspace(t)

	out, _, err := execute(t, "trace", "--db", ws.db, "--chamber", "7")
	require.NoError(t, err)
	assert.Equal(t, "No events.\n", out)
}

func TestTrace_EmptyDatabaseJSON(t *testing.T) {
	out, _, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "empty.db"), "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []any{}, resp.Data)
}
