package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/chamber"
	"github.com/roach88/custody/internal/engine"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/store"
)

// workspace is a database and a ledger file in a temp dir.
type workspace struct {
	db     string
	ledger string
	dir    string
}

func newWorkspace(t *testing.T, balances string) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		db:     filepath.Join(dir, "custody.db"),
		ledger: filepath.Join(dir, "ledger.yaml"),
		dir:    dir,
	}
	require.NoError(t, os.WriteFile(ws.ledger, []byte(balances), 0644))
	return ws
}

func (ws workspace) invoke(t *testing.T, op, caller string, tick int, args string, extra ...string) (string, string, error) {
	t.Helper()
	argv := []string{"invoke", op,
		"--db", ws.db,
		"--ledger", ws.ledger,
		"--caller", caller,
		"--tick", itoa(tick),
		"--args", args,
	}
	return execute(t, append(argv, extra...)...)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func (ws workspace) balances(t *testing.T) map[chamber.AccountID]uint64 {
	t.Helper()
	book, err := ledger.LoadBook(ws.ledger)
	require.NoError(t, err)
	return book.Balances()
}

// seedVault creates chamber 1 (alice -> bob, 400 units, expires at tick 10).
func seedVault(t *testing.T) workspace {
	t.Helper()
	ws := newWorkspace(t, "balances:\n  alice: 1000\n")
	_, _, err := ws.invoke(t, "create-vault", "alice", 0, `{"beneficiary":"bob","quantity":400,"duration":10}`)
	require.NoError(t, err)
	return ws
}

func TestInvoke_CommitsAndSavesLedger(t *testing.T) {
	ws := newWorkspace(t, "balances:\n  alice: 1000\n")

	out, _, err := ws.invoke(t, "create-vault", "alice", 0,
		`{"beneficiary":"bob","quantity":400,"duration":10}`, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   eventView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(1), resp.Data.Seq)
	assert.Equal(t, "create-vault", resp.Data.Action)
	assert.Equal(t, "alice", resp.Data.Caller)
	assert.Len(t, resp.Data.ID, 64)
	assert.NotEmpty(t, resp.Data.RequestID)
	assert.Equal(t, float64(400), resp.Data.Fields["quantity"])

	balances := ws.balances(t)
	assert.Equal(t, uint64(600), balances["alice"])
	assert.Equal(t, uint64(400), balances["custody"])
}

func TestInvoke_TextOutput(t *testing.T) {
	ws := seedVault(t)

	out, _, err := ws.invoke(t, "finalize", "alice", 5, `{"chamber_id":1}`)
	require.NoError(t, err)
	assert.Contains(t, out, "#2 finalize by alice at tick 5")
	assert.Contains(t, out, `"released":400`)

	assert.Equal(t, uint64(400), ws.balances(t)["bob"])
}

func TestInvoke_RejectionExitsOne(t *testing.T) {
	ws := seedVault(t)

	out, _, err := ws.invoke(t, "finalize", "bob", 5, `{"chamber_id":1}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [PERMISSION_DENIED]")

	// Nothing moved and no event was recorded.
	assert.Equal(t, uint64(400), ws.balances(t)["custody"])
	out, _, err = execute(t, "trace", "--db", ws.db)
	require.NoError(t, err)
	assert.NotContains(t, out, "finalize")
}

func TestInvoke_RejectionJSONCarriesReason(t *testing.T) {
	ws := newWorkspace(t, "balances:\n  alice: 1000\n")

	out, _, err := ws.invoke(t, "create-vault", "alice", 0,
		`{"beneficiary":"bob","quantity":0,"duration":10}`, "--format", "json")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_QUANTITY", resp.Error.Code)
}

func TestInvoke_SinkFailureStillSavesLedger(t *testing.T) {
	ws := seedVault(t)

	boom := errors.New("sink down")
	failing := audit.SinkFunc(func(context.Context, audit.Event) error { return boom })
	out := &bytes.Buffer{}
	cmd := newInvokeCommand(&RootOptions{Format: "text"}, engine.WithSink(failing))
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"finalize",
		"--db", ws.db,
		"--ledger", ws.ledger,
		"--caller", "alice",
		"--tick", "5",
		"--args", `{"chamber_id":1}`,
	})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), ErrCodeInvalidLog)

	// The chamber was paid out, so the ledger file must say so too.
	st, err := store.Open(ws.db)
	require.NoError(t, err)
	defer st.Close()
	c, err := st.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, chamber.StatusCompleted, c.Status)

	balances := ws.balances(t)
	assert.Equal(t, uint64(400), balances["bob"])
	assert.Equal(t, uint64(0), balances["custody"])
}

func TestInvoke_UnknownOperation(t *testing.T) {
	ws := newWorkspace(t, "balances: {}\n")

	out, _, err := ws.invoke(t, "teleport", "alice", 0, `{}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "unknown-operation")
}

func TestInvoke_BadArgs(t *testing.T) {
	ws := newWorkspace(t, "balances: {}\n")

	for _, raw := range []string{`not json`, `null`, `[1,2]`} {
		t.Run(raw, func(t *testing.T) {
			out, _, err := ws.invoke(t, "finalize", "alice", 0, raw)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, ErrCodeInvalidInput)
		})
	}
}

func TestInvoke_MissingFlags(t *testing.T) {
	_, _, err := execute(t, "invoke", "finalize", "--db", filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caller")

	_, _, err = execute(t, "invoke")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestInvoke_BadConfig(t *testing.T) {
	ws := newWorkspace(t, "balances: {}\n")
	cfg := filepath.Join(ws.dir, "custody.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("guardain: typo\n"), 0644))

	_, _, err := ws.invoke(t, "finalize", "alice", 0, `{"chamber_id":1}`, "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvoke_ConfigGuardian(t *testing.T) {
	ws := seedVault(t)
	cfg := filepath.Join(ws.dir, "custody.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("guardian: arbiter\n"), 0644))

	_, _, err := ws.invoke(t, "adjust-fee", "guardian", 1, `{"chamber_id":1,"fee_percentage":5}`, "--config", cfg)
	require.Error(t, err)

	out, _, err := ws.invoke(t, "adjust-fee", "arbiter", 1, `{"chamber_id":1,"fee_percentage":5}`, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"fee_amount":20`)
}

func TestInvoke_SequenceResumesAcrossRuns(t *testing.T) {
	ws := seedVault(t)

	_, _, err := ws.invoke(t, "create-vault", "alice", 1, `{"beneficiary":"carol","quantity":100,"duration":10}`)
	require.NoError(t, err)
	out, _, err := ws.invoke(t, "finalize", "alice", 2, `{"chamber_id":2}`)
	require.NoError(t, err)
	assert.Contains(t, out, "#3 finalize")
}

func TestInvoke_VerboseLogsToStderr(t *testing.T) {
	ws := newWorkspace(t, "balances:\n  alice: 1000\n")

	out, errOut, err := ws.invoke(t, "create-vault", "alice", 0,
		`{"beneficiary":"bob","quantity":1,"duration":10}`, "--format", "json", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, errOut, "create-vault")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "stdout must stay valid JSON")
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs(`{"chamber_id":18446744073709551615,"beneficiary":"bob"}`)
	require.NoError(t, err)
	assert.Equal(t, json.Number("18446744073709551615"), args["chamber_id"])
	assert.Equal(t, "bob", args["beneficiary"])

	_, err = parseArgs(`null`)
	assert.Error(t, err)
}

func TestOperationNames(t *testing.T) {
	names := operationNames()
	assert.Contains(t, names, "create-vault")
	assert.Contains(t, names, "schedule-operation")
	assert.Len(t, names, 25)
}
