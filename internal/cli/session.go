package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/custody/internal/audit"
	"github.com/roach88/custody/internal/config"
	"github.com/roach88/custody/internal/engine"
	"github.com/roach88/custody/internal/ledger"
	"github.com/roach88/custody/internal/store"
)

// tickClock is the host clock for one CLI invocation.
type tickClock uint64

func (c tickClock) CurrentTick() uint64 { return uint64(c) }

// session is an engine opened over a database and a ledger file.
type session struct {
	store      *store.Store
	book       *ledger.Book
	ledgerPath string
	engine     *engine.Engine
	logger     *slog.Logger
}

// newLogger returns a text logger on w, Debug level under --verbose.
func newLogger(verbose bool, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// loadConfig returns config.Default when path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openStore opens an existing or new database.
func openStore(path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// openSession opens the store, the ledger book and an engine at tick.
// Under verbose, committed events are also logged.
func openSession(ctx context.Context, dbPath, ledgerPath, configPath string, tick uint64, verbose bool, logw io.Writer, extra ...engine.Option) (*session, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(verbose, logw)
	logger.Debug("opening database", "path", dbPath)
	st, err := openStore(dbPath)
	if err != nil {
		return nil, err
	}

	book := ledger.NewBook(nil)
	if ledgerPath != "" {
		book, err = ledger.LoadBook(ledgerPath)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to load ledger", err)
		}
	}

	engOpts := []engine.Option{engine.WithLogger(logger)}
	if verbose {
		engOpts = append(engOpts, engine.WithSink(audit.NewLogSink(logger)))
	}
	eng, err := engine.New(ctx, st, book, tickClock(tick), cfg, append(engOpts, extra...)...)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	return &session{
		store:      st,
		book:       book,
		ledgerPath: ledgerPath,
		engine:     eng,
		logger:     logger,
	}, nil
}

// save writes the ledger back to its file, if there is one.
func (s *session) save() error {
	if s.ledgerPath == "" {
		return nil
	}
	if err := s.book.Save(s.ledgerPath); err != nil {
		return WrapExitError(ExitCommandError, "failed to save ledger", err)
	}
	return nil
}

func (s *session) close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// eventView is the JSON shape of an audit event in CLI output.
type eventView struct {
	Seq       int64        `json:"seq"`
	ID        string       `json:"id"`
	RequestID string       `json:"request_id"`
	Action    string       `json:"action"`
	Caller    string       `json:"caller"`
	Tick      uint64       `json:"tick"`
	Fields    audit.Fields `json:"fields"`
}

func viewEvent(ev audit.Event) eventView {
	return eventView{
		Seq:       ev.Seq,
		ID:        ev.ID,
		RequestID: ev.RequestID,
		Action:    ev.Action,
		Caller:    ev.Caller,
		Tick:      ev.Tick,
		Fields:    ev.Fields,
	}
}

// formatEvent renders an event on one line for text output.
func formatEvent(ev audit.Event) string {
	fields, err := audit.MarshalCanonical(ev.Fields)
	if err != nil {
		fields = []byte(fmt.Sprintf("%v", ev.Fields))
	}
	return fmt.Sprintf("#%d %s by %s at tick %d %s", ev.Seq, ev.Action, ev.Caller, ev.Tick, fields)
}
