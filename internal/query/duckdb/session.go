package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/quantumlink/quantumlink/internal/query"
	"github.com/quantumlink/quantumlink/internal/sqlbuild"
)

const (
	defaultScratchDir           = "duckdb_temp"
	defaultSpreadsheetExtension = "spatial"
	defaultPreviewRows          = 10
	defaultPreviewMaxRows       = 1000
)

type Config struct {
	ScratchDir           string
	SpreadsheetExtension string
	MemoryLimit          string
	Threads              int
	PreviewDefaultRows   int
	PreviewMaxRows       int
}

// ExtensionDisabled turns off spreadsheet support without trying to load
// anything.
const ExtensionDisabled = "none"

type setting struct {
	name  string
	value sqlbuild.Expr
}

type sessionState int

const (
	stateUninitialized sessionState = iota
	stateReady
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Session owns one DuckDB database and its spill directory. Engine calls are
// serialized: one statement runs at a time per session.
type Session struct {
	mu          sync.Mutex
	db          *sql.DB
	cfg         Config
	logger      *slog.Logger
	state       sessionState
	spreadsheet bool
}

// Open wipes and recreates the scratch directory, opens an in-memory DuckDB
// database and applies the session settings. Failing to load the spreadsheet
// extension is logged and tolerated; every other failure aborts.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	cfg = withDefaults(cfg)
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	scratch, err := filepath.Abs(cfg.ScratchDir)
	if err != nil {
		return nil, &query.Error{Kind: query.KindLifecycle, Op: "resolve scratch dir", Path: cfg.ScratchDir, Err: err}
	}
	cfg.ScratchDir = scratch
	if err := resetDir(scratch); err != nil {
		return nil, &query.Error{Kind: query.KindLifecycle, Op: "prepare scratch dir", Path: scratch, Err: err}
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		_ = os.RemoveAll(scratch)
		return nil, &query.Error{Kind: query.KindLifecycle, Op: "open duckdb", Err: err}
	}
	// Settings and loaded extensions must apply to every statement, so the
	// pool is pinned to a single long-lived connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	session := &Session{db: db, cfg: cfg, logger: logger}
	if err := session.init(ctx); err != nil {
		_ = db.Close()
		_ = os.RemoveAll(scratch)
		return nil, err
	}
	session.state = stateReady

	logger.Info("engine_session_ready",
		slog.String("scratch_dir", scratch),
		slog.Bool("spreadsheet_support", session.spreadsheet),
		slog.String("spreadsheet_extension", cfg.SpreadsheetExtension),
	)
	return session, nil
}

func (s *Session) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &query.Error{Kind: query.KindLifecycle, Op: "ping duckdb", Err: err}
	}

	s.spreadsheet = s.loadExtension(ctx, s.cfg.SpreadsheetExtension)

	settings := []setting{
		{name: "temp_directory", value: sqlbuild.String(s.cfg.ScratchDir)},
		{name: "preserve_insertion_order", value: sqlbuild.Bool(false)},
	}
	if s.cfg.MemoryLimit != "" {
		settings = append(settings, setting{name: "memory_limit", value: sqlbuild.String(s.cfg.MemoryLimit)})
	}
	if s.cfg.Threads > 0 {
		settings = append(settings, setting{name: "threads", value: sqlbuild.Int(int64(s.cfg.Threads))})
	}

	for _, setting := range settings {
		statement, err := sqlbuild.Set(setting.name, setting.value)
		if err != nil {
			return &query.Error{Kind: query.KindLifecycle, Op: "build setting " + setting.name, Err: err}
		}
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return &query.Error{Kind: query.KindLifecycle, Op: "apply setting " + setting.name, Err: err}
		}
	}
	return nil
}

// loadExtension tries LOAD, then INSTALL followed by LOAD.
func (s *Session) loadExtension(ctx context.Context, name string) bool {
	if name == "" || name == ExtensionDisabled {
		return false
	}
	loadSQL, err := sqlbuild.Load(name)
	if err != nil {
		s.logger.Warn("spreadsheet_extension_unavailable", slog.String("extension", name), slog.Any("error", err))
		return false
	}
	if _, err := s.db.ExecContext(ctx, loadSQL); err == nil {
		return true
	}

	installSQL, err := sqlbuild.Install(name)
	if err != nil {
		s.logger.Warn("spreadsheet_extension_unavailable", slog.String("extension", name), slog.Any("error", err))
		return false
	}
	if _, err := s.db.ExecContext(ctx, installSQL); err != nil {
		s.logger.Warn("spreadsheet_extension_unavailable", slog.String("extension", name), slog.Any("error", err))
		return false
	}
	if _, err := s.db.ExecContext(ctx, loadSQL); err != nil {
		s.logger.Warn("spreadsheet_extension_unavailable", slog.String("extension", name), slog.Any("error", err))
		return false
	}
	return true
}

// Close closes the database and removes the scratch directory. It is safe to
// call more than once and on a nil session. Teardown errors are logged and
// returned, but the session is closed either way.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return nil
	}
	s.state = stateClosed

	var result *multierror.Error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close duckdb: %w", err))
		}
	}
	if strings.TrimSpace(s.cfg.ScratchDir) != "" {
		if err := os.RemoveAll(s.cfg.ScratchDir); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove scratch dir: %w", err))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		s.logger.Warn("engine_session_teardown_failed", slog.Any("error", err))
		return &query.Error{Kind: query.KindLifecycle, Op: "close session", Err: err}
	}
	s.logger.Info("engine_session_closed")
	return nil
}

func (s *Session) Ready() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady
}

// SpreadsheetSupport reports whether .xlsx/.xls sources can be scanned.
func (s *Session) SpreadsheetSupport() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spreadsheet
}

func (s *Session) ScratchDir() string {
	return s.cfg.ScratchDir
}

// acquire locks the session for one engine call. The caller must call the
// returned release function.
func (s *Session) acquire() (func(), error) {
	if s == nil {
		return nil, query.ErrSessionClosed
	}
	s.mu.Lock()
	if s.state != stateReady {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", query.ErrSessionClosed, state)
	}
	return s.mu.Unlock, nil
}

func withDefaults(cfg Config) Config {
	if strings.TrimSpace(cfg.ScratchDir) == "" {
		cfg.ScratchDir = defaultScratchDir
	}
	if cfg.SpreadsheetExtension == "" {
		cfg.SpreadsheetExtension = defaultSpreadsheetExtension
	}
	if cfg.PreviewDefaultRows <= 0 {
		cfg.PreviewDefaultRows = defaultPreviewRows
	}
	if cfg.PreviewMaxRows <= 0 {
		cfg.PreviewMaxRows = defaultPreviewMaxRows
	}
	if cfg.PreviewDefaultRows > cfg.PreviewMaxRows {
		cfg.PreviewDefaultRows = cfg.PreviewMaxRows
	}
	return cfg
}
