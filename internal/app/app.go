package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"cms-go/internal/cms"
	"cms-go/internal/config"
	"cms-go/internal/content"
	"cms-go/internal/encryption"
	"cms-go/internal/httpapi"
	"cms-go/internal/kv"
	"cms-go/internal/metrics"
	"cms-go/internal/ratelimit"
	"cms-go/internal/records"
	"cms-go/internal/sandbox"
	"cms-go/internal/versioned"
)

// ErrLocked is returned when sealed storage is configured but no
// passphrase source was provided.
var ErrLocked = errors.New("encryption is configured but no passphrase was provided")

// App is the application layer between the CLI and the core packages.
// It constructs every dependency from config and owns their lifecycle.
type App struct {
	cfg      *config.Config
	run      *Run
	clock    cms.Clock
	logger   cms.Logger
	logFile  *os.File
	backend  string
	store    cms.Store
	engine   *versioned.Engine
	limiter  *ratelimit.Limiter
	sandbox  *sandbox.Sandbox
	files    *content.Files
	board    *records.Board
	visitors *records.Visitors
	metrics  *metrics.Metrics
}

type options struct {
	clock      cms.Clock
	ids        cms.IDGenerator
	passphrase func() (string, error)
	stderr     io.Writer
}

// Option configures New.
type Option func(*options)

// WithClock replaces the real clock.
func WithClock(c cms.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator replaces the UUID generator used for message IDs.
func WithIDGenerator(g cms.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithPassphrase supplies the passphrase that unlocks sealed storage. It
// is only called when encryption is configured.
func WithPassphrase(fn func() (string, error)) Option {
	return func(o *options) { o.passphrase = fn }
}

// WithLogOutput sets where log lines go besides the log file.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// New creates a fully wired App from cfg. command names the CLI command
// being run and appears in the log. The caller must call Close.
func New(ctx context.Context, cfg *config.Config, command string, opts ...Option) (*App, error) {
	o := options{
		clock:  cms.RealClock{},
		ids:    cms.UUIDGenerator{},
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	run := NewRun(command, o.clock.Now())
	level := slog.LevelDebug
	if cfg.Production() {
		level = slog.LevelInfo
	}
	sl, logFile, err := newLogger(cfg.LogDir, run.ID, level, o.stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	a := &App{
		cfg:     cfg,
		run:     run,
		clock:   o.clock,
		logger:  logger,
		logFile: logFile,
		metrics: metrics.New(),
	}
	if err := a.wire(ctx, o); err != nil {
		a.run.Fail()
		a.Close()
		return nil, err
	}

	logger.Info("run started", "command", command, "backend", a.backend, "shared", a.store.Shared())
	return a, nil
}

func (a *App) wire(ctx context.Context, o options) error {
	backend, err := a.cfg.ResolveBackend()
	if err != nil {
		return fmt.Errorf("selecting store: %w", err)
	}
	a.backend = backend

	raw, err := kv.NewStoreFromConfig(ctx, a.cfg.Store, backend, a.cfg.BaseDir, a.clock, a.logger)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", backend, err)
	}
	a.store = raw

	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc != nil {
		dec, err := unlock(enc, o.passphrase)
		if err != nil {
			return err
		}
		a.store = kv.NewSealedStore(a.store, enc, dec)
	}
	a.store = kv.WithPolicy(a.store, kv.DefaultPolicy, a.logger, kv.WithErrorHook(a.metrics.StoreError))

	a.engine = versioned.NewEngine(a.store, a.clock, a.logger,
		versioned.WithMaxRetries(a.cfg.Store.MaxRetries),
		versioned.WithObserver(a.metrics.VersionedUpdate),
	)

	a.limiter = ratelimit.New(a.cfg.RateLimit.Limit,
		time.Duration(a.cfg.RateLimit.WindowSeconds)*time.Second,
		a.clock,
		ratelimit.WithSweepFraction(a.cfg.RateLimit.SweepFraction),
	)

	if err := os.MkdirAll(a.cfg.Sandbox.Root, 0755); err != nil {
		return fmt.Errorf("creating content root: %w", err)
	}
	a.sandbox, err = sandbox.New(a.cfg.Sandbox.Root, a.cfg.Sandbox.Extension, a.logger)
	if err != nil {
		return fmt.Errorf("creating sandbox: %w", err)
	}
	a.files = content.NewFiles(a.sandbox, a.cfg.Sandbox.AllowDestructive, a.logger)

	a.board = records.NewBoard(a.engine, a.clock, o.ids, a.logger, records.BoardConfig{
		MaxMessages:   a.cfg.Messages.MaxMessages,
		Cooldown:      time.Duration(a.cfg.Messages.CooldownHours) * time.Hour,
		MaxNameLength: a.cfg.Messages.MaxNameLength,
		MaxTextLength: a.cfg.Messages.MaxTextLength,
	})
	a.visitors = records.NewVisitors(a.engine, a.clock, a.cfg.Visitors.RetainDays)
	return nil
}

func unlock(enc cms.Encryptor, passphrase func() (string, error)) (cms.DecryptionContext, error) {
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not found: run `cms keys init` first")
	}
	if passphrase == nil {
		return nil, ErrLocked
	}
	p, err := passphrase()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	dec, err := enc.Unlock(p)
	if err != nil {
		return nil, fmt.Errorf("unlocking encryption keys: %w", err)
	}
	return dec, nil
}

// Router returns the HTTP handler serving every route.
func (a *App) Router() *gin.Engine {
	return httpapi.NewRouter(httpapi.Deps{
		Board:    a.board,
		Visitors: a.visitors,
		Files:    a.files,
		Limiter:  a.limiter,
		KeyFunc:  ratelimit.ClientKeyFunc(a.cfg.Server.ClientIDHeader, a.cfg.Server.TrustXForwardedFor),
		Metrics:  a.metrics,
		Logger:   a.logger,
	})
}

func (a *App) Config() *config.Config      { return a.cfg }
func (a *App) Logger() cms.Logger          { return a.logger }
func (a *App) Backend() string             { return a.backend }
func (a *App) Store() cms.Store            { return a.store }
func (a *App) Engine() *versioned.Engine   { return a.engine }
func (a *App) Limiter() *ratelimit.Limiter { return a.limiter }
func (a *App) Files() *content.Files       { return a.files }
func (a *App) Board() *records.Board       { return a.board }
func (a *App) Visitors() *records.Visitors { return a.visitors }

// Fail marks the run as failed in the closing log line.
func (a *App) Fail() { a.run.Fail() }

// CheckPath validates rel against the sandbox for the given mode and
// returns the resolved path.
func (a *App) CheckPath(rel, mode string) (string, error) {
	var (
		tok sandbox.Token
		err error
	)
	switch mode {
	case "read":
		tok, err = a.sandbox.ValidateReadPath(rel)
	case "write":
		tok, err = a.sandbox.ValidateWritePath(rel)
	case "create":
		tok, err = a.sandbox.ValidateCreatePath(rel)
	case "dir":
		tok, err = a.sandbox.ValidateDirectoryPath(rel)
	default:
		return "", fmt.Errorf("unknown mode %q: want read, write, create or dir", mode)
	}
	if err != nil {
		return "", err
	}
	return tok.Path(), nil
}

// Close releases the store and writes the closing log line.
func (a *App) Close() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = fmt.Errorf("closing store: %w", err)
		}
	}

	a.logger.Info("run finished", "command", a.run.Command, "status", a.run.Status, "elapsed", a.run.Elapsed(a.clock.Now()))
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
