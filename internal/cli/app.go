package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roach88/specforge/internal/config"
	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/llm"
	"github.com/roach88/specforge/internal/metrics"
	"github.com/roach88/specforge/internal/pack"
	"github.com/roach88/specforge/internal/render"
	"github.com/roach88/specforge/internal/session"
	"github.com/roach88/specforge/internal/specerr"
	"github.com/roach88/specforge/internal/store"
)

// Env is what a command needs to build an orchestrator.
type Env struct {
	Config   *config.Config
	Logger   *slog.Logger
	Recorder *metrics.Recorder
}

// OrchestratorFactory builds an orchestrator and a closer releasing its
// store. Tests substitute their own.
type OrchestratorFactory func(env Env) (*session.Orchestrator, io.Closer, error)

// DefaultFactory wires the configured store, the pack directory and the
// OpenAI adapter.
func DefaultFactory(env Env) (*session.Orchestrator, io.Closer, error) {
	st, closer, err := openStore(env.Config.Store)
	if err != nil {
		return nil, nil, err
	}

	orch, err := session.New(session.Deps{
		Packs:        pack.NewLoader(env.Config.Packs.Dir),
		Questions:    pack.NewEngine(),
		Adapter:      newLazyAdapter(env.Config, env.Logger),
		Confirmation: render.New(),
		UML:          render.New(),
		Store:        st,
	},
		session.WithLogger(env.Logger),
		session.WithRecorder(env.Recorder),
		session.WithSessionLocks(),
	)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return orch, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(cfg config.StoreConfig) (session.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, specerr.Wrap(specerr.IOError, err, "create database directory")
			}
		}
		st, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	case config.BackendRedis:
		st, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		st, err := store.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return st, nopCloser{}, nil
	}
}

// lazyAdapter builds the OpenAI client on first use, so commands that never
// call the model run without an API key. Every call gets the configured
// timeout.
type lazyAdapter struct {
	cfg     config.LLMConfig
	timeout time.Duration
	logger  *slog.Logger

	once   sync.Once
	client *llm.Client
	err    error
}

func newLazyAdapter(cfg *config.Config, logger *slog.Logger) *lazyAdapter {
	return &lazyAdapter{cfg: cfg.LLM, timeout: cfg.LLMTimeout(), logger: logger}
}

func (a *lazyAdapter) get() (*llm.Client, error) {
	a.once.Do(func() {
		a.client, a.err = llm.New(llm.Config{
			APIKey:  a.cfg.APIKey,
			Model:   a.cfg.Model,
			BaseURL: a.cfg.BaseURL,
		}, a.logger)
	})
	return a.client, a.err
}

func (a *lazyAdapter) DraftFromPrompt(ctx context.Context, req session.DraftRequest) (ir.IRValue, error) {
	c, err := a.get()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return c.DraftFromPrompt(ctx, req)
}

func (a *lazyAdapter) PolishToDesignSpec(ctx context.Context, req session.PolishRequest) (ir.IRValue, error) {
	c, err := a.get()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return c.PolishToDesignSpec(ctx, req)
}

func (a *lazyAdapter) RepairWithJSONPatch(ctx context.Context, req session.RepairRequest) (ir.IRValue, error) {
	c, err := a.get()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return c.RepairWithJSONPatch(ctx, req)
}

// newLogger installs a text or JSON handler on w. Verbose forces debug.
func newLogger(cfg config.LoggingConfig, level slog.Level, verbose bool, w io.Writer) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// closeInto joins a close error into err.
func closeInto(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}
