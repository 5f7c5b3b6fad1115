// Package app wires the decision engine from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/abhisek/companion/internal/config"
	"github.com/abhisek/companion/internal/engagement"
	"github.com/abhisek/companion/internal/engine"
	"github.com/abhisek/companion/internal/escalation"
	"github.com/abhisek/companion/internal/goals"
	"github.com/abhisek/companion/internal/handoff"
	"github.com/abhisek/companion/internal/llm"
	"github.com/abhisek/companion/internal/logger"
	"github.com/abhisek/companion/internal/metrics"
	"github.com/abhisek/companion/internal/nudge"
	"github.com/abhisek/companion/internal/platform"
	"github.com/abhisek/companion/internal/scheduler"
	"github.com/abhisek/companion/internal/store"
)

// App holds every wired component.
type App struct {
	Config      config.Config
	Store       *store.Store
	Metrics     *metrics.Prometheus
	Platform    *platform.Client
	LLM         llm.Provider
	Goals       *goals.Engine
	Coordinator *handoff.Coordinator
	Engine      *engine.Engine
	Log         *logger.Logger

	redis *redis.Client
}

// Options override pieces of the wiring. Zero values use the defaults.
type Options struct {
	// Log replaces the logger built from the configured mode.
	Log *logger.Logger
	// LLM replaces the provider resolved from the environment.
	LLM llm.Provider
	// Sender replaces the platform client for notifications.
	Sender nudge.Sender
	// Tutors replaces the platform client for bookings.
	Tutors handoff.Tutors
}

// New opens the store and builds the engine. The language model and Redis
// are optional: without a provider, summaries stay empty and completion
// evaluation is unavailable; without Redis, nudge claims are held in
// memory.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	log := opts.Log
	if log == nil {
		var err error
		if log, err = logger.New(cfg.LogMode); err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}

	st, err := OpenStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Store: st, Metrics: metrics.NewPrometheus(), Log: log}
	if err := a.wire(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, opts Options) error {
	cfg, st, sink, log := a.Config, a.Store, a.Metrics, a.Log

	var err error
	if cfg.Platform.BaseURL != "" {
		if a.Platform, err = platform.New(cfg.Platform, nil, log.With("component", "platform")); err != nil {
			return err
		}
	}

	a.LLM = opts.LLM
	if a.LLM == nil {
		a.LLM = resolveLLM(ctx, st, log)
	}

	var summarizer escalation.Summarizer
	if a.LLM != nil {
		summarizer = escalation.NewLLMSummarizer(a.LLM, cfg.Escalation)
	}
	detector, err := escalation.NewDetector(cfg.Escalation, summarizer, sink, log.With("component", "escalation"))
	if err != nil {
		return fmt.Errorf("escalation: %w", err)
	}

	ledger, err := a.ledger()
	if err != nil {
		return err
	}
	sender := opts.Sender
	if sender == nil && a.Platform != nil {
		sender = a.Platform
	}
	if sender == nil {
		return errors.New("platform base URL is required to send notifications")
	}
	dispatcher := nudge.NewDispatcher(ledger, sender, st.Nudges(), sink, log.With("component", "nudge"))

	a.Goals = goals.NewEngine(cfg.Goals, goals.Deps{
		Goals:    st.Goals(),
		Activity: st.Activity(),
		Profiles: st.Profiles(),
		LLM:      a.LLM,
		Metrics:  sink,
		Log:      log.With("component", "goals"),
	})

	hd := handoff.Deps{
		Detector:      detector,
		Conversations: st.Conversations(),
		Profiles:      st.Profiles(),
		Students:      st.Activity(),
		Handoffs:      st.Handoffs(),
		Metrics:       sink,
		Log:           log.With("component", "handoff"),
	}
	switch {
	case opts.Tutors != nil:
		hd.Tutors = opts.Tutors
	case a.Platform != nil:
		hd.Tutors = a.Platform
	}
	a.Coordinator = handoff.NewCoordinator(cfg.Handoff, hd)

	a.Engine = engine.New(engine.Deps{
		Loader:        engagement.NewLoader(st.Activity(), cfg.Engagement),
		Scorer:        engagement.NewScorer(cfg.Engagement),
		Builder:       nudge.NewBuilder(),
		Dispatcher:    dispatcher,
		History:       st.Nudges(),
		Detector:      detector,
		Handoffs:      a.Coordinator,
		Goals:         a.Goals,
		Students:      st.Activity(),
		GoalHistory:   st.Goals(),
		Conversations: st.Conversations(),
		Profiles:      st.Profiles(),
		Metrics:       sink,
		Log:           log.With("component", "engine"),
	}, cfg.Sweep)
	return nil
}

// ledger layers the persisted history under a shared claim store. Redis is
// used when configured so replicas agree on claims.
func (a *App) ledger() (nudge.Ledger, error) {
	window := a.Config.Nudge.Window
	persisted := nudge.NewStoreLedger(a.Store.Nudges(), window)
	if a.Config.RedisURL == "" {
		return nudge.Chain(persisted, nudge.NewMemoryLedger(window)), nil
	}
	opt, err := redis.ParseURL(a.Config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	a.redis = redis.NewClient(opt)
	return nudge.Chain(persisted, nudge.NewRedisLedger(a.redis, window)), nil
}

// resolveLLM prefers the COMPANION_* settings and falls back to the
// standard provider key variables. It returns nil when nothing is
// configured.
func resolveLLM(ctx context.Context, st *store.Store, log *logger.Logger) llm.Provider {
	cfg := llm.ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		discovered, ok := llm.DiscoverConfig()
		if !ok {
			log.Info("language model not configured", "reason", err.Error())
			return nil
		}
		cfg = discovered
	}
	p, err := llm.NewProvider(ctx, cfg, st.EventRepo(), log.With("component", "llm"))
	if err != nil {
		log.Warn("language model unavailable", "provider", cfg.Provider, "error", err)
		return nil
	}
	return p
}

// OpenStore opens the configured database. An empty DSN uses the default
// SQLite path.
func OpenStore(db config.Database) (*store.Store, error) {
	dsn := db.DSN
	switch {
	case dsn == "":
		var err error
		if dsn, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	case db.Driver == store.DriverSQLite && !strings.HasPrefix(dsn, "file:"):
		if err := store.EnsureDir(dsn); err != nil {
			return nil, err
		}
	}
	return store.OpenDriver(db.Driver, dsn)
}

// Scheduler builds the sweep scheduler over the engine.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(a.Config.Schedule, a.Engine, a.Log.With("component", "scheduler"))
}

// Close releases the store and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	a.Log.Sync()
	return errors.Join(errs...)
}
