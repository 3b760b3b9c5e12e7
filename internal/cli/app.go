package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valyala/fasthttp"

	"github.com/tOgg1/sitesync/internal/api"
	"github.com/tOgg1/sitesync/internal/cache"
	"github.com/tOgg1/sitesync/internal/chatsync"
	"github.com/tOgg1/sitesync/internal/config"
	"github.com/tOgg1/sitesync/internal/events"
)

// app holds everything a command needs to talk to the backend.
type app struct {
	cfg       *config.Config
	client    *api.Client
	session   *chatsync.Session
	publisher *events.InMemoryPublisher
	registry  *prometheus.Registry
	contexts  *config.ContextStore

	cacheDB *cache.DB
	metrics *fasthttp.Server
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	if err := cfg.RequireBackend(); err != nil {
		return nil, err
	}

	client, err := api.New(api.Options{
		BaseURL:   cfg.API.BaseURL,
		Token:     cfg.API.Token,
		Timeout:   cfg.API.RequestTimeout,
		RateLimit: cfg.API.RateLimitRPS,
		Burst:     cfg.API.RateLimitBurst,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		client:    client,
		publisher: events.NewInMemoryPublisher(),
		registry:  prometheus.NewRegistry(),
		contexts:  newContextStore(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []chatsync.Option{
		chatsync.WithPublisher(a.publisher),
		chatsync.WithMetrics(chatsync.NewMetrics(a.registry)),
	}

	if cfg.Cache.Enabled {
		db, err := openCache(ctx, cfg.Cache.Path)
		if err != nil {
			// The cache only fills in threads without an id; run without it.
			logger.Warn().Err(err).Str("path", cfg.Cache.Path).Msg("thread cache unavailable")
		} else {
			a.cacheDB = db
			opts = append(opts, chatsync.WithThreadCache(cache.NewThreadStore(db, 0)))
		}
	}

	a.session = chatsync.NewSession(sessionConfig(cfg), client, client, opts...)

	if cfg.Metrics.Addr != "" {
		srv, err := serveMetrics(cfg.Metrics.Addr, a.registry)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.metrics = srv
	}

	return a, nil
}

// newContextStore opens the CLI context file; tests point it elsewhere.
var newContextStore = func() *config.ContextStore {
	return config.NewContextStore("")
}

func openCache(ctx context.Context, path string) (*cache.DB, error) {
	db, err := cache.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.MigrateUp(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func sessionConfig(cfg *config.Config) chatsync.Config {
	return chatsync.Config{
		Operator:              cfg.OperatorModel(),
		ListInterval:          cfg.Sync.ListInterval,
		ThreadInterval:        cfg.Sync.ThreadInterval,
		TypingInterval:        cfg.Sync.TypingInterval,
		ScrollCooldown:        cfg.Sync.ScrollCooldown,
		NearBottom:            cfg.Sync.NearBottomPx,
		OnlineWindow:          cfg.Sync.OnlineWindow,
		TypingNotFoundBackoff: cfg.Sync.TypingNotFoundBackoff,
		RequestTimeout:        cfg.API.RequestTimeout,
		TypingTimeout:         cfg.API.TypingTimeout,
	}
}

// Close stops the session and releases the cache and metrics listener.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	if a.session != nil && a.session.IsRunning() {
		_ = a.session.Stop()
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(); err != nil {
			logger.Debug().Err(err).Msg("metrics shutdown")
		}
	}
	a.publisher.Close()
	if a.cacheDB != nil {
		return a.cacheDB.Close()
	}
	return nil
}

// rememberSelection stores the selected conversation as the CLI context.
func (a *app) rememberSelection() {
	selected, ok := a.session.Selected()
	if !ok {
		return
	}
	current, err := a.contexts.Load()
	if err != nil {
		logger.Debug().Err(err).Msg("context load failed")
		current = &config.Context{}
	}
	current.Select(selected.Counterparty.ID, selected.Counterparty.Name)
	current.AdoptConversation(selected.PersistentID)
	if err := a.contexts.Save(current); err != nil {
		logger.Debug().Err(err).Msg("context save failed")
	}
}
