package wire

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/agentlink/internal/adapter/memory"
	pgdb "github.com/alanyang/agentlink/internal/adapter/postgres"
	pgagent "github.com/alanyang/agentlink/internal/adapter/postgres/agent"
	pgcontact "github.com/alanyang/agentlink/internal/adapter/postgres/contact"
	pgeventbus "github.com/alanyang/agentlink/internal/adapter/postgres/eventbus"
	pggroup "github.com/alanyang/agentlink/internal/adapter/postgres/group"
	pgidempotency "github.com/alanyang/agentlink/internal/adapter/postgres/idempotency"
	pglocker "github.com/alanyang/agentlink/internal/adapter/postgres/locker"
	pgmessage "github.com/alanyang/agentlink/internal/adapter/postgres/message"
	pgtask "github.com/alanyang/agentlink/internal/adapter/postgres/task"
	"github.com/alanyang/agentlink/internal/adapter/sqlite"
	"github.com/alanyang/agentlink/internal/config"
	"github.com/alanyang/agentlink/internal/metrics"

	portagent "github.com/alanyang/agentlink/internal/port/agent"
	portcontact "github.com/alanyang/agentlink/internal/port/contact"
	porteventbus "github.com/alanyang/agentlink/internal/port/eventbus"
	portgroup "github.com/alanyang/agentlink/internal/port/group"
	portidempotency "github.com/alanyang/agentlink/internal/port/idempotency"
	portlocker "github.com/alanyang/agentlink/internal/port/locker"
	portmessage "github.com/alanyang/agentlink/internal/port/message"
	porttask "github.com/alanyang/agentlink/internal/port/task"

	agentsvc "github.com/alanyang/agentlink/internal/service/agent"
	contactsvc "github.com/alanyang/agentlink/internal/service/contact"
	fedsvc "github.com/alanyang/agentlink/internal/service/federation"
	"github.com/alanyang/agentlink/internal/service/identity"
	"github.com/alanyang/agentlink/internal/service/messaging"
	"github.com/alanyang/agentlink/internal/service/presence"
	tasksvc "github.com/alanyang/agentlink/internal/service/task"

	"github.com/alanyang/agentlink/internal/transport"
	"github.com/alanyang/agentlink/internal/transport/auth"
	mcptransport "github.com/alanyang/agentlink/internal/transport/mcp"
)

// App holds the top-level resources needed to run and gracefully stop the server.
type App struct {
	Server   *http.Server
	Agents   *agentsvc.Service
	Presence *presence.Registry
	Metrics  *metrics.Collector

	sync    *presenceSync
	closers []func()
}

// Close stops background work and releases storage. Call after Server.Shutdown.
func (a *App) Close() {
	if a.sync != nil {
		a.sync.stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// stores is one storage backend's implementation of every port.
type stores struct {
	agents      portagent.Repository
	messages    portmessage.Repository
	groups      portgroup.Repository
	tasks       porttask.Repository
	contacts    portcontact.Repository
	idempotency portidempotency.Store
	bus         porteventbus.EventBus
	locker      portlocker.AdvisoryLocker
	closers     []func()
}

// Build is the composition root: the only place concrete types are wired to their
// interface dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	// ── Storage ──────────────────────────────────────────────────────────────
	var (
		st  stores
		err error
	)
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		st, err = postgresStores(ctx, cfg.Storage)
	default:
		st, err = sqliteStores(ctx, cfg.Storage)
	}
	if err != nil {
		return nil, err
	}
	app := &App{closers: st.closers}

	var m *metrics.Collector
	if cfg.Metrics.Enabled {
		m = metrics.NewCollector(cfg.Metrics.Namespace)
	}
	app.Metrics = m

	// ── Services ─────────────────────────────────────────────────────────────
	issuer := identity.NewIssuer(st.agents, identity.WithMetrics(m))
	agents := agentsvc.NewService(st.agents, issuer, st.locker, st.bus)
	names := memory.NewCachedLookup(st.agents, cfg.Presence.LookupTTL)

	registry := presence.NewRegistry(st.bus, m)

	router := messaging.NewRouter(st.messages, st.groups, names, registry, st.bus, m)
	contacts := contactsvc.NewService(st.contacts, names, registry, st.bus)
	tasks := tasksvc.NewCoordinator(st.tasks, registry, st.bus, m)
	gateway := fedsvc.NewGateway(router, contacts, tasks, agents, m)

	mcpServer := mcptransport.New(registry, mcptransport.Services{
		Agents: agents,
		Router: router,
		Tasks:  tasks,
	})

	app.Agents = agents
	app.Presence = registry

	// ── Transport ────────────────────────────────────────────────────────────
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	handler := transport.NewRouter(ctx, transport.Services{
		Agents:   agents,
		Presence: registry,
		Router:   router,
		Contacts: contacts,
		Tasks:    tasks,
		Gateway:  gateway,
		MCP:      mcpServer,
	}, transport.Options{
		CORSOrigin:     cfg.HTTP.CORSOrigin,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		SendBuffer:     cfg.Presence.SendBuffer,
		MetricsPath:    metricsPath,
		Metrics:        m,
		Idempotency:    st.idempotency,
		Signer:         auth.NewSigner(cfg.Federation.JWTSecret, cfg.Federation.Issuer, cfg.Federation.TokenTTL),
	})

	app.Server = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Presence status sync ─────────────────────────────────────────────────
	app.sync, err = startPresenceSync(ctx, st.bus, agents, registry, cfg.Presence.OfflineGrace, cfg.Presence.StartupGrace)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("starting presence sync: %w", err)
	}

	slog.Info("application wired",
		"addr", cfg.Server.HTTPAddr,
		"storage", cfg.Storage.Driver,
		"metrics", cfg.Metrics.Enabled,
		"federation_auth", cfg.Federation.JWTSecret != "",
	)
	return app, nil
}

func postgresStores(ctx context.Context, cfg config.StorageConfig) (stores, error) {
	pool, err := OpenPostgres(ctx, cfg)
	if err != nil {
		return stores{}, err
	}
	if _, err := pgdb.Migrate(pool); err != nil {
		pool.Close()
		return stores{}, err
	}
	idem := pgidempotency.New(pool, cfg.IdempotencyTTL)
	purgeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go purgeLoop(purgeCtx, idem, time.Hour)

	return stores{
		agents:      pgagent.New(pool),
		messages:    pgmessage.New(pool),
		groups:      pggroup.New(pool),
		tasks:       pgtask.New(pool),
		contacts:    pgcontact.New(pool),
		idempotency: idem,
		bus:         pgeventbus.New(pool, cfg.NotifyPrefix),
		locker:      pglocker.New(pool),
		closers:     []func(){pool.Close, cancel},
	}, nil
}

// purgeLoop deletes expired idempotency records until ctx ends.
func purgeLoop(ctx context.Context, repo *pgidempotency.Repository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.Purge(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "idempotency purge failed", "error", err)
				continue
			}
			if n > 0 {
				slog.DebugContext(ctx, "idempotency records purged", "count", n)
			}
		}
	}
}

// OpenPostgres connects the pgx pool described by cfg.
func OpenPostgres(ctx context.Context, cfg config.StorageConfig) (*pgxpool.Pool, error) {
	pool, err := pgdb.Connect(ctx, cfg.DatabaseURL, pgdb.PoolOptions{MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// sqliteStores runs everything in one process: the bus and locker are in-memory.
// An in-memory database keeps idempotency records in memory too.
func sqliteStores(ctx context.Context, cfg config.StorageConfig) (stores, error) {
	db, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return stores{}, err
	}
	st := stores{
		agents:   sqlite.NewAgentRepository(db),
		messages: sqlite.NewMessageRepository(db),
		groups:   sqlite.NewGroupRepository(db),
		tasks:    sqlite.NewTaskRepository(db),
		contacts: sqlite.NewContactRepository(db),
		bus:      memory.NewEventBus(),
		locker:   memory.NewLocker(),
		closers:  []func(){func() { closeDB(db) }},
	}
	if cfg.SQLitePath == ":memory:" {
		store := memory.NewIdempotencyStore(cfg.IdempotencyTTL)
		sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		go store.Sweeper(sweepCtx, time.Minute)
		st.idempotency = store
		st.closers = append(st.closers, cancel)
	} else {
		st.idempotency = sqlite.NewIdempotencyRepository(db, cfg.IdempotencyTTL)
	}
	return st, nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Error("closing sqlite", "error", err)
	}
}
