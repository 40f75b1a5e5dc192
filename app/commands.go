package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"eventsCatalog/internal/connectors"
	"eventsCatalog/internal/export"
	"eventsCatalog/internal/graceful"
	"eventsCatalog/internal/metrics"
	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/normalizer"
	"eventsCatalog/internal/openrouter"
	"eventsCatalog/internal/orchestrator"
	"eventsCatalog/internal/reconciler"
	"eventsCatalog/internal/repositories"
	"eventsCatalog/internal/repositories/memory"
	"eventsCatalog/internal/runlock"
	telegramBot "eventsCatalog/internal/telegram"
	"eventsCatalog/internal/telemetry"
	"eventsCatalog/internal/transport/httpServer"
	"eventsCatalog/internal/transport/httpServer/handlers"
	"eventsCatalog/internal/transport/httpServer/middleware"
	"eventsCatalog/internal/transport/httpServer/routers"
	"eventsCatalog/internal/utils/logger/sl"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var errRunFailed = errors.New("one or more sources failed")

// catalogStore is what both the Postgres repository and the in-memory catalog provide.
type catalogStore interface {
	reconciler.Catalog
	FindByID(ctx context.Context, id uuid.UUID) (domain.CatalogEvent, error)
	ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.CatalogEvent, int, error)
	CreateLead(ctx context.Context, lead domain.TicketLead) (domain.TicketLead, error)
	Shutdown(ctx context.Context) error
}

func openCatalog(ctx context.Context, migrate bool) (catalogStore, error) {
	if cfg.DBConfig.Driver == "memory" {
		log.Warn("using in-memory catalog, nothing survives a restart")
		return memory.New(), nil
	}

	repo, err := repositories.New(log, cfg)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := repo.Migrate(ctx); err != nil {
			_ = repo.Shutdown(ctx)
			return nil, err
		}
	}
	return repo, nil
}

type pipeline struct {
	catalog      catalogStore
	engine       *reconciler.Engine
	orchestrator *orchestrator.Orchestrator
	redis        *runlock.Redis
}

func buildPipeline(catalog catalogStore, m *metrics.Metrics, opts ...orchestrator.Option) (*pipeline, error) {
	registry, err := connectors.NewRegistryFromConfig(log, cfg.EnabledSources())
	if err != nil {
		return nil, err
	}

	engine := reconciler.New(log, catalog, reconciler.WithImagePolicy(reconciler.ImagePolicy(cfg.Reconciler.ImagePolicy)))

	redisLock, err := runlock.NewRedis(log, cfg.RedisConfig)
	if err != nil {
		return nil, err
	}
	var locker runlock.Locker = runlock.NewLocal()
	if redisLock != nil {
		locker = runlock.Chain{locker, redisLock}
	}

	opts = append([]orchestrator.Option{orchestrator.WithLocker(locker), orchestrator.WithMetrics(m)}, opts...)
	orch := orchestrator.New(log, cfg.SchedulerConfig, registry, normalizer.New(cfg.Normalizer.DefaultCity), engine, opts...)

	return &pipeline{catalog: catalog, engine: engine, orchestrator: orch, redis: redisLock}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	log.Info(
		"starting events catalog",
		slog.String("env", cfg.Env),
		slog.String("version", Version),
	)

	shutdownTracing, err := telemetry.Setup(ctx, log, cfg.Telemetry, cfg.Env)
	if err != nil {
		return err
	}

	catalog, err := openCatalog(ctx, true)
	if err != nil {
		return err
	}

	m := metrics.New()

	ops := map[string]graceful.Operation{
		"Repository service": catalog.Shutdown,
		"Tracing":            graceful.Operation(shutdownTracing),
	}

	var opts []orchestrator.Option
	var categorizer *openrouter.Categorizer
	if cfg.AI.Enabled() {
		categorizer = openrouter.New(log, cfg.AI, catalog, m)
		opts = append(opts, orchestrator.WithCategorizer(categorizer))
		ops["AI service"] = categorizer.Shutdown
	} else {
		log.Info("category enrichment disabled: no AI token or model")
	}

	p, err := buildPipeline(catalog, m, opts...)
	if err != nil {
		return err
	}
	ops["Orchestrator service"] = p.orchestrator.Shutdown
	if p.redis != nil {
		ops["Redis lock"] = p.redis.Shutdown
	}

	var tgBot *telegramBot.Bot
	if cfg.BotConfig.Enabled {
		tgBot, err = telegramBot.New(log, cfg.BotConfig, p.engine, p.orchestrator, catalog, m)
		if err != nil {
			return err
		}
		p.orchestrator.SetNotifier(tgBot)
		ops["Telegram bot"] = tgBot.Shutdown
	}

	eventHandler := handlers.NewEventHandler(log, catalog, p.engine, m)
	scrapeHandler := handlers.NewScrapeHandler(log, p.orchestrator)
	ticketHandler := handlers.NewTicketHandler(log, catalog)
	router := routers.NewRouter(log, cfg.HttpServer, eventHandler, scrapeHandler, ticketHandler, m.Handler())
	httpSrv := httpServer.NewHttpServer(log, router, cfg.HttpServer)
	ops["HTTP server"] = httpSrv.Shutdown

	waitShutdown := graceful.GracefulShutdown(ctx, shutdownTimeout, ops, log)

	if categorizer != nil {
		go categorizer.Start()
	}
	p.orchestrator.Start()
	if tgBot != nil {
		go tgBot.Start(cfg.BotConfig.UpdateTimeout)
	}
	go httpSrv.Listen()

	<-waitShutdown
	return nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	catalog, err := openCatalog(ctx, false)
	if err != nil {
		return err
	}
	defer closeQuietly("catalog", catalog.Shutdown)

	p, err := buildPipeline(catalog, nil)
	if err != nil {
		return err
	}
	if p.redis != nil {
		defer closeQuietly("redis", p.redis.Shutdown)
	}

	var summary domain.RunSummary
	if runSource != "" {
		summary, err = p.orchestrator.RunSource(ctx, runSource)
	} else {
		summary, err = p.orchestrator.RunAll(ctx)
	}
	if err != nil {
		return err
	}

	printSummary(summary)
	if len(summary.Failed()) > 0 {
		return errRunFailed
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if cfg.DBConfig.Driver == "memory" {
		return fmt.Errorf("migrate: db driver is memory, nothing to migrate")
	}
	catalog, err := openCatalog(cmd.Context(), true)
	if err != nil {
		return err
	}
	return catalog.Shutdown(cmd.Context())
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	filter := domain.EventFilter{SortBy: domain.SortByStartAsc}
	if exportStat != "" {
		for _, s := range strings.Split(exportStat, ",") {
			status := domain.EventStatus(strings.TrimSpace(s))
			if !status.Valid() {
				return fmt.Errorf("export: invalid status %q", s)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	catalog, err := openCatalog(ctx, false)
	if err != nil {
		return err
	}
	defer closeQuietly("catalog", catalog.Shutdown)

	events, err := export.Collect(ctx, catalog, filter)
	if err != nil {
		return err
	}

	f, err := os.Create(exportOut)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := export.WriteXLSX(f, events); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	log.Info("catalog exported", slog.String("file", exportOut), slog.Int("events", len(events)))
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	ttl, err := time.ParseDuration(tokenTTL)
	if err != nil {
		return fmt.Errorf("token: invalid ttl: %w", err)
	}
	token, err := middleware.IssueToken(cfg.HttpServer.Secret, tokenUser, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func printSummary(s domain.RunSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tFETCHED\tNEW\tUPDATED\tBACK\tSAME\tRETIRED\tSKIPPED\tFAILED\tERROR")
	for _, r := range append(s.PerSource, s.Totals()) {
		errText := r.Error
		if r.RetirementSkipped {
			errText = strings.TrimSpace(errText + " (retirement skipped)")
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Name, r.Fetched, r.Created, r.Updated, r.Reactivated, r.Unchanged, r.Retired, r.Skipped, r.Failed, errText)
	}
	_ = w.Flush()
}

func closeQuietly(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error("close failed", slog.String("resource", name), sl.Err(err))
	}
}
