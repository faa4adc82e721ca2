package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"crowdfund/internal/campaign"
	"crowdfund/internal/events"
	"crowdfund/internal/http/handlers"
	httpapi "crowdfund/internal/http/httpapi"
	"crowdfund/internal/infra"
	"crowdfund/internal/infra/geoip"
	"crowdfund/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg)
	ctx := context.Background()

	bus := events.NewBus(logger)
	defer bus.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	if err := bus.SubscribeAll(events.AuditLogger(logger)); err != nil {
		logger.Fatal().Err(err).Msg("subscribe audit logger")
	}
	if err := bus.SubscribeAll(collector.ObserveEvent); err != nil {
		logger.Fatal().Err(err).Msg("subscribe metrics")
	}

	ledgerStore, err := openLedger(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open ledger store")
	}
	defer ledgerStore.Close()
	if ledgerStore.events != nil {
		if err := bus.SubscribeAllAsync(events.Recorder(ledgerStore.events, logger)); err != nil {
			logger.Fatal().Err(err).Msg("subscribe event recorder")
		}
	}

	tokens, err := openTokens(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open token backend")
	}
	defer tokens.Close()

	engine, err := campaign.NewEngine(campaign.Options{
		Store:   ledgerStore.campaigns,
		Journal: ledgerStore.journal,
		Tokens:  tokens.service,
		Events:  bus,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build campaign engine")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	app := handlers.NewApp(engine, logger)
	app.JWTSecret = cfg.JWTSecret
	app.JWTIssuer = cfg.JWTIssuer
	app.Ping = ledgerStore.ping
	if ledgerStore.events != nil {
		app.Events = ledgerStore.events
	}
	if cfg.IsDevelopment() {
		app.DevTokens = tokens.memory
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Metrics:         collector,
		Gatherer:        reg,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   resolver.Lookup(),
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	logger.Info().
		Str("token_backend", cfg.TokenBackend).
		Str("custody", engine.Custody().Hex()).
		Bool("postgres", cfg.UsesDatabase()).
		Bool("dev_routes", app.DevTokens != nil).
		Msg("ledger ready")

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.Serve(runCtx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
