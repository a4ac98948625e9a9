package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/deliverability-engine/internal/api"
	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/ingress"
	"github.com/ignite/deliverability-engine/internal/monitor"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
	"github.com/ignite/deliverability-engine/internal/platform"
	"github.com/ignite/deliverability-engine/internal/queue"
	"github.com/ignite/deliverability-engine/internal/recovery"
	"github.com/ignite/deliverability-engine/internal/repository/postgres"
	"github.com/ignite/deliverability-engine/internal/routing"
	"github.com/ignite/deliverability-engine/internal/warmup"
)

func main() {
	configPath := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Server.Environment == "development" {
		logger.SetLevel(logger.DEBUG)
	}

	db, err := postgres.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Minute)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, event dispatch runs inline", "addr", cfg.Redis.Addr, "error", err)
			rdb = nil
		}
		cancel()
	}

	mailboxes := postgres.NewMailboxRepo(db)
	domains := postgres.NewDomainRepo(db)
	campaigns := postgres.NewCampaignRepo(db)
	leads := postgres.NewLeadRepo(db)
	events := postgres.NewRawEventRepo(db)
	transitions := postgres.NewTransitionRepo(db)
	deadLetters := postgres.NewDeadLetterRepo(db)
	rules := postgres.NewRoutingRuleRepo(db)
	tenants := postgres.NewTenantRepo(db)

	registry := platform.NewRegistry(cfg.Platform.Default)
	if cfg.Platform.Instantly.APIKey != "" {
		registry.Register(platform.NewInstantlyAdapter(
			cfg.Platform.Instantly.BaseURL,
			cfg.Platform.Instantly.APIKey,
			time.Duration(cfg.Platform.Instantly.TimeoutSeconds)*time.Second))
	}
	if cfg.Platform.SES.Enabled {
		ses, err := platform.NewSESAdapter(context.Background(),
			cfg.Platform.SES.Region, cfg.Platform.SES.AccessKey, cfg.Platform.SES.SecretKey)
		if err != nil {
			logger.Warn("ses adapter unavailable", "error", err)
		} else {
			registry.Register(ses)
		}
	}

	warmupCtl := warmup.NewController(mailboxes, registry, cfg.Warmup, cfg.Recovery)
	machine := recovery.NewMachine(mailboxes, domains, transitions, warmupCtl, nil, cfg.Recovery)
	mon := monitor.New(mailboxes, domains, campaigns, leads, machine, registry, cfg.Monitor)

	dispatcher := queue.New(rdb, events, deadLetters, mon, cfg.Queue)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	dispatcher.Start(ctx)

	ing := ingress.NewService(tenants, events, dispatcher, cfg.Server.IsProduction())
	resolver := routing.NewResolver(rules, campaigns, leads)

	handlers := api.NewHandlers(ing, dispatcher, deadLetters,
		mailboxes, domains, transitions, rules, leads, resolver, machine, nil, cfg.Ingress, cfg.Warmup)
	server := api.NewServer(cfg.Server, handlers)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server: %v", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	dispatcher.Stop()
	logger.Info("server stopped")
}
