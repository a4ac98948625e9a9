package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
	"github.com/ignite/deliverability-engine/internal/platform"
	"github.com/ignite/deliverability-engine/internal/recovery"
	"github.com/ignite/deliverability-engine/internal/repository/postgres"
	"github.com/ignite/deliverability-engine/internal/routing"
	"github.com/ignite/deliverability-engine/internal/scheduler"
	"github.com/ignite/deliverability-engine/internal/warmup"
	"github.com/ignite/deliverability-engine/internal/worker"
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

	mailboxes := postgres.NewMailboxRepo(db)
	domains := postgres.NewDomainRepo(db)
	campaigns := postgres.NewCampaignRepo(db)
	leads := postgres.NewLeadRepo(db)
	events := postgres.NewRawEventRepo(db)
	transitions := postgres.NewTransitionRepo(db)
	rules := postgres.NewRoutingRuleRepo(db)
	tenants := postgres.NewTenantRepo(db)

	registry := platform.NewRegistry(cfg.Platform.Default)
	if cfg.Platform.Instantly.APIKey != "" {
		registry.Register(platform.NewInstantlyAdapter(
			cfg.Platform.Instantly.BaseURL,
			cfg.Platform.Instantly.APIKey,
			time.Duration(cfg.Platform.Instantly.TimeoutSeconds)*time.Second))
	}

	warmupCtl := warmup.NewController(mailboxes, registry, cfg.Warmup, cfg.Recovery)
	machine := recovery.NewMachine(mailboxes, domains, transitions, warmupCtl, nil, cfg.Recovery)
	resolver := routing.NewResolver(rules, campaigns, leads)

	sched := scheduler.New()

	reevalInterval := time.Duration(cfg.Workers.LeadReevalIntervalMinutes) * time.Minute
	reeval := worker.NewLeadReevaluator(leads, resolver, reevalInterval, 200)
	sched.Register("lead-reevaluation", reevalInterval, reeval.Run)

	gradInterval := time.Duration(cfg.Workers.GraduationIntervalMinutes) * time.Minute
	graduation := worker.NewGraduationPoller(mailboxes, domains, machine, warmupCtl, cfg.Recovery, 500)
	sched.Register("recovery-graduation", gradInterval, graduation.Run)

	if cfg.Workers.RetentionS3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Workers.RetentionS3Region))
		if err != nil {
			logger.Warn("retention archiver disabled, aws config failed", "error", err)
		} else {
			retInterval := time.Duration(cfg.Workers.RetentionIntervalHours) * time.Hour
			retention := worker.NewRetentionArchiver(events, s3.NewFromConfig(awsCfg),
				cfg.Workers.RetentionS3Bucket,
				time.Duration(cfg.Workers.RetentionDays)*24*time.Hour, 1000)
			sched.Register("raw-event-retention", retInterval, retention.Run)
		}
	}

	trialInterval := time.Duration(cfg.Workers.TrialExpiryIntervalHours) * time.Hour
	trial := worker.NewTrialExpirer(tenants)
	sched.Register("trial-expiry", trialInterval, trial.Run)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	sched.Stop()
	logger.Info("worker stopped")
}
