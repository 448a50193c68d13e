package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/agrisense/irrigation-advisor/internal/api"
	"github.com/agrisense/irrigation-advisor/internal/blocks"
	"github.com/agrisense/irrigation-advisor/internal/cache/redisstore"
	"github.com/agrisense/irrigation-advisor/internal/cache/resultstore"
	"github.com/agrisense/irrigation-advisor/internal/core/config"
	"github.com/agrisense/irrigation-advisor/internal/core/health"
	"github.com/agrisense/irrigation-advisor/internal/core/observability"
	"github.com/agrisense/irrigation-advisor/internal/core/server"
	"github.com/agrisense/irrigation-advisor/internal/features"
	"github.com/agrisense/irrigation-advisor/internal/logger"
	"github.com/agrisense/irrigation-advisor/internal/orchestrator"
	"github.com/agrisense/irrigation-advisor/internal/recommend"
	"github.com/agrisense/irrigation-advisor/internal/telemetry/influxstore"
	"github.com/agrisense/irrigation-advisor/internal/webhook"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "advisor",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting advisor",
		"addr", cfg.Addr,
		"version", Version,
		"redis", cfg.RedisAddr,
		"influx", cfg.Influx.URL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisCli, err := redisstore.New(ctx, cfg.RedisAddr)
	if err != nil {
		appLog.Error("redis connect failed", "err", err)
		return 1
	}
	defer func() { _ = redisCli.Close() }()

	influx, err := influxstore.New(influxstore.Config{
		URL:    cfg.Influx.URL,
		Token:  cfg.Influx.Token,
		Org:    cfg.Influx.Org,
		Bucket: cfg.Influx.Bucket,
	})
	if err != nil {
		appLog.Error("influx setup failed", "err", err)
		return 1
	}
	defer influx.Close()

	blockList, err := blocks.LoadFile(cfg.BlocksPath)
	if err != nil {
		appLog.Error("block registry load failed", "path", cfg.BlocksPath, "err", err)
		return 1
	}
	appLog.Info("block registry loaded", "path", cfg.BlocksPath, "blocks", len(blockList))

	results := resultstore.New(redisCli, resultstore.Config{
		IntentTTL:  cfg.IdempotencyTTL,
		FeatureTTL: cfg.FeatureTTL,
		OpTimeout:  cfg.CacheOpTimeout,
		FrontSize:  cfg.FeatureLRUSize,
	})
	subs := webhook.NewSubscriptionStore(redisCli)
	dispatcher := webhook.NewDispatcher(subs, cfg.Webhook, appLog)

	orc := orchestrator.New(
		blocks.NewMemoryStore(blockList),
		features.NewExtractor(influx),
		recommend.NewEngine(),
		results,
		dispatcher,
		appLog,
	)
	handlers := api.New(orc, subs, dispatcher, appLog)

	ready := health.Readiness(
		health.Dependency{Name: "redis", Pinger: redisCli},
		health.Dependency{Name: "influx", Pinger: influx},
	)

	if err := server.Run(ctx, cfg, appLog, handlers, ready); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
