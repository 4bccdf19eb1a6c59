package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rfqdesk/core/events"
	"rfqdesk/native/permit"
	"rfqdesk/native/roles"
	"rfqdesk/native/settlement"
	"rfqdesk/observability"
	"rfqdesk/observability/logging"
	telemetry "rfqdesk/observability/otel"
	"rfqdesk/services/rfqd/config"
	"rfqdesk/services/rfqd/pricefeed"
	"rfqdesk/services/rfqd/server"
	"rfqdesk/services/rfqd/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/rfqd/config.yaml", "path to rfqd configuration file (.yaml or .toml)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("rfqd: load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("RFQ_ENV"))
	logger := logging.Setup("rfqd", env, logging.Options{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv("rfqd", env, nil))
	if err != nil {
		log.Fatalf("rfqd: init telemetry: %v", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	params, err := cfg.Engine.Parameters()
	if err != nil {
		log.Fatalf("rfqd: engine parameters: %v", err)
	}
	ledger, err := seedLedger(params, cfg.Balances)
	if err != nil {
		log.Fatalf("rfqd: seed ledger: %v", err)
	}
	store, err := seedRoles(cfg.Roles)
	if err != nil {
		log.Fatalf("rfqd: seed roles: %v", err)
	}

	engine, err := settlement.NewEngine(params, ledger, store)
	if err != nil {
		log.Fatalf("rfqd: settlement engine: %v", err)
	}
	engine.SetLogger(logger)
	engine.SetObserver(observability.Settlement())
	if cfg.Roles.WhitelistEnabled {
		engine.SetWhitelist(roles.Whitelist{Store: store})
	}

	archive, err := storage.OpenArchive(cfg.ArchiveDSN, logger)
	if err != nil {
		log.Fatalf("rfqd: open archive: %v", err)
	}
	defer archive.Close()

	hub := server.NewHub(0, logger)
	engine.SetEmitter(events.Multi{archive, hub, observability.EventCounter{}})

	var nonces *storage.LevelDBNonceStore
	if strings.TrimSpace(cfg.NonceDBPath) == "" {
		logger.Warn("rfqd: nonce_db not set, permit nonces are kept in memory")
		nonces, err = storage.OpenMemoryNonceStore()
	} else {
		nonces, err = storage.OpenNonceStore(cfg.NonceDBPath)
	}
	if err != nil {
		log.Fatalf("rfqd: open nonce store: %v", err)
	}
	defer nonces.Close()
	engine.SetPermits(permit.NewAuthorizer(cfg.ChainID, ledger, nonces))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.PriceFeed.Endpoint != "" {
		poller, err := pricefeed.New(cfg.PriceFeed.Endpoint, cfg.PriceFeed.Interval.Duration, cfg.PriceFeed.Timeout.Duration, pricefeed.WithLogger(logger))
		if err != nil {
			log.Fatalf("rfqd: price feed: %v", err)
		}
		engine.SetPriceFeed(poller)
		go func() {
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("rfqd: price feed stopped", slog.Any("error", err))
			}
		}()
	}
	go runSweeper(ctx, engine, cfg.SweepInterval.Duration, logger)

	auth, err := server.NewAuthenticator(server.AuthConfig{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	if err != nil {
		log.Fatalf("rfqd: authenticator: %v", err)
	}
	srv, err := server.New(server.Config{
		ListenAddress:   cfg.ListenAddress,
		ShutdownTimeout: cfg.ShutdownTimeout.Duration,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	}, engine, auth, archive, hub, logger)
	if err != nil {
		log.Fatalf("rfqd: server: %v", err)
	}

	logger.Info("rfqd listening",
		slog.String("addr", cfg.ListenAddress),
		slog.String("base", params.BaseAsset),
		slog.String("counter", params.CounterAsset))
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("rfqd: server stopped: %v", err)
	}
}
