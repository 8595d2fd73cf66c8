// Package main is the entry point for the AdmitFlow API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"

	"github.com/dharsanguruparan/AdmitFlow/internal/api"
	"github.com/dharsanguruparan/AdmitFlow/internal/auth"
	"github.com/dharsanguruparan/AdmitFlow/internal/config"
	"github.com/dharsanguruparan/AdmitFlow/internal/database"
	"github.com/dharsanguruparan/AdmitFlow/internal/gateway"
	"github.com/dharsanguruparan/AdmitFlow/internal/repository"
	"github.com/dharsanguruparan/AdmitFlow/internal/s3storage"
	"github.com/dharsanguruparan/AdmitFlow/internal/signing"
	"github.com/dharsanguruparan/AdmitFlow/internal/verification"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is configured from cfg, so fall back to the default one.
		config.NewLogger(&config.Config{}).WithError(err).Fatal("load config")
	}
	log := config.NewLogger(cfg)

	// Cancel everything on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool, log); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	store, err := s3storage.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("init storage")
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.WithError(err).Fatal("ensure bucket")
	}

	tasks := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer tasks.Close()

	orders := repository.NewOrderRepository(pool)
	signer := signing.NewSigner(cfg.SigningSecret)
	deps := api.Deps{
		Address:        cfg.Address,
		Tokens:         auth.NewVerifier(cfg.JWTSecret),
		Applications:   repository.NewApplicationRepository(pool),
		Documents:      repository.NewDocumentRepository(pool),
		Orders:         orders,
		Windows:        repository.NewWindowRepository(pool),
		Objects:        store,
		Queue:          tasks,
		Fee:            cfg.ApplicationFee,
		Currency:       cfg.Currency,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SignedURLTTL:   cfg.SignedURLTTL,
		Clock:          clockwork.NewRealClock(),
		Logger:         log,
	}
	// Without a gateway key orders are still issued, but success needs a
	// signed confirmation.
	if cfg.MidtransServerKey != "" {
		mt := gateway.NewMidtrans(cfg.MidtransServerKey, cfg.MidtransProduction)
		deps.Checkout = mt
		deps.Notifier = mt
		deps.Verifier = verification.New(orders, signer, mt, log)
	} else {
		log.Warn("MIDTRANS_SERVER_KEY not set; hosted checkout and notifications disabled")
		deps.Verifier = verification.New(orders, signer, nil, log)
	}

	if err := api.New(deps).Run(ctx); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}
