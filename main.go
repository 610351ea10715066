package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/karthikraju391/farmconnect/auth"
	"github.com/karthikraju391/farmconnect/chat"
	"github.com/karthikraju391/farmconnect/config"
	"github.com/karthikraju391/farmconnect/handlers"
	"github.com/karthikraju391/farmconnect/logging"
	"github.com/karthikraju391/farmconnect/marketplace"
	"github.com/karthikraju391/farmconnect/metrics"
	"github.com/karthikraju391/farmconnect/nats_service"
	"github.com/karthikraju391/farmconnect/orders"
	"github.com/karthikraju391/farmconnect/otp"
	"github.com/karthikraju391/farmconnect/storage"
	"github.com/shopspring/decimal"
)

var _ orders.Catalog = (*marketplace.Service)(nil)

func main() {
	if err := run(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	m := metrics.New()

	// --- Storage ---
	db, err := storage.Open(cfg.BadgerPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", "error", err)
		}
	}()
	probes := []handlers.Probe{{Name: "database", Check: func() bool { return !db.IsClosed() }}}

	// --- Chat transport ---
	var transport chat.Transport
	if cfg.NatsURL != "" {
		natsSvc, err := nats_service.NewNatsService(context.Background(), log, nats_service.Options{
			URL:            cfg.NatsURL,
			StreamName:     cfg.StreamName,
			SubjectPrefix:  cfg.SubjectPrefix,
			MaxAge:         cfg.StreamMaxAge,
			MaxMsgsPerRoom: int64(cfg.MaxMsgsPerRoom),
			Timeout:        cfg.TransportTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize NATS service: %w", err)
		}
		defer natsSvc.Close()
		transport = natsSvc
		probes = append(probes, handlers.Probe{Name: "nats", Check: natsSvc.Healthy})
		log.Info("NATS service initialized", "url", cfg.NatsURL, "stream", cfg.StreamName)
	} else {
		transport = chat.NewLocalBus()
		log.Info("NATS_URL not set, chat runs on the in-process bus")
	}
	gateway := chat.NewGateway(log, chat.NewRegistry(cfg.ChatHistoryLimit), transport, m, chat.GatewayOptions{
		MaxMessageLength: cfg.ChatMaxMessageLength,
		ReplayLimit:      cfg.ChatHistoryLimit,
	})

	// --- Services ---
	users := storage.NewUserStore(db, log)
	feed := marketplace.NewPriceFeed()
	products := marketplace.NewService(storage.NewProductStore(db, log), users, feed, log)
	orderSvc, err := orders.NewService(log, storage.NewOrderStore(db, log), products, m, decimal.NewFromFloat(cfg.CommissionRate))
	if err != nil {
		return err
	}
	otpSvc := otp.NewService(log, otp.NewLogSender(log), m, cfg.OTPTTL)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	authSvc := auth.NewService(log, users, otpSvc, tokens)

	api := handlers.NewAPI(log, authSvc, otpSvc, products, feed, orderSvc, probes...)
	chatHandler := handlers.NewChatHandler(log, gateway, tokens, m, cfg.ChatSendBuffer)
	app := handlers.NewApp(log, api, chatHandler, m, cfg.FrontendDir)

	// --- Start Server ---
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", cfg.ServerAddr())
		errCh <- app.Listen(cfg.ServerAddr())
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	}

	if err := app.Shutdown(); err != nil {
		log.Error("Error shutting down Fiber", "error", err)
	}
	// NATS and badger are closed by the defers above.
	log.Info("Server gracefully stopped")
	return nil
}
