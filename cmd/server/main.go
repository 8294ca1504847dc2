package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naturemedica/commerce/internal/cache"
	"github.com/naturemedica/commerce/internal/config"
	"github.com/naturemedica/commerce/internal/courier"
	"github.com/naturemedica/commerce/internal/domain"
	"github.com/naturemedica/commerce/internal/handler"
	"github.com/naturemedica/commerce/internal/logger"
	"github.com/naturemedica/commerce/internal/notify"
	"github.com/naturemedica/commerce/internal/server"
	"github.com/naturemedica/commerce/internal/service"
	"github.com/naturemedica/commerce/internal/store"
	"github.com/naturemedica/commerce/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mongoCfg := store.DefaultMongoConfig()
	mongoCfg.URI = cfg.Mongo.URI
	mongoCfg.Database = cfg.Mongo.Database

	db, err := store.NewClient(ctx, mongoCfg)
	if err != nil {
		log.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer db.Close(context.Background())

	if err := db.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to create indexes", zap.Error(err))
	}
	repo := store.NewMongoOrderRepository(db)

	var trackingCache cache.Cache = cache.Noop{}
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisAdapter(cfg.Redis.URL)
		if err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisCache.Close()
		trackingCache = redisCache
	}

	registry := buildRegistry(cfg, log)
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	notifier := buildNotifier(cfg, log)

	shippingCfg := service.ShippingConfig{
		DefaultProvider:    domain.CourierCode(cfg.Shipping.DefaultProvider),
		DefaultWeightGrams: int32(cfg.Shipping.DefaultWeightGrams),
		DefaultLengthCm:    int32(cfg.Shipping.DefaultLengthCm),
		DefaultWidthCm:     int32(cfg.Shipping.DefaultWidthCm),
		DefaultHeightCm:    int32(cfg.Shipping.DefaultHeightCm),
		GSTRate:            cfg.Shipping.GSTRate,
		Seller:             sellerDetails(cfg),
	}

	orchestrator := service.NewOrchestrator(repo, registry, notifier, metrics, log, shippingCfg)
	statuses := service.NewStatusService(repo, notifier, metrics, log)
	resolver := service.NewResolver(repo, registry, trackingCache, cfg.Redis.TrackingTTL(), metrics, log)

	srv := server.New(cfg, log, server.Handlers{
		Admin:    handler.NewAdminHandler(orchestrator, statuses, log),
		Tracking: handler.NewTrackingHandler(resolver, log),
		Webhook:  handler.NewWebhookHandler(repo, statuses, cfg.Webhook.Token, log),
	}, func() error {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		return db.HealthCheck(pingCtx)
	})

	go func() {
		if err := srv.Run(); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}

func sellerDetails(cfg *config.AppConfig) courier.SellerDetails {
	return courier.SellerDetails{
		Name:            cfg.Seller.Name,
		Address:         cfg.Seller.Address,
		GSTIN:           cfg.Seller.GSTIN,
		PickupLocation:  cfg.Seller.PickupLocation,
		PickupPincode:   cfg.Seller.PickupPincode,
		ReturnWarehouse: cfg.Seller.ReturnWarehouse,
	}
}

// buildRegistry constructs an adapter for each provider with configured
// credentials. A provider without credentials is skipped, not fatal: a
// storefront may run on a single courier account.
func buildRegistry(cfg *config.AppConfig, log *zap.Logger) *courier.Registry {
	seller := sellerDetails(cfg)
	timeout := cfg.Courier.CourierTimeout()

	var providers []courier.Provider

	if cfg.Courier.ShiprocketEmail != "" {
		p, err := courier.NewShiprocket(courier.ShiprocketConfig{
			BaseURL:  cfg.Courier.ShiprocketBaseURL,
			Email:    cfg.Courier.ShiprocketEmail,
			Password: cfg.Courier.ShiprocketPassword,
			Timeout:  timeout,
			Seller:   seller,
			Logger:   log,
		})
		if err != nil {
			log.Fatal("failed to configure shiprocket", zap.Error(err))
		}
		providers = append(providers, p)
	}

	if cfg.Courier.EkartClientID != "" {
		p, err := courier.NewEkart(courier.EkartConfig{
			BaseURL:      cfg.Courier.EkartBaseURL,
			ClientID:     cfg.Courier.EkartClientID,
			ClientSecret: cfg.Courier.EkartClientSecret,
			Vendor:       cfg.Courier.EkartVendor,
			Timeout:      timeout,
			Seller:       seller,
			Logger:       log,
		})
		if err != nil {
			log.Fatal("failed to configure ekart", zap.Error(err))
		}
		providers = append(providers, p)
	}

	if cfg.Courier.DelhiveryAPIKey != "" {
		p, err := courier.NewDelhivery(courier.DelhiveryConfig{
			BaseURL: cfg.Courier.DelhiveryBaseURL,
			APIKey:  cfg.Courier.DelhiveryAPIKey,
			Timeout: timeout,
			Seller:  seller,
			Logger:  log,
		})
		if err != nil {
			log.Fatal("failed to configure delhivery", zap.Error(err))
		}
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		log.Warn("no courier providers configured; shipment creation will fail")
	}
	return courier.NewRegistry(providers...)
}

// buildNotifier assembles the notification fanout from whichever channels
// are configured.
func buildNotifier(cfg *config.AppConfig, log *zap.Logger) notify.Notifier {
	var notifiers []notify.Notifier

	if cfg.SMTP.Host != "" {
		notifiers = append(notifiers, notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		}, log))
	}

	if cfg.AMQP.URL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(notify.AMQPConfig{
			URL:      cfg.AMQP.URL,
			Exchange: cfg.AMQP.Exchange,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		notifiers = append(notifiers, amqpNotifier)
	}

	if len(notifiers) == 0 {
		return notify.Noop{}
	}
	return notify.NewFanout(notifiers...)
}
