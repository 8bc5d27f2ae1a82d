package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yourorg/support-chat/internal/api"
	"github.com/yourorg/support-chat/internal/auth"
	"github.com/yourorg/support-chat/internal/config"
	"github.com/yourorg/support-chat/internal/events"
	"github.com/yourorg/support-chat/internal/hub"
	"github.com/yourorg/support-chat/internal/logger"
	"github.com/yourorg/support-chat/internal/media"
	"github.com/yourorg/support-chat/internal/metrics"
	"github.com/yourorg/support-chat/internal/presence"
	"github.com/yourorg/support-chat/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logg, err := logger.New(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var verifier *auth.Verifier
	if cfg.JWT.Algorithm == "RS256" {
		verifier, err = auth.NewVerifierRS256(cfg.JWT.PublicKeyPath)
	} else {
		verifier, err = auth.NewVerifierHS256(cfg.JWT.Secret)
	}
	if err != nil {
		logg.Fatalw("jwt verifier init", "err", err)
	}

	mongoClient, err := repository.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		logg.Fatalw("mongo connect", "err", err)
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	repo := repository.NewMessageRepository(mongoClient.Database(cfg.Mongo.Database))

	redisClient, err := presence.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logg.Fatalw("redis connect", "err", err)
	}
	defer func() { _ = redisClient.Close() }()
	presenceStore := presence.NewStore(redisClient, cfg.Redis.Prefix, time.Minute)

	producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer func() { _ = producer.Close() }()

	h := hub.New()
	hub.AttachPeerRelay(ctx, h, presenceStore, logg)

	wsHandler := hub.NewHandler(h, repo, presenceStore, producer, logg, hub.Options{
		PingInterval:  cfg.PingInterval,
		WriteDeadline: cfg.WriteDeadline,
		MaxMsgSize:    cfg.WS.MaxMessageSizeBytes,
		RateLimit:     cfg.WS.RateLimitPerSecond,
	})

	s3store, err := media.NewS3Store(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.PublicRead)
	if err != nil {
		logg.Fatalw("s3 init", "err", err)
	}
	mediaSvc := media.NewService(repo, s3store, h, logg)
	mediaHandler := media.NewHandler(mediaSvc)

	app := api.New(verifier, wsHandler, mediaHandler, repo, logg)

	// metrics on their own listener so the scrape path stays off fiber
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			logg.Warnw("metrics listener", "err", err)
		}
	}()

	errs := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		logg.Infow("starting support-chat", "addr", addr)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		logg.Fatalw("server error", "err", err)
	case s := <-sig:
		logg.Infow("signal received", "signal", s.String())
	}

	cancel()
	h.Close()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logg.Warnw("fiber shutdown", "err", err)
	}
	logg.Info("shutdown complete")
}
