package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/pflag"

	"parking-reservation-backend/config"
	"parking-reservation-backend/internal/api"
	"parking-reservation-backend/internal/calendar"
	"parking-reservation-backend/internal/db"
	"parking-reservation-backend/internal/notification"
	"parking-reservation-backend/internal/reservation"
	"parking-reservation-backend/internal/store"
	"parking-reservation-backend/internal/sweep"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "parkingd ", log.LstdFlags)

	configPath := pflag.StringP("config", "c", "", "path to the YAML configuration file (default $CONFIG_PATH or ./config/config.yaml)")
	pflag.Parse()
	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}
	if *configPath == "" {
		*configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", *configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", *configPath)

	clock, err := calendar.NewSystemClock(cfg.Clock.Timezone)
	if err != nil {
		logger.Fatalf("invalid clock configuration: %v", err)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, clock.Now())
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	var (
		producers      notification.Fanout
		webpushOptions *webpush.Options
	)
	if cfg.Notification.AMQP.Enabled {
		amqpProducer, closeAMQP, err := notification.DialAMQP(cfg.Notification.AMQP)
		if err != nil {
			logger.Fatalf("failed to set up email queue: %v", err)
		}
		defer closeAMQP()
		producers = append(producers, amqpProducer)
		logger.Printf("email notifications published to exchange %s", cfg.Notification.AMQP.Exchange)
	}
	if push := cfg.Notification.Push; push.Enabled {
		if push.PublicKey == "" || push.PrivateKey == "" {
			logger.Fatalf("VAPID keys must be configured when push notifications are enabled.")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  push.PublicKey,
			VAPIDPrivateKey: push.PrivateKey,
			Subscriber:      push.Subject,
			TTL:             push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, webpushOptions)
		pool.Start(ctx)
		producers = append(producers, pool)
	}

	var producer notification.Producer = notification.Nop{}
	if len(producers) > 0 {
		producer = producers
	}

	svc := reservation.NewService(appStore, producer, clock)

	sweeps, err := sweep.NewService(cfg.Sweep, appStore, producer, clock)
	if err != nil {
		logger.Fatalf("invalid sweep schedule: %v", err)
	}
	go sweeps.Run(ctx)

	// Initialize router
	router := api.NewRouter(cfg.Server, svc, appStore, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
