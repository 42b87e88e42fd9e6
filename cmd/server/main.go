package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/terminal/internal/config"
	"github.com/kiwari-pos/terminal/internal/database"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/logging"
	"github.com/kiwari-pos/terminal/internal/router"
	"github.com/kiwari-pos/terminal/internal/ws"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Format: cfg.LogFormat}); err != nil {
		log.Fatalf("setup logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Migrate {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Info("migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	pub, closeBroker, err := publisher(cfg, hub)
	if err != nil {
		log.Fatalf("events: %v", err)
	}
	defer closeBroker()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, database.New(pool), pool, hub, pub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown")
		}
	}()

	log.WithFields(log.Fields{"addr": srv.Addr, "broker": cfg.EventsBroker}).Info("starting server")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Info("server stopped")
}

// publisher fans order events out to connected terminals and, when
// configured, to the message broker.
func publisher(cfg *config.Config, hub *ws.Hub) (events.Publisher, func(), error) {
	hubPub := events.HubPublisher{Hub: hub}
	switch cfg.EventsBroker {
	case "amqp":
		amqpPub, err := events.DialAMQP(cfg.AMQPURL)
		if err != nil {
			return nil, nil, err
		}
		return events.Multi{hubPub, amqpPub}, func() { _ = amqpPub.Close() }, nil
	case "kafka":
		kafkaPub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return events.Multi{hubPub, kafkaPub}, func() { _ = kafkaPub.Close() }, nil
	default:
		return hubPub, func() {}, nil
	}
}
