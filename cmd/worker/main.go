package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lojinha/checkout/internal/config"
	kafkax "github.com/lojinha/checkout/internal/kafka"
	"github.com/lojinha/checkout/internal/notify"
	"github.com/lojinha/checkout/internal/orders"
	"github.com/lojinha/checkout/internal/postgres"
	"github.com/lojinha/checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer for cancellation events published by the sweep
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024)
	prod.Start(ctx)

	repo := &orders.Repo{DB: db}
	transitions := &orders.Transitions{
		Store:    repo,
		Producer: prod,
		RDB:      rdb,
		Service:  cfg.ServiceName + "-worker",
	}

	// Expiry sweep: reclaims reservations past their deadline
	sweeper := &orders.Sweeper{Store: repo, Transitions: transitions}
	go func() {
		log.Printf("expiry sweep every %s", cfg.SweepInterval)
		sweeper.Run(ctx, cfg.SweepInterval)
	}()

	// Notification consumer
	group := getenv("NOTIFY_GROUP", "checkout-notify")
	workers := mustAtoi(os.Getenv("NOTIFY_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderEvents, workers)
	svc := &notify.Service{
		Store:       repo,
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-notify",
	}

	go func() {
		log.Printf("notify consumer started: group=%s topic=%s workers=%d", group, orders.TopicOrderEvents, workers)
		if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down worker...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
