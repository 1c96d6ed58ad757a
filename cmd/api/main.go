package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lojinha/checkout/internal/checkout"
	"github.com/lojinha/checkout/internal/config"
	"github.com/lojinha/checkout/internal/gateway"
	"github.com/lojinha/checkout/internal/httpx"
	kafkax "github.com/lojinha/checkout/internal/kafka"
	"github.com/lojinha/checkout/internal/orders"
	"github.com/lojinha/checkout/internal/postgres"
	"github.com/lojinha/checkout/internal/pricing"
	"github.com/lojinha/checkout/internal/redisx"
	"github.com/lojinha/checkout/internal/watcher"
	"github.com/lojinha/checkout/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer (order lifecycle events)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024)
	prod.Start(ctx)

	repo := &orders.Repo{DB: db}
	transitions := &orders.Transitions{
		Store:    repo,
		Producer: prod,
		RDB:      rdb,
		Service:  cfg.ServiceName,
	}
	gw := gateway.New(cfg.GatewayBaseURL, cfg.GatewayAPIKey, rdb, repo)

	svc := &checkout.Service{
		Pricing:        &pricing.Service{Catalog: repo, Coupons: repo},
		Store:          repo,
		Gateway:        gw,
		Transitions:    transitions,
		Producer:       prod,
		ReservationTTL: cfg.ReservationTTL,
		ServiceName:    cfg.ServiceName,
	}

	router := httpx.NewRouter()
	ch := &httpx.CheckoutHandler{
		Svc:      svc,
		Sessions: &checkout.SessionStore{RDB: rdb},
	}
	ch.Register(router)

	sh := &httpx.StatusHandler{
		Store: repo,
		Redis: rdb,
		Watcher: &watcher.Watcher{
			RDB:   rdb,
			Store: repo,
		},
	}
	sh.Register(router)

	wh := &httpx.WebhookHandler{
		Ingestor: &webhook.Ingestor{Store: repo, Transitions: transitions},
		Secret:   cfg.WebhookSecret,
	}
	wh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	cancel()
	prod.WaitClosed()
}
