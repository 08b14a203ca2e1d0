package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bagaspry/go-shop-orders/internal/catalog"
	"github.com/bagaspry/go-shop-orders/internal/clock"
	"github.com/bagaspry/go-shop-orders/internal/config"
	"github.com/bagaspry/go-shop-orders/internal/httpx"
	kafkax "github.com/bagaspry/go-shop-orders/internal/kafka"
	"github.com/bagaspry/go-shop-orders/internal/ledger"
	"github.com/bagaspry/go-shop-orders/internal/logging"
	"github.com/bagaspry/go-shop-orders/internal/notify"
	"github.com/bagaspry/go-shop-orders/internal/orders"
	"github.com/bagaspry/go-shop-orders/internal/postgres"
	"github.com/bagaspry/go-shop-orders/internal/redisx"
	"github.com/bagaspry/go-shop-orders/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for depletion events
	prod := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicStockDepleted, 1024, log)
	prod.Start(ctx)

	// Push hub + relay consumer
	hub := notify.NewHub()
	go hub.Run(ctx)

	relay := &notify.Relay{Hub: hub, Redis: rdb, Log: log}
	workers, err := strconv.Atoi(cfg.NotifyWorkers)
	if err != nil || workers < 1 {
		workers = 4
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifyGroup, notify.TopicStockDepleted, workers, log)
	go func() {
		log.Info("notify relay started", "group", cfg.NotifyGroup, "topic", notify.TopicStockDepleted, "workers", workers)
		if err := cons.Start(ctx, relay.HandleMessage); err != nil {
			log.Error("notify relay exited", "err", err)
			cancel()
		}
	}()

	// Repos & service
	catalogRepo := catalog.NewRepo(db)
	ledgerRepo := ledger.NewRepo(db)
	orderRepo := orders.NewRepo(db)
	sink := notify.NewKafkaSink(prod, cfg.ServiceName)
	svc := orders.NewService(
		postgres.NewTxManager(db),
		catalogRepo, ledgerRepo, orderRepo, sink,
		clock.NewSystem(), log,
	)

	// HTTP
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Svc: svc, Redis: rdb, Log: log}
	oh.Register(router)
	ph := &httpx.ProductsHandler{Catalog: catalogRepo}
	ph.Register(router)
	sh := &httpx.StreamHandler{Hub: hub}
	sh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen failed", "err", err)
			cancel()
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	prod.Close() // flush queued events
	cancel()     // stop relay, hub, producer loop
	prod.WaitClosed()
}
