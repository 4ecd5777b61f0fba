package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/GuardainDev/opinion-trade-orderbook/api/http"
	"github.com/GuardainDev/opinion-trade-orderbook/config"
	"github.com/GuardainDev/opinion-trade-orderbook/infra/kafka"
	"github.com/GuardainDev/opinion-trade-orderbook/infra/logging"
	"github.com/GuardainDev/opinion-trade-orderbook/infra/outbox"
	"github.com/GuardainDev/opinion-trade-orderbook/infra/sequence"
	"github.com/GuardainDev/opinion-trade-orderbook/infra/verify"
	"github.com/GuardainDev/opinion-trade-orderbook/jobs/broadcaster"
	"github.com/GuardainDev/opinion-trade-orderbook/service"
)

func main() {
	cfg := config.LoadFromEnv("")

	logger, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	// ---------------- Outbox ----------------

	box, err := outbox.Open(cfg.OutboxDir)
	if err != nil {
		log.Fatalw("outbox init failed", "dir", cfg.OutboxDir, "error", err)
	}
	defer box.Close()

	// ---------------- Sequencer ----------------

	seqGen := sequence.New(0)

	// ---------------- Verification ----------------

	verifier := verify.NewClient(cfg.Verify.URL, cfg.Verify.Timeout)

	// ---------------- Service ----------------

	exchange := service.NewExchange(verifier.Verify, box, seqGen, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exchange.Start(ctx)

	// ---------------- HTTP + WebSocket ----------------

	srv := api.NewServer(exchange, ":"+cfg.ServicePort, log)
	exchange.SetDepthPublisher(srv.Hub())

	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Fatalw("http server exited", "error", err)
		}
	}()

	// ---------------- Background Jobs ----------------

	bc, err := broadcaster.New(box, cfg.Kafka.Brokers, cfg.Kafka.ExecutionsTopic, cfg.BroadcastInterval, log)
	if err != nil {
		log.Fatalw("broadcaster init failed", "error", err)
	}
	defer bc.Close()
	go bc.Run(ctx)

	// ---------------- Order Event Consumer ----------------

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic, cfg.Kafka.GroupID, exchange.HandleEvent, log)
	defer consumer.Close()

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalw("consumer exited", "error", err)
		}
	}()

	log.Infow("engine running", "port", cfg.ServicePort, "orders_topic", cfg.Kafka.OrdersTopic)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Infow("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "error", err)
	}
}
