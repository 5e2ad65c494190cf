package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/qianniu/llmbot/internal/chat"
	"github.com/qianniu/llmbot/internal/config"
	"github.com/qianniu/llmbot/internal/db"
	"github.com/qianniu/llmbot/internal/store/rabbitmq"
)

// The worker drains the exchange-record queue and writes rows to the
// messages table. Run it alongside the server when RECORDER_SINK is
// set to rabbit.
func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	cfg := config.Load()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	workers := 4
	if v, err := strconv.Atoi(os.Getenv("WORKER_CONCURRENCY")); err == nil && v > 0 {
		workers = v
	}

	consumer := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue,
		chat.NewDBSink(chat.NewRepo(gdb)), workers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("consuming %s with %d workers", cfg.RabbitQueue, workers)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("consume: %v", err)
	}
	log.Info("worker stopped")
}
