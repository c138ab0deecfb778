package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"rally/internal/notify"
	notifyrepo "rally/internal/notify/repository"
	"rally/pkg/clock"
	"rally/pkg/config"
	"rally/pkg/kafka"
)

const ServiceName = "notifier"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting notifier service")

	if len(cfg.KafkaBrokers) == 0 {
		cfg.Log.Fatal("KafkaBrokers must be configured for the notifier")
	}

	dispatcher := notify.NewDispatcher(
		notifyrepo.NewMongoNotificationRepository(cfg),
		clock.Real(),
		cfg.Log,
	)

	consumer, err := kafka.NewConsumer(
		kafka.NewConfig(cfg.KafkaBrokers),
		cfg.KafkaTopic,
		cfg.KafkaGroupID,
		cfg.KafkaDLQTopic,
		dispatcher.Handle,
		cfg.Log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Log.Info("Consuming lifecycle events",
		"topic", cfg.KafkaTopic,
		"group_id", cfg.KafkaGroupID,
	)

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Fatal("Consumer stopped with error", "error", err)
	}

	cfg.Log.Info("Notifier stopped")
}
