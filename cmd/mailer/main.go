package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"

	"github.com/rbroggi/userdir/internal/actors/console"
	subscriberactor "github.com/rbroggi/userdir/internal/actors/pubsub/subscriber"
	"github.com/rbroggi/userdir/internal/core/usecase"
	log "github.com/sirupsen/logrus"
)

func init() {
	// Log as JSON instead of the default ASCII formatter.
	log.SetFormatter(&log.JSONFormatter{})

	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)

	// Only log the DebugLevel severity or above.
	log.SetLevel(log.DebugLevel)
}

func run() error {
	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	if projectID == "" {
		projectID = "userdir"
	}
	subscriptionID := os.Getenv("PUBSUB_NOTIFICATION_SUBSCRIPTION_ID")
	if subscriptionID == "" {
		subscriptionID = "mailer.userdir.Notifications.sub"
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return err
	}
	defer client.Close()

	dispatcher := usecase.NewDispatcher(console.NewSender())

	subscription := client.Subscription(subscriptionID)
	subscriber := subscriberactor.NewSubscriber(subscriberactor.SubscriberArgs{
		NotificationHandler: dispatcher,
		Subscription:        subscription,
	})

	// start subscriber
	go func(ctx context.Context) {
		if err := subscriber.Consume(ctx); err != nil {
			panic(err)
		}
	}(ctx)

	log.
		WithField("subscription", subscriptionID).
		Info("mailer up. listening to SIGTERM, SIGINT, SIGQUIT for stoping")

	// Wait for signal
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	<-ch

	return nil
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		panic(err)
	}
}
