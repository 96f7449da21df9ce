// Subscriber is the unbuffered reference consumer: one row per message,
// written immediately, with no batching and no connection retries. It
// exists as a comparison baseline for the buffered collector.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/comail/colog"

	"mqpg/internal/config"
	"mqpg/internal/mqtt"
	"mqpg/internal/parser"
	"mqpg/internal/postgres"
	"mqpg/internal/quality"
	"mqpg/internal/telemetry"
)

func main() {
	colog.Register()
	colog.ParseFields(true)
	colog.SetMinLevel(colog.LInfo)

	configFile := flag.String("config", "mqpg.tml", "configuration")
	flag.Parse()

	conf, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("error: %v", err)
	}
	// single attempt only: this binary deliberately has no retry logic
	conf.Postgres.ConnectAttempts = 1
	conf.MQTT.ConnectAttempts = 1

	ctx := context.Background()

	store, err := postgres.Connect(ctx, conf.Postgres)
	if err != nil {
		log.Fatalf("error: %v", err)
	}
	defer store.Close()

	sensors, err := store.Sensors(ctx)
	if err != nil {
		log.Fatalf("error: loading sensor registry: %v", err)
	}
	catalog := quality.NewCatalog(sensors)

	client, err := mqtt.Subscribe(conf.MQTT, func(msg telemetry.Message) {
		reading, _, err := parser.Parse(msg.Payload)
		if err != nil {
			log.Printf("error: dropping message on %s: %v", msg.Topic, err)
			return
		}
		entry := telemetry.Entry{Reading: reading, Quality: catalog.Classify(reading)}
		if err := store.InsertMeasurement(ctx, entry); err != nil {
			log.Printf("error: %v", err)
			return
		}
		log.Printf("debug: saved %s=%v (%s)", reading.SensorID, reading.Value, entry.Quality)
	})
	if err != nil {
		log.Fatalf("error: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	client.Disconnect(250)
}
