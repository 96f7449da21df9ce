// Collector is the buffered ingestion service: it consumes sensor
// readings from MQTT, validates and classifies them, appends every
// message to the raw log, and batch-inserts measurements into PostgreSQL.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/comail/colog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mqpg/internal/collector"
	"mqpg/internal/config"
	"mqpg/internal/metrics"
	"mqpg/internal/mqtt"
	"mqpg/internal/postgres"
	"mqpg/internal/quality"
	"mqpg/internal/rawlog"
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

	ctx := context.Background()

	// Store first: the sensor catalog must be loaded before any intake.
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
	log.Printf("info: loaded %d sensors from registry", catalog.Len())

	rawLog, err := rawlog.NewWriter(conf.Collector.RawLogDir)
	if err != nil {
		log.Fatalf("error: %v", err)
	}

	m := metrics.New()
	if conf.Collector.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("info: metrics on %s/metrics", conf.Collector.MetricsAddr)
			if err := http.ListenAndServe(conf.Collector.MetricsAddr, mux); err != nil {
				log.Printf("error: metrics listener: %v", err)
			}
		}()
	}

	pipeline := collector.New(store, rawLog, catalog, m,
		conf.Collector.BufferSize, conf.Collector.FlushInterval.Std())

	fwd := pipeline.HandleMessage
	if conf.MQTT.KeepAlive > 0 {
		watchdog := mqtt.NewWatchdog(conf.MQTT.KeepAlive.Std())
		defer watchdog.Stop()
		handle := fwd
		fwd = func(msg telemetry.Message) {
			watchdog.Observe()
			handle(msg)
		}
	}

	client, err := mqtt.Subscribe(conf.MQTT, fwd)
	if err != nil {
		log.Fatalf("error: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Print("info: shutting down")
	client.Disconnect(250)
	if err := pipeline.Flush(ctx); err != nil {
		log.Printf("error: final flush failed, %d entries lost: %v", pipeline.Pending(), err)
	}
}
