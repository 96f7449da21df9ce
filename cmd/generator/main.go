// Generator publishes synthetic readings for the sensors defined in the
// configuration, one round per interval, for exercising the collector.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comail/colog"

	"mqpg/internal/config"
	"mqpg/internal/generator"
	"mqpg/internal/mqtt"
)

func main() {
	colog.Register()
	colog.ParseFields(true)
	colog.SetMinLevel(colog.LDebug)

	configFile := flag.String("config", "mqpg.tml", "configuration")
	flag.Parse()

	conf, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("error: %v", err)
	}

	pub, err := mqtt.NewPublisher(conf.MQTT)
	if err != nil {
		log.Fatalf("error: %v", err)
	}
	defer pub.Disconnect(250)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	gen, err := generator.New(conf.Generator, pub, rng)
	if err != nil {
		log.Fatalf("error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gen.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("error: %v", err)
	}
	log.Print("info: generator stopped")
}
