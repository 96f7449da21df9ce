// Package generator simulates registered sensors and publishes plausible
// readings for testing the ingestion pipeline.
package generator

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/pkg/errors"

	"mqpg/internal/config"
)

// Publisher sends one payload to a broker topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// A Sensor produces a bounded random walk within its configured range,
// so consecutive readings look like a real drifting measurement rather
// than white noise.
type Sensor struct {
	conf    config.Sensor
	current float64
	rng     *rand.Rand
}

// NewSensor seeds the walk with a uniform value inside the range.
func NewSensor(conf config.Sensor, rng *rand.Rand) *Sensor {
	return &Sensor{
		conf:    conf,
		current: conf.Min + rng.Float64()*(conf.Max-conf.Min),
		rng:     rng,
	}
}

// Topic returns the sensor's publish topic. Spaces in the ID are
// replaced so the topic stays a single level.
func (s *Sensor) Topic() string {
	return "sensors/" + strings.ReplaceAll(s.conf.ID, " ", "_")
}

// Step advances the walk by at most ±0.5, clamped to [min, max], and
// returns the value rounded to two decimals.
func (s *Sensor) Step() float64 {
	s.current += s.rng.Float64() - 0.5
	s.current = math.Max(s.conf.Min, math.Min(s.conf.Max, s.current))
	return math.Round(s.current*100) / 100
}

type payload struct {
	SensorID  string  `json:"sensor_id"`
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
}

// Reading produces the JSON body for one tick.
func (s *Sensor) Reading(now time.Time) ([]byte, error) {
	body, err := json.Marshal(payload{
		SensorID:  s.conf.ID,
		Timestamp: now.UTC().Format(time.RFC3339),
		Value:     s.Step(),
		Unit:      s.conf.Unit,
	})
	return body, errors.Wrapf(err, "encoding reading for %s", s.conf.ID)
}

// A Generator publishes every sensor's reading once per interval.
type Generator struct {
	sensors  []*Sensor
	pub      Publisher
	interval time.Duration
}

// New builds a Generator from config. At least one sensor must be
// defined.
func New(conf config.Generator, pub Publisher, rng *rand.Rand) (*Generator, error) {
	if len(conf.Sensors) == 0 {
		return nil, errors.New("no sensors configured")
	}
	sensors := make([]*Sensor, len(conf.Sensors))
	for i, sc := range conf.Sensors {
		sensors[i] = NewSensor(sc, rng)
	}
	return &Generator{
		sensors:  sensors,
		pub:      pub,
		interval: conf.Interval.Std(),
	}, nil
}

// Run publishes on every tick until ctx is done. Publish failures are
// logged and the loop continues; the broker supervisor handles
// reconnection.
func (g *Generator) Run(ctx context.Context) error {
	log.Printf("info: publishing %d sensors every %s", len(g.sensors), g.interval)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			g.publishAll(now)
		}
	}
}

func (g *Generator) publishAll(now time.Time) {
	for _, sensor := range g.sensors {
		body, err := sensor.Reading(now)
		if err != nil {
			log.Printf("error: %v", err)
			continue
		}
		if err := g.pub.Publish(sensor.Topic(), body); err != nil {
			log.Printf("error: %v", err)
			continue
		}
		log.Printf("debug: published to %s: %s", sensor.Topic(), body)
	}
}
