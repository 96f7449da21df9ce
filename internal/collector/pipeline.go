// Package collector implements the buffered ingestion pipeline: the
// message intake loop, the ingestion buffer, and its flush triggers.
package collector

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"mqpg/internal/metrics"
	"mqpg/internal/parser"
	"mqpg/internal/telemetry"
)

// MeasurementWriter is the batch side of the structured store.
type MeasurementWriter interface {
	InsertMeasurements(ctx context.Context, entries []telemetry.Entry) error
}

// RawLogger records every validated inbound message.
type RawLogger interface {
	Append(msg telemetry.Message, payload map[string]interface{}) error
}

// Classifier flags a validated reading against the sensor registry.
type Classifier interface {
	Classify(r telemetry.Reading) telemetry.QualityFlag
}

// Pipeline owns all mutable ingestion state: the buffer and the last
// successful flush time. It is driven synchronously by the broker
// client's delivery callback, so none of that state is locked.
type Pipeline struct {
	store   MeasurementWriter
	rawLog  RawLogger
	catalog Classifier
	metrics *metrics.Metrics

	bufferSize    int
	flushInterval time.Duration

	buffer    []telemetry.Entry
	lastFlush time.Time
	now       func() time.Time
}

// New builds a Pipeline with an empty buffer. The time trigger counts
// from construction until the first successful flush.
func New(store MeasurementWriter, rawLog RawLogger, catalog Classifier,
	m *metrics.Metrics, bufferSize int, flushInterval time.Duration) *Pipeline {
	p := &Pipeline{
		store:         store,
		rawLog:        rawLog,
		catalog:       catalog,
		metrics:       m,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		now:           time.Now,
	}
	p.lastFlush = p.now()
	return p
}

// HandleMessage processes one inbound message: validate, classify, raw
// log, buffer, and flush when a trigger fires. It never fails the intake
// loop; a bad message is logged and dropped, and anything unexpected is
// recovered here so the next message still gets processed.
func (p *Pipeline) HandleMessage(msg telemetry.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("error: recovered while handling message on %s: %v", msg.Topic, r)
		}
	}()

	reading, payload, err := parser.Parse(msg.Payload)
	if err != nil {
		if errors.Is(err, parser.ErrMalformedPayload) {
			p.metrics.Message("malformed")
		} else {
			p.metrics.Message("invalid")
		}
		log.Printf("error: dropping message on %s: %v", msg.Topic, err)
		return
	}

	quality := p.catalog.Classify(reading)
	p.metrics.Reading(string(quality))
	if quality != telemetry.QualityValid {
		log.Printf("warning: reading from %s flagged %s (value %v)", reading.SensorID, quality, reading.Value)
	}

	// Raw log failures must not block the structured-store path.
	if err := p.rawLog.Append(msg, payload); err != nil {
		p.metrics.RawLogFailure()
		log.Printf("error: raw log write for %s failed: %v", msg.Topic, err)
	}

	p.buffer = append(p.buffer, telemetry.Entry{Reading: reading, Quality: quality})
	p.metrics.Message("buffered")
	p.metrics.Buffer(len(p.buffer))

	if p.shouldFlush() {
		if err := p.Flush(context.Background()); err != nil {
			log.Printf("error: flush failed, retaining %d entries: %v", len(p.buffer), err)
		}
	}
}

// shouldFlush evaluates both triggers; either alone suffices.
func (p *Pipeline) shouldFlush() bool {
	return len(p.buffer) >= p.bufferSize ||
		p.now().Sub(p.lastFlush) >= p.flushInterval
}

// Flush writes the whole buffer in one transaction. On success the buffer
// is cleared and the flush clock reset; on failure both are left alone so
// the entries ride along with the next attempt.
func (p *Pipeline) Flush(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	if err := p.store.InsertMeasurements(ctx, p.buffer); err != nil {
		p.metrics.Flush("failure", 0)
		return err
	}

	rows := len(p.buffer)
	p.buffer = p.buffer[:0]
	p.lastFlush = p.now()
	p.metrics.Flush("success", rows)
	p.metrics.Buffer(0)
	log.Printf("info: inserted %d measurements", rows)
	return nil
}

// Pending returns the number of buffered entries awaiting a flush.
func (p *Pipeline) Pending() int {
	return len(p.buffer)
}
