package collector

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqpg/internal/quality"
	"mqpg/internal/telemetry"
)

type fakeStore struct {
	batches [][]telemetry.Entry
	err     error
}

func (f *fakeStore) InsertMeasurements(_ context.Context, entries []telemetry.Entry) error {
	if f.err != nil {
		return f.err
	}
	batch := make([]telemetry.Entry, len(entries))
	copy(batch, entries)
	f.batches = append(f.batches, batch)
	return nil
}

type fakeRawLog struct {
	records []telemetry.Message
	err     error
}

func (f *fakeRawLog) Append(msg telemetry.Message, _ map[string]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, msg)
	return nil
}

type panickyClassifier struct{}

func (panickyClassifier) Classify(telemetry.Reading) telemetry.QualityFlag {
	panic("classifier blew up")
}

func testCatalog() *quality.Catalog {
	return quality.NewCatalog([]telemetry.Sensor{
		{ID: "temp-1", Type: "temperature", Unit: "C", Min: 0, Max: 40},
	})
}

func message(payload string) telemetry.Message {
	return telemetry.Message{
		Time:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Topic:   "sensors/temp-1",
		Payload: []byte(payload),
	}
}

const validPayload = `{"sensor_id":"temp-1","timestamp":"2024-01-01T00:00:00Z","value":22.5,"unit":"C"}`

func TestSizeTriggerFlushes(t *testing.T) {
	store := &fakeStore{}
	raw := &fakeRawLog{}
	p := New(store, raw, testCatalog(), nil, 3, time.Hour)

	p.HandleMessage(message(validPayload))
	p.HandleMessage(message(validPayload))
	assert.Equal(t, 2, p.Pending())
	assert.Empty(t, store.batches)

	p.HandleMessage(message(validPayload))
	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 3)
	assert.Equal(t, 0, p.Pending())

	entry := store.batches[0][0]
	assert.Equal(t, "temp-1", entry.Reading.SensorID)
	assert.Equal(t, 22.5, entry.Reading.Value)
	assert.Equal(t, telemetry.QualityValid, entry.Quality)
	assert.Len(t, raw.records, 3)
}

func TestTimeTriggerFlushes(t *testing.T) {
	store := &fakeStore{}
	p := New(store, &fakeRawLog{}, testCatalog(), nil, 100, 5*time.Second)

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }
	p.lastFlush = clock

	p.HandleMessage(message(validPayload))
	assert.Empty(t, store.batches, "interval not elapsed, size not reached")
	assert.Equal(t, 1, p.Pending())

	clock = clock.Add(6 * time.Second)
	p.HandleMessage(message(validPayload))
	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 2)
	assert.Equal(t, 0, p.Pending())
	assert.Equal(t, clock, p.lastFlush, "last flush resets on success")
}

func TestFailedFlushRetainsBuffer(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	p := New(store, &fakeRawLog{}, testCatalog(), nil, 2, time.Hour)

	p.HandleMessage(message(validPayload))
	p.HandleMessage(message(validPayload))
	assert.Equal(t, 2, p.Pending(), "failed flush must not drop entries")
	assert.Empty(t, store.batches)

	// store recovers: the retained entries go out with the next trigger
	store.err = nil
	p.HandleMessage(message(validPayload))
	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 3)
	assert.Equal(t, 0, p.Pending())
}

func TestRejectedPayloadsTouchNothing(t *testing.T) {
	store := &fakeStore{}
	raw := &fakeRawLog{}
	p := New(store, raw, testCatalog(), nil, 1, time.Hour)

	for _, payload := range []string{
		`not json`,
		`{"timestamp":"2024-01-01T00:00:00Z","value":1,"unit":"C"}`,
		`{"sensor_id":"temp-1","value":1,"unit":"C"}`,
		`{"sensor_id":"temp-1","timestamp":"2024-01-01T00:00:00Z","unit":"C"}`,
		`{"sensor_id":"temp-1","timestamp":"2024-01-01T00:00:00Z","value":1}`,
		`{"sensor_id":"temp-1","timestamp":"2024-01-01T00:00:00Z","value":"22.5","unit":"C"}`,
	} {
		p.HandleMessage(message(payload))
	}

	assert.Equal(t, 0, p.Pending())
	assert.Empty(t, store.batches)
	assert.Empty(t, raw.records, "rejected messages must not reach the raw log")
}

func TestUnknownAndOutOfRangeStillPersisted(t *testing.T) {
	store := &fakeStore{}
	p := New(store, &fakeRawLog{}, testCatalog(), nil, 2, time.Hour)

	p.HandleMessage(message(`{"sensor_id":"ghost","timestamp":"2024-01-01T00:00:00Z","value":1,"unit":"C"}`))
	p.HandleMessage(message(`{"sensor_id":"temp-1","timestamp":"2024-01-01T00:00:00Z","value":45,"unit":"C"}`))

	require.Len(t, store.batches, 1)
	assert.Equal(t, telemetry.QualityUnknownSensor, store.batches[0][0].Quality)
	assert.Equal(t, telemetry.QualityOutOfRange, store.batches[0][1].Quality)
}

func TestRawLogFailureDoesNotBlockBuffering(t *testing.T) {
	store := &fakeStore{}
	p := New(store, &fakeRawLog{err: errors.New("disk full")}, testCatalog(), nil, 1, time.Hour)

	p.HandleMessage(message(validPayload))
	require.Len(t, store.batches, 1, "reading must still reach the store")
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	store := &fakeStore{err: errors.New("should not be called")}
	p := New(store, &fakeRawLog{}, testCatalog(), nil, 10, time.Hour)

	require.NoError(t, p.Flush(context.Background()))
	assert.Empty(t, store.batches)
}

func TestPanicDuringHandlingIsRecovered(t *testing.T) {
	p := New(&fakeStore{}, &fakeRawLog{}, panickyClassifier{}, nil, 10, time.Hour)

	assert.NotPanics(t, func() {
		p.HandleMessage(message(validPayload))
	})
	assert.Equal(t, 0, p.Pending())

	// and the loop keeps working afterwards
	p.catalog = testCatalog()
	p.HandleMessage(message(validPayload))
	assert.Equal(t, 1, p.Pending())
}
