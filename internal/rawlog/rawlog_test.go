package rawlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqpg/internal/telemetry"
)

func TestAppend(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	receipt := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	msg := telemetry.Message{Time: receipt, Topic: "sensors/temp-1"}
	payload := map[string]interface{}{"sensor_id": "temp-1", "value": 22.5}

	require.NoError(t, w.Append(msg, payload))
	require.NoError(t, w.Append(msg, payload))

	f, err := os.Open(filepath.Join(dir, "raw_20240101.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var rec struct {
			Topic     string                 `json:"topic"`
			Timestamp string                 `json:"timestamp"`
			Payload   map[string]interface{} `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		assert.Equal(t, "sensors/temp-1", rec.Topic)
		assert.Equal(t, "temp-1", rec.Payload["sensor_id"])
		assert.Equal(t, 22.5, rec.Payload["value"])

		ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
		require.NoError(t, err)
		assert.True(t, ts.Equal(receipt))
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 2, lines)
}

func TestAppendSplitsByDay(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	for _, ts := range []time.Time{
		time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC),
	} {
		require.NoError(t, w.Append(telemetry.Message{Time: ts, Topic: "sensors/x"}, nil))
	}

	for _, name := range []string{"raw_20240101.jsonl", "raw_20240102.jsonl"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestAppendReportsFileErrors(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	// occupy the day file's name with a directory so the cycle fails
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "raw_20240101.jsonl"), 0755))

	err = w.Append(telemetry.Message{Time: ts, Topic: "sensors/x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raw_20240101.jsonl")
}

func TestNewWriterCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "raw")
	_, err := NewWriter(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
