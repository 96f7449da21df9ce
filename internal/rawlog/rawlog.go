// Package rawlog keeps the append-only record of every validated inbound
// message, one JSONL file per calendar day.
package rawlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"mqpg/internal/telemetry"
)

// A Writer appends raw message records under dir. Each Append opens the
// day file, writes one line, and closes it again, so a crash loses at
// most the in-flight record.
type Writer struct {
	dir string
}

// NewWriter creates dir if needed and returns a Writer for it.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating raw log directory %s", dir)
	}
	return &Writer{dir: dir}, nil
}

type record struct {
	Topic     string      `json:"topic"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Append writes one record for msg. The file is chosen from the message
// receipt time's UTC calendar date. payload is the decoded body, stored
// as-is.
func (w *Writer) Append(msg telemetry.Message, payload map[string]interface{}) error {
	day := msg.Time.UTC()
	path := filepath.Join(w.dir, fmt.Sprintf("raw_%s.jsonl", day.Format("20060102")))

	line, err := json.Marshal(record{
		Topic:     msg.Topic,
		Timestamp: day.Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return errors.Wrap(err, "encoding raw record")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return errors.Wrapf(err, "appending to %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "syncing %s", path)
	}
	// close errors matter here: this cycle is the durability guarantee
	return errors.Wrapf(f.Close(), "closing %s", path)
}
