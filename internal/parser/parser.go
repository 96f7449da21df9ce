// Package parser validates raw broker payloads into telemetry readings.
package parser

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"mqpg/internal/telemetry"
)

// ErrMalformedPayload marks payloads that cannot be decoded as a JSON
// object at all. Wrapped errors carry the decode detail.
var ErrMalformedPayload = errors.New("malformed payload")

// A ValidationError reports a payload that decoded fine but is missing a
// required field or carries one with the wrong shape.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid reading: field %q %s", e.Field, e.Reason)
}

// timestamp layouts accepted from producers. RFC3339 covers the trailing Z
// and explicit offsets; the offset-less forms are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Parse decodes a message body and validates it into a Reading. The
// returned map is the decoded body, available even when validation fails
// so callers can report what the producer actually sent.
func Parse(payload []byte) (telemetry.Reading, map[string]interface{}, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return telemetry.Reading{}, nil, errors.Wrapf(ErrMalformedPayload, "decoding %q: %v", payload, err)
	}

	sensorID, err := stringField(body, "sensor_id")
	if err != nil {
		return telemetry.Reading{}, body, err
	}
	ts, err := timestampField(body, "timestamp")
	if err != nil {
		return telemetry.Reading{}, body, err
	}
	value, err := numberField(body, "value")
	if err != nil {
		return telemetry.Reading{}, body, err
	}
	unit, err := stringField(body, "unit")
	if err != nil {
		return telemetry.Reading{}, body, err
	}

	return telemetry.Reading{
		SensorID:  sensorID,
		Timestamp: ts,
		Value:     value,
		Unit:      unit,
	}, body, nil
}

func stringField(body map[string]interface{}, field string) (string, error) {
	raw, ok := body[field]
	if !ok {
		return "", &ValidationError{Field: field, Reason: "is missing"}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &ValidationError{Field: field, Reason: fmt.Sprintf("is not a string (%T)", raw)}
	}
	if s == "" {
		return "", &ValidationError{Field: field, Reason: "is empty"}
	}
	return s, nil
}

func numberField(body map[string]interface{}, field string) (float64, error) {
	raw, ok := body[field]
	if !ok {
		return 0, &ValidationError{Field: field, Reason: "is missing"}
	}
	v, ok := raw.(float64)
	if !ok {
		return 0, &ValidationError{Field: field, Reason: fmt.Sprintf("is not numeric (%T)", raw)}
	}
	return v, nil
}

func timestampField(body map[string]interface{}, field string) (time.Time, error) {
	s, err := stringField(body, field)
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, &ValidationError{Field: field, Reason: fmt.Sprintf("is not an ISO-8601 timestamp: %q", s)}
}
