// Package quality classifies readings against the sensor registry.
package quality

import "mqpg/internal/telemetry"

// A Catalog is the in-memory sensor registry, loaded once at startup and
// read-only for the lifetime of the process.
type Catalog struct {
	sensors map[string]telemetry.Sensor
}

// NewCatalog builds a Catalog keyed by sensor ID.
func NewCatalog(sensors []telemetry.Sensor) *Catalog {
	byID := make(map[string]telemetry.Sensor, len(sensors))
	for _, s := range sensors {
		byID[s.ID] = s
	}
	return &Catalog{sensors: byID}
}

// Lookup returns the registered sensor for id, if any.
func (c *Catalog) Lookup(id string) (telemetry.Sensor, bool) {
	s, ok := c.sensors[id]
	return s, ok
}

// Len returns the number of registered sensors.
func (c *Catalog) Len() int {
	return len(c.sensors)
}

// Classify flags a reading: unknown_sensor if the sensor is not
// registered, out_of_range if the value lies strictly outside the
// sensor's [min, max], valid otherwise.
func (c *Catalog) Classify(r telemetry.Reading) telemetry.QualityFlag {
	sensor, ok := c.sensors[r.SensorID]
	if !ok {
		return telemetry.QualityUnknownSensor
	}
	if r.Value < sensor.Min || r.Value > sensor.Max {
		return telemetry.QualityOutOfRange
	}
	return telemetry.QualityValid
}
