package telemetry

import "time"

// A Message stores data from incoming broker messages (typical MQTT
// messages) together with the receipt time.
type Message struct {
	Time    time.Time
	Topic   string
	Payload []byte
}

// QualityFlag classifies a reading against its sensor's registered range.
type QualityFlag string

const (
	QualityValid         QualityFlag = "valid"
	QualityOutOfRange    QualityFlag = "out_of_range"
	QualityUnknownSensor QualityFlag = "unknown_sensor"
)

// A Reading is a validated sensor measurement. Readings are only
// constructed by parser.Parse from payloads that supply all four fields.
type Reading struct {
	SensorID  string
	Timestamp time.Time
	Value     float64
	Unit      string
}

// A Sensor describes one registered sensor from the registry, including
// the value range it is expected to report within.
type Sensor struct {
	ID       string
	Location string
	Type     string
	Unit     string
	Min      float64
	Max      float64
}

// An Entry pairs a reading with its quality flag while it waits in the
// ingestion buffer for the next batch write.
type Entry struct {
	Reading Reading
	Quality QualityFlag
}
