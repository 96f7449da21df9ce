// Package config loads the shared TOML configuration for the collector,
// generator, and reference subscriber binaries.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Duration is a time.Duration that decodes from TOML strings like "5s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	MQTT      MQTT
	Postgres  Postgres
	Collector Collector
	Generator Generator
}

type MQTT struct {
	URL      string
	Username string
	Password string
	ClientID string `toml:"client_id"`
	Topic    string

	// KeepAlive is the watchdog silence limit; zero disables the
	// watchdog entirely.
	KeepAlive Duration `toml:"keep_alive"`

	TLSServerCert     string `toml:"tls_server_cert"`
	TLSServerInsecure bool   `toml:"tls_server_insecure"`

	ConnectAttempts int      `toml:"connect_attempts"`
	ConnectDelay    Duration `toml:"connect_delay"`
}

type Postgres struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string `toml:"ssl_mode"`

	ConnectAttempts int      `toml:"connect_attempts"`
	ConnectDelay    Duration `toml:"connect_delay"`
}

type Collector struct {
	RawLogDir     string   `toml:"raw_log_dir"`
	BufferSize    int      `toml:"buffer_size"`
	FlushInterval Duration `toml:"flush_interval"`

	// MetricsAddr enables the Prometheus listener when set (e.g. ":9091").
	MetricsAddr string `toml:"metrics_addr"`
}

type Generator struct {
	Interval Duration
	Sensors  []Sensor `toml:"sensor"`
}

// Sensor defines one simulated sensor for the generator. The shape
// mirrors a registry row so the same definitions can seed the database.
type Sensor struct {
	ID       string
	Location string
	Type     string
	Unit     string
	Min      float64
	Max      float64
}

// Load decodes the TOML file at path and fills in defaults.
func Load(path string) (Config, error) {
	var conf Config
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return Config{}, errors.Wrapf(err, "decoding config %s", path)
	}
	conf.applyDefaults()
	return conf, nil
}

func (c *Config) applyDefaults() {
	if c.MQTT.URL == "" {
		c.MQTT.URL = "tcp://mqtt_broker:1883"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "sensors/#"
	}
	if c.MQTT.ConnectAttempts == 0 {
		c.MQTT.ConnectAttempts = 10
	}
	if c.MQTT.ConnectDelay == 0 {
		c.MQTT.ConnectDelay = Duration(3 * time.Second)
	}

	if c.Postgres.Host == "" {
		c.Postgres.Host = "postgres"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.Database == "" {
		c.Postgres.Database = "iot_data"
	}
	if c.Postgres.User == "" {
		c.Postgres.User = "iot_user"
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Postgres.ConnectAttempts == 0 {
		c.Postgres.ConnectAttempts = 10
	}
	if c.Postgres.ConnectDelay == 0 {
		c.Postgres.ConnectDelay = Duration(3 * time.Second)
	}

	if c.Collector.RawLogDir == "" {
		c.Collector.RawLogDir = "/data/raw"
	}
	if c.Collector.BufferSize == 0 {
		c.Collector.BufferSize = 100
	}
	if c.Collector.FlushInterval == 0 {
		c.Collector.FlushInterval = Duration(5 * time.Second)
	}

	if c.Generator.Interval == 0 {
		c.Generator.Interval = Duration(time.Second)
	}
}
