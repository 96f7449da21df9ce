// Package postgres is the structured-store side of the pipeline: the
// startup connection supervisor, the sensor registry read, and the
// transactional batch writer for measurements.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"mqpg/internal/config"
	"mqpg/internal/telemetry"
)

// dsn renders the lib/pq connection string.
func dsn(conf config.Postgres) string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		conf.Host, conf.Port, conf.Database, conf.User, conf.Password, conf.SSLMode)
}

// Store wraps the measurement sink and sensor registry.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing database handle. Used by tests; production
// callers go through Connect.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Connect opens the store and verifies it with bounded retries, a fixed
// delay apart. The process cannot run without the store, so an exhausted
// retry budget is returned as a fatal error.
func Connect(ctx context.Context, conf config.Postgres) (*Store, error) {
	db, err := sql.Open("postgres", dsn(conf))
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}

	delay := conf.ConnectDelay.Std()
	for attempt := 1; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			log.Printf("info: connected to postgres at %s:%d/%s", conf.Host, conf.Port, conf.Database)
			return &Store{db: db}, nil
		}
		if attempt >= conf.ConnectAttempts {
			break
		}
		log.Printf("warning: postgres connection attempt %d/%d failed, retrying in %s: %v",
			attempt, conf.ConnectAttempts, delay, err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	db.Close()
	return nil, errors.Wrapf(err, "postgres unreachable after %d attempts", conf.ConnectAttempts)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sensors loads the full sensor registry. Called once at startup, before
// any message is consumed.
func (s *Store) Sensors(ctx context.Context) ([]telemetry.Sensor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sensor_id, location, sensor_type, unit, min_value, max_value FROM sensors`)
	if err != nil {
		return nil, errors.Wrap(err, "querying sensor registry")
	}
	defer rows.Close()

	var sensors []telemetry.Sensor
	for rows.Next() {
		var sensor telemetry.Sensor
		if err := rows.Scan(&sensor.ID, &sensor.Location, &sensor.Type,
			&sensor.Unit, &sensor.Min, &sensor.Max); err != nil {
			return nil, errors.Wrap(err, "scanning sensor row")
		}
		sensors = append(sensors, sensor)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating sensor registry")
	}
	return sensors, nil
}

// InsertMeasurements writes all entries in one transaction with a single
// multi-row insert, preserving slice order. It is all-or-nothing: any
// failure rolls back and no row is kept.
func (s *Store) InsertMeasurements(ctx context.Context, entries []telemetry.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	query, args := insertStatement(entries)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning measurement transaction")
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "inserting %d measurements", len(entries))
	}
	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "committing measurements")
	}
	return nil
}

// InsertMeasurement writes a single row outside any batch. Used by the
// unbuffered reference subscriber.
func (s *Store) InsertMeasurement(ctx context.Context, entry telemetry.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO measurements (sensor_id, timestamp, value, quality_flag) VALUES ($1, $2, $3, $4)`,
		entry.Reading.SensorID, entry.Reading.Timestamp, entry.Reading.Value, string(entry.Quality))
	return errors.Wrap(err, "inserting measurement")
}

// insertStatement builds the multi-row insert for a batch. Placeholders
// are numbered per entry so the statement stays a single round trip.
func insertStatement(entries []telemetry.Entry) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO measurements (sensor_id, timestamp, value, quality_flag) VALUES `)

	args := make([]interface{}, 0, len(entries)*4)
	for i, entry := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4)
		args = append(args,
			entry.Reading.SensorID,
			entry.Reading.Timestamp,
			entry.Reading.Value,
			string(entry.Quality),
		)
	}
	return sb.String(), args
}
