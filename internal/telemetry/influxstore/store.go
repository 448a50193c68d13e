// Package influxstore implements the telemetry store on InfluxDB. All
// queries run behind a circuit breaker so a struggling Influx cannot pile
// up blocked compute requests.
package influxstore

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sony/gobreaker"

	"github.com/agrisense/irrigation-advisor/internal/core/observability"
	"github.com/agrisense/irrigation-advisor/internal/telemetry"
)

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type Store struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	bucket   string
	breaker  *gobreaker.CircuitBreaker
}

func New(cfg Config) (*Store, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "influx-telemetry",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	return &Store{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		breaker:  cb,
	}, nil
}

func (s *Store) Query(ctx context.Context, blockID, series string, from, to time.Time) ([]telemetry.Reading, error) {
	start := time.Now()
	out, err := s.breaker.Execute(func() (any, error) {
		return s.query(ctx, blockID, series, from, to)
	})
	observability.ObserveTelemetryLatency(series, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("telemetry %s for %s: %w", series, blockID, err)
	}
	return out.([]telemetry.Reading), nil
}

func (s *Store) query(ctx context.Context, blockID, series string, from, to time.Time) ([]telemetry.Reading, error) {
	res, err := s.queryAPI.Query(ctx, buildFlux(s.bucket, blockID, series, from, to))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer func() { _ = res.Close() }()

	var readings []telemetry.Reading
	for res.Next() {
		rec := res.Record()

		var value float64
		switch v := rec.Value().(type) {
		case float64:
			value = v
		case int64:
			value = float64(v)
		default:
			continue
		}

		r := telemetry.Reading{Timestamp: rec.Time().UTC(), Value: value}
		if v := rec.ValueByKey("variable"); v != nil {
			if sv, ok := v.(string); ok && sv != "" {
				r.Meta = map[string]string{"variable": sv}
			}
		}
		readings = append(readings, r)
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("influx result: %w", res.Err())
	}
	return readings, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("influx not ready")
	}
	return nil
}

func (s *Store) Close() {
	s.client.Close()
}

func buildFlux(bucket, blockID, series string, from, to time.Time) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == "telemetry" and r.block_id == %q and r.type == %q)
  |> filter(fn: (r) => r._field == "value")
  |> keep(columns: ["_time","_value","variable"])
  |> sort(columns: ["_time"])
`, bucket, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), blockID, series)
}
