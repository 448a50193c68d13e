// Package telemetry defines read access to the time-series store the
// feature extractor consumes.
package telemetry

import (
	"context"
	"time"
)

// Series names used by the advisor core.
const (
	SeriesSoilVWC = "soil_vwc"
	SeriesET0     = "et0"
	SeriesWeather = "weather"
)

// Reading is a single time-series observation for a block.
type Reading struct {
	Timestamp time.Time
	Value     float64
	Meta      map[string]string
}

// Store reads ordered time-series slices for a block. Implementations
// must return readings sorted by timestamp ascending.
type Store interface {
	Query(ctx context.Context, blockID, series string, from, to time.Time) ([]Reading, error)
}
