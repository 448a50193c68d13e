// Package features reduces recent telemetry for a block to the feature
// set the recommendation engine consumes.
package features

import (
	"context"
	"fmt"
	"time"

	"github.com/agrisense/irrigation-advisor/internal/core/model"
	"github.com/agrisense/irrigation-advisor/internal/telemetry"
)

// Fallbacks applied when a lookback window holds no readings. The engine
// must always produce an answer, never block on sparse telemetry.
const (
	DefaultVWC       = 0.30
	DefaultET0       = 5.0
	vwcLookback      = 7 * 24 * time.Hour
	et0Lookback      = 3 * 24 * time.Hour
	rainfallLookback = 3 * 24 * time.Hour
)

type Extractor struct {
	store telemetry.Store
	now   func() time.Time
}

func NewExtractor(store telemetry.Store) *Extractor {
	return &Extractor{store: store, now: time.Now}
}

// Extract reads the three relevant series for the block and reduces them
// to a FeatureSet. The returned flag reports whether a real soil-moisture
// reading was found (it drives the engine's confidence). Read-only.
func (e *Extractor) Extract(ctx context.Context, blockID string, horizonHours float64) (model.FeatureSet, bool, error) {
	now := e.now().UTC()
	_ = horizonHours // features use fixed lookbacks; the horizon keys the cache

	fs := model.FeatureSet{
		CurrentVWC: DefaultVWC,
		RecentET0:  DefaultET0,
	}

	vwc, err := e.store.Query(ctx, blockID, telemetry.SeriesSoilVWC, now.Add(-vwcLookback), now)
	if err != nil {
		return model.FeatureSet{}, false, fmt.Errorf("soil vwc read: %w", err)
	}
	vwcObserved := len(vwc) > 0
	if vwcObserved {
		// Readings are ordered; take the most recent.
		fs.CurrentVWC = vwc[len(vwc)-1].Value
	}

	et0, err := e.store.Query(ctx, blockID, telemetry.SeriesET0, now.Add(-et0Lookback), now)
	if err != nil {
		return model.FeatureSet{}, false, fmt.Errorf("et0 read: %w", err)
	}
	if len(et0) > 0 {
		sum := 0.0
		for _, r := range et0 {
			sum += r.Value
		}
		fs.RecentET0 = sum / float64(len(et0))
	}

	weather, err := e.store.Query(ctx, blockID, telemetry.SeriesWeather, now.Add(-rainfallLookback), now)
	if err != nil {
		return model.FeatureSet{}, false, fmt.Errorf("weather read: %w", err)
	}
	for _, r := range weather {
		if r.Meta["variable"] == "rainfall" {
			fs.RecentRainfallMM += r.Value
		}
	}

	return fs, vwcObserved, nil
}
