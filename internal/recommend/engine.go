// Package recommend implements the water-balance recommendation engine.
//
// The engine is a pure function of (block attributes, features,
// constraints, targets, horizon): it performs no I/O, caching or
// persistence. Feature extraction and result storage belong to the
// orchestrator.
package recommend

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/agrisense/irrigation-advisor/internal/core/model"
)

// Version tags every produced recommendation.
const Version = "rf-ens-1.0.0"

const (
	defaultTargetVWC  = 0.35
	defaultEfficiency = 0.85

	// Deficits below this are served by the no-irrigation branch.
	deficitFloorMM = 5.0

	// Assumed delivery rate, m3/hour per hectare.
	flowRateM3PerHrHa = 50.0

	vwcWeight             = 0.6
	etWeight              = 0.4
	rainfallEffectiveness = 0.75
	etProjectionDays      = 3
)

// root-zone depth in mm by crop type
var rootZoneDepthMM = map[string]float64{
	"corn":       800,
	"wheat":      600,
	"vegetables": 400,
	"trees":      1000,
}

const defaultRootZoneDepthMM = 600

type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Compute produces the irrigation decision for a block given its derived
// features. vwcObserved reports whether the soil-moisture value in fs
// came from a real reading rather than the fallback; it only affects
// confidence.
func (e *Engine) Compute(
	block model.Block,
	fs model.FeatureSet,
	vwcObserved bool,
	constraints *model.Constraints,
	targets *model.Targets,
	horizonHours float64,
) (model.Recommendation, error) {
	if err := validateConstraints(constraints); err != nil {
		return model.Recommendation{}, err
	}

	targetVWC := defaultTargetVWC
	switch {
	case targets != nil && targets.TargetSoilVWC > 0:
		targetVWC = targets.TargetSoilVWC
	case block.TargetVWC != nil && *block.TargetVWC > 0:
		targetVWC = *block.TargetVWC
	}
	efficiency := defaultEfficiency
	if targets != nil && targets.Efficiency > 0 {
		efficiency = targets.Efficiency
	}

	deficitMM := waterDeficitMM(fs, targetVWC, block.CropType)
	confidence := 0.5
	if vwcObserved {
		confidence = 0.7
	}

	now := e.now().UTC()

	if deficitMM < deficitFloorMM {
		return model.Recommendation{
			When:        now.Add(time.Duration(horizonHours * 0.8 * float64(time.Hour))),
			DurationMin: 0,
			VolumeM3:    0,
			Confidence:  confidence,
			Explanations: []string{
				fmt.Sprintf("Soil moisture adequate (deficit: %.1fmm)", deficitMM),
			},
			Version: Version,
		}, nil
	}

	when := optimalTiming(now, constraints)

	// mm of depth over the block area, inflated for application losses.
	volumeM3 := (deficitMM / 1000.0) * block.AreaHa * 10000 / efficiency
	flowRateM3Hr := flowRateM3PerHrHa * block.AreaHa
	durationMin := (volumeM3 / flowRateM3Hr) * 60

	if constraints != nil {
		if constraints.MinDurationMin > 0 {
			durationMin = math.Max(durationMin, constraints.MinDurationMin)
		}
		if constraints.MaxDurationMin > 0 {
			durationMin = math.Min(durationMin, constraints.MaxDurationMin)
		}
	}

	return model.Recommendation{
		When:        when,
		DurationMin: round2(durationMin),
		VolumeM3:    round2(volumeM3),
		Confidence:  confidence,
		Explanations: []string{
			fmt.Sprintf("Water deficit: %.1fmm", deficitMM),
			fmt.Sprintf("Current soil VWC: %.2f", fs.CurrentVWC),
			fmt.Sprintf("Recent ET0: %.1fmm/day", fs.RecentET0),
			fmt.Sprintf("Application efficiency: %.0f%%", efficiency*100),
		},
		Version: Version,
	}, nil
}

// waterDeficitMM blends the soil-moisture estimate with a forward ET
// projection discounted by effective rainfall.
func waterDeficitMM(fs model.FeatureSet, targetVWC float64, cropType string) float64 {
	depth := float64(defaultRootZoneDepthMM)
	if d, ok := rootZoneDepthMM[strings.ToLower(cropType)]; ok {
		depth = d
	}
	vwcEstimate := (targetVWC - fs.CurrentVWC) * depth
	etEstimate := (fs.RecentET0 * etProjectionDays) - (fs.RecentRainfallMM * rainfallEffectiveness)

	deficit := vwcWeight*vwcEstimate + etWeight*etEstimate
	return math.Max(0, deficit)
}

// optimalTiming picks the caller's preferred start if it is still ahead
// today (rolled to tomorrow otherwise), defaulting to 06:00 next day.
func optimalTiming(now time.Time, constraints *model.Constraints) time.Time {
	tomorrow6am := time.Date(now.Year(), now.Month(), now.Day(), 6, 0, 0, 0, time.UTC).Add(24 * time.Hour)

	if constraints == nil || constraints.PreferredTimeStart == "" {
		return tomorrow6am
	}

	hour, minute, ok := parseClock(constraints.PreferredTimeStart)
	if !ok {
		return tomorrow6am
	}

	preferred := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if preferred.Before(now) {
		preferred = preferred.Add(24 * time.Hour)
	}
	return preferred
}

func parseClock(s string) (hour, minute int, ok bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func validateConstraints(c *model.Constraints) error {
	if c == nil {
		return nil
	}
	if c.MinDurationMin < 0 {
		return &model.ValidationError{Field: "min_duration_min", Reason: "must be non-negative"}
	}
	if c.MaxDurationMin < 0 {
		return &model.ValidationError{Field: "max_duration_min", Reason: "must be non-negative"}
	}
	if c.MinDurationMin > 0 && c.MaxDurationMin > 0 && c.MinDurationMin > c.MaxDurationMin {
		return &model.ValidationError{Field: "min_duration_min", Reason: "exceeds max_duration_min"}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
