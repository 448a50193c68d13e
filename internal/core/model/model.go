// Package model defines core domain types shared across the service.
package model

import "time"

// Block is a physical field a recommendation is computed for. Blocks are
// owned by the surrounding persistence layer; the core only reads them.
type Block struct {
	ID        string   `json:"id"`
	TenantID  string   `json:"tenant_id,omitempty"`
	AreaHa    float64  `json:"area_ha"`
	CropType  string   `json:"crop_type"`
	TargetVWC *float64 `json:"target_vwc,omitempty"`
}

// FeatureSet is the reduced telemetry state a recommendation is derived
// from. Recomputed on every orchestration call that is not served from
// cache; never persisted on its own.
type FeatureSet struct {
	CurrentVWC       float64 `json:"current_vwc"`
	RecentET0        float64 `json:"recent_et0"`
	RecentRainfallMM float64 `json:"recent_rainfall_mm"`
}

// Constraints are caller-supplied limits on the computed schedule.
// PreferredTimeStart is "HH:MM" in UTC.
type Constraints struct {
	MinDurationMin     float64 `json:"min_duration_min,omitempty"`
	MaxDurationMin     float64 `json:"max_duration_min,omitempty"`
	PreferredTimeStart string  `json:"preferred_time_start,omitempty"`
}

// Targets override the engine defaults for soil moisture and application
// efficiency.
type Targets struct {
	TargetSoilVWC float64 `json:"target_soil_vwc,omitempty"`
	Efficiency    float64 `json:"efficiency,omitempty"`
}

// Recommendation is the computed irrigation decision. Immutable once
// produced.
type Recommendation struct {
	When         time.Time `json:"when"`
	DurationMin  float64   `json:"duration_min"`
	VolumeM3     float64   `json:"volume_m3"`
	Confidence   float64   `json:"confidence"`
	Explanations []string  `json:"explanations"`
	Version      string    `json:"version"`
}

// StoredRecommendation is a Recommendation persisted in the result cache
// together with its dedup keys and TTL bookkeeping.
type StoredRecommendation struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	BlockID        string         `json:"block_id"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	BodyHash       string         `json:"body_hash"`
	FeatureHash    string         `json:"feature_hash"`
	HorizonHours   float64        `json:"horizon_hours"`
	Result         Recommendation `json:"result"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

// ComputeRequest is the request body of a compute call. Its canonical
// serialization is what the body fingerprint is taken over.
type ComputeRequest struct {
	Constraints  *Constraints `json:"constraints,omitempty"`
	Targets      *Targets     `json:"targets,omitempty"`
	HorizonHours float64      `json:"horizon_hours"`
}

// DefaultHorizonHours applies when the caller leaves the horizon unset.
const DefaultHorizonHours = 72
