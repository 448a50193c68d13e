// Package orchestrator ties the compute path together: block lookup,
// fingerprinting, the two cache tiers, feature extraction, the decision
// engine and event emission.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/agrisense/irrigation-advisor/internal/blocks"
	"github.com/agrisense/irrigation-advisor/internal/cache/resultstore"
	"github.com/agrisense/irrigation-advisor/internal/core/model"
	"github.com/agrisense/irrigation-advisor/internal/core/observability"
	"github.com/agrisense/irrigation-advisor/internal/fingerprint"
	"github.com/agrisense/irrigation-advisor/internal/recommend"
)

const maxHorizonHours = 168

// emitTimeout bounds the detached webhook fan-out, which outlives the
// originating request.
const emitTimeout = 2 * time.Minute

// FeatureExtractor produces the feature set for a block. Satisfied by
// *features.Extractor.
type FeatureExtractor interface {
	Extract(ctx context.Context, blockID string, horizonHours float64) (model.FeatureSet, bool, error)
}

// Emitter delivers domain events. Satisfied by *webhook.Dispatcher.
type Emitter interface {
	Emit(ctx context.Context, tenant, eventType string, data map[string]any)
}

type Orchestrator struct {
	blocks    blocks.Store
	extractor FeatureExtractor
	engine    *recommend.Engine
	results   *resultstore.Store
	emitter   Emitter
	logger    *slog.Logger

	// collapses concurrent double-miss computes for the same
	// (block, feature fingerprint)
	flight singleflight.Group
}

func New(
	bs blocks.Store,
	extractor FeatureExtractor,
	engine *recommend.Engine,
	results *resultstore.Store,
	emitter Emitter,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		blocks:    bs,
		extractor: extractor,
		engine:    engine,
		results:   results,
		emitter:   emitter,
		logger:    logger,
	}
}

// ComputeOrReuse serves a recommendation for the block, trying the
// client-intent tier, then the feature tier, then a fresh compute. The
// returned record is whatever tier answered first; replays of a keyed
// request get it back bit-identical.
func (o *Orchestrator) ComputeOrReuse(
	ctx context.Context,
	tenant, blockID, idemKey string,
	req model.ComputeRequest,
) (*model.StoredRecommendation, error) {
	horizon := req.HorizonHours
	if horizon == 0 {
		horizon = model.DefaultHorizonHours
	}
	if horizon < 1 || horizon > maxHorizonHours {
		return nil, &model.ValidationError{
			Field:  "horizon_hours",
			Reason: fmt.Sprintf("must be between 1 and %d", maxHorizonHours),
		}
	}
	req.HorizonHours = horizon

	block, err := o.blocks.Get(ctx, blockID)
	if err != nil {
		return nil, err
	}

	bodyHash, err := fingerprint.Body(req)
	if err != nil {
		return nil, &model.ComputeError{Stage: "fingerprint", Err: err}
	}

	if rec, err := o.results.LookupByIntent(ctx, tenant, idemKey, bodyHash); err != nil {
		return nil, &model.ComputeError{Stage: "intent lookup", Err: err}
	} else if rec != nil {
		observability.IncRecommendation("intent_cache")
		return rec, nil
	}

	fs, vwcObserved, err := o.extractor.Extract(ctx, blockID, horizon)
	if err != nil {
		return nil, &model.ComputeError{Stage: "feature extraction", Err: err}
	}
	featHash, err := fingerprint.Features(blockID, horizon, fs)
	if err != nil {
		return nil, &model.ComputeError{Stage: "fingerprint", Err: err}
	}

	if rec, err := o.results.LookupByFeatures(ctx, blockID, featHash); err != nil {
		return nil, &model.ComputeError{Stage: "feature lookup", Err: err}
	} else if rec != nil {
		observability.IncRecommendation("feature_cache")
		return rec, nil
	}

	v, err, shared := o.flight.Do(featHash, func() (any, error) {
		start := time.Now()
		result, err := o.engine.Compute(block, fs, vwcObserved, req.Constraints, req.Targets, horizon)
		observability.ObserveComputeLatency(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}

		rec, err := o.results.Store(ctx, tenant, blockID, result, idemKey, bodyHash, featHash, horizon)
		if err != nil {
			return nil, &model.ComputeError{Stage: "result store", Err: err}
		}
		return rec, nil
	})
	if err != nil {
		if model.IsValidation(err) {
			return nil, err
		}
		var ce *model.ComputeError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &model.ComputeError{Stage: "engine", Err: err}
	}
	rec := v.(*model.StoredRecommendation)

	if shared {
		observability.IncRecommendation("deduplicated")
	} else {
		observability.IncRecommendation("computed")
		o.logger.Debug("recommendation computed",
			slog.String("block_id", blockID),
			slog.String("recommendation_id", rec.ID))
		o.emitCreated(tenant, rec)
	}
	return rec, nil
}

// Latest returns the newest stored recommendation for a block, nil when
// none has been computed yet.
func (o *Orchestrator) Latest(ctx context.Context, blockID string) (*model.StoredRecommendation, error) {
	if _, err := o.blocks.Get(ctx, blockID); err != nil {
		return nil, err
	}
	rec, err := o.results.Latest(ctx, blockID)
	if err != nil {
		return nil, &model.ComputeError{Stage: "latest lookup", Err: err}
	}
	return rec, nil
}

// ScenarioResult is the outcome of a what-if simulation across blocks.
// Simulations bypass both cache tiers and emit no events.
type ScenarioResult struct {
	ScenarioID    string                `json:"scenario_id"`
	Results       []ScenarioBlockResult `json:"results"`
	TotalVolumeM3 float64               `json:"total_volume_m3"`
}

type ScenarioBlockResult struct {
	BlockID        string                `json:"block_id"`
	Recommendation *model.Recommendation `json:"recommendation,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// Simulate computes recommendations for a set of blocks under shared
// constraints and targets. Per-block failures are reported inline so one
// bad block does not void the rest of the scenario.
func (o *Orchestrator) Simulate(ctx context.Context, blockIDs []string, req model.ComputeRequest) (*ScenarioResult, error) {
	if len(blockIDs) == 0 {
		return nil, &model.ValidationError{Field: "block_ids", Reason: "at least one block is required"}
	}
	horizon := req.HorizonHours
	if horizon == 0 {
		horizon = model.DefaultHorizonHours
	}
	if horizon < 1 || horizon > maxHorizonHours {
		return nil, &model.ValidationError{
			Field:  "horizon_hours",
			Reason: fmt.Sprintf("must be between 1 and %d", maxHorizonHours),
		}
	}

	out := &ScenarioResult{ScenarioID: uuid.NewString()}
	for _, blockID := range blockIDs {
		rec, err := o.simulateOne(ctx, blockID, req, horizon)
		if err != nil {
			out.Results = append(out.Results, ScenarioBlockResult{BlockID: blockID, Error: err.Error()})
			continue
		}
		out.Results = append(out.Results, ScenarioBlockResult{BlockID: blockID, Recommendation: rec})
		out.TotalVolumeM3 += rec.VolumeM3
	}
	return out, nil
}

func (o *Orchestrator) simulateOne(ctx context.Context, blockID string, req model.ComputeRequest, horizon float64) (*model.Recommendation, error) {
	block, err := o.blocks.Get(ctx, blockID)
	if err != nil {
		return nil, err
	}
	fs, vwcObserved, err := o.extractor.Extract(ctx, blockID, horizon)
	if err != nil {
		return nil, err
	}
	rec, err := o.engine.Compute(block, fs, vwcObserved, req.Constraints, req.Targets, horizon)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// emitCreated fans the created event out on a detached context so
// delivery latency and failures stay invisible to the caller.
func (o *Orchestrator) emitCreated(tenant string, rec *model.StoredRecommendation) {
	if o.emitter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		o.emitter.Emit(ctx, tenant, "recommendation.created", map[string]any{
			"recommendation_id": rec.ID,
			"block_id":          rec.BlockID,
			"when":              rec.Result.When.Format(time.RFC3339),
			"duration_min":      rec.Result.DurationMin,
			"volume_m3":         rec.Result.VolumeM3,
		})
	}()
}
