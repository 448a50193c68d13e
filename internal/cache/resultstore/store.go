// Package resultstore implements the two-tier recommendation cache: a
// client-intent tier keyed on (tenant, idempotency key, body fingerprint)
// and a feature tier keyed on (block, feature fingerprint). Records are
// immutable once written; deduplication correctness rests on that.
package resultstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/agrisense/irrigation-advisor/internal/cache/keys"
	"github.com/agrisense/irrigation-advisor/internal/cache/redisstore"
	"github.com/agrisense/irrigation-advisor/internal/core/model"
	"github.com/agrisense/irrigation-advisor/internal/core/observability"
)

type Config struct {
	IntentTTL  time.Duration
	FeatureTTL time.Duration
	OpTimeout  time.Duration
	// FrontSize caps the in-process LRU in front of the feature tier.
	// Zero disables it.
	FrontSize int
}

type Store struct {
	cli        *redisstore.Client
	intentTTL  time.Duration
	featureTTL time.Duration
	opTimeout  time.Duration
	front      *expirable.LRU[string, model.StoredRecommendation]
	now        func() time.Time
}

func New(cli *redisstore.Client, cfg Config) *Store {
	s := &Store{
		cli:        cli,
		intentTTL:  cfg.IntentTTL,
		featureTTL: cfg.FeatureTTL,
		opTimeout:  cfg.OpTimeout,
		now:        time.Now,
	}
	if s.intentTTL <= 0 {
		s.intentTTL = 24 * time.Hour
	}
	if s.featureTTL <= 0 {
		s.featureTTL = 6 * time.Hour
	}
	if cfg.FrontSize > 0 {
		s.front = expirable.NewLRU[string, model.StoredRecommendation](cfg.FrontSize, nil, cfg.FeatureTTL)
	}
	return s
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// LookupByIntent returns the stored record for an exact
// (tenant, idempotency key, body fingerprint) match whose age is within
// the client-intent window. Unkeyed requests are never deduplicated by
// intent.
func (s *Store) LookupByIntent(ctx context.Context, tenant, idemKey, bodyHash string) (*model.StoredRecommendation, error) {
	if idemKey == "" {
		return nil, nil
	}

	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, err := s.cli.Get(opCtx, keys.Intent(tenant, idemKey, bodyHash))
	if err != nil {
		return nil, fmt.Errorf("intent lookup: %w", err)
	}
	if raw == nil {
		observability.IncCacheResult("intent", "miss")
		return nil, nil
	}

	var rec model.StoredRecommendation
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("intent record decode: %w", err)
	}

	// The intent window is enforced at read time against created_at, not
	// via a stored expiry field.
	if s.now().Sub(rec.CreatedAt) > s.intentTTL {
		observability.IncCacheResult("intent", "expired")
		return nil, nil
	}

	observability.IncCacheResult("intent", "hit")
	return &rec, nil
}

// LookupByFeatures returns the stored record for (block, feature
// fingerprint) if its expires_at has not passed, independent of tenant
// and idempotency key.
func (s *Store) LookupByFeatures(ctx context.Context, blockID, featureHash string) (*model.StoredRecommendation, error) {
	key := keys.Feature(blockID, featureHash)

	if s.front != nil {
		if rec, ok := s.front.Get(key); ok {
			if s.now().Before(rec.ExpiresAt) {
				observability.IncCacheResult("feature", "hit")
				return &rec, nil
			}
			s.front.Remove(key)
		}
	}

	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, err := s.cli.Get(opCtx, key)
	if err != nil {
		return nil, fmt.Errorf("feature lookup: %w", err)
	}
	if raw == nil {
		observability.IncCacheResult("feature", "miss")
		return nil, nil
	}

	var rec model.StoredRecommendation
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("feature record decode: %w", err)
	}
	if !s.now().Before(rec.ExpiresAt) {
		observability.IncCacheResult("feature", "expired")
		return nil, nil
	}

	if s.front != nil {
		s.front.Add(key, rec)
	}
	observability.IncCacheResult("feature", "hit")
	return &rec, nil
}

// Store writes a new immutable record under the feature key, the
// latest-by-block key, and, when an idempotency key is present, the
// intent key.
func (s *Store) Store(
	ctx context.Context,
	tenant, blockID string,
	result model.Recommendation,
	idemKey, bodyHash, featureHash string,
	horizonHours float64,
) (*model.StoredRecommendation, error) {
	now := s.now().UTC()
	rec := model.StoredRecommendation{
		ID:             uuid.NewString(),
		TenantID:       tenant,
		BlockID:        blockID,
		IdempotencyKey: idemKey,
		BodyHash:       bodyHash,
		FeatureHash:    featureHash,
		HorizonHours:   horizonHours,
		Result:         result,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.featureTTL),
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("record encode: %w", err)
	}

	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	featKey := keys.Feature(blockID, featureHash)
	if err := s.cli.Set(opCtx, featKey, raw, s.featureTTL); err != nil {
		return nil, fmt.Errorf("feature tier write: %w", err)
	}
	if idemKey != "" {
		if err := s.cli.Set(opCtx, keys.Intent(tenant, idemKey, bodyHash), raw, s.intentTTL); err != nil {
			return nil, fmt.Errorf("intent tier write: %w", err)
		}
	}
	if err := s.cli.Set(opCtx, keys.Latest(blockID), raw, s.intentTTL); err != nil {
		return nil, fmt.Errorf("latest write: %w", err)
	}

	if s.front != nil {
		s.front.Add(featKey, rec)
	}
	return &rec, nil
}

// Latest returns the most recently stored recommendation for a block, or
// nil when none exists.
func (s *Store) Latest(ctx context.Context, blockID string) (*model.StoredRecommendation, error) {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, err := s.cli.Get(opCtx, keys.Latest(blockID))
	if err != nil {
		return nil, fmt.Errorf("latest lookup: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var rec model.StoredRecommendation
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("latest record decode: %w", err)
	}
	return &rec, nil
}
