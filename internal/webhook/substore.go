package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agrisense/irrigation-advisor/internal/cache/keys"
	"github.com/agrisense/irrigation-advisor/internal/cache/redisstore"
)

// SubscriptionStore persists webhook subscriptions in redis: one JSON
// record per subscription plus a per-tenant set of subscription ids.
type SubscriptionStore struct {
	cli *redisstore.Client
}

func NewSubscriptionStore(cli *redisstore.Client) *SubscriptionStore {
	return &SubscriptionStore{cli: cli}
}

// Create registers a subscription, assigning it an id. New subscriptions
// start active with a zero failure counter.
func (s *SubscriptionStore) Create(ctx context.Context, sub *Subscription) error {
	if sub.TenantID == "" {
		return fmt.Errorf("subscription tenant id is required")
	}
	if sub.URL == "" {
		return fmt.Errorf("subscription url is required")
	}
	sub.ID = uuid.NewString()
	sub.Active = true
	sub.FailedDeliveries = 0
	sub.CreatedAt = time.Now().UTC()

	if err := s.put(ctx, *sub); err != nil {
		return err
	}
	if err := s.cli.SAdd(ctx, keys.SubscriptionIndex(sub.TenantID), sub.ID); err != nil {
		return fmt.Errorf("index subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Get(ctx context.Context, tenant, id string) (*Subscription, error) {
	b, err := s.cli.Get(ctx, keys.Subscription(tenant, id))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	var sub Subscription
	if err := json.Unmarshal(b, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription %q: %w", id, err)
	}
	return &sub, nil
}

// List returns every subscription registered by a tenant. Ids present in
// the index but missing a record are skipped.
func (s *SubscriptionStore) List(ctx context.Context, tenant string) ([]Subscription, error) {
	ids, err := s.cli.SMembers(ctx, keys.SubscriptionIndex(tenant))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ks := make([]string, len(ids))
	for i, id := range ids {
		ks[i] = keys.Subscription(tenant, id)
	}
	found, err := s.cli.MGet(ctx, ks)
	if err != nil {
		return nil, err
	}

	subs := make([]Subscription, 0, len(found))
	for _, k := range ks {
		b, ok := found[k]
		if !ok {
			continue
		}
		var sub Subscription
		if err := json.Unmarshal(b, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription at %q: %w", k, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// ListActive returns the tenant's active subscriptions matching eventType.
func (s *SubscriptionStore) ListActive(ctx context.Context, tenant, eventType string) ([]Subscription, error) {
	subs, err := s.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	out := subs[:0]
	for _, sub := range subs {
		if sub.Active && sub.Matches(eventType) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *SubscriptionStore) Delete(ctx context.Context, tenant, id string) error {
	if err := s.cli.Del(ctx, keys.Subscription(tenant, id)); err != nil {
		return err
	}
	if err := s.cli.SRem(ctx, keys.SubscriptionIndex(tenant), id); err != nil {
		return fmt.Errorf("unindex subscription: %w", err)
	}
	return nil
}

// RecordFailure bumps the failure counter and deactivates the
// subscription once the counter reaches limit. Reports whether the
// subscription was deactivated by this call.
func (s *SubscriptionStore) RecordFailure(ctx context.Context, tenant, id string, limit int) (bool, error) {
	sub, err := s.Get(ctx, tenant, id)
	if err != nil || sub == nil {
		return false, err
	}
	sub.FailedDeliveries++
	deactivated := false
	if limit > 0 && sub.FailedDeliveries >= limit && sub.Active {
		sub.Active = false
		deactivated = true
	}
	return deactivated, s.put(ctx, *sub)
}

// RecordSuccess resets the failure counter and stamps the delivery time.
func (s *SubscriptionStore) RecordSuccess(ctx context.Context, tenant, id string) error {
	sub, err := s.Get(ctx, tenant, id)
	if err != nil || sub == nil {
		return err
	}
	now := time.Now().UTC()
	sub.FailedDeliveries = 0
	sub.LastDeliveryAt = &now
	return s.put(ctx, *sub)
}

func (s *SubscriptionStore) put(ctx context.Context, sub Subscription) error {
	b, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode subscription %q: %w", sub.ID, err)
	}
	return s.cli.Set(ctx, keys.Subscription(sub.TenantID, sub.ID), b, 0)
}
