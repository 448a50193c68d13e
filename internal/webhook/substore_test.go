package webhook

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/agrisense/irrigation-advisor/internal/cache/redisstore"
)

func newStore(t *testing.T) *SubscriptionStore {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return NewSubscriptionStore(cli)
}

func TestSubscriptionStore_CreateListDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	sub := &Subscription{
		TenantID:   "farm-a",
		URL:        "https://hooks.example.com/irrigation",
		EventTypes: []string{"recommendation.created"},
	}
	if err := s.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.ID == "" {
		t.Fatal("Create should assign an id")
	}
	if !sub.Active || sub.FailedDeliveries != 0 {
		t.Fatalf("new subscription should start active with zero failures, got %+v", sub)
	}

	subs, err := s.List(ctx, "farm-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != sub.ID {
		t.Fatalf("List=%+v want the created subscription", subs)
	}

	// Other tenants do not see it.
	other, err := s.List(ctx, "farm-b")
	if err != nil {
		t.Fatalf("List(farm-b): %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("List(farm-b)=%+v want empty", other)
	}

	if err := s.Delete(ctx, "farm-a", sub.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	subs, err = s.List(ctx, "farm-a")
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("List after delete=%+v want empty", subs)
	}
}

func TestSubscriptionStore_CreateRequiresTenantAndURL(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, &Subscription{URL: "https://x"}); err == nil {
		t.Fatal("expected error for missing tenant")
	}
	if err := s.Create(ctx, &Subscription{TenantID: "farm-a"}); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestSubscriptionStore_ListActiveFiltersTypeAndState(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	created := &Subscription{TenantID: "farm-a", URL: "https://a", EventTypes: []string{"recommendation.created"}}
	wildcard := &Subscription{TenantID: "farm-a", URL: "https://b", EventTypes: []string{"*"}}
	testOnly := &Subscription{TenantID: "farm-a", URL: "https://c", EventTypes: []string{"test.event"}}
	for _, sub := range []*Subscription{created, wildcard, testOnly} {
		if err := s.Create(ctx, sub); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	active, err := s.ListActive(ctx, "farm-a", "recommendation.created")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("ListActive=%d subs want 2 (exact match + wildcard)", len(active))
	}
	for _, sub := range active {
		if sub.ID == testOnly.ID {
			t.Fatal("non-matching event type should be filtered out")
		}
	}
}

func TestSubscriptionStore_FailureCounterAndDeactivation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	sub := &Subscription{TenantID: "farm-a", URL: "https://a", EventTypes: []string{"*"}}
	if err := s.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 1; i < 10; i++ {
		deactivated, err := s.RecordFailure(ctx, "farm-a", sub.ID, 10)
		if err != nil {
			t.Fatalf("RecordFailure #%d: %v", i, err)
		}
		if deactivated {
			t.Fatalf("deactivated at failure #%d, limit is 10", i)
		}
	}

	deactivated, err := s.RecordFailure(ctx, "farm-a", sub.ID, 10)
	if err != nil {
		t.Fatalf("RecordFailure #10: %v", err)
	}
	if !deactivated {
		t.Fatal("10th failure should deactivate the subscription")
	}

	got, err := s.Get(ctx, "farm-a", sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Active {
		t.Fatal("subscription should be inactive after hitting the limit")
	}
	if got.FailedDeliveries != 10 {
		t.Fatalf("FailedDeliveries=%d want 10", got.FailedDeliveries)
	}

	active, err := s.ListActive(ctx, "farm-a", "recommendation.created")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 0 {
		t.Fatal("deactivated subscription must not receive further events")
	}
}

func TestSubscriptionStore_SuccessResetsCounter(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	sub := &Subscription{TenantID: "farm-a", URL: "https://a", EventTypes: []string{"*"}}
	if err := s.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 7; i++ {
		if _, err := s.RecordFailure(ctx, "farm-a", sub.ID, 10); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	if err := s.RecordSuccess(ctx, "farm-a", sub.ID); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	got, err := s.Get(ctx, "farm-a", sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FailedDeliveries != 0 {
		t.Fatalf("FailedDeliveries=%d want reset to 0", got.FailedDeliveries)
	}
	if got.LastDeliveryAt == nil {
		t.Fatal("LastDeliveryAt should be stamped on success")
	}
}
