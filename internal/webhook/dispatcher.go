package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/agrisense/irrigation-advisor/internal/core/config"
	"github.com/agrisense/irrigation-advisor/internal/core/httpclient"
	"github.com/agrisense/irrigation-advisor/internal/core/observability"
)

// TestDelivery is the response of a signed sample event, letting
// subscribers verify their signature handling without a live endpoint.
type TestDelivery struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Payload   Event  `json:"payload"`
	Signature string `json:"signature"`
	Timestamp string `json:"timestamp"`
}

// Dispatcher fans events out to matching subscriptions. Delivery
// failures are recorded against the subscription and logged; they are
// never surfaced to the code that emitted the event.
type Dispatcher struct {
	subs   *SubscriptionStore
	client *http.Client
	cfg    config.WebhookCfg
	logger *slog.Logger
}

func NewDispatcher(subs *SubscriptionStore, cfg config.WebhookCfg, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		subs:   subs,
		client: httpclient.NewOutbound(cfg.Timeout),
		cfg:    cfg,
		logger: logger,
	}
}

// Emit delivers an event to every active matching subscription of the
// tenant, one goroutine per subscriber, and waits for the fan-out to
// finish. A disabled pipeline is a no-op.
func (d *Dispatcher) Emit(ctx context.Context, tenant, eventType string, data map[string]any) {
	if !d.cfg.Enabled {
		return
	}

	subs, err := d.subs.ListActive(ctx, tenant, eventType)
	if err != nil {
		d.logger.Error("webhook subscription lookup failed",
			slog.String("tenant", tenant),
			slog.String("event_type", eventType),
			slog.Any("err", err))
		return
	}
	if len(subs) == 0 {
		return
	}

	event := NewEvent(tenant, eventType, data)
	body, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("webhook payload encode failed",
			slog.String("event_type", eventType),
			slog.Any("err", err))
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub Subscription) {
			defer wg.Done()
			d.deliver(ctx, sub, event, body)
		}(sub)
	}
	wg.Wait()
}

// deliver runs the per-subscriber retry loop and settles the
// subscription's failure counter afterwards.
func (d *Dispatcher) deliver(ctx context.Context, sub Subscription, event Event, body []byte) {
	sig := Sign(d.secretFor(sub), body)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.BackoffBase
	bo.MaxInterval = d.cfg.BackoffCap
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	attempts := uint64(d.cfg.MaxAttempts)
	if attempts == 0 {
		attempts = 1
	}
	err := backoff.Retry(func() error {
		observability.IncWebhookAttempt()
		return d.post(ctx, sub, event.Type, body, sig)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, attempts-1), ctx))

	if err != nil {
		observability.IncWebhookDelivery(event.Type, "failure")
		d.logger.Warn("webhook delivery failed",
			slog.String("subscription_id", sub.ID),
			slog.String("url", sub.URL),
			slog.String("event_type", event.Type),
			slog.Any("err", err))

		deactivated, serr := d.subs.RecordFailure(ctx, sub.TenantID, sub.ID, d.cfg.FailureLimit)
		if serr != nil {
			d.logger.Error("webhook failure count update failed",
				slog.String("subscription_id", sub.ID),
				slog.Any("err", serr))
			return
		}
		if deactivated {
			d.logger.Warn("webhook subscription deactivated after repeated failures",
				slog.String("subscription_id", sub.ID),
				slog.Int("failure_limit", d.cfg.FailureLimit))
		}
		return
	}

	observability.IncWebhookDelivery(event.Type, "success")
	if serr := d.subs.RecordSuccess(ctx, sub.TenantID, sub.ID); serr != nil {
		d.logger.Error("webhook success update failed",
			slog.String("subscription_id", sub.ID),
			slog.Any("err", serr))
	}
}

func (d *Dispatcher) post(ctx context.Context, sub Subscription, eventType string, body []byte, sig string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request for %q: %w", sub.URL, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Event-Type", eventType)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %q: %w", sub.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %q: status %d", sub.URL, resp.StatusCode)
	}
	return nil
}

// CreateTestEvent builds and signs a sample event without delivering it.
func (d *Dispatcher) CreateTestEvent(tenant string) TestDelivery {
	event := NewEvent(tenant, "test.event", map[string]any{
		"message": "This is a test webhook event",
	})
	body, _ := json.Marshal(event)
	return TestDelivery{
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   event,
		Signature: Sign(d.cfg.Secret, body),
		Timestamp: event.Timestamp,
	}
}

func (d *Dispatcher) secretFor(sub Subscription) string {
	if sub.Secret != "" {
		return sub.Secret
	}
	return d.cfg.Secret
}
