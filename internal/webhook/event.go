// Package webhook implements the outbound event-delivery pipeline:
// subscription storage, payload signing and the retrying dispatcher.
package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Event is the wire payload delivered to subscribers. The data field is
// deliberately an open map; its schema is subscriber-defined.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
	TenantID  string         `json:"tenant_id"`
}

func NewEvent(tenant, eventType string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
		TenantID:  tenant,
	}
}

// Subscription is a registered webhook endpoint. The failure counter and
// active flag are mutated by the dispatcher.
type Subscription struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	URL              string     `json:"url"`
	EventTypes       []string   `json:"event_types"`
	Secret           string     `json:"secret,omitempty"`
	Active           bool       `json:"active"`
	FailedDeliveries int        `json:"failed_deliveries"`
	CreatedAt        time.Time  `json:"created_at"`
	LastDeliveryAt   *time.Time `json:"last_delivery_at,omitempty"`
}

// Matches reports whether the subscription wants this event type. A "*"
// entry matches all types.
func (s Subscription) Matches(eventType string) bool {
	for _, t := range s.EventTypes {
		if t == eventType || t == "*" {
			return true
		}
	}
	return false
}
