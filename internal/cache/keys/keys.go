// Package keys builds the redis key space of the result cache and the
// webhook subscription store. Client-supplied components (tenant ids,
// idempotency keys) are sanitized and length-bounded, with an xxhash
// suffix preserving exactness for anything truncated or rewritten.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const maxComponentLen = 64

// Intent returns the client-intent key: one entry per
// (tenant, idempotency key, body fingerprint) triple.
func Intent(tenant, idemKey, bodyHash string) string {
	return fmt.Sprintf("rec:idem:%s:%s:%s", component(tenant), component(idemKey), bodyHash)
}

// Feature returns the feature-staleness key, shared across tenants.
func Feature(blockID, featureHash string) string {
	return fmt.Sprintf("rec:feat:%s:%s", component(blockID), featureHash)
}

// Latest returns the most-recent-recommendation key for a block.
func Latest(blockID string) string {
	return "rec:latest:" + component(blockID)
}

// Subscription returns the key holding one webhook subscription record.
func Subscription(tenant, id string) string {
	return fmt.Sprintf("wh:sub:%s:%s", component(tenant), component(id))
}

// SubscriptionIndex returns the set key listing a tenant's subscription ids.
func SubscriptionIndex(tenant string) string {
	return "wh:idx:" + component(tenant)
}

// component maps an arbitrary string to a bounded, redis-safe token.
// Distinct inputs stay distinct via the hash suffix even when the
// sanitized prefixes collide.
func component(s string) string {
	safe := sanitize(strings.TrimSpace(s))
	if len(safe) > maxComponentLen {
		safe = safe[:maxComponentLen]
	}
	return fmt.Sprintf("%s.%016x", safe, xxhash.Sum64String(s))
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '=':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
