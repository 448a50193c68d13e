package keys

import (
	"strings"
	"testing"
)

func TestIntent_DeterministicAndDistinct(t *testing.T) {
	k1 := Intent("tenant-a", "order-42", "abc123")
	k2 := Intent("tenant-a", "order-42", "abc123")
	if k1 != k2 {
		t.Fatalf("same inputs produced different keys: %s vs %s", k1, k2)
	}

	if k1 == Intent("tenant-b", "order-42", "abc123") {
		t.Fatal("tenant not part of the key")
	}
	if k1 == Intent("tenant-a", "order-43", "abc123") {
		t.Fatal("idempotency key not part of the key")
	}
	if k1 == Intent("tenant-a", "order-42", "def456") {
		t.Fatal("body hash not part of the key")
	}
}

func TestComponent_SanitizesButStaysUnique(t *testing.T) {
	// Same sanitized prefix, different raw input.
	a := component("key with spaces")
	b := component("key_with_spaces")
	if a == b {
		t.Fatal("sanitization collapsed distinct inputs")
	}
	for _, c := range []string{a, b} {
		if strings.ContainsAny(c, " \t\n:") {
			t.Fatalf("unsafe characters survived sanitization: %q", c)
		}
	}
}

func TestComponent_LongInputBounded(t *testing.T) {
	long := strings.Repeat("x", 500)
	c := component(long)
	if len(c) > maxComponentLen+17 { // prefix + "." + 16 hex chars
		t.Fatalf("component too long: %d", len(c))
	}
	if c == component(long+"y") {
		t.Fatal("truncated inputs collided")
	}
}

func TestKeyNamespacesDisjoint(t *testing.T) {
	tenant, id := "t1", "s1"
	ks := []string{
		Intent(tenant, id, "h"),
		Feature(id, "h"),
		Latest(id),
		Subscription(tenant, id),
		SubscriptionIndex(tenant),
	}
	seen := map[string]bool{}
	for _, k := range ks {
		if seen[k] {
			t.Fatalf("duplicate key across namespaces: %s", k)
		}
		seen[k] = true
	}
}
