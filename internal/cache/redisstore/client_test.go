package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	cli, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	return cli, mr
}

func TestClient_GetSetRoundTrip(t *testing.T) {
	cli, mr := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	if err := cli.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := cli.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("Get=%q want v1", got)
	}

	if ttl := mr.TTL("k1"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestClient_GetMissingReturnsNilNil(t *testing.T) {
	cli, _ := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	got, err := cli.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("Get(absent): %v", err)
	}
	if got != nil {
		t.Fatalf("Get(absent)=%q want nil", got)
	}
}

func TestClient_SetOps(t *testing.T) {
	cli, _ := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	if err := cli.SAdd(ctx, "set1", "a", "b"); err != nil {
		t.Fatalf("SAdd: %v", err)
	}
	members, err := cli.SMembers(ctx, "set1")
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("SMembers=%v want 2 members", members)
	}

	if err := cli.SRem(ctx, "set1", "a"); err != nil {
		t.Fatalf("SRem: %v", err)
	}
	members, err = cli.SMembers(ctx, "set1")
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	if len(members) != 1 || members[0] != "b" {
		t.Fatalf("SMembers=%v want [b]", members)
	}
}

func TestClient_MGetMixedHitsAndMisses(t *testing.T) {
	cli, _ := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	if err := cli.Set(ctx, "a", []byte("1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	out, err := cli.MGet(ctx, []string{"a", "missing"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(out) != 1 || string(out["a"]) != "1" {
		t.Fatalf("MGet=%v want only a=1", out)
	}
}
