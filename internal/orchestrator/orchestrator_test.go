package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/agrisense/irrigation-advisor/internal/blocks"
	"github.com/agrisense/irrigation-advisor/internal/cache/redisstore"
	"github.com/agrisense/irrigation-advisor/internal/cache/resultstore"
	"github.com/agrisense/irrigation-advisor/internal/core/model"
	"github.com/agrisense/irrigation-advisor/internal/recommend"
)

type fakeExtractor struct {
	fs       model.FeatureSet
	observed bool
	err      error
	barrier  *sync.WaitGroup
	calls    atomic.Int32
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, _ float64) (model.FeatureSet, bool, error) {
	f.calls.Add(1)
	if f.barrier != nil {
		f.barrier.Done()
		f.barrier.Wait()
	}
	if f.err != nil {
		return model.FeatureSet{}, false, f.err
	}
	return f.fs, f.observed, nil
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []string
	notify chan struct{}
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{notify: make(chan struct{}, 16)}
}

func (f *fakeEmitter) Emit(_ context.Context, _, eventType string, _ map[string]any) {
	f.mu.Lock()
	f.events = append(f.events, eventType)
	f.mu.Unlock()
	f.notify <- struct{}{}
}

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeEmitter) waitOne(t *testing.T) {
	t.Helper()
	select {
	case <-f.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event emission")
	}
}

func newTestOrchestrator(t *testing.T, ext FeatureExtractor, em Emitter) *Orchestrator {
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

	bs := blocks.NewMemoryStore([]model.Block{
		{ID: "blk-1", AreaHa: 10, CropType: "corn"},
		{ID: "blk-2", AreaHa: 5, CropType: "wheat"},
	})
	results := resultstore.New(cli, resultstore.Config{
		IntentTTL:  24 * time.Hour,
		FeatureTTL: 6 * time.Hour,
		OpTimeout:  time.Second,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(bs, ext, recommend.NewEngine(), results, em, logger)
}

func dryFeatures() model.FeatureSet {
	return model.FeatureSet{CurrentVWC: 0.20, RecentET0: 5.0, RecentRainfallMM: 0}
}

func TestComputeOrReuse_IdempotentReplayIsBitIdentical(t *testing.T) {
	ext := &fakeExtractor{fs: dryFeatures(), observed: true}
	em := newFakeEmitter()
	o := newTestOrchestrator(t, ext, em)
	ctx := context.Background()

	req := model.ComputeRequest{HorizonHours: 72}
	first, err := o.ComputeOrReuse(ctx, "farm-a", "blk-1", "idem-1", req)
	if err != nil {
		t.Fatalf("ComputeOrReuse: %v", err)
	}
	em.waitOne(t)

	second, err := o.ComputeOrReuse(ctx, "farm-a", "blk-1", "idem-1", req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("replay returned a different record: %s vs %s", second.ID, first.ID)
	}
	if !second.Result.When.Equal(first.Result.When) {
		t.Fatalf("replay When=%v differs from original %v", second.Result.When, first.Result.When)
	}
	if second.Result.VolumeM3 != first.Result.VolumeM3 || second.Result.DurationMin != first.Result.DurationMin {
		t.Fatalf("replay result differs: %+v vs %+v", second.Result, first.Result)
	}

	// The intent tier answered before feature extraction ran again.
	if got := ext.calls.Load(); got != 1 {
		t.Fatalf("extractor called %d times, want 1", got)
	}
	if em.count() != 1 {
		t.Fatalf("events=%d want 1, cache hits must not re-emit", em.count())
	}
}

func TestComputeOrReuse_FeatureTierSharedAcrossTenants(t *testing.T) {
	ext := &fakeExtractor{fs: dryFeatures(), observed: true}
	em := newFakeEmitter()
	o := newTestOrchestrator(t, ext, em)
	ctx := context.Background()

	req := model.ComputeRequest{HorizonHours: 72}
	first, err := o.ComputeOrReuse(ctx, "farm-a", "blk-1", "", req)
	if err != nil {
		t.Fatalf("ComputeOrReuse: %v", err)
	}
	em.waitOne(t)

	// Different tenant, no idempotency key, same block and features.
	second, err := o.ComputeOrReuse(ctx, "farm-b", "blk-1", "", req)
	if err != nil {
		t.Fatalf("second tenant: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("feature tier should be tenant-independent: %s vs %s", second.ID, first.ID)
	}
	if em.count() != 1 {
		t.Fatalf("events=%d want 1", em.count())
	}
}

func TestComputeOrReuse_UnknownBlock(t *testing.T) {
	o := newTestOrchestrator(t, &fakeExtractor{fs: dryFeatures()}, newFakeEmitter())

	_, err := o.ComputeOrReuse(context.Background(), "farm-a", "no-such-block", "", model.ComputeRequest{})
	if !errors.Is(err, model.ErrBlockNotFound) {
		t.Fatalf("err=%v want ErrBlockNotFound", err)
	}
}

func TestComputeOrReuse_HorizonValidation(t *testing.T) {
	ext := &fakeExtractor{fs: dryFeatures()}
	o := newTestOrchestrator(t, ext, newFakeEmitter())
	ctx := context.Background()

	_, err := o.ComputeOrReuse(ctx, "farm-a", "blk-1", "", model.ComputeRequest{HorizonHours: 500})
	if !model.IsValidation(err) {
		t.Fatalf("err=%v want validation error", err)
	}
	_, err = o.ComputeOrReuse(ctx, "farm-a", "blk-1", "", model.ComputeRequest{HorizonHours: -1})
	if !model.IsValidation(err) {
		t.Fatalf("err=%v want validation error", err)
	}

	// Zero defaults to 72 rather than failing.
	rec, err := o.ComputeOrReuse(ctx, "farm-a", "blk-1", "", model.ComputeRequest{})
	if err != nil {
		t.Fatalf("ComputeOrReuse: %v", err)
	}
	if rec.HorizonHours != model.DefaultHorizonHours {
		t.Fatalf("HorizonHours=%v want default %v", rec.HorizonHours, model.DefaultHorizonHours)
	}
}

func TestComputeOrReuse_ExtractionFailureIsComputeError(t *testing.T) {
	ext := &fakeExtractor{err: errors.New("influx unreachable")}
	o := newTestOrchestrator(t, ext, newFakeEmitter())

	_, err := o.ComputeOrReuse(context.Background(), "farm-a", "blk-1", "", model.ComputeRequest{})
	var ce *model.ComputeError
	if !errors.As(err, &ce) {
		t.Fatalf("err=%T want *ComputeError", err)
	}
	if model.IsValidation(err) {
		t.Fatal("infrastructure failure must not look like caller error")
	}
}

func TestComputeOrReuse_ConcurrentDoubleMissComputesOnce(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)
	ext := &fakeExtractor{fs: dryFeatures(), observed: true, barrier: &barrier}
	em := newFakeEmitter()
	o := newTestOrchestrator(t, ext, em)

	req := model.ComputeRequest{HorizonHours: 72}
	recs := make([]*model.StoredRecommendation, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			recs[i], errs[i] = o.ComputeOrReuse(context.Background(), "farm-a", "blk-1", "", req)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if recs[0].ID != recs[1].ID {
		t.Fatalf("concurrent callers got different records: %s vs %s", recs[0].ID, recs[1].ID)
	}
	em.waitOne(t)
	if em.count() != 1 {
		t.Fatalf("events=%d want 1, deduplicated compute must emit once", em.count())
	}
}

func TestLatest(t *testing.T) {
	ext := &fakeExtractor{fs: dryFeatures(), observed: true}
	em := newFakeEmitter()
	o := newTestOrchestrator(t, ext, em)
	ctx := context.Background()

	if _, err := o.Latest(ctx, "no-such-block"); !errors.Is(err, model.ErrBlockNotFound) {
		t.Fatalf("err=%v want ErrBlockNotFound", err)
	}

	rec, err := o.Latest(ctx, "blk-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if rec != nil {
		t.Fatalf("Latest=%+v want nil before any compute", rec)
	}

	stored, err := o.ComputeOrReuse(ctx, "farm-a", "blk-1", "", model.ComputeRequest{HorizonHours: 72})
	if err != nil {
		t.Fatalf("ComputeOrReuse: %v", err)
	}
	em.waitOne(t)

	rec, err = o.Latest(ctx, "blk-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if rec == nil || rec.ID != stored.ID {
		t.Fatalf("Latest=%+v want the stored record %s", rec, stored.ID)
	}
}

func TestSimulate(t *testing.T) {
	ext := &fakeExtractor{fs: dryFeatures(), observed: true}
	em := newFakeEmitter()
	o := newTestOrchestrator(t, ext, em)
	ctx := context.Background()

	out, err := o.Simulate(ctx, []string{"blk-1", "blk-2", "missing"}, model.ComputeRequest{HorizonHours: 72})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if out.ScenarioID == "" {
		t.Fatal("scenario id missing")
	}
	if len(out.Results) != 3 {
		t.Fatalf("Results=%d want 3", len(out.Results))
	}

	var total float64
	for _, r := range out.Results {
		switch r.BlockID {
		case "missing":
			if r.Error == "" || r.Recommendation != nil {
				t.Fatalf("missing block should report an inline error, got %+v", r)
			}
		default:
			if r.Recommendation == nil {
				t.Fatalf("block %s missing recommendation: %+v", r.BlockID, r)
			}
			total += r.Recommendation.VolumeM3
		}
	}
	if out.TotalVolumeM3 != total {
		t.Fatalf("TotalVolumeM3=%v want %v", out.TotalVolumeM3, total)
	}

	// Simulation is compute-only.
	if em.count() != 0 {
		t.Fatalf("events=%d want 0, simulations must not emit", em.count())
	}
	if rec, err := o.Latest(ctx, "blk-1"); err != nil || rec != nil {
		t.Fatalf("Latest after simulate=%+v err=%v want no stored record", rec, err)
	}

	if _, err := o.Simulate(ctx, nil, model.ComputeRequest{}); !model.IsValidation(err) {
		t.Fatalf("err=%v want validation error for empty block list", err)
	}
}
