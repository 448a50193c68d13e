// Package blocks provides read access to block (field) records. Blocks
// are owned by the surrounding persistence layer; this core only needs a
// lookup capability, backed here by a JSON snapshot loaded at startup.
package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/agrisense/irrigation-advisor/internal/core/model"
)

type Store interface {
	Get(ctx context.Context, blockID string) (model.Block, error)
}

type memoryStore struct {
	mu     sync.RWMutex
	blocks map[string]model.Block
}

func NewMemoryStore(blocks []model.Block) Store {
	m := make(map[string]model.Block, len(blocks))
	for _, b := range blocks {
		m[b.ID] = b
	}
	return &memoryStore{blocks: m}
}

func (s *memoryStore) Get(_ context.Context, blockID string) (model.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return model.Block{}, fmt.Errorf("block %q: %w", blockID, model.ErrBlockNotFound)
	}
	return b, nil
}

// LoadFile reads a JSON array of blocks, accepting both "area_ha" and the
// legacy "area" field name.
func LoadFile(path string) ([]model.Block, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blocks file: %w", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse blocks file: %w", err)
	}

	out := make([]model.Block, 0, len(rows))
	for i, rec := range rows {
		var b model.Block
		if v, ok := rec["id"].(string); ok {
			b.ID = v
		}
		if b.ID == "" {
			return nil, fmt.Errorf("block without id at index %d", i)
		}
		if v, ok := rec["tenant_id"].(string); ok {
			b.TenantID = v
		}
		if v, ok := rec["crop_type"].(string); ok {
			b.CropType = v
		}
		b.AreaHa = toF64(rec["area_ha"])
		if b.AreaHa == 0 {
			b.AreaHa = toF64(rec["area"])
		}
		if v, ok := rec["target_vwc"]; ok && v != nil {
			f := toF64(v)
			b.TargetVWC = &f
		}
		out = append(out, b)
	}
	return out, nil
}

func toF64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	}
	return 0
}
