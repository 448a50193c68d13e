package blocks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agrisense/irrigation-advisor/internal/core/model"
)

func TestMemoryStore_GetAndNotFound(t *testing.T) {
	st := NewMemoryStore([]model.Block{
		{ID: "blk-1", AreaHa: 10, CropType: "corn"},
	})

	b, err := st.Get(context.Background(), "blk-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b.AreaHa != 10 || b.CropType != "corn" {
		t.Fatalf("unexpected block: %+v", b)
	}

	_, err = st.Get(context.Background(), "blk-404")
	if !errors.Is(err, model.ErrBlockNotFound) {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestLoadFile_FieldAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.json")
	data := `[
		{"id": "blk-1", "tenant_id": "t1", "area_ha": 10, "crop_type": "corn", "target_vwc": 0.35},
		{"id": "blk-2", "area": 4.5, "crop_type": "wheat"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d want 2", len(got))
	}
	if got[0].TargetVWC == nil || *got[0].TargetVWC != 0.35 {
		t.Fatalf("target_vwc not parsed: %+v", got[0])
	}
	if got[1].AreaHa != 4.5 {
		t.Fatalf("legacy area alias not honored: %+v", got[1])
	}
	if got[1].TargetVWC != nil {
		t.Fatalf("absent target_vwc should stay nil")
	}
}

func TestLoadFile_MissingIDRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.json")
	if err := os.WriteFile(path, []byte(`[{"area_ha": 1}]`), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for block without id")
	}
}
