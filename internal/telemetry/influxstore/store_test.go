package influxstore

import (
	"strings"
	"testing"
	"time"
)

func TestBuildFlux_FiltersAndRange(t *testing.T) {
	from := time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	q := buildFlux("telemetry", "blk-1", "soil_vwc", from, to)

	for _, want := range []string{
		`from(bucket: "telemetry")`,
		`range(start: 2025-05-26T00:00:00Z, stop: 2025-06-02T00:00:00Z)`,
		`r.block_id == "blk-1"`,
		`r.type == "soil_vwc"`,
		`sort(columns: ["_time"])`,
	} {
		if !strings.Contains(q, want) {
			t.Fatalf("flux missing %q:\n%s", want, q)
		}
	}
}

func TestBuildFlux_QuotesHostileBlockID(t *testing.T) {
	q := buildFlux("telemetry", `blk"1`, "et0", time.Unix(0, 0), time.Unix(1, 0))
	if strings.Contains(q, `== "blk"1"`) {
		t.Fatal("block id not escaped")
	}
}
