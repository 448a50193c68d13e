// Package fingerprint computes the deterministic digests used as dedup
// and cache keys. Both functions are pure and stable across process
// restarts and across equivalent-but-differently-ordered inputs.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/agrisense/irrigation-advisor/internal/core/model"
)

// Canonical serializes v as JSON with all object keys sorted recursively.
// Numbers keep their original textual form so round-tripping cannot shift
// the digest.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	// encoding/json writes map keys in sorted order, so one re-encode of
	// the generic tree yields the canonical form.
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("re-encode: %w", err)
	}
	return out, nil
}

// Body returns the hex SHA-256 digest of the canonical serialization of
// the request body.
func Body(body any) (string, error) {
	b, err := Canonical(body)
	if err != nil {
		return "", fmt.Errorf("body fingerprint: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Features returns the hex SHA-256 digest over block id, horizon and the
// canonical feature set. Used to detect "nothing material changed"
// independent of client intent.
func Features(blockID string, horizonHours float64, fs model.FeatureSet) (string, error) {
	b, err := Canonical(fs)
	if err != nil {
		return "", fmt.Errorf("feature fingerprint: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(blockID))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.FormatFloat(horizonHours, 'g', -1, 64)))
	h.Write([]byte{':'})
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}
