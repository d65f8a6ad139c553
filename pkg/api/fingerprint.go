package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ResultKey derives the cache key identifying a (flow, input) pair.
//
// The key is a pure function of its arguments: encoding/json marshals map
// keys in sorted order, so identical inputs hash identically regardless of
// the order keys were inserted in.
func ResultKey(flowID string, input map[string]any) string {
	data, err := json.Marshal(input)
	if err != nil {
		// Non-serializable inputs degrade to the empty-input key for this
		// flow rather than failing the execution.
		data = []byte("{}")
	}
	sum := sha256.Sum256(data)
	return flowID + ":" + hex.EncodeToString(sum[:])
}

// EstimateSize is the default cost-estimation strategy: the length of the
// JSON serialization of v. Values that cannot be serialized count as zero.
func EstimateSize(v any) int64 {
	if v == nil {
		return 0
	}
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(data))
}
