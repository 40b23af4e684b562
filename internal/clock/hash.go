package clock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash computes a stable SHA-256 digest over args, used for both tx-id
// (spec §4.1) and the TTS audio-cache-key. Arguments are encoded as a JSON
// array after canonicalizing each one: map keys are sorted, floats,
// Stringers and other non-JSON types are stringified in a fixed format,
// and strings, bools and integers pass through as-is, so the same
// conceptual input always produces the same digest regardless of Go's
// default float/map formatting.
//
// Grounded on original_source/app/utils.py's compute_hash, which does
// `json.dumps(args, sort_keys=True, default=str)` — sort_keys canonicalizes
// map ordering, and default=str stringifies anything json can't natively
// encode (e.g. datetimes). canonicalize below is the Go equivalent: it
// walks the argument tree and produces a structure encoding/json always
// serializes the same way, with maps already key-sorted by Go's encoder.
func Hash(args ...any) string {
	canon := make([]any, len(args))
	for i, a := range args {
		canon[i] = canonicalize(a)
	}
	// encoding/json sorts map[string]any keys itself, so once every value
	// is reduced to maps/slices/strings/numbers the encoding is stable.
	b, err := json.Marshal(canon)
	if err != nil {
		// canonicalize only ever produces JSON-safe types; a failure here
		// means a caller passed something pathological (e.g. a channel).
		panic(fmt.Sprintf("clock: hash input not canonicalizable: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalize reduces a into a tree of maps/slices/strings so that
// encoding/json's stable map-key sorting and fixed number formatting is
// the only thing that determines the output bytes.
func canonicalize(a any) any {
	switch v := a.(type) {
	case nil:
		return nil
	case string, bool:
		return v
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v
	case float32:
		return canonicalFloat(float64(v))
	case float64:
		return canonicalFloat(v)
	case fmt.Stringer:
		return v.String()
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[k] = canonicalize(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[k] = canonicalize(val)
		}
		return m
	case []string:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = canonicalize(val)
		}
		return out
	case []int:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = canonicalize(val)
		}
		return out
	default:
		// Fall back to the value's own string form, mirroring Python's
		// json.dumps(..., default=str) escape hatch for types json can't
		// natively encode. time.Time never reaches here: it is a
		// fmt.Stringer and is handled above.
		return fmt.Sprintf("%v", v)
	}
}

// canonicalFloat renders floats with a fixed, locale-independent format so
// the digest is stable across platforms/Go versions. Exact voice-param
// values (e.g. 0.5) round-trip identically either way.
func canonicalFloat(f float64) string {
	return fmt.Sprintf("%.10g", f)
}
