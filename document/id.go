package document

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// FindID extracts the top-level "id" member of a raw JSON payload.
// A string id is returned as-is; a numeric id is rendered in canonical
// decimal form. It reports false for invalid JSON, a missing id, or an id
// of any other type.
func FindID(data []byte) (string, bool) {
	v, err := Parse(data)
	if err != nil {
		return "", false
	}

	return FindIDOf(v)
}

// FindIDOf extracts the id from an already-parsed document.
func FindIDOf(v Value) (string, bool) {
	id, ok := v.Property("id")
	if !ok {
		return "", false
	}

	switch id.Kind() {
	case KindText:
		return id.Text(), true
	case KindInt64:
		return strconv.FormatInt(id.Int64(), 10), true
	case KindFloat:
		return strconv.FormatFloat(id.Float64(), 'g', -1, 64), true
	default:
		return "", false
	}
}

// Hash64 computes the xxHash64 of a textual value. Hash-valued secondary
// indexes store this instead of the text itself, so arbitrarily long
// values fit a compact fixed-width u64 slot.
func Hash64(s string) uint64 {
	return xxhash.Sum64String(s)
}
