package xtest

import (
	"encoding/json"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// jsonRawMessageComparer compares json.RawMessage values semantically rather
// than byte-for-byte.
func jsonRawMessageComparer(x, y json.RawMessage) bool {
	if len(x) == 0 && len(y) == 0 {
		return true
	}

	if len(x) == 0 || len(y) == 0 {
		return false
	}

	var xVal, yVal any
	if err := json.Unmarshal(x, &xVal); err != nil {
		return false
	}

	if err := json.Unmarshal(y, &yVal); err != nil {
		return false
	}

	return cmp.Equal(xVal, yVal)
}

// Equal provides semantic equality comparison with custom comparers for types
// whose canonical form differs from their in-memory representation.
func Equal(a, b any, opts ...cmp.Option) bool {
	allOpts := append(opts,
		cmpopts.EquateEmpty(),
		cmp.Comparer(jsonRawMessageComparer),
		cmp.Comparer(func(x, y time.Time) bool { return x.Equal(y) }),
	)

	return cmp.Equal(a, b, allOpts...)
}

// Diff returns a human-readable diff using the same options as Equal.
func Diff(a, b any, opts ...cmp.Option) string {
	allOpts := append(opts,
		cmpopts.EquateEmpty(),
		cmp.Comparer(jsonRawMessageComparer),
		cmp.Comparer(func(x, y time.Time) bool { return x.Equal(y) }),
	)

	return cmp.Diff(a, b, allOpts...)
}
