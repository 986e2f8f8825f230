package face

import (
	"context"
	"errors"
)

// ErrNoFace reports that no detectable face was present on one of the
// inputs. It is the caller-correctable branch; anything else from a
// comparator is an upstream failure.
var ErrNoFace = errors.New("no face detected")

// Result is the numeric contract of a comparison. Distance is a monotonic
// dissimilarity score; the admission threshold is applied by the caller, not
// here.
type Result struct {
	Verified bool
	Distance float64
}

// Comparator is the opaque biometric capability. Any implementation
// returning a monotonic dissimilarity score satisfies the contract; model
// internals stay out of this service.
type Comparator interface {
	Compare(ctx context.Context, probePath string, reference []byte) (Result, error)
	Detect(ctx context.Context, probePath string) (bool, error)
}
