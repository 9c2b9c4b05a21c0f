package admission

import (
	"errors"
	"fmt"

	"github.com/clinicsync/gatekeeper/internal/objects"
)

// GateErrorKind enumerates the structured entitlement and input errors that
// cross the admission boundary. They are values, not panics: callers branch on
// Kind or use errors.As.
type GateErrorKind string

const (
	KindNoActiveSubscription GateErrorKind = "NO_ACTIVE_SUBSCRIPTION"
	KindFeatureNotIncluded   GateErrorKind = "FEATURE_NOT_INCLUDED"
	KindUsageLimitExceeded   GateErrorKind = "USAGE_LIMIT_EXCEEDED"
	KindMalformedInput       GateErrorKind = "MALFORMED_INPUT"
)

// GateError is the structured denial produced by the quota gate, the usage
// accumulator (post-increment enforcement) or the feature extractor.
type GateError struct {
	Kind    GateErrorKind
	Feature string

	// Set for KindUsageLimitExceeded.
	Resource objects.Resource
	Current  int64
	Limit    int64

	// Set for KindMalformedInput.
	Field string
}

func (e *GateError) Error() string {
	switch e.Kind {
	case KindNoActiveSubscription:
		return "no active subscription"
	case KindFeatureNotIncluded:
		return fmt.Sprintf("feature %q not included in subscription tier", e.Feature)
	case KindUsageLimitExceeded:
		return fmt.Sprintf("usage limit exceeded for %s: %d/%d", e.Resource, e.Current, e.Limit)
	case KindMalformedInput:
		return fmt.Sprintf("malformed input: missing required field %q", e.Field)
	default:
		return fmt.Sprintf("gate error: %s", string(e.Kind))
	}
}

func NewNoActiveSubscription() *GateError {
	return &GateError{Kind: KindNoActiveSubscription}
}

func NewFeatureNotIncluded(feature string) *GateError {
	return &GateError{Kind: KindFeatureNotIncluded, Feature: feature}
}

func NewUsageLimitExceeded(resource objects.Resource, current, limit int64) *GateError {
	return &GateError{Kind: KindUsageLimitExceeded, Resource: resource, Current: current, Limit: limit}
}

func NewMalformedInput(field string) *GateError {
	return &GateError{Kind: KindMalformedInput, Field: field}
}

// AsGateError unwraps err into a *GateError if possible.
func AsGateError(err error) (*GateError, bool) {
	var ge *GateError
	if errors.As(err, &ge) {
		return ge, true
	}

	return nil, false
}

var (
	// ErrUnknownTier indicates a subscription referencing a tier absent from
	// the entitlement tables. This is a configuration fault, not a denial.
	ErrUnknownTier = errors.New("unknown subscription tier")

	// ErrInternal is returned for faults that must not leak details to callers.
	ErrInternal = errors.New("admission internal error, please try again later")
)
