package filescanner

import (
	"errors"
	"strings"
)

// ErrContentTooLarge is returned by the inspector when content exceeds
// the configured size limit. Oversize is an error, never a finding.
var ErrContentTooLarge = errors.New("content exceeds maximum size")

// ValidationError rejects an upload candidate before storage. It carries
// every violated rule, not just the first, so callers can present the
// complete list to the user.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	switch len(e.Reasons) {
	case 0:
		return "validation failed"
	case 1:
		return "validation failed: " + e.Reasons[0]
	default:
		return "validation failed: " + strings.Join(e.Reasons, "; ")
	}
}

// Add appends a reason. Appending to a nil error allocates a new one, so
// call sites can accumulate with err = err.Add(reason).
func (e *ValidationError) Add(reason string) *ValidationError {
	if e == nil {
		return &ValidationError{Reasons: []string{reason}}
	}
	e.Reasons = append(e.Reasons, reason)
	return e
}

// OrNil returns the error, or nil when no reason accumulated. The typed
// nil must not leak into an error interface value.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Reasons) == 0 {
		return nil
	}
	return e
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ThreatDetectedError is returned when detected threats block an
// operation outright, for example a guarded write. It carries the risk
// level and the detected threats for alerting.
type ThreatDetectedError struct {
	Risk    RiskLevel
	Threats []string
}

func (e *ThreatDetectedError) Error() string {
	if len(e.Threats) == 0 {
		return "threat detected (risk " + e.Risk.String() + ")"
	}
	return "threat detected (risk " + e.Risk.String() + "): " + strings.Join(e.Threats, "; ")
}

// IsThreatDetected reports whether err is (or wraps) a *ThreatDetectedError.
func IsThreatDetected(err error) bool {
	var te *ThreatDetectedError
	return errors.As(err, &te)
}
