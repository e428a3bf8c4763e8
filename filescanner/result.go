package filescanner

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity grades a single finding. Only three grades exist on purpose:
// anything below medium is not worth a finding, and the validity mapping
// needs exactly the critical/high versus medium distinction.
type Severity int

const (
	// SeverityMedium marks content as suspicious without blocking it.
	SeverityMedium Severity = iota + 1
	// SeverityHigh blocks content from being accepted.
	SeverityHigh
	// SeverityCritical blocks content and indicates active malice.
	SeverityCritical
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Blocking reports whether a finding of this severity invalidates content.
func (s Severity) Blocking() bool {
	return s >= SeverityHigh
}

// MarshalJSON encodes the severity as its string name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its string name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	sev, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// ParseSeverity converts a string name back into a Severity.
func ParseSeverity(name string) (Severity, error) {
	switch name {
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// Finding is one detected issue. Category and Description come verbatim
// from the rule that matched; findings are never synthesized from pattern
// text at match time.
type Finding struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Category, f.Description)
}

// RiskLevel is the aggregate risk of a classification pass. Levels are
// ordered so the classifier can take the maximum over its rules.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the lowercase name of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the risk level as its string name.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a risk level from its string name.
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	level, err := ParseRiskLevel(name)
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// ParseRiskLevel converts a string name back into a RiskLevel.
func ParseRiskLevel(name string) (RiskLevel, error) {
	switch name {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	case "critical":
		return RiskCritical, nil
	}
	return RiskLow, fmt.Errorf("unknown risk level %q", name)
}

// ThreatVerdict is the immutable output of a classification pass.
type ThreatVerdict struct {
	// Malicious is true whenever Risk is above RiskLow.
	Malicious bool `json:"malicious"`
	// Threats lists every detected threat in human-readable form.
	Threats []string `json:"threats,omitempty"`
	// Risk is the maximum risk over all matched rules.
	Risk RiskLevel `json:"risk"`
}

// Report is the raw output of one Inspector pass, before the
// severity-to-validity mapping is applied.
type Report struct {
	// DetectedType is the MIME type detected from content, independent of
	// what the caller declared. Empty when detection was not confident.
	DetectedType string
	// Findings are severity-tagged security issues.
	Findings []Finding
	// Warnings are non-security observations (structural malformation,
	// declared-type anomalies).
	Warnings []string
	// Sensitive lists sensitive-data discoveries. Informational only;
	// sensitive data never affects validity.
	Sensitive []string
}

// MaxSeverity returns the highest severity among the findings, or zero
// when there are none.
func (r *Report) MaxSeverity() Severity {
	var max Severity
	for _, f := range r.Findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max
}

// Verdict is the immutable outcome of validating one upload candidate.
// It aggregates the sanitizer and inspector outputs under the severity
// mapping: critical or high findings invalidate, medium findings only
// mark the candidate suspicious.
type Verdict struct {
	// Valid is false when any error accumulated.
	Valid bool `json:"valid"`
	// SanitizedName is the storage-safe filename.
	SanitizedName string `json:"sanitizedName"`
	// DetectedType is the content-detected MIME type.
	DetectedType string `json:"detectedType,omitempty"`
	// DeclaredType is the caller-declared MIME type, normalized.
	DeclaredType string `json:"declaredType,omitempty"`
	// Errors is the complete list of rejection reasons, not just the first.
	Errors []string `json:"errors,omitempty"`
	// Warnings are non-blocking observations.
	Warnings []string `json:"warnings,omitempty"`
	// Findings are all severity-tagged findings from the inspection pass.
	Findings []Finding `json:"findings,omitempty"`
	// Sensitive lists sensitive-data discoveries.
	Sensitive []string `json:"sensitive,omitempty"`
	// Suspicious is set by medium findings and dangerous double
	// extensions. A suspicious candidate is still valid.
	Suspicious bool `json:"suspicious"`
	// Duration is how long validation took.
	Duration time.Duration `json:"duration"`
}

// Err converts an invalid verdict into a *ValidationError carrying every
// accumulated reason. It returns nil for valid verdicts.
func (v *Verdict) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Reasons: append([]string(nil), v.Errors...)}
}

// verdictBuilder accumulates validation output. The zero value is not
// usable; newVerdictBuilder stamps the start time for Duration.
type verdictBuilder struct {
	verdict Verdict
	started time.Time
}

func newVerdictBuilder(sanitizedName, declaredType string) *verdictBuilder {
	return &verdictBuilder{
		verdict: Verdict{SanitizedName: sanitizedName, DeclaredType: declaredType},
		started: time.Now(),
	}
}

func (b *verdictBuilder) addError(format string, args ...any) {
	b.verdict.Errors = append(b.verdict.Errors, fmt.Sprintf(format, args...))
}

func (b *verdictBuilder) addWarning(warning string) {
	b.verdict.Warnings = append(b.verdict.Warnings, warning)
}

func (b *verdictBuilder) addFinding(f Finding) {
	b.verdict.Findings = append(b.verdict.Findings, f)
	if f.Severity.Blocking() {
		b.addError("%s: %s", f.Category, f.Description)
		return
	}
	// Medium findings warn and taint, they never block.
	b.addWarning(f.Description)
	b.verdict.Suspicious = true
}

func (b *verdictBuilder) markSuspicious() {
	b.verdict.Suspicious = true
}

func (b *verdictBuilder) build() *Verdict {
	b.verdict.Valid = len(b.verdict.Errors) == 0
	b.verdict.Duration = time.Since(b.started)
	v := b.verdict
	return &v
}
