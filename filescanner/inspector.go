package filescanner

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultMaxFileSize bounds how much content the inspector accepts.
	DefaultMaxFileSize = 100 << 20
	// DefaultMaxScanBytes caps the CPU-bound pattern and entropy scans.
	// Content beyond the cap is unscanned and recorded as a finding.
	DefaultMaxScanBytes = 10 << 20

	// rawEntropyThreshold flags possibly obfuscated or encrypted content.
	rawEntropyThreshold = 6.0
	// decodedEntropyThreshold flags decoded base64 payloads. Lower than
	// the raw threshold because decoding already concentrated the signal.
	decodedEntropyThreshold = 5.0

	// maxBase64Runs bounds how many base64 candidates one pass decodes.
	maxBase64Runs = 8
	// maxBase64Decode bounds the decoded size per candidate run.
	maxBase64Decode = 64 << 10
)

// Inspector runs structural, pattern-based, and statistical checks over
// untrusted content. An Inspector is immutable after construction and
// safe for concurrent use.
type Inspector struct {
	sanitizer     *Sanitizer
	rules         []SignatureRule
	maxFileSize   int64
	maxScanBytes  int
	acceptedTypes []string
}

// InspectorOption adjusts an Inspector at construction.
type InspectorOption func(*Inspector)

// WithSanitizer substitutes the filename sanitizer used by Validate.
func WithSanitizer(s *Sanitizer) InspectorOption {
	return func(in *Inspector) {
		if s != nil {
			in.sanitizer = s
		}
	}
}

// WithMaxFileSize overrides the content size limit. Zero disables the
// limit.
func WithMaxFileSize(n int64) InspectorOption {
	return func(in *Inspector) { in.maxFileSize = n }
}

// WithMaxScanBytes overrides the scan cap. Zero disables the cap.
func WithMaxScanBytes(n int) InspectorOption {
	return func(in *Inspector) { in.maxScanBytes = n }
}

// WithAcceptedTypes restricts Validate to the given MIME types or
// type/* prefixes. An empty list accepts everything.
func WithAcceptedTypes(types ...string) InspectorOption {
	return func(in *Inspector) { in.acceptedTypes = types }
}

// WithExtraRules appends rules, typically from a rule pack, to the
// built-in signature battery.
func WithExtraRules(rules ...SignatureRule) InspectorOption {
	return func(in *Inspector) { in.rules = append(in.rules, rules...) }
}

// NewInspector builds an Inspector with the built-in rule battery and
// default limits.
func NewInspector(opts ...InspectorOption) *Inspector {
	in := &Inspector{
		sanitizer:    NewSanitizer(),
		rules:        threatRules,
		maxFileSize:  DefaultMaxFileSize,
		maxScanBytes: DefaultMaxScanBytes,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Inspect runs the content pipeline over data and reports everything it
// found. The only error condition is oversize content; every detection
// problem is converted into findings or warnings so a scan never aborts
// half way.
func (in *Inspector) Inspect(data []byte, filename, declaredType string) (*Report, error) {
	if in.maxFileSize > 0 && int64(len(data)) > in.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrContentTooLarge, len(data), in.maxFileSize)
	}

	report := &Report{}
	declared := BaseType(declaredType)

	detected, confident := DetectType(data)
	if confident {
		report.DetectedType = detected
		if declared != "" && !typesCompatible(declared, BaseType(detected)) {
			report.Findings = append(report.Findings, Finding{
				Severity:    SeverityMedium,
				Category:    CategoryTypeMismatch,
				Description: fmt.Sprintf("declared type %q does not match detected type %q", declared, BaseType(detected)),
			})
		}
	}

	scanData := data
	if in.maxScanBytes > 0 && len(data) > in.maxScanBytes {
		scanData = data[:in.maxScanBytes]
		report.Findings = append(report.Findings, Finding{
			Severity:    SeverityMedium,
			Category:    CategoryScanLimit,
			Description: fmt.Sprintf("content beyond %d bytes was not scanned", in.maxScanBytes),
		})
	}

	if in.textLike(detected, confident, declared, scanData) {
		for _, rule := range in.rules {
			if rule.Pattern.Match(scanData) {
				report.Findings = append(report.Findings, Finding{
					Severity:    rule.Severity,
					Category:    rule.Category,
					Description: rule.Description,
				})
			}
		}
		in.inspectBase64(scanData, report)
	}

	if e := Entropy(scanData); e > rawEntropyThreshold {
		report.Findings = append(report.Findings, Finding{
			Severity:    SeverityMedium,
			Category:    CategoryObfuscation,
			Description: fmt.Sprintf("high content entropy %.2f, possibly obfuscated or encrypted", e),
		})
	}

	report.Sensitive = scanSensitive(scanData)

	// The declared type decides which structure check applies: a JSON
	// payload sniffs as plain text, so detection alone would never
	// check it. Detection takes over only when the declaration says
	// nothing structured.
	structWarnings := CheckStructure(scanData, declared)
	if structWarnings == nil && report.DetectedType != "" {
		structWarnings = CheckStructure(scanData, report.DetectedType)
	}
	report.Warnings = append(report.Warnings, structWarnings...)

	return report, nil
}

// typesCompatible reports whether a confident detection agrees with the
// declared type closely enough to skip the mismatch finding. Generic
// results are not held against specific declarations: the sniffer calls
// every textual format "text/plain", and "application/octet-stream" as
// a declaration promises nothing.
func typesCompatible(declared, detected string) bool {
	if declared == detected {
		return true
	}
	if declared == "application/octet-stream" {
		return true
	}
	if detected == "text/plain" && IsTextualType(declared) {
		return true
	}
	if detected == "text/html" && declared == "application/xhtml+xml" {
		return true
	}
	return false
}

// inspectBase64 finds long base64 alphabet runs, decodes them within
// bounds, and grades what comes out. Decode failures degrade to medium
// findings rather than aborting the scan.
func (in *Inspector) inspectBase64(scanData []byte, report *Report) {
	runs := base64Run.FindAll(scanData, maxBase64Runs)
	var encodedPayload, invalidRun bool
	for _, run := range runs {
		if len(run) > maxBase64Decode {
			run = run[:maxBase64Decode-maxBase64Decode%4]
		}
		decoded, err := decodeBase64Run(run)
		if err != nil {
			invalidRun = true
			continue
		}
		if encodedPayload {
			continue
		}
		if Entropy(decoded) > decodedEntropyThreshold || in.matchesAnyRule(decoded) {
			encodedPayload = true
		}
	}
	if encodedPayload {
		report.Findings = append(report.Findings, Finding{
			Severity:    SeverityHigh,
			Category:    CategoryEncodedPayload,
			Description: "likely encoded binary or malicious payload",
		})
	}
	if invalidRun {
		report.Findings = append(report.Findings, Finding{
			Severity:    SeverityMedium,
			Category:    CategoryEncodedPayload,
			Description: "base64-looking run failed to decode",
		})
	}
}

func (in *Inspector) matchesAnyRule(data []byte) bool {
	for _, rule := range in.rules {
		if rule.Pattern.Match(data) {
			return true
		}
	}
	return false
}

// textLike decides whether the signature battery applies. Confident
// binary detections are exempt; everything else falls back to a byte
// sample heuristic.
func (in *Inspector) textLike(detected string, confident bool, declared string, sample []byte) bool {
	if confident {
		return IsTextualType(detected)
	}
	if declared != "" && IsTextualType(declared) {
		return true
	}
	return looksTextual(sample)
}

// looksTextual samples the head of data and reports whether it reads
// like text: no NUL bytes and very few non-printable characters.
func looksTextual(data []byte) bool {
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	if len(sample) == 0 {
		return false
	}
	binary := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c < 0x09 || (c > 0x0D && c < 0x20) {
			binary++
		}
	}
	return binary*100/len(sample) < 5
}

// scanSensitive counts sensitive-data pattern hits. Results are
// informational entries like "email address (3 occurrences)".
func scanSensitive(data []byte) []string {
	var out []string
	for _, rule := range sensitiveRules {
		matches := rule.Pattern.FindAll(data, 100)
		n := 0
		for _, m := range matches {
			if rule.Validate != nil && !rule.Validate(string(m)) {
				continue
			}
			n++
		}
		if n == 0 {
			continue
		}
		if n == 1 {
			out = append(out, rule.Kind+" (1 occurrence)")
			continue
		}
		out = append(out, fmt.Sprintf("%s (%d occurrences)", rule.Kind, n))
	}
	return out
}

func decodeBase64Run(run []byte) ([]byte, error) {
	s := string(run)
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Validate is the full acceptance pipeline for one upload candidate:
// filename validation and sanitization, the dangerous double-extension
// check, content inspection, and the severity mapping. Critical and
// high findings invalidate; medium findings warn and mark the verdict
// suspicious.
func (in *Inspector) Validate(data []byte, filename, declaredType string) *Verdict {
	declared := BaseType(declaredType)
	sanitized, sanWarnings := in.sanitizer.Sanitize(filename)

	b := newVerdictBuilder(sanitized, declared)

	if err := in.sanitizer.Validate(filename); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			for _, reason := range verr.Reasons {
				b.addError("%s", reason)
			}
		} else {
			b.addError("%s", err)
		}
	}
	for _, w := range sanWarnings {
		b.addWarning(w)
	}
	if ext, ok := in.sanitizer.DangerousDoubleExtension(filename); ok {
		b.addFinding(Finding{
			Severity:    SeverityMedium,
			Category:    CategoryDoubleExt,
			Description: fmt.Sprintf("dangerous double extension %q", ext),
		})
	}

	report, err := in.Inspect(data, filename, declared)
	if err != nil {
		b.addError("%s", err)
		return b.build()
	}

	b.verdict.DetectedType = report.DetectedType
	for _, f := range report.Findings {
		b.addFinding(f)
	}
	for _, w := range report.Warnings {
		b.addWarning(w)
	}
	b.verdict.Sensitive = report.Sensitive

	if len(in.acceptedTypes) > 0 {
		effective := report.DetectedType
		if effective == "" {
			effective = declared
		}
		if effective != "" && !MatchesAccepted(effective, in.acceptedTypes) {
			b.addError("content type %q is not accepted", BaseType(effective))
		}
	}

	return b.build()
}
