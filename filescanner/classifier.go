package filescanner

import (
	"bytes"
	"fmt"
)

// classifierEntropyThreshold is stricter than the inspector's raw
// threshold; at this level content is assumed packed or encrypted.
const classifierEntropyThreshold = 7.0

// Classifier turns content into a single risk verdict. It runs a second
// pass independent of the inspector, oriented at binary payloads and
// obfuscation rather than textual injection, then aggregates both
// signals under one risk scale. A Classifier is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	rules        []SignatureRule
	maxScanBytes int
}

// ClassifierOption adjusts a Classifier at construction.
type ClassifierOption func(*Classifier)

// WithClassifierRules appends signature rules whose critical and high
// matches feed the risk verdict.
func WithClassifierRules(rules ...SignatureRule) ClassifierOption {
	return func(c *Classifier) { c.rules = append(c.rules, rules...) }
}

// WithClassifierScanBytes overrides the cap on the CPU-bound scans.
// The binary-signature search always covers the full buffer.
func WithClassifierScanBytes(n int) ClassifierOption {
	return func(c *Classifier) { c.maxScanBytes = n }
}

// NewClassifier builds a Classifier with the built-in rule battery and
// default scan cap.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		rules:        threatRules,
		maxScanBytes: DefaultMaxScanBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify grades content into a ThreatVerdict. It never returns an
// error: an internal scan failure fails closed as a medium-risk
// malicious verdict that says the scan could not complete.
//
// Risk is the maximum over all signals: critical for command-execution
// idioms or critical signature matches, high for embedded or
// base64-encoded binaries and high signature matches, medium for
// obfuscation idioms or entropy above the packed threshold.
func (c *Classifier) Classify(data []byte, filename, mimeType string) (verdict *ThreatVerdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = &ThreatVerdict{
				Malicious: true,
				Risk:      RiskMedium,
				Threats:   []string{fmt.Sprintf("scan could not complete: %v", r)},
			}
		}
	}()

	risk := RiskLow
	var threats []string
	raise := func(level RiskLevel, threat string) {
		if level > risk {
			risk = level
		}
		threats = append(threats, threat)
	}

	// Embedded executables and containers are searched at every offset,
	// not just the header, to catch polyglots with appended payloads.
	seen := make(map[string]bool, len(binarySignatures))
	for _, sig := range binarySignatures {
		if seen[sig.Name] {
			continue
		}
		idx := bytes.Index(data, sig.Magic)
		if idx < 0 {
			continue
		}
		seen[sig.Name] = true
		raise(RiskHigh, fmt.Sprintf("%s signature at offset %d", sig.Name, idx))
	}

	scanData := data
	if c.maxScanBytes > 0 && len(data) > c.maxScanBytes {
		scanData = data[:c.maxScanBytes]
	}

	if c.textLike(data, filename, mimeType) {
		for _, rule := range execIdioms {
			if rule.Pattern.Match(scanData) {
				raise(RiskCritical, "command execution idiom: "+rule.Name)
			}
		}
		for _, rule := range obfuscationIdioms {
			if rule.Pattern.Match(scanData) {
				raise(RiskMedium, "obfuscation idiom: "+rule.Name)
			}
		}
		// Blocking signature matches from the shared battery feed in so
		// a direct Classify call sees textual injection too. Medium
		// rules stay advisory and never raise risk on their own.
		for _, rule := range c.rules {
			if !rule.Severity.Blocking() {
				continue
			}
			if rule.Pattern.Match(scanData) {
				level := RiskHigh
				if rule.Severity == SeverityCritical {
					level = RiskCritical
				}
				raise(level, rule.Description)
			}
		}
	}

	for _, run := range base64Run.FindAll(scanData, maxBase64Runs) {
		if len(run) > maxBase64Decode {
			run = run[:maxBase64Decode-maxBase64Decode%4]
		}
		decoded, err := decodeBase64Run(run)
		if err != nil {
			continue
		}
		for _, sig := range binarySignatures {
			if bytes.HasPrefix(decoded, sig.Magic) {
				raise(RiskHigh, "base64-encoded "+sig.Name)
				break
			}
		}
	}

	if e := Entropy(scanData); e > classifierEntropyThreshold {
		raise(RiskMedium, fmt.Sprintf("content entropy %.2f above packed threshold", e))
	}

	return &ThreatVerdict{
		Malicious: risk != RiskLow,
		Threats:   threats,
		Risk:      risk,
	}
}

// textLike decides whether the textual idiom scans apply, from content
// first and the caller's type hints second.
func (c *Classifier) textLike(data []byte, filename, mimeType string) bool {
	if detected, confident := DetectType(data); confident {
		return IsTextualType(detected)
	}
	effective := BaseType(mimeType)
	if effective == "" {
		effective = BaseType(GuessType(filename, data))
	}
	if IsTextualType(effective) {
		return true
	}
	return looksTextual(data)
}
