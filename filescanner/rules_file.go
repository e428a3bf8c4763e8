package filescanner

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// rulePack is the on-disk layout of an operator-supplied rule pack:
//
//	rules:
//	  - category: web-shell
//	    severity: high
//	    description: in-house dropper marker
//	    pattern: '(?i)\bacme_dropper\b'
type rulePack struct {
	Rules []rulePackEntry `yaml:"rules"`
}

type rulePackEntry struct {
	Category    string `yaml:"category"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description"`
	Pattern     string `yaml:"pattern"`
}

// LoadRules parses a YAML rule pack into signature rules that can extend
// the built-in battery. Every entry needs a pattern, a known severity,
// and a description; the description is what reaches findings, so packs
// may not rely on pattern text ever being shown.
func LoadRules(r io.Reader) ([]SignatureRule, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rule pack: %w", err)
	}
	var pack rulePack
	if err := yaml.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("parse rule pack: %w", err)
	}

	rules := make([]SignatureRule, 0, len(pack.Rules))
	for i, entry := range pack.Rules {
		if entry.Pattern == "" {
			return nil, fmt.Errorf("rule %d: missing pattern", i)
		}
		if entry.Description == "" {
			return nil, fmt.Errorf("rule %d: missing description", i)
		}
		sev, err := ParseSeverity(entry.Severity)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		re, err := regexp.Compile(entry.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern: %w", i, err)
		}
		category := entry.Category
		if category == "" {
			category = "custom"
		}
		rules = append(rules, SignatureRule{
			Category:    category,
			Severity:    sev,
			Description: entry.Description,
			Pattern:     re,
		})
	}
	return rules, nil
}

// LoadRulesFile reads a rule pack from disk.
func LoadRulesFile(path string) ([]SignatureRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule pack: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}
