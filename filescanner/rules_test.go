package filescanner

import (
	"strings"
	"testing"
)

func TestThreatRuleTable(t *testing.T) {
	if len(threatRules) == 0 {
		t.Fatal("Expected a non-empty built-in battery")
	}
	for i, rule := range threatRules {
		if rule.Category == "" {
			t.Errorf("Rule %d has no category", i)
		}
		if rule.Description == "" {
			t.Errorf("Rule %d has no description", i)
		}
		if rule.Pattern == nil {
			t.Errorf("Rule %d has no pattern", i)
		}
		if rule.Severity.String() == "unknown" {
			t.Errorf("Rule %d has invalid severity %d", i, rule.Severity)
		}
	}
}

func TestThreatRuleMatches(t *testing.T) {
	testCases := []struct {
		name         string
		content      string
		wantCategory string
		wantSeverity Severity
	}{
		{
			name:         "EvalOfDecodedPayload",
			content:      `<?php eval(base64_decode($_POST['x'])); ?>`,
			wantCategory: CategoryCodeInjection,
			wantSeverity: SeverityCritical,
		},
		{
			name:         "ShellExec",
			content:      `echo shell_exec("ls -la");`,
			wantCategory: CategoryCommandExec,
			wantSeverity: SeverityCritical,
		},
		{
			name:         "Base64Pipe",
			content:      `echo cGF5bG9hZA== | base64 -d | sh`,
			wantCategory: CategoryCommandExec,
			wantSeverity: SeverityCritical,
		},
		{
			name:         "UnionSelect",
			content:      `' UNION SELECT username, password FROM users --`,
			wantCategory: CategorySQLInjection,
			wantSeverity: SeverityHigh,
		},
		{
			name:         "ChainedTraversal",
			content:      `GET ../../../etc/passwd`,
			wantCategory: CategoryPathTraversal,
			wantSeverity: SeverityMedium,
		},
		{
			name:         "ScriptTag",
			content:      `<script>alert(1)</script>`,
			wantCategory: CategoryScriptInject,
			wantSeverity: SeverityMedium,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			found := false
			for _, rule := range threatRules {
				if !rule.Pattern.MatchString(tc.content) {
					continue
				}
				if rule.Category == tc.wantCategory && rule.Severity == tc.wantSeverity {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Expected a %s/%s rule to match %q", tc.wantCategory, tc.wantSeverity, tc.content)
			}
		})
	}
}

func TestThreatRulesIgnoreCleanText(t *testing.T) {
	clean := `2024-05-01 12:00:00 INFO worker 3 finished batch 412 in 95ms`
	for _, rule := range threatRules {
		if rule.Pattern.MatchString(clean) {
			t.Errorf("Rule %q matched clean log text", rule.Description)
		}
	}
}

func TestLuhnValid(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "VisaTestNumber", input: "4111111111111111", expected: true},
		{name: "WithSpaces", input: "4111 1111 1111 1111", expected: true},
		{name: "WithDashes", input: "4539-5787-6362-1486", expected: true},
		{name: "ChecksumOff", input: "4111111111111112", expected: false},
		{name: "TooShort", input: "411111111111", expected: false},
		{name: "NotDigits", input: "4111x1111y1111z11", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := luhnValid(tc.input); got != tc.expected {
				t.Errorf("Expected %v for %q, got %v", tc.expected, tc.input, got)
			}
		})
	}
}

func TestIPv4Valid(t *testing.T) {
	if !ipv4Valid("192.168.0.1") {
		t.Error("Expected 192.168.0.1 to be valid")
	}
	if ipv4Valid("999.1.1.1") {
		t.Error("Expected 999.1.1.1 to be invalid")
	}
}

func TestLoadRules(t *testing.T) {
	pack := `
rules:
  - category: web-shell
    severity: high
    description: in-house dropper marker
    pattern: '(?i)\bacme_dropper\b'
  - severity: medium
    description: staging hostname leak
    pattern: 'staging\.internal'
`
	rules, err := LoadRules(strings.NewReader(pack))
	if err != nil {
		t.Fatalf("LoadRules() error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(rules))
	}
	if rules[0].Category != "web-shell" || rules[0].Severity != SeverityHigh {
		t.Errorf("Unexpected first rule: %+v", rules[0])
	}
	if !rules[0].Pattern.MatchString("ACME_DROPPER") {
		t.Error("Expected first rule pattern to match")
	}
	if rules[1].Category != "custom" {
		t.Errorf("Expected default category custom, got %q", rules[1].Category)
	}
}

func TestLoadRulesErrors(t *testing.T) {
	testCases := []struct {
		name    string
		pack    string
		wantErr string
	}{
		{
			name:    "MissingPattern",
			pack:    "rules:\n  - severity: high\n    description: x\n",
			wantErr: "missing pattern",
		},
		{
			name:    "MissingDescription",
			pack:    "rules:\n  - severity: high\n    pattern: abc\n",
			wantErr: "missing description",
		},
		{
			name:    "BadSeverity",
			pack:    "rules:\n  - severity: extreme\n    description: x\n    pattern: abc\n",
			wantErr: "unknown severity",
		},
		{
			name:    "BadPattern",
			pack:    "rules:\n  - severity: high\n    description: x\n    pattern: '['\n",
			wantErr: "invalid pattern",
		},
		{
			name:    "NotYAML",
			pack:    "{{{{",
			wantErr: "parse rule pack",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadRules(strings.NewReader(tc.pack))
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}
