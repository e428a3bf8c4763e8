package filescanner

import "regexp"

// SignatureRule is one declared threat signature. Severity, category, and
// description are fixed at declaration; matching only ever returns this
// metadata, so detection and classification never mix.
type SignatureRule struct {
	Category    string
	Severity    Severity
	Description string
	Pattern     *regexp.Regexp
}

// Rule categories. Shared between the built-in tables and external rule
// packs so downstream alerting can group findings.
const (
	CategoryCodeInjection  = "code-injection"
	CategoryCommandExec    = "command-execution"
	CategoryWebShell       = "web-shell"
	CategoryFileInclusion  = "file-inclusion"
	CategorySQLInjection   = "sql-injection"
	CategoryScriptInject   = "script-injection"
	CategoryPathTraversal  = "path-traversal"
	CategoryEncodedPayload = "encoded-payload"
	CategoryObfuscation    = "obfuscation"
	CategoryScanLimit      = "scan-limit"
	CategoryTypeMismatch   = "type-mismatch"
	CategoryDoubleExt      = "double-extension"
)

// threatRules is the built-in signature battery the inspector runs over
// text-like content. Every rule is checked; one finding per matched rule.
var threatRules = []SignatureRule{
	{
		Category:    CategoryCommandExec,
		Severity:    SeverityCritical,
		Description: "shell command execution call",
		Pattern:     regexp.MustCompile(`(?i)\b(?:system|shell_exec|passthru|proc_open|popen)\s*\(`),
	},
	{
		Category:    CategoryCodeInjection,
		Severity:    SeverityCritical,
		Description: "eval of decoded payload",
		Pattern:     regexp.MustCompile(`(?i)\beval\s*\(\s*(?:base64_decode|gzinflate|gzuncompress|str_rot13|strrev|hex2bin)\s*\(`),
	},
	{
		Category:    CategoryCommandExec,
		Severity:    SeverityCritical,
		Description: "piped base64 decode into shell",
		Pattern:     regexp.MustCompile(`(?i)\bbase64\s+(?:-d|--decode)\b[^\n]{0,80}\|\s*(?:ba|da|z)?sh\b`),
	},
	{
		Category:    CategoryCommandExec,
		Severity:    SeverityCritical,
		Description: "encoded PowerShell command",
		Pattern:     regexp.MustCompile(`(?i)powershell(?:\.exe)?[^\n]{0,120}\s-e(?:nc|ncodedcommand)?\s+[A-Za-z0-9+/=]{16,}`),
	},
	{
		Category:    CategoryCodeInjection,
		Severity:    SeverityCritical,
		Description: "assert over request input",
		Pattern:     regexp.MustCompile(`(?i)\bassert\s*\(\s*\$_(?:POST|GET|REQUEST|COOKIE)\b`),
	},
	{
		Category:    CategoryCodeInjection,
		Severity:    SeverityHigh,
		Description: "dynamic code evaluation",
		Pattern:     regexp.MustCompile(`(?i)\beval\s*\(`),
	},
	{
		Category:    CategoryFileInclusion,
		Severity:    SeverityHigh,
		Description: "request-controlled file inclusion",
		Pattern:     regexp.MustCompile(`(?i)\b(?:include|require)(?:_once)?\s*\(?\s*\$_(?:POST|GET|REQUEST|COOKIE)\b`),
	},
	{
		Category:    CategoryWebShell,
		Severity:    SeverityHigh,
		Description: "known web shell artifact",
		Pattern:     regexp.MustCompile(`(?i)\b(?:c99shell|r57shell|b374k|wso\s*shell|FilesMan|weevely|antsword)\b`),
	},
	{
		Category:    CategorySQLInjection,
		Severity:    SeverityHigh,
		Description: "SQL union-select probe",
		Pattern:     regexp.MustCompile(`(?i)\bunion\s+(?:all\s+)?select\b`),
	},
	{
		Category:    CategorySQLInjection,
		Severity:    SeverityHigh,
		Description: "SQL tautology probe",
		Pattern:     regexp.MustCompile(`(?i)'\s*(?:or|and)\s+'?\d+'?\s*=\s*'?\d+`),
	},
	{
		Category:    CategoryObfuscation,
		Severity:    SeverityHigh,
		Description: "script assembled from escaped text",
		Pattern:     regexp.MustCompile(`(?i)\bdocument\.write\s*\(\s*unescape\s*\(`),
	},
	{
		Category:    CategoryScriptInject,
		Severity:    SeverityMedium,
		Description: "embedded script tag",
		Pattern:     regexp.MustCompile(`(?i)<script\b`),
	},
	{
		Category:    CategoryScriptInject,
		Severity:    SeverityMedium,
		Description: "javascript URI handler",
		Pattern:     regexp.MustCompile(`(?i)\bjavascript\s*:`),
	},
	{
		Category:    CategoryPathTraversal,
		Severity:    SeverityMedium,
		Description: "chained parent-directory traversal",
		Pattern:     regexp.MustCompile(`(?:\.\./|\.\.\\){3,}`),
	},
	{
		Category:    CategoryPathTraversal,
		Severity:    SeverityMedium,
		Description: "encoded traversal sequence",
		Pattern:     regexp.MustCompile(`(?i)(?:%2e%2e(?:%2f|%5c)){2,}`),
	},
	{
		Category:    CategorySQLInjection,
		Severity:    SeverityMedium,
		Description: "destructive SQL statement",
		Pattern:     regexp.MustCompile(`(?i)\b(?:drop|truncate)\s+table\b`),
	},
}

// SensitiveRule describes one informational sensitive-data pattern.
// Validate, when set, filters raw regexp matches (the card rule runs a
// Luhn check so random digit runs do not count).
type SensitiveRule struct {
	Kind     string
	Pattern  *regexp.Regexp
	Validate func(match string) bool
}

// sensitiveRules discover sensitive data in content. They never affect
// validity; hits surface as informational entries for downstream audit.
var sensitiveRules = []SensitiveRule{
	{
		Kind:    "email address",
		Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
	},
	{
		Kind:     "payment card number",
		Pattern:  regexp.MustCompile(`\b(?:\d[ \-]?){13,19}\b`),
		Validate: luhnValid,
	},
	{
		Kind:    "US social security number",
		Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		Kind:    "API credential assignment",
		Pattern: regexp.MustCompile(`(?i)\b(?:api[_\-]?key|access[_\-]?token|secret[_\-]?key|auth[_\-]?token)\b["']?\s*[:=]\s*["']?[A-Za-z0-9_\-]{16,}`),
	},
	{
		Kind:    "AWS access key",
		Pattern: regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
	},
	{
		Kind:    "Google API key",
		Pattern: regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}\b`),
	},
	{
		Kind:    "GitHub token",
		Pattern: regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
	},
	{
		Kind:    "private key material",
		Pattern: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
	},
	{
		Kind:    "inline password assignment",
		Pattern: regexp.MustCompile(`(?i)\bpassword["']?\s*[:=]\s*["']?[^\s"']{6,}`),
	},
	{
		Kind:     "IPv4 address",
		Pattern:  regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		Validate: ipv4Valid,
	},
}

// ipv4Valid rejects dotted quads with octets above 255.
func ipv4Valid(match string) bool {
	octet := 0
	digits := 0
	for i := 0; i <= len(match); i++ {
		if i == len(match) || match[i] == '.' {
			if digits == 0 || octet > 255 {
				return false
			}
			octet, digits = 0, 0
			continue
		}
		octet = octet*10 + int(match[i]-'0')
		digits++
	}
	return true
}

// luhnValid runs the Luhn checksum over the digits of match. Separator
// characters are skipped; anything else disqualifies the match.
func luhnValid(match string) bool {
	var digits []int
	for _, r := range match {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
			// separators allowed
		default:
			return false
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// TextRule is a named pattern used by the classifier, where risk comes
// from the table a rule lives in rather than a per-rule severity.
type TextRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// execIdioms are encoded shell-command idioms. Any hit classifies
// content as critical risk.
var execIdioms = []TextRule{
	{Name: "base64 decode pipeline", Pattern: regexp.MustCompile(`(?i)\bbase64\s+(?:-d|--decode)\b`)},
	{Name: "PHP command execution", Pattern: regexp.MustCompile(`(?i)\b(?:system|shell_exec|passthru|proc_open|popen)\s*\(`)},
	{Name: "quoted exec call", Pattern: regexp.MustCompile(`(?i)\bexec\s*\(\s*["']`)},
	{Name: "encoded PowerShell invocation", Pattern: regexp.MustCompile(`(?i)powershell(?:\.exe)?[^\n]{0,120}\s-e(?:nc|ncodedcommand)?\b`)},
	{Name: "shell -c spawn", Pattern: regexp.MustCompile(`(?i)\b(?:sh|bash|zsh)\s+-c\s+["']`)},
}

// obfuscationIdioms are de-obfuscation and packing constructs. Any hit
// classifies content as at least medium risk.
var obfuscationIdioms = []TextRule{
	{Name: "eval of atob payload", Pattern: regexp.MustCompile(`(?i)\beval\s*\(\s*atob\s*\(`)},
	{Name: "character-code assembly", Pattern: regexp.MustCompile(`(?i)(?:String\s*\.\s*)?fromCharCode\s*\(\s*(?:\d+\s*,\s*){8,}`)},
	{Name: "hex escape flood", Pattern: regexp.MustCompile(`(?:\\x[0-9a-fA-F]{2}){16,}`)},
	{Name: "unicode escape flood", Pattern: regexp.MustCompile(`(?i)(?:%u[0-9a-f]{4}){8,}`)},
	{Name: "packed script header", Pattern: regexp.MustCompile(`eval\(function\(p,a,c,k,e,`)},
}

// BinarySignature is a raw byte pattern the classifier searches for at
// any offset, catching polyglot files with appended payloads.
type BinarySignature struct {
	Name  string
	Magic []byte
}

// binarySignatures are executable and container formats whose presence
// inside nominally textual content classifies it as high risk.
var binarySignatures = []BinarySignature{
	{Name: "Windows executable (MZ)", Magic: []byte{0x4D, 0x5A}},
	{Name: "ELF executable", Magic: []byte{0x7F, 0x45, 0x4C, 0x46}},
	{Name: "Mach-O binary", Magic: []byte{0xFE, 0xED, 0xFA, 0xCE}},
	{Name: "Mach-O binary", Magic: []byte{0xFE, 0xED, 0xFA, 0xCF}},
	{Name: "Mach-O binary", Magic: []byte{0xCF, 0xFA, 0xED, 0xFE}},
	{Name: "Mach-O binary", Magic: []byte{0xCE, 0xFA, 0xED, 0xFE}},
	{Name: "ZIP container", Magic: []byte{0x50, 0x4B, 0x03, 0x04}},
}

// base64Run matches standalone base64 alphabet runs long enough to be
// worth decoding. Shorter runs are overwhelmingly legitimate.
var base64Run = regexp.MustCompile(`[A-Za-z0-9+/]{100,}={0,2}`)
