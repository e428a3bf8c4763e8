package filescanner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// maxMarkupDepth bounds the tag stack so crafted deeply nested markup
// cannot grow memory without limit.
const maxMarkupDepth = 256

// maxStructureWarnings caps how many structural problems one pass
// reports. Past that the content is malformed enough.
const maxStructureWarnings = 3

// voidElements are HTML elements with no closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// CheckStructure validates internal well-formedness for structured
// content types. Problems come back as warnings; malformation is
// suspicious but not proof of malice, so it never produces findings.
// Unstructured types return nil.
func CheckStructure(data []byte, mime string) []string {
	base := BaseType(mime)
	switch {
	case base == "application/json" || strings.HasSuffix(base, "+json"):
		return checkJSON(data)
	case base == "text/html":
		return checkMarkup(data, true)
	case base == "text/xml" || base == "application/xml" || strings.HasSuffix(base, "+xml"):
		return checkMarkup(data, false)
	}
	return nil
}

func checkJSON(data []byte) []string {
	if json.Valid(data) {
		return nil
	}
	// Re-parse only to recover the decoder's error position.
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return []string{fmt.Sprintf("malformed JSON: %v", err)}
	}
	return []string{"malformed JSON: trailing data after top-level value"}
}

// checkMarkup runs a stack-based balance scan over XML or HTML tags.
// It tolerates comments, declarations, CDATA, and self-closing tags;
// in HTML mode it also skips void elements and raw-text script/style
// bodies. It is a well-formedness heuristic, not a parser.
func checkMarkup(data []byte, html bool) []string {
	var warnings []string
	warn := func(format string, args ...any) bool {
		warnings = append(warnings, fmt.Sprintf(format, args...))
		return len(warnings) >= maxStructureWarnings
	}

	var stack []string
	i := 0
	for i < len(data) {
		if data[i] != '<' {
			i++
			continue
		}
		rest := data[i:]
		switch {
		case bytes.HasPrefix(rest, []byte("<!--")):
			end := bytes.Index(rest[4:], []byte("-->"))
			if end < 0 {
				warn("unterminated comment")
				return warnings
			}
			i += 4 + end + 3
			continue
		case bytes.HasPrefix(rest, []byte("<![CDATA[")):
			end := bytes.Index(rest[9:], []byte("]]>"))
			if end < 0 {
				warn("unterminated CDATA section")
				return warnings
			}
			i += 9 + end + 3
			continue
		case bytes.HasPrefix(rest, []byte("<!")), bytes.HasPrefix(rest, []byte("<?")):
			end := indexTagEnd(rest)
			if end < 0 {
				warn("unterminated markup declaration")
				return warnings
			}
			i += end + 1
			continue
		}

		end := indexTagEnd(rest)
		if end < 0 {
			warn("unterminated tag at byte %d", i)
			return warnings
		}
		tag := rest[1:end]
		i += end + 1

		closing := false
		if len(tag) > 0 && tag[0] == '/' {
			closing = true
			tag = tag[1:]
		}
		selfClosing := false
		if len(tag) > 0 && tag[len(tag)-1] == '/' {
			selfClosing = true
			tag = tag[:len(tag)-1]
		}
		name := tagName(tag)
		if name == "" {
			// Stray angle bracket in text content.
			continue
		}

		if closing {
			if len(stack) == 0 {
				if warn("closing tag </%s> without matching opener", name) {
					return warnings
				}
				continue
			}
			if top := stack[len(stack)-1]; top != name {
				if warn("mismatched closing tag </%s>, expected </%s>", name, top) {
					return warnings
				}
				// Resynchronize on the nearest matching opener, if any.
				for j := len(stack) - 1; j >= 0; j-- {
					if stack[j] == name {
						stack = stack[:j]
						break
					}
				}
				continue
			}
			stack = stack[:len(stack)-1]
			continue
		}

		if selfClosing || (html && voidElements[name]) {
			continue
		}
		if html && (name == "script" || name == "style") {
			// Raw-text element: its body may contain anything, so jump
			// straight to the end tag.
			close := "</" + name
			idx := caseInsensitiveIndex(data[i:], []byte(close))
			if idx < 0 {
				warn("unclosed <%s> element", name)
				return warnings
			}
			i += idx + len(close)
			if gt := bytes.IndexByte(data[i:], '>'); gt >= 0 {
				i += gt + 1
			}
			continue
		}
		if len(stack) >= maxMarkupDepth {
			warn("tag nesting deeper than %d levels", maxMarkupDepth)
			return warnings
		}
		stack = append(stack, name)
	}

	if len(stack) > 0 {
		warn("%d unclosed tag(s), innermost <%s>", len(stack), stack[len(stack)-1])
	}
	return warnings
}

// indexTagEnd finds the '>' closing the tag that starts at rest[0],
// honoring quoted attribute values. Returns -1 when the tag never ends.
func indexTagEnd(rest []byte) int {
	var quote byte
	for i := 1; i < len(rest); i++ {
		c := rest[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '>':
			return i
		}
	}
	return -1
}

// tagName extracts the leading element name from tag content and
// lowercases it. Content that does not start like an element name
// yields "".
func tagName(tag []byte) string {
	if len(tag) == 0 {
		return ""
	}
	c := tag[0]
	if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_') {
		return ""
	}
	end := 1
	for end < len(tag) {
		c := tag[end]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == ':' || c == '_' || c == '-' || c == '.' {
			end++
			continue
		}
		break
	}
	return strings.ToLower(string(tag[:end]))
}

// caseInsensitiveIndex finds needle (lowercase ASCII) in data ignoring
// ASCII case, returning the first index or -1.
func caseInsensitiveIndex(data, needle []byte) int {
	if len(needle) == 0 || len(data) < len(needle) {
		return -1
	}
	for i := 0; i+len(needle) <= len(data); i++ {
		j := 0
		for j < len(needle) {
			c := data[i+j]
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			if c != needle[j] {
				break
			}
			j++
		}
		if j == len(needle) {
			return i
		}
	}
	return -1
}
