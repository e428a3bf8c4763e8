package filescanner

import "testing"

func TestGuessType(t *testing.T) {
	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

	testCases := []struct {
		name     string
		filename string
		data     []byte
		expected string
	}{
		{name: "KnownExtension", filename: "crash.log", data: nil, expected: "text/plain"},
		{name: "ExtensionWins", filename: "photo.jpg", data: pngHeader, expected: "image/jpeg"},
		{name: "ContentFallback", filename: "snapshot.data", data: pngHeader, expected: "image/png"},
		{name: "NothingKnown", filename: "blob.data", data: nil, expected: "application/octet-stream"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := GuessType(tc.filename, tc.data); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestIsTextualType(t *testing.T) {
	testCases := []struct {
		name     string
		mime     string
		expected bool
	}{
		{name: "TextPlain", mime: "text/plain", expected: true},
		{name: "TextWithParams", mime: "text/html; charset=utf-8", expected: true},
		{name: "JSON", mime: "application/json", expected: true},
		{name: "SVG", mime: "image/svg+xml", expected: true},
		{name: "JSONSuffix", mime: "application/problem+json", expected: true},
		{name: "PNG", mime: "image/png", expected: false},
		{name: "OctetStream", mime: "application/octet-stream", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTextualType(tc.mime); got != tc.expected {
				t.Errorf("Expected %v for %q, got %v", tc.expected, tc.mime, got)
			}
		})
	}
}

func TestIsExecutableType(t *testing.T) {
	if !IsExecutableType("application/x-msdownload") {
		t.Error("Expected x-msdownload to be executable")
	}
	if !IsExecutableType("application/x-elf") {
		t.Error("Expected x-elf to be executable")
	}
	if IsExecutableType("text/plain") {
		t.Error("Expected text/plain to not be executable")
	}
}

func TestMatchesAccepted(t *testing.T) {
	testCases := []struct {
		name     string
		mime     string
		accepted []string
		expected bool
	}{
		{name: "EmptyListAcceptsAll", mime: "application/x-msdownload", accepted: nil, expected: true},
		{name: "ExactMatch", mime: "application/pdf", accepted: []string{"application/pdf"}, expected: true},
		{name: "Wildcard", mime: "image/png", accepted: []string{"image/*"}, expected: true},
		{name: "Universal", mime: "video/mp4", accepted: []string{"*/*"}, expected: true},
		{name: "CaseInsensitive", mime: "IMAGE/PNG", accepted: []string{"image/*"}, expected: true},
		{name: "Miss", mime: "application/zip", accepted: []string{"image/*", "text/plain"}, expected: false},
		{name: "ParamsIgnored", mime: "text/plain; charset=utf-8", accepted: []string{"text/plain"}, expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchesAccepted(tc.mime, tc.accepted); got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}
