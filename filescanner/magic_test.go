package filescanner

import (
	"bytes"
	"testing"
)

func TestDetectType(t *testing.T) {
	testCases := []struct {
		name      string
		data      []byte
		expected  string
		confident bool
	}{
		{
			name:      "PNG",
			data:      append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 16)...),
			expected:  "image/png",
			confident: true,
		},
		{
			name:      "PDF",
			data:      []byte("%PDF-1.7\n%stuff"),
			expected:  "application/pdf",
			confident: true,
		},
		{
			name:      "WindowsExecutable",
			data:      append([]byte("MZ"), make([]byte, 64)...),
			expected:  "application/x-msdownload",
			confident: true,
		},
		{
			name:      "ELF",
			data:      append([]byte{0x7F, 0x45, 0x4C, 0x46}, make([]byte, 16)...),
			expected:  "application/x-elf",
			confident: true,
		},
		{
			name:      "Gzip",
			data:      []byte{0x1F, 0x8B, 0x08, 0x00, 0x00},
			expected:  "application/gzip",
			confident: true,
		},
		{
			name:      "PlainTextFallback",
			data:      []byte("just an ordinary log line\n"),
			expected:  "text/plain",
			confident: true,
		},
		{
			name:      "Empty",
			data:      nil,
			expected:  "application/octet-stream",
			confident: false,
		},
		{
			name:      "UnknownBinary",
			data:      []byte{0x01, 0x02, 0x03, 0xFE, 0xFF, 0x00},
			expected:  "application/octet-stream",
			confident: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, confident := DetectType(tc.data)
			if got != tc.expected {
				t.Errorf("Expected type %q, got %q", tc.expected, got)
			}
			if confident != tc.confident {
				t.Errorf("Expected confident=%v, got %v", tc.confident, confident)
			}
		})
	}
}

func TestDetectTypeTarAtOffset(t *testing.T) {
	data := make([]byte, 300)
	copy(data[257:], "ustar")

	got, confident := DetectType(data)
	if got != "application/x-tar" {
		t.Errorf("Expected application/x-tar, got %q", got)
	}
	if !confident {
		t.Error("Expected confident detection")
	}
}

func TestDetectTypeMP4(t *testing.T) {
	data := append([]byte{0x00, 0x00, 0x00, 0x20}, []byte("ftypisom")...)

	got, _ := DetectType(data)
	if got != "video/mp4" {
		t.Errorf("Expected video/mp4, got %q", got)
	}
}

func TestRefineRIFF(t *testing.T) {
	testCases := []struct {
		name     string
		tag      string
		expected string
	}{
		{name: "WebP", tag: "WEBP", expected: "image/webp"},
		{name: "Wave", tag: "WAVE", expected: "audio/wav"},
		{name: "AVI", tag: "AVI ", expected: "video/x-msvideo"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := append([]byte("RIFF\x10\x00\x00\x00"), []byte(tc.tag)...)
			got, confident := DetectType(data)
			if got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
			if !confident {
				t.Error("Expected confident detection")
			}
		})
	}
}

func TestRefineRIFFUnknown(t *testing.T) {
	data := append([]byte("RIFF\x10\x00\x00\x00"), []byte("XXXX")...)

	got, confident := DetectType(data)
	if got != "application/octet-stream" {
		t.Errorf("Expected application/octet-stream, got %q", got)
	}
	if confident {
		t.Error("Expected unconfident detection for unknown RIFF content")
	}
}

func TestRefineZipOffice(t *testing.T) {
	data := append([]byte{0x50, 0x4B, 0x03, 0x04}, []byte("....word/document.xml")...)

	got, _ := DetectType(data)
	if got != "application/vnd.openxmlformats-officedocument.wordprocessingml.document" {
		t.Errorf("Expected docx type, got %q", got)
	}

	plain := append([]byte{0x50, 0x4B, 0x03, 0x04}, bytes.Repeat([]byte{0x00}, 32)...)
	got, _ = DetectType(plain)
	if got != "application/zip" {
		t.Errorf("Expected application/zip, got %q", got)
	}
}

func TestBaseType(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Parameters", input: "text/plain; charset=utf-8", expected: "text/plain"},
		{name: "CaseAndSpace", input: " TEXT/HTML ", expected: "text/html"},
		{name: "Bare", input: "application/json", expected: "application/json"},
		{name: "Empty", input: "", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BaseType(tc.input); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}
