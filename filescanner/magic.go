package filescanner

import (
	"bytes"
	"net/http"
	"strings"
)

// MagicSignature binds a byte pattern at a fixed offset to a MIME type.
// The table below is ordered: more specific signatures come before
// shorter ones that would shadow them.
type MagicSignature struct {
	MIME   string
	Offset int
	Magic  []byte
}

// magicSignatures is the immutable detection table. Detection walks it in
// order and returns the first match, then refines container formats.
var magicSignatures = []MagicSignature{
	// Documents
	{MIME: "application/pdf", Offset: 0, Magic: []byte("%PDF-")},

	// Images
	{MIME: "image/png", Offset: 0, Magic: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{MIME: "image/jpeg", Offset: 0, Magic: []byte{0xFF, 0xD8, 0xFF}},
	{MIME: "image/gif", Offset: 0, Magic: []byte("GIF87a")},
	{MIME: "image/gif", Offset: 0, Magic: []byte("GIF89a")},
	{MIME: "image/bmp", Offset: 0, Magic: []byte("BM")},
	{MIME: "image/tiff", Offset: 0, Magic: []byte{0x49, 0x49, 0x2A, 0x00}},
	{MIME: "image/tiff", Offset: 0, Magic: []byte{0x4D, 0x4D, 0x00, 0x2A}},

	// Containers refined below (RIFF may be webp or wav, zip may be office)
	{MIME: "application/riff", Offset: 0, Magic: []byte("RIFF")},
	{MIME: "application/zip", Offset: 0, Magic: []byte{0x50, 0x4B, 0x03, 0x04}},
	{MIME: "application/zip", Offset: 0, Magic: []byte{0x50, 0x4B, 0x05, 0x06}},

	// Archives
	{MIME: "application/gzip", Offset: 0, Magic: []byte{0x1F, 0x8B}},
	{MIME: "application/x-7z-compressed", Offset: 0, Magic: []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}},
	{MIME: "application/x-rar-compressed", Offset: 0, Magic: []byte("Rar!")},
	{MIME: "application/x-tar", Offset: 257, Magic: []byte("ustar")},
	{MIME: "application/x-xz", Offset: 0, Magic: []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}},

	// Executables
	{MIME: "application/x-msdownload", Offset: 0, Magic: []byte("MZ")},
	{MIME: "application/x-elf", Offset: 0, Magic: []byte{0x7F, 0x45, 0x4C, 0x46}},
	{MIME: "application/x-mach-binary", Offset: 0, Magic: []byte{0xFE, 0xED, 0xFA, 0xCE}},
	{MIME: "application/x-mach-binary", Offset: 0, Magic: []byte{0xFE, 0xED, 0xFA, 0xCF}},
	{MIME: "application/x-mach-binary", Offset: 0, Magic: []byte{0xCF, 0xFA, 0xED, 0xFE}},
	{MIME: "application/x-mach-binary", Offset: 0, Magic: []byte{0xCE, 0xFA, 0xED, 0xFE}},
	{MIME: "application/java-vm", Offset: 0, Magic: []byte{0xCA, 0xFE, 0xBA, 0xBE}},
	{MIME: "application/wasm", Offset: 0, Magic: []byte{0x00, 0x61, 0x73, 0x6D}},

	// Media
	{MIME: "audio/mpeg", Offset: 0, Magic: []byte("ID3")},
	{MIME: "audio/ogg", Offset: 0, Magic: []byte("OggS")},
	{MIME: "video/mp4", Offset: 4, Magic: []byte("ftyp")},
}

// DetectType detects the MIME type of data from its leading bytes.
// The boolean reports whether detection is confident; an unconfident
// result must not be used for declared-type mismatch findings.
//
// Magic-table hits are always confident. Content without a known
// signature falls back to net/http sniffing, which is confident for
// everything except its application/octet-stream default.
func DetectType(data []byte) (string, bool) {
	if len(data) == 0 {
		return "application/octet-stream", false
	}

	for _, sig := range magicSignatures {
		end := sig.Offset + len(sig.Magic)
		if end > len(data) {
			continue
		}
		if bytes.Equal(data[sig.Offset:end], sig.Magic) {
			refined := refineContainer(sig.MIME, data)
			return refined, refined != "application/octet-stream"
		}
	}

	// Sniff at most 512 bytes, mirroring http.DetectContentType's window.
	window := data
	if len(window) > 512 {
		window = window[:512]
	}
	sniffed := BaseType(http.DetectContentType(window))
	if sniffed == "application/octet-stream" {
		return sniffed, false
	}
	return sniffed, true
}

// refineContainer narrows ambiguous container signatures: RIFF wraps both
// WebP and WAV, and OOXML documents are ZIP files whose first entry names
// the document type.
func refineContainer(mime string, data []byte) string {
	switch mime {
	case "application/riff":
		if len(data) >= 12 {
			switch string(data[8:12]) {
			case "WEBP":
				return "image/webp"
			case "WAVE":
				return "audio/wav"
			case "AVI ":
				return "video/x-msvideo"
			}
		}
		return "application/octet-stream"
	case "application/zip":
		head := data
		if len(head) > 4096 {
			head = head[:4096]
		}
		switch {
		case bytes.Contains(head, []byte("word/")):
			return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		case bytes.Contains(head, []byte("xl/")):
			return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		case bytes.Contains(head, []byte("ppt/")):
			return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
		}
		return mime
	}
	return mime
}

// BaseType strips parameters from a MIME type: "text/plain; charset=utf-8"
// becomes "text/plain". Comparison of declared and detected types always
// happens on base types.
func BaseType(mime string) string {
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}
