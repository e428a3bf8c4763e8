// Package filescanner implements the detection core of filewarden: filename
// sanitization, content inspection, and threat classification over untrusted
// byte buffers.
//
// Everything in this package is pure computation. No file, network, or clock
// I/O happens here (the sanitizer's generated-name fallback reads a package
// clock that tests may pin); callers feed bytes in and get verdicts out,
// which makes the detectors trivially testable and safe to run concurrently.
//
// The three detectors layer as follows:
//
//   - Sanitizer normalizes untrusted filenames and flags dangerous
//     double extensions.
//   - Inspector performs the first pass: magic-byte type detection,
//     pattern-based threat signatures, base64 and entropy heuristics,
//     sensitive-data discovery, and structural well-formedness checks,
//     producing a Report of severity-tagged findings.
//   - Classifier performs a second, independent pass oriented at binary
//     and obfuscation payloads, producing a ThreatVerdict. It fails
//     closed: content it cannot analyze is reported as suspicious.
//
// Severity semantics: critical and high findings make content invalid,
// medium findings flag it as suspicious without blocking it. All rule
// tables are immutable package data; severities are declared per rule,
// never derived at match time.
package filescanner
