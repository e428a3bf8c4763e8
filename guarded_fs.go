package filewarden

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/gobeaver/filewarden/filescanner"
)

// GuardedFS wraps a FileSystem so every Write is inspected before any
// byte reaches the backend. Collaborators that bypass Service (bulk
// importers, migration jobs) get the same enforcement as the ingest
// pipeline: blocking findings or a high-risk classification refuse the
// write with a *filescanner.ThreatDetectedError.
//
// Content is buffered for inspection, bounded by the inspector's size
// limit, so this wrapper is for upload-sized payloads, not bulk streams.
type GuardedFS struct {
	fs         FileSystem
	inspector  *filescanner.Inspector
	classifier *filescanner.Classifier
}

// NewGuardedFS creates a write-inspecting wrapper. Nil inspector or
// classifier fall back to the package defaults.
func NewGuardedFS(fs FileSystem, inspector *filescanner.Inspector, classifier *filescanner.Classifier) *GuardedFS {
	if inspector == nil {
		inspector = filescanner.NewInspector()
	}
	if classifier == nil {
		classifier = filescanner.NewClassifier()
	}
	return &GuardedFS{fs: fs, inspector: inspector, classifier: classifier}
}

// Unwrap returns the underlying FileSystem.
func (g *GuardedFS) Unwrap() FileSystem {
	return g.fs
}

// Write inspects the content and refuses it when any blocking finding or
// high-risk classification surfaces.
func (g *GuardedFS) Write(ctx context.Context, p string, content io.Reader, opts ...Option) error {
	options := ProcessOptions(opts...)

	data, err := io.ReadAll(content)
	if err != nil {
		return &PathError{Op: "write", Path: p, Err: err}
	}

	report, err := g.inspector.Inspect(data, path.Base(p), options.ContentType)
	if err != nil {
		return &PathError{Op: "write", Path: p, Err: err}
	}
	if report.MaxSeverity().Blocking() {
		threats := make([]string, 0, len(report.Findings))
		for _, f := range report.Findings {
			if f.Severity.Blocking() {
				threats = append(threats, f.String())
			}
		}
		return &filescanner.ThreatDetectedError{Risk: filescanner.RiskHigh, Threats: threats}
	}

	verdict := g.classifier.Classify(data, path.Base(p), options.ContentType)
	if verdict.Risk >= filescanner.RiskHigh {
		return &filescanner.ThreatDetectedError{Risk: verdict.Risk, Threats: verdict.Threats}
	}

	return g.fs.Write(ctx, p, bytes.NewReader(data), opts...)
}

func (g *GuardedFS) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	return g.fs.Read(ctx, p)
}

func (g *GuardedFS) ReadAll(ctx context.Context, p string) ([]byte, error) {
	return g.fs.ReadAll(ctx, p)
}

func (g *GuardedFS) Delete(ctx context.Context, p string) error {
	return g.fs.Delete(ctx, p)
}

func (g *GuardedFS) FileExists(ctx context.Context, p string) (bool, error) {
	return g.fs.FileExists(ctx, p)
}

func (g *GuardedFS) DirExists(ctx context.Context, p string) (bool, error) {
	return g.fs.DirExists(ctx, p)
}

func (g *GuardedFS) Stat(ctx context.Context, p string) (*FileInfo, error) {
	return g.fs.Stat(ctx, p)
}

func (g *GuardedFS) ListContents(ctx context.Context, p string, recursive bool) ([]FileInfo, error) {
	return g.fs.ListContents(ctx, p, recursive)
}

func (g *GuardedFS) CreateDir(ctx context.Context, p string) error {
	return g.fs.CreateDir(ctx, p)
}

func (g *GuardedFS) DeleteDir(ctx context.Context, p string) error {
	return g.fs.DeleteDir(ctx, p)
}

var _ FileSystem = (*GuardedFS)(nil)
