package filewarden

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gobeaver/filewarden/filescanner"
)

// ScanOutcome is the per-file result of a batch scan. Err carries a
// failure scoped to this file only; the other files of the batch are
// unaffected by it.
type ScanOutcome struct {
	FileID      string
	Verdict     *filescanner.ThreatVerdict
	Quarantined bool
	Err         error
}

// ScanSession scans every stored file tagged with the given upload
// session id, bounded by the configured concurrency, and returns one
// outcome per file in repository order. With autoQuarantine set, files
// whose verdict is malicious are isolated as part of the scan.
//
// A failure on one file (unreadable content, classification panic, a
// failed isolation) lands in that file's outcome. Only the initial
// repository listing can fail the call as a whole.
func (s *Service) ScanSession(ctx context.Context, sessionID string, autoQuarantine bool) ([]ScanOutcome, error) {
	records, err := s.repo.FindByMetadata(ctx, MetaSessionID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing session %s: %w", sessionID, err)
	}

	outcomes := make([]ScanOutcome, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.scanConcurrency())

	for i, rec := range records {
		g.Go(func() error {
			outcomes[i] = s.scanOne(gctx, rec, autoQuarantine)
			return nil
		})
	}
	// Workers never return errors; per-file failures stay in outcomes.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}

	s.logger.Info("session scan complete",
		slog.String("session_id", sessionID),
		slog.Int("files", len(outcomes)),
		slog.Int("quarantined", countQuarantined(outcomes)))
	return outcomes, nil
}

// scanOne classifies a single stored file under the per-file timeout and,
// when asked, isolates it on a malicious verdict.
func (s *Service) scanOne(ctx context.Context, rec *StoredFileRecord, autoQuarantine bool) ScanOutcome {
	out := ScanOutcome{FileID: rec.ID}

	scanCtx := ctx
	if s.cfg.ScanTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.ScanTimeoutSeconds)*time.Second)
		defer cancel()
	}

	if rec.Quarantined() {
		// Already isolated; report the stored verdict without touching it.
		if sr := rec.ScanResult(); sr != nil {
			out.Verdict = &sr.Verdict
		}
		out.Quarantined = true
		return out
	}

	data, err := s.fs.ReadAll(scanCtx, rec.Path)
	if err != nil {
		out.Err = fmt.Errorf("reading %s: %w", rec.Path, err)
		return out
	}

	filename := rec.meta(MetaOriginalFilename)
	if filename == "" {
		filename = path.Base(rec.Path)
	}
	verdict := s.classify(data, filename, rec.ContentType)
	out.Verdict = verdict

	rec.SetScanResult(verdict, s.now())
	if err := s.repo.UpdateFile(scanCtx, rec); err != nil {
		out.Err = fmt.Errorf("persisting verdict for %s: %w", rec.ID, err)
		return out
	}

	if verdict.Malicious && autoQuarantine {
		if err := s.quarantine.Isolate(scanCtx, rec.ID); err != nil {
			out.Err = err
			return out
		}
		out.Quarantined = true
	}
	return out
}

func countQuarantined(outcomes []ScanOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Quarantined {
			n++
		}
	}
	return n
}
