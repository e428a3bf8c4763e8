package filewarden

import (
	"context"
	"log/slog"
	"time"
)

// SweepResult reports what a retention sweep touched.
type SweepResult struct {
	Examined int
	Deleted  int
	Retained int
}

// SweepQuarantine deletes quarantine copies older than the configured
// retention window whose record no longer claims them: releases that
// purged lazily, forced releases past retention, and orphans left by a
// crashed transition. Copies still backing a quarantined record are
// retained regardless of age.
func (s *Service) SweepQuarantine(ctx context.Context) (*SweepResult, error) {
	retention := time.Duration(s.cfg.RetentionDays) * 24 * time.Hour
	cutoff := s.now().Add(-retention)

	files, err := ListWithSelector(ctx, s.vault, s.locator.QuarantineTree(),
		And(ModifiedBefore(cutoff), Not(FuncSelector(func(f *FileInfo) bool { return f.IsDir }))), true)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Examined: len(files)}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if s.copyStillClaimed(ctx, f.Path) {
			result.Retained++
			continue
		}
		if err := s.vault.Delete(ctx, f.Path); err != nil {
			s.logger.Warn("sweep delete failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			result.Retained++
			continue
		}
		result.Deleted++
	}

	if result.Deleted > 0 {
		s.logger.Info("quarantine sweep complete",
			slog.Int("examined", result.Examined),
			slog.Int("deleted", result.Deleted))
	}
	return result, nil
}

// copyStillClaimed reports whether a record still holds this path as an
// active quarantine copy. Lookup errors keep the copy: deleting on an
// uncertain answer risks destroying the only remaining bytes.
func (s *Service) copyStillClaimed(ctx context.Context, qpath string) bool {
	records, err := s.repo.FindByMetadata(ctx, MetaQuarantinePath, qpath)
	if err != nil {
		return true
	}
	for _, rec := range records {
		if rec.Quarantined() {
			return true
		}
	}
	return false
}
