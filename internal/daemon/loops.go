package daemon

import (
	"context"
	"time"

	"github.com/runnerr0/sitetime/internal/storage"
)

// watchLoop syncs the tracker whenever another process writes the database.
func (s *Server) watchLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Watch.PollIntervalMS) * time.Millisecond
	err := s.store.Watch(ctx, interval,
		func(c storage.Change) {
			s.logger.Debug("external change", "change", c.ChangeID, "keys", c.Keys, "origin", c.Origin)
			if err := s.tracker.Sync(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("sync after external change failed", "error", err)
			}
		},
		func(err error) {
			s.logger.Warn("change watcher poll failed", "error", err)
		},
	)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("change watcher stopped", "error", err)
	}
}

// pruneLoop trims the change log on start and then every configured interval.
func (s *Server) pruneLoop(ctx context.Context) {
	days := s.cfg.Retention.ChangeLogDays
	hours := s.cfg.Retention.PruneIntervalHours
	if days <= 0 || hours <= 0 {
		return
	}

	prune := func() {
		cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
		n, err := s.store.PruneChanges(ctx, cutoff)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("change log prune failed", "error", err)
			}
			return
		}
		if n > 0 {
			s.logger.Info("pruned change log", "rows", n, "cutoff", cutoff.Format(time.RFC3339))
		}
	}

	prune()
	ticker := time.NewTicker(time.Duration(hours) * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
