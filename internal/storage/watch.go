package storage

import (
	"context"
	"fmt"
	"time"
)

// Watch polls the change log and calls fn for every change written by a
// different origin, in order. It starts from the newest row present when it
// is called and returns when ctx is done. Poll errors are passed to onErr
// (if set) and polling continues.
func (s *SQLiteStore) Watch(ctx context.Context, interval time.Duration, fn func(Change), onErr func(error)) error {
	if interval <= 0 {
		return fmt.Errorf("watch: interval must be positive, got %s", interval)
	}

	lastID, err := s.LatestChangeID(ctx)
	if err != nil {
		return err
	}
	return s.WatchFrom(ctx, lastID, interval, fn, onErr)
}

// WatchFrom is Watch starting after the change-log row lastID.
func (s *SQLiteStore) WatchFrom(ctx context.Context, lastID int64, interval time.Duration, fn func(Change), onErr func(error)) error {
	if interval <= 0 {
		return fmt.Errorf("watch: interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		changes, err := s.ChangesSince(ctx, lastID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if onErr != nil {
				onErr(err)
			}
			continue
		}
		for _, c := range changes {
			lastID = c.ID
			if c.Origin == s.origin {
				continue
			}
			fn(c)
		}
	}
}
