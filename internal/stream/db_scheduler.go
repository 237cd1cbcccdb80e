package stream

import (
	"context"
	"fmt"
	"sort"
	"time"

	"teaser/internal/logging"
	stateDb "teaser/internal/state/database"
	"teaser/internal/state/model"
)

type dbSchedulerConfig struct {
	maxStoredSessions  int
	maxSessionIdleTime time.Duration
	rebuildDBTime      time.Duration
}

func newDBScheduler(db *stateDb.DB, config dbSchedulerConfig) *dbScheduler {
	return &dbScheduler{stateDB: db, opts: config}
}

// dbScheduler keeps the snapshot store bounded: idle sessions are
// deleted by age and the total count is capped by dropping the oldest.
type dbScheduler struct {
	opts    dbSchedulerConfig
	stateDB *stateDb.DB
}

type fetchSnapshotsFn func(context.Context, stateDb.FilterFn) ([]model.Snapshot, error)

type deleteSessionsFn func(context.Context, []string) error

func (s *dbScheduler) rebuildIdle(fetchFn fetchSnapshotsFn, deleteFn deleteSessionsFn) error {
	snapshots, err := fetchFn(context.Background(), func(snapshot model.Snapshot) bool {
		return time.Since(snapshot.UpdatedAt) > s.opts.maxSessionIdleTime
	})
	if err != nil {
		return fmt.Errorf("unable to fetch idle snapshots: %v", err)
	}
	if len(snapshots) == 0 {
		return nil
	}
	ids := make([]string, len(snapshots))
	for i := range snapshots {
		ids[i] = snapshots[i].SessionID
	}
	if err := deleteFn(context.Background(), ids); err != nil {
		return fmt.Errorf("unable to delete idle sessions: %v", err)
	}
	return nil
}

func (s *dbScheduler) rebuildSize(fetchFn fetchSnapshotsFn, deleteFn deleteSessionsFn) error {
	snapshots, err := fetchFn(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("unable to fetch snapshots: %v", err)
	}
	if len(snapshots) <= s.opts.maxStoredSessions {
		return nil
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].UpdatedAt.UnixNano() < snapshots[j].UpdatedAt.UnixNano()
	})

	over := snapshots[:len(snapshots)-s.opts.maxStoredSessions]
	ids := make([]string, len(over))
	for i := range over {
		ids[i] = over[i].SessionID
	}
	if err := deleteFn(context.Background(), ids); err != nil {
		return fmt.Errorf("unable to delete oversize sessions: %v", err)
	}
	return nil
}

func (s *dbScheduler) schedule(ctx context.Context) {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(s.opts.rebuildDBTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.opts.maxStoredSessions > 0 {
				if err := s.rebuildSize(s.stateDB.FindAll, s.stateDB.DeleteMany); err != nil {
					logger.Errorf("unable db rebuild size: %v", err)
				}
			}
			if s.opts.maxSessionIdleTime > 0 {
				if err := s.rebuildIdle(s.stateDB.FindAll, s.stateDB.DeleteMany); err != nil {
					logger.Errorf("unable db rebuild idle: %v", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
