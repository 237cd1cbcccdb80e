package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	stateDb "teaser/internal/state/database"
	"teaser/internal/state/model"
)

func TestRebuildSize(t *testing.T) {
	tests := []struct {
		name              string
		maxStoredSessions int
		snapshots         []model.Snapshot
		expectedErr       error
		expectedDeleted   []string
	}{
		{
			name:              "positive_rebuild_size",
			maxStoredSessions: 2,
			snapshots: []model.Snapshot{
				{SessionID: "session-1", UpdatedAt: time.Now().Add(-3 * time.Hour)},
				{SessionID: "session-2", UpdatedAt: time.Now().Add(-2 * time.Hour)},
				{SessionID: "session-3", UpdatedAt: time.Now().Add(-1 * time.Hour)},
				{SessionID: "session-4", UpdatedAt: time.Now()},
			},
			expectedDeleted: []string{"session-1", "session-2"},
		},
		{
			name:              "under_cap",
			maxStoredSessions: 4,
			snapshots: []model.Snapshot{
				{SessionID: "session-1", UpdatedAt: time.Now()},
			},
			expectedDeleted: nil,
		},
		{
			name:              "negative_rebuild_size",
			maxStoredSessions: 1,
			snapshots: []model.Snapshot{
				{SessionID: "session-1", UpdatedAt: time.Now()},
				{SessionID: "session-2", UpdatedAt: time.Now()},
			},
			expectedErr: errors.New("test error"),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var deleted []string
			scheduler := &dbScheduler{opts: dbSchedulerConfig{maxStoredSessions: test.maxStoredSessions}}
			err := scheduler.rebuildSize(
				func(ctx context.Context, fn stateDb.FilterFn) ([]model.Snapshot, error) {
					return test.snapshots, nil
				},
				func(ctx context.Context, ids []string) error {
					deleted = ids
					return test.expectedErr
				},
			)
			if test.expectedErr != nil {
				if err == nil {
					t.Errorf("calling the rebuildSize method, err got: nil, expected: %v", test.expectedErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("calling the rebuildSize method, err got: %v, expected: nil", err)
			}
			if len(deleted) != len(test.expectedDeleted) {
				t.Fatalf("deleted sessions got: %v, expected: %v", deleted, test.expectedDeleted)
			}
			for i := range deleted {
				if deleted[i] != test.expectedDeleted[i] {
					t.Errorf("the oldest sessions must be deleted first, got: %v, expected: %v",
						deleted, test.expectedDeleted)
				}
			}
		})
	}
}

func TestRebuildIdle(t *testing.T) {
	snapshots := []model.Snapshot{
		{SessionID: "session-idle", UpdatedAt: time.Now().Add(-2 * time.Hour)},
		{SessionID: "session-live", UpdatedAt: time.Now()},
	}

	var deleted []string
	scheduler := &dbScheduler{opts: dbSchedulerConfig{maxSessionIdleTime: time.Hour}}
	err := scheduler.rebuildIdle(
		func(ctx context.Context, fn stateDb.FilterFn) ([]model.Snapshot, error) {
			var idle []model.Snapshot
			for _, s := range snapshots {
				if fn(s) {
					idle = append(idle, s)
				}
			}
			return idle, nil
		},
		func(ctx context.Context, ids []string) error {
			deleted = ids
			return nil
		},
	)
	if err != nil {
		t.Fatalf("calling the rebuildIdle method, err got: %v, expected: nil", err)
	}
	if len(deleted) != 1 || deleted[0] != "session-idle" {
		t.Errorf("deleted sessions got: %v, expected: [session-idle]", deleted)
	}
}
