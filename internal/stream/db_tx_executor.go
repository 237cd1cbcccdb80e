package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"teaser/internal/logging"
	stateDb "teaser/internal/state/database"
	"teaser/internal/state/model"
)

type saveSnapshotsFn func(context.Context, []model.Snapshot) error

func newDBTxExecutor(db *stateDb.DB, opts dbTxExecutorOptions, shutdownCh chan<- error) *dbTxExecutor {
	if opts.saveFn == nil {
		opts.saveFn = db.SaveMany
	}
	return &dbTxExecutor{stateDB: db, opts: opts, shutdownCh: shutdownCh}
}

type dbTxExecutorOptions struct {
	flushSize int
	flushTime time.Duration
	saveFn    saveSnapshotsFn
}

// dbTxExecutor accumulates session snapshots and inserts them in bulk
// into persistent storage.
type dbTxExecutor struct {
	mtx sync.Mutex

	opts    dbTxExecutorOptions
	stateDB *stateDb.DB

	buf        []model.Snapshot
	shutdownCh chan<- error
}

// shutdown urgently flushes the buffer to storage.
func (tx *dbTxExecutor) shutdown() error {
	tx.mtx.Lock()
	defer tx.mtx.Unlock()
	if err := tx.opts.saveFn(context.Background(), tx.buf); err != nil {
		return fmt.Errorf("txExecutor: save many operation failed: %v", err)
	}
	tx.buf = tx.buf[:0]
	return nil
}

// write adds a snapshot to the buffer, triggering a bulk save when the
// buffer is full. A later snapshot of the same session supersedes the
// buffered one.
func (tx *dbTxExecutor) write(ctx context.Context, snapshot model.Snapshot) {
	tx.mtx.Lock()
	if tx.buf == nil {
		tx.buf = []model.Snapshot{}
	}
	replaced := false
	for i := range tx.buf {
		if tx.buf[i].SessionID == snapshot.SessionID {
			tx.buf[i] = snapshot
			replaced = true
			break
		}
	}
	if !replaced {
		tx.buf = append(tx.buf, snapshot)
	}
	bufLen := len(tx.buf)
	tx.mtx.Unlock()

	if bufLen >= tx.opts.flushSize {
		go tx.bulkSave(ctx)
	}
}

func (tx *dbTxExecutor) bulkSave(ctx context.Context) {
	logger := logging.FromContext(ctx)

	tx.mtx.Lock()
	tmpBuf := make([]model.Snapshot, len(tx.buf))
	copy(tmpBuf, tx.buf)
	tx.buf = tx.buf[:0]
	tx.mtx.Unlock()

	if err := tx.opts.saveFn(context.Background(), tmpBuf); err != nil {
		logger.Errorf("txExecutor: save many operation failed: %v", err)
	}
}

// flusher periodically drains the buffer to the database.
func (tx *dbTxExecutor) flusher(ctx context.Context) {
	defer func() {
		tx.shutdownCh <- tx.shutdown()
	}()
	ticker := time.NewTicker(tx.opts.flushTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tx.bulkSave(ctx)
		case <-ctx.Done():
			return
		}
	}
}
