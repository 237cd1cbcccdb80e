package database

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"teaser/internal/database"
	"teaser/internal/state/model"
)

const (
	snapshotBucket = "session:snapshots"
	modelBucket    = "model:info"
)

type FilterFn func(snapshot model.Snapshot) bool

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

type DB struct {
	sDB *database.DB
}

// Keys returns all persisted session ids.
func (db *DB) Keys() ([]string, error) {
	var keys []string
	err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(snapshotBucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})

	return keys, err
}

func (db *DB) Save(_ context.Context, snapshot model.Snapshot) error {
	bytes, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		if err := b.Put([]byte(snapshot.SessionID), bytes); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %v", err)
	}

	return nil
}

func (db *DB) SaveMany(_ context.Context, snapshots []model.Snapshot) error {
	if err := db.sDB.DB.Batch(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		for _, snapshot := range snapshots {
			bytes, err := json.Marshal(snapshot)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(snapshot.SessionID), bytes); err != nil {
				return fmt.Errorf("put to bucket error: %w", err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %v", err)
	}

	return nil
}

func (db *DB) Find(sessionID string) (model.Snapshot, error) {
	var snapshot model.Snapshot
	err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(snapshotBucket))
		if b == nil {
			return fmt.Errorf("session %s not found", sessionID)
		}
		bytes := b.Get([]byte(sessionID))
		if bytes == nil {
			return fmt.Errorf("session %s not found", sessionID)
		}
		return json.Unmarshal(bytes, &snapshot)
	})
	return snapshot, err
}

func (db *DB) FindAll(_ context.Context, filter FilterFn) ([]model.Snapshot, error) {
	var snapshots []model.Snapshot
	err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(snapshotBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var snapshot model.Snapshot
			if err := json.Unmarshal(v, &snapshot); err != nil {
				return err
			}
			if filter == nil || filter(snapshot) {
				snapshots = append(snapshots, snapshot)
			}
			return nil
		})
	})
	return snapshots, err
}

func (db *DB) Delete(_ context.Context, sessionID string) error {
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(snapshotBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(sessionID))
	}); err != nil {
		return fmt.Errorf("delete transaction error: %v", err)
	}
	return nil
}

func (db *DB) DeleteMany(_ context.Context, sessionIDs []string) error {
	if err := db.sDB.DB.Batch(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(snapshotBucket))
		if b == nil {
			return nil
		}
		for _, id := range sessionIDs {
			if err := b.Delete([]byte(id)); err != nil {
				return fmt.Errorf("delete from bucket error: %w", err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("delete transaction error: %v", err)
	}
	return nil
}

func (db *DB) Count() (int, error) {
	var count int
	err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(snapshotBucket))
		if b == nil {
			return nil
		}
		count = b.Stats().KeyN
		return nil
	})
	return count, err
}

// SaveModelInfo stores the registry row of the served model.
func (db *DB) SaveModelInfo(_ context.Context, info model.ModelInfo) error {
	bytes, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(modelBucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		return b.Put([]byte(info.ID.String()), bytes)
	}); err != nil {
		return fmt.Errorf("update transaction error: %v", err)
	}
	return nil
}

func (db *DB) ModelInfos(_ context.Context) ([]model.ModelInfo, error) {
	var infos []model.ModelInfo
	err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(modelBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var info model.ModelInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			infos = append(infos, info)
			return nil
		})
	})
	return infos, err
}
