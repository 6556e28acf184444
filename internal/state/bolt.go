package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

// Bucket names in bbolt
var (
	bucketEntries = []byte("entries")
	bucketMeta    = []byte("meta")
)

var (
	metaVersion = []byte("version")
	metaRunID   = []byte("run_id")
	metaRunAt   = []byte("run_at")
)

// BoltStore keeps the state in a bbolt database: one bucket of entries and
// one bucket of run metadata, both replaced in a single transaction.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Load reads the persisted state.
func (s *BoltStore) Load(_ context.Context) (ScanState, error) {
	st := Empty()

	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(metaVersion); v != nil {
			n, err := strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("%w: version %q", ErrCorrupt, v)
			}
			st.Version = n
		}
		st.RunID = string(meta.Get(metaRunID))
		if v := meta.Get(metaRunAt); v != nil {
			t, err := time.Parse(time.RFC3339Nano, string(v))
			if err != nil {
				return fmt.Errorf("%w: run_at %q", ErrCorrupt, v)
			}
			st.RunAt = t
		}

		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("%w: entry %q: %v", ErrCorrupt, k, err)
			}
			st.Entries[string(k)] = e
			return nil
		})
	})
	if err != nil {
		return ScanState{}, err
	}
	return st.normalize()
}

// Save replaces the persisted state in one write transaction.
func (s *BoltStore) Save(ctx context.Context, st ScanState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketEntries) != nil {
			if err := tx.DeleteBucket(bucketEntries); err != nil {
				return err
			}
		}
		entries, err := tx.CreateBucket(bucketEntries)
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(st.Entries))
		for k := range st.Entries {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			value, err := json.Marshal(st.Entries[k])
			if err != nil {
				return err
			}
			if err := entries.Put([]byte(k), value); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(metaVersion, []byte(strconv.Itoa(Version))); err != nil {
			return err
		}
		if err := meta.Put(metaRunID, []byte(st.RunID)); err != nil {
			return err
		}
		return meta.Put(metaRunAt, []byte(st.RunAt.UTC().Format(time.RFC3339Nano)))
	})
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
