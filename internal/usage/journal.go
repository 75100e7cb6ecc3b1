// Package usage keeps a launch-count journal keyed by shortcut source
// path. The journal outlives the index snapshot: when the snapshot has to
// be rebuilt from a fresh scan, counters are reseeded from here instead of
// starting from zero.
package usage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	journalFile   = "usage.journal"
	bucketName    = "launches"
	dbPermissions = 0600
)

// Journal is the bbolt-backed launch counter store.
type Journal struct {
	db *bbolt.DB
}

// Open creates or opens the journal inside dir.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, journalFile), dbPermissions, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal bucket: %w", err)
	}

	return &Journal{db: db}, nil
}

// Increment adds one launch to the counter for sourcePath.
func (j *Journal) Increment(sourcePath string) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucketName)
		}

		var count uint64
		if val := b.Get([]byte(sourcePath)); val != nil {
			count = binary.BigEndian.Uint64(val)
		}
		count++

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count)
		return b.Put([]byte(sourcePath), buf)
	})
}

// Counts returns the launch counters for the given source paths. Paths
// never launched report zero.
func (j *Journal) Counts(sourcePaths []string) map[string]uint64 {
	counts := make(map[string]uint64)
	j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		for _, path := range sourcePaths {
			if val := b.Get([]byte(path)); val != nil {
				counts[path] = binary.BigEndian.Uint64(val)
			} else {
				counts[path] = 0
			}
		}
		return nil
	})
	return counts
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
