// Package bbolt implements the ports.History interface using bbolt (embedded B+ tree).
// Each project gets its own top-level bucket. Within that bucket, a "runs"
// sub-bucket holds msgpack-encoded records keyed by a big-endian sequence, so
// cursor order is insertion order. Writes are transactional: a crash mid-write
// cannot corrupt previously committed data.
package bbolt

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/corey/temmekit/internal/ports"
)

// Bucket keys
var bucketRuns = []byte("runs")

// DefaultMaxRuns caps how many records a project keeps.
const DefaultMaxRuns = 1000

// Store implements ports.History backed by bbolt.
type Store struct {
	db      *bolt.DB
	project []byte
	maxRuns int
}

var _ ports.History = (*Store)(nil)

// NewStore opens (or creates) a bbolt database at the given path. Records are
// scoped to projectID.
func NewStore(path, projectID string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	return &Store{db: db, project: []byte(projectID), maxRuns: DefaultMaxRuns}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends rec and drops the oldest records past the cap.
func (s *Store) Record(rec ports.RunRecord) error {
	val, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		proj, err := tx.CreateBucketIfNotExists(s.project)
		if err != nil {
			return err
		}
		runs, err := proj.CreateBucketIfNotExists(bucketRuns)
		if err != nil {
			return err
		}
		seq, err := runs.NextSequence()
		if err != nil {
			return err
		}
		if err := runs.Put(seqKey(seq), val); err != nil {
			return err
		}
		return trim(runs, seq, s.maxRuns)
	})
}

// trim deletes every record older than the newest max. Sequences only grow,
// so the cutoff is exact without counting keys, which Stats does not do for
// writes still inside the transaction.
func trim(runs *bolt.Bucket, newest uint64, max int) error {
	if max <= 0 || newest <= uint64(max) {
		return nil
	}
	cutoff := newest - uint64(max)
	// Collect first: deleting under a moving cursor skips keys.
	var stale [][]byte
	c := runs.Cursor()
	for k, _ := c.First(); k != nil && keySeq(k) <= cutoff; k, _ = c.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := runs.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns up to limit records, newest first. An empty document matches
// every record. A limit of zero or less means no limit.
func (s *Store) Recent(document string, limit int) ([]ports.RunRecord, error) {
	var out []ports.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		proj := tx.Bucket(s.project)
		if proj == nil {
			return nil
		}
		runs := proj.Bucket(bucketRuns)
		if runs == nil {
			return nil
		}
		c := runs.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			rec, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("decode run %d: %w", keySeq(k), err)
			}
			if document != "" && rec.Document != document {
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Clear deletes every record of the project.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		proj := tx.Bucket(s.project)
		if proj == nil || proj.Bucket(bucketRuns) == nil {
			return nil
		}
		return proj.DeleteBucket(bucketRuns)
	})
}
