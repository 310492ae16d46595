// Package history keeps a local record of finished transfer sessions in a
// bbolt database so the CLI can list what was sent, where and how.
package history

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.etcd.io/bbolt"

	"github.com/45Drives/studio-share-sub000/internal/transfer"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("transfer not found in history")

var (
	transfersBucket = []byte("transfers")
	// byID maps a session id to its key in transfersBucket.
	byIDBucket = []byte("by-id")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is a bbolt backed transfer history. Records are keyed by finish
// time so iteration runs oldest to newest.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{transfersBucket, byIDBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Save records a finished session. Saving the same id again replaces the
// earlier record.
func (s *Store) Save(info transfer.Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer: %w", err)
	}
	finished := info.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	key := recordKey(finished, info.ID)

	return s.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket(transfersBucket)
		index := tx.Bucket(byIDBucket)
		if old := index.Get([]byte(info.ID)); old != nil {
			if err := records.Delete(old); err != nil {
				return err
			}
		}
		if err := records.Put(key, data); err != nil {
			return fmt.Errorf("failed to put transfer: %w", err)
		}
		return index.Put([]byte(info.ID), key)
	})
}

// Get returns the record for id.
func (s *Store) Get(id string) (transfer.Info, error) {
	var info transfer.Info
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(byIDBucket).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		data := tx.Bucket(transfersBucket).Get(key)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &info)
	})
	return info, err
}

// Recent returns up to n records, newest first. n <= 0 returns all.
func (s *Store) Recent(n int) ([]transfer.Info, error) {
	var out []transfer.Info
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(transfersBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(out) >= n {
				break
			}
			var info transfer.Info
			if err := json.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("failed to unmarshal transfer: %w", err)
			}
			out = append(out, info)
		}
		return nil
	})
	return out, err
}

// Prune drops records that finished before cutoff and returns how many
// were removed.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket(transfersBucket)
		index := tx.Bucket(byIDBucket)
		limit := recordKey(cutoff, "")
		c := records.Cursor()
		var stale [][]byte
		for k, _ := c.First(); k != nil && string(k) < string(limit); k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := records.Delete(k); err != nil {
				return err
			}
			if err := index.Delete(k[8:]); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// recordKey is the big-endian finish time followed by the id, so keys
// sort chronologically.
func recordKey(t time.Time, id string) []byte {
	key := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(t.UnixNano()))
	copy(key[8:], id)
	return key
}
