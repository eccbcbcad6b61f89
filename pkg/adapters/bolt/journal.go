// Package bolt provides an append-only action journal on top of bbolt.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/neurosurgery/actionbridge/pkg/ports"
	bolt "go.etcd.io/bbolt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Journal implements ports.Journal with one bucket per session.
// Keys are the bucket's own monotonically increasing sequence, so
// iteration order equals append order.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append stores entry at the end of its session bucket.
func (j *Journal) Append(ctx context.Context, entry ports.JournalEntry) error {
	if entry.SessionID == "" {
		return fmt.Errorf("journal entry has no session id")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(entry.SessionID))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", entry.SessionID, err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

// Entries returns the session's entries in append order.
// An unknown session yields an empty slice.
func (j *Journal) Entries(ctx context.Context, sessionID string) ([]ports.JournalEntry, error) {
	var entries []ports.JournalEntry
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(sessionID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var entry ports.JournalEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// Sessions returns the ids of all journaled sessions, sorted.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	var ids []string
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			ids = append(ids, string(name))
			return nil
		})
	})
	sort.Strings(ids)
	return ids, err
}

// Close releases the database file.
func (j *Journal) Close() error {
	return j.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
