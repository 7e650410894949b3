package database

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/wizzomafizzo/mfctext/pkg/config"
	bolt "go.etcd.io/bbolt"
)

const (
	BucketHistory = "history"
	maxHistory    = 25
)

const (
	ActionRead  = "read"
	ActionWrite = "write"
)

func DbFile(cfg *config.UserConfig) string {
	return filepath.Join(config.DataDir(cfg), config.DbFilename)
}

// Open the db at path. If the database does not exist it will be created
// and the buckets will be initialized.
func open(path string, options *bolt.Options) (*bolt.DB, error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, options)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(txn *bolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists([]byte(BucketHistory))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

type Database struct {
	bdb *bolt.DB
}

func Open(path string) (*Database, error) {
	db, err := open(path, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	return &Database{bdb: db}, nil
}

func (d *Database) Close() error {
	return d.bdb.Close()
}

type HistoryEntry struct {
	Time    time.Time `json:"time"`
	Action  string    `json:"action"`
	Source  string    `json:"source"`
	Type    string    `json:"type"`
	UID     string    `json:"uid"`
	Text    string    `json:"text"`
	Data    string    `json:"data"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// historyKey orders entries by insertion, timestamps alone can collide.
func historyKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (d *Database) AddHistory(entry HistoryEntry) error {
	return d.bdb.Update(func(txn *bolt.Tx) error {
		b := txn.Bucket([]byte(BucketHistory))

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		return b.Put(historyKey(seq), data)
	})
}

// GetHistory returns the most recent entries, newest first.
func (d *Database) GetHistory() ([]HistoryEntry, error) {
	entries := make([]HistoryEntry, 0, maxHistory)

	err := d.bdb.View(func(txn *bolt.Tx) error {
		b := txn.Bucket([]byte(BucketHistory))

		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(entries) < maxHistory; k, v = c.Prev() {
			var entry HistoryEntry
			err := json.Unmarshal(v, &entry)
			if err != nil {
				return err
			}

			entries = append(entries, entry)
		}

		return nil
	})

	return entries, err
}

// PruneHistory deletes all but the newest keep entries.
func (d *Database) PruneHistory(keep int) (int, error) {
	deleted := 0

	err := d.bdb.Update(func(txn *bolt.Tx) error {
		b := txn.Bucket([]byte(BucketHistory))

		var stale [][]byte
		seen := 0
		c := b.Cursor()
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			seen++
			if seen > keep {
				stale = append(stale, append([]byte{}, k...))
			}
		}

		for _, k := range stale {
			err := b.Delete(k)
			if err != nil {
				return err
			}
			deleted++
		}

		return nil
	})

	return deleted, err
}
