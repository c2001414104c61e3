package buffer

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	itemsBucket = []byte("spawn_items")
	indexBucket = []byte("spawn_index")
)

// ErrMissingID is returned when an item without an id is enqueued.
var ErrMissingID = errors.New("buffer: item id is required")

// Store persists pending spawns in a BoltDB file so they survive restarts. Items are kept
// in enqueue order and indexed by id, so the same spawn is never buffered twice.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open initializes the BoltDB file and ensures the buckets exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(itemsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Enqueue stores item unless an item with the same id is already pending. added reports
// whether a new entry was written.
func (s *Store) Enqueue(item Item) (added bool, err error) {
	if s == nil || s.db == nil {
		return false, bolt.ErrDatabaseNotOpen
	}
	if item.ID == "" {
		return false, ErrMissingID
	}
	item.normalize(s.now())
	key := itemKey(item)

	payload, err := json.Marshal(item)
	if err != nil {
		return false, err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(indexBucket)
		if index.Get([]byte(item.ID)) != nil {
			return nil
		}
		if err := tx.Bucket(itemsBucket).Put(key, payload); err != nil {
			return err
		}
		added = true
		return index.Put([]byte(item.ID), key)
	})
	return added, err
}

// Peek returns up to limit of the oldest items without removing them.
func (s *Store) Peek(limit int) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}

	var items []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(itemsBucket).Cursor()
		for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// Remove deletes the item with the given id. Removing an unknown id is a no-op.
func (s *Store) Remove(id string) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(indexBucket)
		key := index.Get([]byte(id))
		if key == nil {
			return nil
		}
		if err := tx.Bucket(itemsBucket).Delete(key); err != nil {
			return err
		}
		return index.Delete([]byte(id))
	})
}

// Retry records a failed attempt and moves the item to the back of the queue.
func (s *Store) Retry(item Item, cause error) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	item.Attempts++
	if cause != nil {
		item.LastError = cause.Error()
	}
	item.EnqueuedAt = s.now()
	key := itemKey(item)

	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(indexBucket)
		items := tx.Bucket(itemsBucket)
		if old := index.Get([]byte(item.ID)); old != nil {
			if err := items.Delete(old); err != nil {
				return err
			}
		}
		if err := items.Put(key, payload); err != nil {
			return err
		}
		return index.Put([]byte(item.ID), key)
	})
}

// Size returns the number of pending items.
func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(itemsBucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
