package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

const cacheBucketName = "extractions"

// Cache wraps an Extractor and remembers successful replies in BoltDB,
// so re-analysing the same document does not repeat model calls.
type Cache struct {
	next  Extractor
	model string
	db    *bbolt.DB
}

// NewCache opens (or creates) the cache database at path.
// model identifies the extractor; replies from different models never mix.
func NewCache(path string, model string, next Extractor) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &Cache{next: next, model: model, db: db}, nil
}

// Extract returns cached candidates for the page or delegates and stores the result
func (c *Cache) Extract(ctx context.Context, page Page) ([]Candidate, error) {
	key := c.key(page)

	cached, ok, err := c.get(key)
	if err != nil {
		slog.Warn("Failed to read extraction cache", "page", page.Number, "error", err)
	}
	if ok {
		return cached, nil
	}

	candidates, err := c.next.Extract(ctx, page)
	if err != nil {
		return nil, err
	}

	if err := c.put(key, candidates); err != nil {
		slog.Warn("Failed to write extraction cache", "page", page.Number, "error", err)
	}
	return candidates, nil
}

// Len returns the number of cached pages
func (c *Cache) Len() int {
	n := 0
	c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(cacheBucketName)).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the cache database and the wrapped extractor
func (c *Cache) Close() error {
	dbErr := c.db.Close()
	if err := c.next.Close(); err != nil {
		return err
	}
	return dbErr
}

func (c *Cache) key(page Page) []byte {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(page.Text))
	h.Write([]byte{0})
	h.Write(page.Image)
	return []byte(hex.EncodeToString(h.Sum(nil)))
}

func (c *Cache) get(key []byte) ([]Candidate, bool, error) {
	var candidates []Candidate
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(cacheBucketName)).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &candidates)
	})
	if err != nil {
		return nil, false, fmt.Errorf("unmarshaling candidates: %w", err)
	}
	return candidates, found, nil
}

func (c *Cache) put(key []byte, candidates []Candidate) error {
	if candidates == nil {
		candidates = []Candidate{}
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(candidates)
		if err != nil {
			return fmt.Errorf("marshaling candidates: %w", err)
		}
		return tx.Bucket([]byte(cacheBucketName)).Put(key, data)
	})
}
