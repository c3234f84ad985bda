package geo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

const boundaryBucket = "boundary"

var ErrBoundaryNotCached = errors.New("boundary not cached")

type cacheEntry struct {
	Place       string    `msgpack:"place"`
	DisplayName string    `msgpack:"display_name"`
	Geometry    []byte    `msgpack:"geometry"` // WKB
	FetchedAt   time.Time `msgpack:"fetched_at"`
}

// BoundaryCache persists geocoded boundaries in bbolt so repeated
// benchmark invocations do not hit Nominatim again.
type BoundaryCache struct {
	db *bbolt.DB
}

func OpenBoundaryCache(path string) (*BoundaryCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boundary cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boundaryBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoundaryCache{db: db}, nil
}

func cacheKey(place string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(place)))
}

func (c *BoundaryCache) Get(place string) (orb.Geometry, string, error) {
	var entry cacheEntry
	err := c.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(boundaryBucket)).Get(cacheKey(place))
		if raw == nil {
			return ErrBoundaryNotCached
		}
		return msgpack.Unmarshal(raw, &entry)
	})
	if err != nil {
		return nil, "", err
	}
	geom, err := wkb.Unmarshal(entry.Geometry)
	if err != nil {
		return nil, "", fmt.Errorf("decoding cached boundary: %w", err)
	}
	return geom, entry.DisplayName, nil
}

func (c *BoundaryCache) Put(place, displayName string, geom orb.Geometry) error {
	raw, err := wkb.Marshal(geom)
	if err != nil {
		return err
	}
	entry := cacheEntry{
		Place:       place,
		DisplayName: displayName,
		Geometry:    raw,
		FetchedAt:   time.Now(),
	}
	encoded, err := msgpack.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(boundaryBucket)).Put(cacheKey(place), encoded)
	})
}

func (c *BoundaryCache) Close() error {
	return c.db.Close()
}
