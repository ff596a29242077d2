// file: internal/cache/pebble.go
// version: 1.0.0
// guid: 6b2d8f4a-0e71-4c39-a5b8-3f9c1e7d2a60

package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble/v2"
)

// Pebble key layout:
//
//	meta:<kind>:<id> -> JSON Entry
const keyPrefix = "meta:"

// PebbleBackend stores settled cache entries in a PebbleDB directory.
type PebbleBackend struct {
	db *pebble.DB
}

// OpenPebbleBackend opens or creates the cache database at path.
func OpenPebbleBackend(path string) (*PebbleBackend, error) {
	db, err := pebble.Open(path, &pebble.Options{
		FormatMajorVersion: pebble.FormatNewest,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	return &PebbleBackend{db: db}, nil
}

func storageKey(k Key) []byte { return []byte(keyPrefix + k.String()) }

// Load returns the persisted entry for key, or nil when none exists.
func (b *PebbleBackend) Load(key Key) (*Entry, error) {
	value, closer, err := b.db.Get(storageKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(value, &e); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return &e, nil
}

// Store writes a Resolved or NotFound entry. Other states are ignored.
func (b *PebbleBackend) Store(e Entry) error {
	if e.State != StateResolved && e.State != StateNotFound {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", e.Key, err)
	}
	return b.db.Set(storageKey(e.Key), data, pebble.Sync)
}

// Delete removes the entry for key.
func (b *PebbleBackend) Delete(key Key) error {
	return b.db.Delete(storageKey(key), pebble.Sync)
}

// DeleteAll removes every cache entry.
func (b *PebbleBackend) DeleteAll() error {
	return b.db.DeleteRange([]byte(keyPrefix), prefixEnd(keyPrefix), pebble.Sync)
}

// List returns every persisted entry in key order.
func (b *PebbleBackend) List() ([]Entry, error) {
	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: prefixEnd(keyPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("failed to decode cache entry %s: %w", iter.Key(), err)
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the database.
func (b *PebbleBackend) Close() error {
	return b.db.Close()
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}
