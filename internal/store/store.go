// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package store implements the spreadsheet-style row store on BadgerDB.
//
// The gateway's only persistence primitive is a named sheet of versioned
// JSON rows: ReadRows(sheet, filter) and WriteRow(sheet, row, expectedVersion).
// Sheets map to key prefixes ("event:", "shortlink:", "analytics:", ...) and
// every row carries an opaque version token regenerated on each write, which
// is the basis for the gateway's optimistic concurrency.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Sheet names used by the gateway.
const (
	SheetEvents    = "event"
	SheetShortLink = "shortlink"
	SheetAnalytics = "analytics"
	SheetCSRF      = "csrf"
	SheetLockout   = "lockout"
)

// Row store errors.
var (
	// ErrRowNotFound indicates the requested row does not exist.
	ErrRowNotFound = errors.New("row not found")

	// ErrRowExists indicates a create collided with an existing key.
	ErrRowExists = errors.New("row already exists")

	// ErrVersionMismatch indicates the caller's expectedVersion is stale.
	ErrVersionMismatch = errors.New("row version mismatch")
)

// Row is one versioned record in a sheet. Data is the raw JSON payload;
// Version is opaque and owned by the store.
type Row struct {
	Key     string `json:"key"`
	Version string `json:"version"`
	Data    []byte `json:"data"`
}

// Filter selects rows during a scan. A nil Filter selects everything.
type Filter func(row *Row) bool

// RowStore is the narrow persistence interface consumed by the native
// adapter and the satellite services. It is the only I/O primitive they use.
type RowStore interface {
	// ReadRow fetches a single row by key. Returns ErrRowNotFound if absent.
	ReadRow(ctx context.Context, sheet, key string) (*Row, error)

	// ReadRows scans a sheet in key order, applying filter, returning at most
	// limit rows strictly after startAfter (empty = from the beginning).
	// The boolean reports whether more rows remain.
	ReadRows(ctx context.Context, sheet string, filter Filter, limit int, startAfter string) ([]Row, bool, error)

	// WriteRow persists a row. With expectedVersion empty the row must not
	// exist (ErrRowExists otherwise); with expectedVersion set it must match
	// the stored version (ErrVersionMismatch otherwise). The stored version
	// is regenerated on every successful write and returned.
	WriteRow(ctx context.Context, sheet string, row Row, expectedVersion string) (string, error)

	// DeleteRow removes a row atomically. Returns ErrRowNotFound if absent.
	DeleteRow(ctx context.Context, sheet, key string) error

	// Close releases the underlying database.
	Close() error
}

// BadgerStore implements RowStore on a BadgerDB key-value database.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (or creates) a Badger-backed row store at path.
// An empty path opens an in-memory store, used by tests.
func Open(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already-open Badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// rowKey builds the full key for a sheet row.
func rowKey(sheet, key string) []byte {
	return []byte(sheet + ":" + key)
}

// storedRow is the persisted representation of a Row.
type storedRow struct {
	Version string          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// ReadRow fetches a single row by key.
func (s *BadgerStore) ReadRow(ctx context.Context, sheet, key string) (*Row, error) {
	var row *Row
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rowKey(sheet, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRowNotFound
		}
		if err != nil {
			return fmt.Errorf("get row: %w", err)
		}
		return item.Value(func(val []byte) error {
			row, err = decodeRow(key, val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ReadRows scans a sheet in key order with an optional filter and cursor.
func (s *BadgerStore) ReadRows(ctx context.Context, sheet string, filter Filter, limit int, startAfter string) ([]Row, bool, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []Row
	hasMore := false
	prefix := []byte(sheet + ":")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), sheet+":")
			if startAfter != "" && key <= startAfter {
				continue
			}

			var row *Row
			if err := item.Value(func(val []byte) error {
				var err error
				row, err = decodeRow(key, val)
				return err
			}); err != nil {
				return err
			}

			if filter != nil && !filter(row) {
				continue
			}
			if len(rows) == limit {
				hasMore = true
				return nil
			}
			rows = append(rows, *row)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rows, hasMore, nil
}

// WriteRow persists a row under optimistic concurrency.
func (s *BadgerStore) WriteRow(ctx context.Context, sheet string, row Row, expectedVersion string) (string, error) {
	newVersion := uuid.New().String()

	err := s.db.Update(func(txn *badger.Txn) error {
		fullKey := rowKey(sheet, row.Key)

		item, err := txn.Get(fullKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if expectedVersion != "" {
				return ErrRowNotFound
			}
		case err != nil:
			return fmt.Errorf("get row: %w", err)
		default:
			if expectedVersion == "" {
				return ErrRowExists
			}
			var current *Row
			if err := item.Value(func(val []byte) error {
				current, err = decodeRow(row.Key, val)
				return err
			}); err != nil {
				return err
			}
			if current.Version != expectedVersion {
				return ErrVersionMismatch
			}
		}

		stored := storedRow{Version: newVersion, Data: row.Data}
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal row: %w", err)
		}
		return txn.Set(fullKey, data)
	})
	if err != nil {
		return "", err
	}
	return newVersion, nil
}

// DeleteRow removes a row atomically.
func (s *BadgerStore) DeleteRow(ctx context.Context, sheet, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		fullKey := rowKey(sheet, key)
		if _, err := txn.Get(fullKey); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRowNotFound
		} else if err != nil {
			return fmt.Errorf("get row: %w", err)
		}
		return txn.Delete(fullKey)
	})
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// decodeRow unmarshals a stored value into a Row.
func decodeRow(key string, val []byte) (*Row, error) {
	var stored storedRow
	if err := json.Unmarshal(val, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal row %q: %w", key, err)
	}
	return &Row{Key: key, Version: stored.Version, Data: stored.Data}, nil
}
