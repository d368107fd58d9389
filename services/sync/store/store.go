// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists versioned goal-graph documents in BadgerDB.
//
// Key layout:
//
//	doc:<owner>:<docId>                current full snapshot (JSON)
//	graph:<docId>                      legacy snapshot shape, pre owner scoping
//	hist:<owner>:<docId>:<version>     TTL-bounded history copy per save
//	oplog:<owner>:<docId>              bounded operation log (JSON array)
//
// Writes are full-snapshot, last-write-wins; there is no compare-and-swap
// on the version field. Correctness under concurrent writers depends on
// the engine serializing applies per document.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/questgraph/services/sync/datatypes"
	"github.com/AleutianAI/questgraph/services/sync/storage/badger"
)

var (
	// ErrUnavailable wraps persistence-layer failures. The queue path
	// retries these with backoff; the live path fails the command.
	ErrUnavailable = errors.New("graph store unavailable")

	// ErrCorrupted indicates a stored snapshot failed to decode.
	ErrCorrupted = errors.New("stored document corrupted")
)

// MaxOpLogEntries bounds the per-document operation log.
const MaxOpLogEntries = 100

// OpLogEntry records one applied command for inspection and debugging.
type OpLogEntry struct {
	Command      datatypes.Command `json:"command"`
	ConnectionID string            `json:"connectionId,omitempty"`
	Version      int64             `json:"version"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Config holds GraphStore settings.
type Config struct {
	// HistoryTTL bounds how long per-save history snapshots are kept.
	HistoryTTL time.Duration

	// Logger for store operations. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig keeps history snapshots for 24 hours.
func DefaultConfig() Config {
	return Config{HistoryTTL: 24 * time.Hour}
}

// GraphStore persists and loads one versioned document per
// (owner, docId) scope.
//
// Thread Safety: safe for concurrent use. Individual Load/Save calls are
// transactional, but read-modify-write sequences across them are not;
// the engine's per-document locks provide that serialization.
type GraphStore struct {
	db         *badger.DB
	historyTTL time.Duration
	logger     *slog.Logger
}

// New creates a GraphStore over an opened database.
func New(db *badger.DB, cfg Config) *GraphStore {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.HistoryTTL
	if ttl <= 0 {
		ttl = DefaultConfig().HistoryTTL
	}
	return &GraphStore{db: db, historyTTL: ttl, logger: logger}
}

func docKey(owner, docID string) []byte {
	return []byte(fmt.Sprintf("doc:%s:%s", owner, docID))
}

// legacyKey is the pre-owner-scoping shape. Documents found under it are
// served as-is and rewritten under the current key on next save.
func legacyKey(docID string) []byte {
	return []byte(fmt.Sprintf("graph:%s", docID))
}

func historyKey(owner, docID string, version int64) []byte {
	return []byte(fmt.Sprintf("hist:%s:%s:%012d", owner, docID, version))
}

func opLogKey(owner, docID string) []byte {
	return []byte(fmt.Sprintf("oplog:%s:%s", owner, docID))
}

// Load returns the persisted document for (owner, docId), falling back
// to the legacy key shape, or a fresh empty document at version 0 when
// neither exists. Documents are created lazily on first read.
func (s *GraphStore) Load(ctx context.Context, owner, docID string) (*datatypes.Document, error) {
	var doc *datatypes.Document
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		raw, err := readValue(txn, docKey(owner, docID))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			raw, err = readValue(txn, legacyKey(docID))
			if errors.Is(err, dgbadger.ErrKeyNotFound) {
				return nil
			}
			if err == nil {
				s.logger.Info("serving document from legacy key",
					slog.String("doc_id", docID), slog.String("owner", owner))
			}
		}
		if err != nil {
			return err
		}
		doc = &datatypes.Document{}
		if uerr := json.Unmarshal(raw, doc); uerr != nil {
			return fmt.Errorf("%w: %v", ErrCorrupted, uerr)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCorrupted) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load %s/%s: %v", ErrUnavailable, owner, docID, err)
	}
	if doc == nil {
		doc = datatypes.NewDocument()
	}
	return doc, nil
}

// Save increments the version, stamps the update time, and writes the
// full snapshot plus a TTL-bounded history copy in one transaction. Any
// legacy-key copy of the document is removed in the same transaction,
// completing the migration started by Load. Returns the new version.
func (s *GraphStore) Save(ctx context.Context, owner, docID string, doc *datatypes.Document) (int64, error) {
	doc.Version++
	doc.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(doc)
	if err != nil {
		doc.Version--
		return 0, fmt.Errorf("encode document %s/%s: %w", owner, docID, err)
	}

	err = s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if err := txn.Set(docKey(owner, docID), raw); err != nil {
			return err
		}
		hist := dgbadger.NewEntry(historyKey(owner, docID, doc.Version), raw).
			WithTTL(s.historyTTL)
		if err := txn.SetEntry(hist); err != nil {
			return err
		}
		// Deleting an absent key is a no-op, so the legacy cleanup runs
		// unconditionally.
		return txn.Delete(legacyKey(docID))
	})
	if err != nil {
		doc.Version--
		return 0, fmt.Errorf("%w: save %s/%s: %v", ErrUnavailable, owner, docID, err)
	}
	return doc.Version, nil
}

// Version returns the persisted version for (owner, docId), or 0 when no
// document exists yet.
func (s *GraphStore) Version(ctx context.Context, owner, docID string) (int64, error) {
	doc, err := s.Load(ctx, owner, docID)
	if err != nil {
		return 0, err
	}
	return doc.Version, nil
}

// AppendOpLog appends one entry to the per-document operation log,
// dropping the oldest entries beyond MaxOpLogEntries.
func (s *GraphStore) AppendOpLog(ctx context.Context, owner, docID string, entry OpLogEntry) error {
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		var entries []OpLogEntry
		raw, err := readValue(txn, opLogKey(owner, docID))
		if err != nil && !errors.Is(err, dgbadger.ErrKeyNotFound) {
			return err
		}
		if err == nil {
			if uerr := json.Unmarshal(raw, &entries); uerr != nil {
				// A decode failure loses inspection history, not document
				// state. Start a fresh log rather than wedging applies.
				s.logger.Warn("resetting corrupted operation log",
					slog.String("doc_id", docID), slog.String("error", uerr.Error()))
				entries = nil
			}
		}
		entries = append(entries, entry)
		if len(entries) > MaxOpLogEntries {
			entries = entries[len(entries)-MaxOpLogEntries:]
		}
		out, merr := json.Marshal(entries)
		if merr != nil {
			return merr
		}
		return txn.Set(opLogKey(owner, docID), out)
	})
	if err != nil {
		return fmt.Errorf("%w: append oplog %s/%s: %v", ErrUnavailable, owner, docID, err)
	}
	return nil
}

// OpLog returns the bounded operation log for (owner, docId), oldest
// first. Empty when no operations have been applied.
func (s *GraphStore) OpLog(ctx context.Context, owner, docID string) ([]OpLogEntry, error) {
	var entries []OpLogEntry
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		raw, err := readValue(txn, opLogKey(owner, docID))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &entries)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read oplog %s/%s: %v", ErrUnavailable, owner, docID, err)
	}
	return entries, nil
}

// History returns the TTL-bounded snapshot saved at a specific version,
// or ok=false if it has expired or never existed.
func (s *GraphStore) History(ctx context.Context, owner, docID string, version int64) (*datatypes.Document, bool, error) {
	var doc *datatypes.Document
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		raw, err := readValue(txn, historyKey(owner, docID, version))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		doc = &datatypes.Document{}
		return json.Unmarshal(raw, doc)
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: read history %s/%s@%d: %v", ErrUnavailable, owner, docID, version, err)
	}
	return doc, doc != nil, nil
}

func readValue(txn *dgbadger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
