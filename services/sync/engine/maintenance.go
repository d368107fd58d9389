// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/questgraph/services/sync/datatypes"
	"github.com/AleutianAI/questgraph/services/sync/graph"
)

// ReplaceDocument overwrites the whole document body for (owner, docId)
// while preserving version continuity. This is the bulk-save ingress
// used by the REST surface and the plan-generation pipeline: the
// incoming payload carries nodes/edges/viewport/settings, and the stored
// version sequence keeps advancing by exactly 1.
//
// Aggregate progress caches are recomputed over the incoming tree, so a
// payload with stale or absent calculatedProgress values lands
// consistent. Link symmetry inside the payload is NOT validated here;
// that happens in the plan-generation subsystem before submission.
func (e *Engine) ReplaceDocument(ctx context.Context, owner, docID string, incoming *datatypes.Document) (*Result, error) {
	lock := e.docLock(owner, docID)
	lock.Lock()
	defer lock.Unlock()

	current, err := e.store.Load(ctx, owner, docID)
	if err != nil {
		return nil, err
	}

	incoming.Version = current.Version
	if incoming.Settings.ResetInterval == "" {
		incoming.Settings = current.Settings
	}
	graph.RefreshTree(incoming)

	version, err := e.store.Save(ctx, owner, docID, incoming)
	if err != nil {
		return nil, err
	}
	e.logger.Info("document replaced",
		slog.String("doc_id", docID), slog.String("owner", owner),
		slog.Int64("version", version), slog.Int("roots", len(incoming.Nodes)))
	return &Result{Document: incoming, Version: version}, nil
}

// LoadForSubscribe returns the current document for a new subscription,
// first applying the periodic leaf reset when the configured interval
// has elapsed since the last one. The reset, when due, persists before
// the snapshot is returned so the subscriber never sees pre-reset state.
func (e *Engine) LoadForSubscribe(ctx context.Context, owner, docID string, now time.Time) (*datatypes.Document, error) {
	lock := e.docLock(owner, docID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := e.store.Load(ctx, owner, docID)
	if err != nil {
		return nil, err
	}

	if !resetDue(doc.Settings, now) {
		return doc, nil
	}

	resetLeaves(doc.Nodes)
	graph.RefreshTree(doc)
	doc.Settings.LastResetAt = now.UTC()

	version, err := e.store.Save(ctx, owner, docID, doc)
	if err != nil {
		return nil, err
	}
	e.logger.Info("periodic reset applied",
		slog.String("doc_id", docID), slog.String("owner", owner),
		slog.String("interval", string(doc.Settings.ResetInterval)),
		slog.Int64("version", version))
	return doc, nil
}

func resetDue(s datatypes.Settings, now time.Time) bool {
	var span time.Duration
	switch s.ResetInterval {
	case datatypes.ResetDaily:
		span = 24 * time.Hour
	case datatypes.ResetWeekly:
		span = 7 * 24 * time.Hour
	case datatypes.ResetMonthly:
		span = 30 * 24 * time.Hour
	default:
		return false
	}
	return now.Sub(s.LastResetAt) >= span
}

func resetLeaves(nodes []*datatypes.Node) {
	for _, n := range nodes {
		if !n.IsAggregate() {
			n.IsDone = false
			n.CurrentCompletions = 0
		}
		resetLeaves(n.Children)
	}
}
