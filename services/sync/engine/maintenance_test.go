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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/questgraph/services/sync/datatypes"
	"github.com/AleutianAI/questgraph/services/sync/graph"
)

func TestReplaceDocumentPreservesVersionSequence(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Apply(ctx, "alice", "g1", addNodeCmd("n1", "keep me not", ""), "")
	require.NoError(t, err)
	_, err = eng.Apply(ctx, "alice", "g1", addNodeCmd("n2", "me neither", ""), "")
	require.NoError(t, err)

	incoming := datatypes.NewDocument()
	incoming.Nodes = []*datatypes.Node{datatypes.NewNode("fresh", "replacement")}
	// A client-supplied version must not reset the sequence.
	incoming.Version = 999

	res, err := eng.ReplaceDocument(ctx, "alice", "g1", incoming)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Version)

	doc, err := st.Load(ctx, "alice", "g1")
	require.NoError(t, err)
	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, "fresh", doc.Nodes[0].ID)
	assert.Equal(t, int64(3), doc.Version)
}

func TestReplaceDocumentKeepsSettingsWhenAbsent(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	first := datatypes.NewDocument()
	first.Settings.ResetInterval = datatypes.ResetWeekly
	_, err := eng.ReplaceDocument(ctx, "alice", "g1", first)
	require.NoError(t, err)

	second := datatypes.NewDocument()
	second.Settings = datatypes.Settings{}
	_, err = eng.ReplaceDocument(ctx, "alice", "g1", second)
	require.NoError(t, err)

	doc, err := st.Load(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.ResetWeekly, doc.Settings.ResetInterval)
}

// TestReplaceDocumentRecomputesProgress feeds a payload whose cached
// aggregate progress is nonsense and checks it comes back consistent.
func TestReplaceDocumentRecomputesProgress(t *testing.T) {
	eng, _ := newTestEngine(t)

	cat := datatypes.NewNode("cat", "category")
	cat.Kind = datatypes.KindAggregate
	cat.SubKind = datatypes.SubKindCategory
	cat.CalculatedProgress = 0.97
	done := datatypes.NewNode("done", "finished")
	done.IsDone = true
	cat.Children = []*datatypes.Node{done, datatypes.NewNode("open", "pending")}

	incoming := datatypes.NewDocument()
	incoming.Nodes = []*datatypes.Node{cat}

	res, err := eng.ReplaceDocument(context.Background(), "alice", "g1", incoming)
	require.NoError(t, err)
	entry, ok := graph.BuildIndex(res.Document).Lookup("cat")
	require.True(t, ok)
	assert.Equal(t, 0.5, entry.Node.CalculatedProgress)
}

func TestLoadForSubscribeNoResetConfigured(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	done := true
	_, err := eng.Apply(ctx, "alice", "g1", addNodeCmd("n1", "node", ""), "")
	require.NoError(t, err)
	_, err = eng.Apply(ctx, "alice", "g1", datatypes.Command{
		Type: datatypes.CmdUpdateNode,
		Payload: datatypes.CommandPayload{
			NodeID:  "n1",
			Updates: &datatypes.NodePatch{IsDone: &done},
		},
	}, "")
	require.NoError(t, err)

	doc, err := eng.LoadForSubscribe(ctx, "alice", "g1", time.Now())
	require.NoError(t, err)
	assert.True(t, doc.Nodes[0].IsDone)

	// No reset means no write either.
	version, err := st.Version(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestLoadForSubscribeResetDue(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

	leaf := datatypes.NewNode("habit", "daily habit")
	leaf.IsDone = true
	leaf.CurrentCompletions = 1
	cat := datatypes.NewNode("week", "this week")
	cat.Kind = datatypes.KindAggregate
	cat.SubKind = datatypes.SubKindCategory
	cat.Children = []*datatypes.Node{leaf}

	doc := datatypes.NewDocument()
	doc.Nodes = []*datatypes.Node{cat}
	doc.Settings.ResetInterval = datatypes.ResetDaily
	doc.Settings.LastResetAt = now.Add(-25 * time.Hour)
	_, err := eng.ReplaceDocument(ctx, "alice", "g1", doc)
	require.NoError(t, err)

	got, err := eng.LoadForSubscribe(ctx, "alice", "g1", now)
	require.NoError(t, err)

	habit, ok := graph.BuildIndex(got).Lookup("habit")
	require.True(t, ok)
	assert.False(t, habit.Node.IsDone)
	assert.Zero(t, habit.Node.CurrentCompletions)
	week, _ := graph.BuildIndex(got).Lookup("week")
	assert.Zero(t, week.Node.CalculatedProgress)
	assert.Equal(t, now, got.Settings.LastResetAt)

	// The reset persisted before the snapshot was returned.
	stored, err := st.Load(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.False(t, stored.Nodes[0].Children[0].IsDone)
	assert.Equal(t, got.Version, stored.Version)
}

func TestLoadForSubscribeResetNotDueYet(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

	leaf := datatypes.NewNode("habit", "daily habit")
	leaf.IsDone = true
	doc := datatypes.NewDocument()
	doc.Nodes = []*datatypes.Node{leaf}
	doc.Settings.ResetInterval = datatypes.ResetDaily
	doc.Settings.LastResetAt = now.Add(-23 * time.Hour)
	_, err := eng.ReplaceDocument(ctx, "alice", "g1", doc)
	require.NoError(t, err)

	got, err := eng.LoadForSubscribe(ctx, "alice", "g1", now)
	require.NoError(t, err)
	assert.True(t, got.Nodes[0].IsDone)
}

func TestResetDueIntervals(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		interval datatypes.ResetInterval
		elapsed  time.Duration
		want     bool
	}{
		{"none never fires", datatypes.ResetNone, 1000 * time.Hour, false},
		{"daily just short", datatypes.ResetDaily, 23 * time.Hour, false},
		{"daily exact", datatypes.ResetDaily, 24 * time.Hour, true},
		{"weekly just short", datatypes.ResetWeekly, 6 * 24 * time.Hour, false},
		{"weekly elapsed", datatypes.ResetWeekly, 8 * 24 * time.Hour, true},
		{"monthly elapsed", datatypes.ResetMonthly, 31 * 24 * time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := datatypes.Settings{
				ResetInterval: tt.interval,
				LastResetAt:   now.Add(-tt.elapsed),
			}
			assert.Equal(t, tt.want, resetDue(s, now))
		})
	}
}
