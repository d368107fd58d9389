// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/questgraph/services/sync/datatypes"
)

func TestLeafProgress(t *testing.T) {
	tests := []struct {
		name     string
		done     bool
		current  int
		required int
		want     float64
	}{
		{"not started", false, 0, 1, 0},
		{"done", true, 0, 1, 100},
		{"partial completions", false, 1, 4, 25},
		{"all completions", false, 4, 4, 100},
		{"overshoot clamps", false, 6, 4, 100},
		{"zero required guarded", false, 1, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := datatypes.NewNode("n", "leaf")
			n.IsDone = tt.done
			n.CurrentCompletions = tt.current
			n.RequiredCompletions = tt.required
			assert.Equal(t, tt.want, Progress(n))
		})
	}
}

func TestCategoryProgressIsMeanOfChildren(t *testing.T) {
	cat := datatypes.NewNode("c", "category")
	cat.Kind = datatypes.KindAggregate
	cat.SubKind = datatypes.SubKindCategory

	a := datatypes.NewNode("a", "a")
	a.IsDone = true
	b := datatypes.NewNode("b", "b")
	cat.Children = append(cat.Children, a, b)

	assert.Equal(t, 50.0, Progress(cat))

	b.IsDone = true
	assert.Equal(t, 100.0, Progress(cat))
}

func TestCategoryWithoutChildren(t *testing.T) {
	cat := datatypes.NewNode("c", "category")
	cat.Kind = datatypes.KindAggregate
	cat.SubKind = datatypes.SubKindCategory
	assert.Equal(t, 0.0, Progress(cat))
}

func TestMilestoneUsesStoredProgress(t *testing.T) {
	m := datatypes.NewNode("m", "milestone")
	m.Kind = datatypes.KindAggregate
	m.SubKind = datatypes.SubKindMilestone
	m.CalculatedProgress = 0.4
	assert.Equal(t, 40.0, Progress(m))
}

// TestProgressRange asserts the documented invariant: progress always
// lands in [0, 100] for every node in a mixed tree.
func TestProgressRange(t *testing.T) {
	doc := mixedTree()
	idx := BuildIndex(doc)
	for _, id := range idx.IDs() {
		entry, _ := idx.Lookup(id)
		p := Progress(entry.Node)
		assert.GreaterOrEqual(t, p, 0.0, "node %s", id)
		assert.LessOrEqual(t, p, 100.0, "node %s", id)
	}
}

func TestAffectedAncestors(t *testing.T) {
	doc := mixedTree()

	chain := AffectedAncestors(doc, "leaf-deep")
	require.Len(t, chain, 3)
	assert.Equal(t, "leaf-deep", chain[0].ID)
	assert.Equal(t, "cat-inner", chain[1].ID)
	assert.Equal(t, "cat-root", chain[2].ID)

	t.Run("root node has no ancestors", func(t *testing.T) {
		chain := AffectedAncestors(doc, "cat-root")
		require.Len(t, chain, 1)
		assert.Equal(t, "cat-root", chain[0].ID)
	})

	t.Run("absent id yields nil", func(t *testing.T) {
		assert.Nil(t, AffectedAncestors(doc, "ghost"))
	})
}

// TestRefreshAncestorsCascade mirrors the canonical scenario: category C
// with leaf children A and B. After A completes, C sits at 50; after B
// completes as well, C reaches 100. The refreshed cache must agree with
// the live recompute.
func TestRefreshAncestorsCascade(t *testing.T) {
	doc := datatypes.NewDocument()
	c := datatypes.NewNode("C", "category")
	c.Kind = datatypes.KindAggregate
	c.SubKind = datatypes.SubKindCategory
	a := datatypes.NewNode("A", "a")
	b := datatypes.NewNode("B", "b")
	c.Children = append(c.Children, a, b)
	doc.Nodes = append(doc.Nodes, c)

	a.IsDone = true
	RefreshAncestors(doc, "A")
	assert.Equal(t, 50.0, Progress(c))
	assert.Equal(t, 0.5, c.CalculatedProgress)

	b.IsDone = true
	RefreshAncestors(doc, "B")
	assert.Equal(t, 100.0, Progress(c))
	assert.Equal(t, 1.0, c.CalculatedProgress)
}

// TestRefreshAncestorsReachesMilestones verifies a milestone above a
// category reflects completion changes beneath the category, since
// milestones serve their cached value.
func TestRefreshAncestorsReachesMilestones(t *testing.T) {
	doc := mixedTree()

	idx := BuildIndex(doc)
	leaf, _ := idx.Lookup("leaf-deep")
	leaf.Node.IsDone = true
	RefreshAncestors(doc, "leaf-deep")

	root, _ := idx.Lookup("cat-root")
	assert.Equal(t, 1.0, root.Node.CalculatedProgress)
}

func TestRefreshTree(t *testing.T) {
	doc := mixedTree()
	idx := BuildIndex(doc)
	leaf, _ := idx.Lookup("leaf-deep")
	leaf.Node.IsDone = true

	RefreshTree(doc)

	inner, _ := idx.Lookup("cat-inner")
	assert.Equal(t, 1.0, inner.Node.CalculatedProgress)
	root, _ := idx.Lookup("cat-root")
	assert.Equal(t, 1.0, root.Node.CalculatedProgress)
}

// mixedTree: cat-root(milestone) -> cat-inner(category) -> leaf-deep,
// plus a lone root leaf.
func mixedTree() *datatypes.Document {
	doc := datatypes.NewDocument()

	root := datatypes.NewNode("cat-root", "root milestone")
	root.Kind = datatypes.KindAggregate
	root.SubKind = datatypes.SubKindMilestone

	inner := datatypes.NewNode("cat-inner", "inner category")
	inner.Kind = datatypes.KindAggregate
	inner.SubKind = datatypes.SubKindCategory

	leaf := datatypes.NewNode("leaf-deep", "deep leaf")
	inner.Children = append(inner.Children, leaf)
	root.Children = append(root.Children, inner)

	lone := datatypes.NewNode("leaf-lone", "lone leaf")
	lone.CurrentCompletions = 2
	lone.RequiredCompletions = 3

	doc.Nodes = append(doc.Nodes, root, lone)
	return doc
}
