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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/questgraph/services/sync/datatypes"
)

func buildFixture() *datatypes.Document {
	doc := datatypes.NewDocument()
	root1 := datatypes.NewNode("r1", "root one")
	child := datatypes.NewNode("c1", "child")
	grandchild := datatypes.NewNode("g1", "grandchild")
	child.Children = append(child.Children, grandchild)
	root1.Children = append(root1.Children, child)
	root2 := datatypes.NewNode("r2", "root two")
	doc.Nodes = append(doc.Nodes, root1, root2)
	return doc
}

// TestLookupMatchesTreeWalk verifies that every id reachable by walking
// children from the roots resolves through the index to the identical
// node pointer.
func TestLookupMatchesTreeWalk(t *testing.T) {
	doc := buildFixture()
	idx := BuildIndex(doc)
	require.Equal(t, 4, idx.Len())

	var walk func(n *datatypes.Node, parent *datatypes.Node)
	walk = func(n *datatypes.Node, parent *datatypes.Node) {
		entry, ok := idx.Lookup(n.ID)
		require.True(t, ok, "id %s missing from index", n.ID)
		assert.Same(t, n, entry.Node)
		assert.Same(t, parent, entry.Parent)
		for _, child := range n.Children {
			walk(child, n)
		}
	}
	for _, root := range doc.Nodes {
		walk(root, nil)
	}
}

func TestLookupAbsentID(t *testing.T) {
	idx := BuildIndex(buildFixture())
	_, ok := idx.Lookup("nope")
	assert.False(t, ok)
}

func TestEmptyDocumentIndex(t *testing.T) {
	idx := BuildIndex(datatypes.NewDocument())
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.IDs())
}

// TestDeepTreeIndex guards against stack or lookup problems on deep
// containment chains.
func TestDeepTreeIndex(t *testing.T) {
	doc := datatypes.NewDocument()
	current := datatypes.NewNode("n0", "node 0")
	doc.Nodes = append(doc.Nodes, current)
	for i := 1; i < 500; i++ {
		next := datatypes.NewNode(fmt.Sprintf("n%d", i), "node")
		current.Children = append(current.Children, next)
		current = next
	}

	idx := BuildIndex(doc)
	require.Equal(t, 500, idx.Len())

	entry, ok := idx.Lookup("n499")
	require.True(t, ok)
	assert.Equal(t, "n498", entry.Parent.ID)
}
