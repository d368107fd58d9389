// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides derived structures over a document's node tree:
// the id-lookup NodeIndex and the progress calculator.
//
// Both are rebuilt from a freshly loaded document and never survive an
// out-of-band document replacement; callers that reload a document must
// rebuild.
package graph

import (
	"github.com/AleutianAI/questgraph/services/sync/datatypes"
)

// IndexEntry pairs a node with its containing parent. Parent is nil for
// root nodes.
type IndexEntry struct {
	Node   *datatypes.Node
	Parent *datatypes.Node
}

// NodeIndex is an O(1) id→{node,parent} map flattened from a document's
// node tree. It indexes the same *Node pointers the tree holds, so
// mutations through the index are visible in the tree and vice versa.
//
// Thread Safety: NOT safe for concurrent use. The engine builds one
// index per apply under the document lock.
type NodeIndex struct {
	entries map[string]IndexEntry
}

// BuildIndex flattens the document tree into an id-keyed map in O(n).
//
// Inputs:
//
//	doc - The document to index. Must not be nil.
//
// Outputs:
//
//	*NodeIndex - Lookup structure over every node reachable from the roots.
func BuildIndex(doc *datatypes.Document) *NodeIndex {
	idx := &NodeIndex{entries: make(map[string]IndexEntry)}
	for _, root := range doc.Nodes {
		idx.add(root, nil)
	}
	return idx
}

func (idx *NodeIndex) add(n *datatypes.Node, parent *datatypes.Node) {
	idx.entries[n.ID] = IndexEntry{Node: n, Parent: parent}
	for _, child := range n.Children {
		idx.add(child, n)
	}
}

// Lookup returns the node and its parent for an id, or ok=false if the
// id is not present in the tree.
func (idx *NodeIndex) Lookup(id string) (IndexEntry, bool) {
	e, ok := idx.entries[id]
	return e, ok
}

// Len returns the number of indexed nodes.
func (idx *NodeIndex) Len() int {
	return len(idx.entries)
}

// IDs returns every indexed node id in no particular order.
func (idx *NodeIndex) IDs() []string {
	ids := make([]string, 0, len(idx.entries))
	for id := range idx.entries {
		ids = append(ids, id)
	}
	return ids
}
