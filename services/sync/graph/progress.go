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
	"github.com/AleutianAI/questgraph/services/sync/datatypes"
)

// Progress returns the completion percentage (0..100) of a node.
//
// Leaf nodes derive progress on read, never from the cache: 100 when
// done, otherwise currentCompletions/requiredCompletions. The
// requiredCompletions >= 1 invariant guards the division; a zero value
// (possible only on hand-authored payloads) is clamped to 1 rather than
// dividing by zero.
//
// Category aggregates recompute live as the mean of their direct
// children's progress, so the result always reflects the current
// subtree. Milestone aggregates report their stored calculatedProgress,
// which the engine refreshes on every completion change beneath them.
func Progress(n *datatypes.Node) float64 {
	if !n.IsAggregate() {
		if n.IsDone {
			return 100
		}
		required := n.RequiredCompletions
		if required < 1 {
			required = 1
		}
		p := float64(n.CurrentCompletions) / float64(required) * 100
		if p > 100 {
			p = 100
		}
		return p
	}
	if n.SubKind == datatypes.SubKindCategory {
		return meanChildProgress(n)
	}
	return n.CalculatedProgress * 100
}

func meanChildProgress(n *datatypes.Node) float64 {
	if len(n.Children) == 0 {
		return 0
	}
	var sum float64
	for _, child := range n.Children {
		sum += Progress(child)
	}
	return sum / float64(len(n.Children))
}

// AffectedAncestors returns the node with the given id plus every
// ancestor that transitively contains it, ordered target first. This is
// the upward closure whose cached calculatedProgress must be refreshed
// after a leaf completion change. Returns nil if the id is not in the
// tree.
func AffectedAncestors(doc *datatypes.Document, targetID string) []*datatypes.Node {
	for _, root := range doc.Nodes {
		if chain := descend(root, targetID, nil); chain != nil {
			return chain
		}
	}
	return nil
}

// descend walks the tree looking for targetID, carrying the path of
// ancestors. On a hit it returns [target, parent, ..., root].
func descend(n *datatypes.Node, targetID string, ancestors []*datatypes.Node) []*datatypes.Node {
	if n.ID == targetID {
		chain := make([]*datatypes.Node, 0, len(ancestors)+1)
		chain = append(chain, n)
		for i := len(ancestors) - 1; i >= 0; i-- {
			chain = append(chain, ancestors[i])
		}
		return chain
	}
	ancestors = append(ancestors, n)
	for _, child := range n.Children {
		if chain := descend(child, targetID, ancestors); chain != nil {
			return chain
		}
	}
	return nil
}

// RefreshTree recomputes the cached calculatedProgress of every
// aggregate node in the document, children before parents. Used after
// bulk mutations (periodic resets, bulk saves) where the upward closure
// of a single node is not enough.
func RefreshTree(doc *datatypes.Document) {
	for _, root := range doc.Nodes {
		refreshSubtree(root)
	}
}

func refreshSubtree(n *datatypes.Node) {
	for _, child := range n.Children {
		refreshSubtree(child)
	}
	if n.IsAggregate() {
		n.CalculatedProgress = meanChildProgress(n) / 100
	}
}

// RefreshAncestors recomputes and stores calculatedProgress (as a 0..1
// fraction) for every aggregate node in the upward closure of targetID.
// Leaf nodes in the chain are skipped; their progress is never cached.
// Iteration runs target-outward, so a milestone whose children include
// other aggregates sees their refreshed values.
func RefreshAncestors(doc *datatypes.Document, targetID string) {
	for _, n := range AffectedAncestors(doc, targetID) {
		if !n.IsAggregate() {
			continue
		}
		n.CalculatedProgress = meanChildProgress(n) / 100
	}
}
