// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared goal-graph document model and the
// wire shapes exchanged between clients and the sync service.
//
// A Document is the unit of persistence and collaboration: one versioned
// snapshot per (owner, docId), holding a forest of Nodes plus a flat Edge
// list, a viewport, and per-document settings. Nodes own their children
// exclusively (a tree, never a shared-reference graph); the linkedNodeIds
// field carries a separate logical-dependency relation over the same id
// space and is treated as opaque payload by the mutation engine.
package datatypes

import "time"

// NodeKind distinguishes directly completable items from nodes whose
// progress derives from their children.
type NodeKind string

const (
	// KindLeaf is a directly completable task.
	KindLeaf NodeKind = "leaf"
	// KindAggregate is a milestone or category whose progress is derived.
	KindAggregate NodeKind = "aggregate"
)

// NodeSubKind refines NodeKind. Promotion is one-directional: a leaf
// becomes hasChildren when it receives its first child, an aggregate
// becomes category likewise. Removing all children later does NOT revert
// the sub-kind; the promotion records history, not current shape.
type NodeSubKind string

const (
	SubKindSimple      NodeSubKind = "simple"
	SubKindHasChildren NodeSubKind = "hasChildren"
	SubKindMilestone   NodeSubKind = "milestone"
	SubKindCategory    NodeSubKind = "category"
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LinkedNodeIDs is the logical-dependency relation over node ids,
// distinct from containment. Symmetry (a→downstream→b iff b→upstream→a)
// is an invariant of the document as authored; the engine neither
// enforces nor repairs it.
type LinkedNodeIDs struct {
	Upstream   []string `json:"upstream"`
	Downstream []string `json:"downstream"`
}

// Node is one task or goal unit. Ids are unique across the whole
// document, not just among siblings.
type Node struct {
	ID                  string        `json:"id"`
	Title               string        `json:"title"`
	Kind                NodeKind      `json:"kind"`
	SubKind             NodeSubKind   `json:"subKind"`
	Position            Position      `json:"position"`
	IsDone              bool          `json:"isDone"`
	CurrentCompletions  int           `json:"currentCompletions"`
	RequiredCompletions int           `json:"requiredCompletions"`
	// CalculatedProgress is the cached 0..1 completion fraction. It is
	// authoritative only for aggregate nodes; leaf progress is derived
	// on read and never cached.
	CalculatedProgress float64       `json:"calculatedProgress"`
	LinkedNodeIDs      LinkedNodeIDs `json:"linkedNodeIds"`
	Children           []*Node       `json:"children"`
}

// IsAggregate reports whether progress for this node derives from its
// children rather than its own completion state.
func (n *Node) IsAggregate() bool {
	return n.Kind == KindAggregate
}

// Promote applies the one-directional sub-kind promotion that fires when
// a node receives its first child.
func (n *Node) Promote() {
	switch n.Kind {
	case KindLeaf:
		n.SubKind = SubKindHasChildren
	case KindAggregate:
		n.SubKind = SubKindCategory
	}
}

// Edge is a flat connection record between two node ids. Edges live in
// the document's edge list, never nested in the tree.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Viewport is the shared camera state for a document.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// ResetInterval controls the periodic leaf-completion reset applied at
// subscribe time.
type ResetInterval string

const (
	ResetNone    ResetInterval = "none"
	ResetDaily   ResetInterval = "daily"
	ResetWeekly  ResetInterval = "weekly"
	ResetMonthly ResetInterval = "monthly"
)

// Settings holds per-document behavior flags.
type Settings struct {
	ResetInterval ResetInterval `json:"resetInterval"`
	LastResetAt   time.Time     `json:"lastResetAt"`
}

// Document is the persisted forest of Nodes plus Edges, viewport, and
// settings for one (owner, docId) scope. Version increases by exactly 1
// on every successful persist.
type Document struct {
	Nodes     []*Node   `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	Viewport  Viewport  `json:"viewport"`
	Settings  Settings  `json:"settings"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewDocument returns an empty document at version 0, the shape created
// lazily on first read when nothing is persisted yet.
func NewDocument() *Document {
	return &Document{
		Nodes:    []*Node{},
		Edges:    []Edge{},
		Viewport: Viewport{Zoom: 1},
		Settings: Settings{ResetInterval: ResetNone},
	}
}

// NewNode returns a node with the ADD_NODE defaults: a simple leaf with
// requiredCompletions 1, not done, empty links and children.
func NewNode(id, title string) *Node {
	return &Node{
		ID:                  id,
		Title:               title,
		Kind:                KindLeaf,
		SubKind:             SubKindSimple,
		RequiredCompletions: 1,
		LinkedNodeIDs:       LinkedNodeIDs{Upstream: []string{}, Downstream: []string{}},
		Children:            []*Node{},
	}
}
