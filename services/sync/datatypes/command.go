// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// CommandType enumerates the fixed mutation vocabulary. Anything outside
// this set is rejected as unknown without touching the document.
type CommandType string

const (
	CmdAddNode     CommandType = "ADD_NODE"
	CmdUpdateNode  CommandType = "UPDATE_NODE"
	CmdMoveNode    CommandType = "MOVE_NODE"
	CmdDeleteNode  CommandType = "DELETE_NODE"
	CmdAddEdge     CommandType = "ADD_EDGE"
	CmdDeleteEdge  CommandType = "DELETE_EDGE"
	CmdSetViewport CommandType = "SET_VIEWPORT"
)

// Command is one instance of the mutation vocabulary applied to a
// document. The payload fields used depend on Type; unused fields are
// ignored.
type Command struct {
	Type    CommandType    `json:"type"`
	Payload CommandPayload `json:"payload"`
}

// CommandPayload carries the per-command arguments.
//
//   - ADD_NODE: Node (id/title/position seed, engine fills defaults),
//     optional ParentID.
//   - UPDATE_NODE: NodeID plus Updates.
//   - MOVE_NODE: NodeID plus Position.
//   - DELETE_NODE: NodeID.
//   - ADD_EDGE: Edge.
//   - DELETE_EDGE: EdgeID.
//   - SET_VIEWPORT: Viewport.
type CommandPayload struct {
	Node     *Node      `json:"node,omitempty"`
	ParentID string     `json:"parentId,omitempty"`
	NodeID   string     `json:"nodeId,omitempty"`
	Updates  *NodePatch `json:"updates,omitempty"`
	Position *Position  `json:"position,omitempty"`
	Edge     *Edge      `json:"edge,omitempty"`
	EdgeID   string     `json:"edgeId,omitempty"`
	Viewport *Viewport  `json:"viewport,omitempty"`
}

// NodePatch is a shallow merge for UPDATE_NODE: nil fields are left
// untouched, non-nil fields replace the node's value wholesale. Children
// and LinkedNodeIDs are replace-whole-value, never deep-merged.
type NodePatch struct {
	Title               *string        `json:"title,omitempty"`
	Position            *Position      `json:"position,omitempty"`
	IsDone              *bool          `json:"isDone,omitempty"`
	CurrentCompletions  *int           `json:"currentCompletions,omitempty"`
	RequiredCompletions *int           `json:"requiredCompletions,omitempty"`
	CalculatedProgress  *float64       `json:"calculatedProgress,omitempty"`
	LinkedNodeIDs       *LinkedNodeIDs `json:"linkedNodeIds,omitempty"`
	Children            *[]*Node       `json:"children,omitempty"`
}

// TouchesCompletion reports whether applying the patch can change leaf
// completion state, which is what triggers the upward progress
// recompute.
func (p *NodePatch) TouchesCompletion() bool {
	return p.IsDone != nil || p.CurrentCompletions != nil
}
