// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine applies mutation commands to goal-graph documents.
//
// Every ingress path (live websocket connections, the durable command
// queue, bulk saves) funnels through the one Apply entry point here, so
// validation and error semantics cannot drift between transports.
//
// Applies for the same (owner, docId) serialize through a per-document
// mutex: the store's save is a plain last-write-wins overwrite, and
// without this lock two interleaved load→mutate→save sequences would
// silently lose one of the updates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/questgraph/services/sync/datatypes"
	"github.com/AleutianAI/questgraph/services/sync/graph"
	"github.com/AleutianAI/questgraph/services/sync/store"
)

var (
	// ErrUnknownCommand is returned for command types outside the fixed
	// vocabulary. The document is untouched and the connection stays
	// open.
	ErrUnknownCommand = errors.New("unknown command type")

	// ErrNodeNotFound is returned when a command references a node id
	// absent from the document. The version is not bumped; callers can
	// distinguish "nothing to do" from a successful apply.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound is returned when DELETE_EDGE references an absent
	// edge id.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrDuplicateNode is returned when ADD_NODE would violate the
	// document-wide id uniqueness invariant.
	ErrDuplicateNode = errors.New("node id already exists")

	// ErrInvalidPayload is returned when a command is missing the
	// payload fields its type requires.
	ErrInvalidPayload = errors.New("invalid command payload")
)

var (
	applyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "questgraph_apply_duration_seconds",
		Help:    "Time to apply one command, including persistence",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"command"})

	applyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "questgraph_apply_total",
		Help: "Commands applied by type and status",
	}, []string{"command", "status"})
)

// Result describes one successful apply.
type Result struct {
	// Document is the full post-apply document.
	Document *datatypes.Document

	// Version is the version stamped by the persist.
	Version int64

	// Warning carries graceful-degradation notes, e.g. an unresolved
	// parentId that caused root attachment. Empty on a clean apply.
	Warning string
}

// Engine applies commands to documents through the GraphStore.
//
// Thread Safety: safe for concurrent use. Concurrent applies to
// different documents proceed in parallel; applies to the same document
// serialize.
type Engine struct {
	store  *store.GraphStore
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Engine over a GraphStore.
func New(s *store.GraphStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  s,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// docLock returns the mutex serializing applies for one document,
// creating it on first use. Locks are never evicted; the table grows
// with the number of distinct documents touched, which is bounded by
// actual usage.
func (e *Engine) docLock(owner, docID string) *sync.Mutex {
	key := owner + "\x00" + docID
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

// Apply runs one command against (owner, docId): load, mutate, persist,
// append to the bounded operation log. connectionID identifies the
// originator for the log and broadcast attribution; it may be empty for
// queue-ingress commands.
//
// Errors never leave a partially persisted document: a mutation or
// persistence failure aborts before the snapshot write, so the stored
// state is either the pre-command or the post-command version, nothing
// in between. An op-log append failure after a successful save is logged
// and swallowed; the log is diagnostic, not authoritative.
func (e *Engine) Apply(ctx context.Context, owner, docID string, cmd datatypes.Command, connectionID string) (*Result, error) {
	start := time.Now()
	res, err := e.apply(ctx, owner, docID, cmd, connectionID)
	status := "ok"
	if err != nil {
		status = "error"
	}
	applyDuration.WithLabelValues(string(cmd.Type)).Observe(time.Since(start).Seconds())
	applyTotal.WithLabelValues(string(cmd.Type), status).Inc()
	return res, err
}

func (e *Engine) apply(ctx context.Context, owner, docID string, cmd datatypes.Command, connectionID string) (*Result, error) {
	lock := e.docLock(owner, docID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := e.store.Load(ctx, owner, docID)
	if err != nil {
		return nil, err
	}

	var warning string
	switch cmd.Type {
	case datatypes.CmdAddNode:
		warning, err = e.addNode(doc, cmd.Payload)
	case datatypes.CmdUpdateNode:
		err = e.updateNode(doc, cmd.Payload)
	case datatypes.CmdMoveNode:
		err = e.moveNode(doc, cmd.Payload)
	case datatypes.CmdDeleteNode:
		err = e.deleteNode(doc, cmd.Payload)
	case datatypes.CmdAddEdge:
		err = e.addEdge(doc, cmd.Payload)
	case datatypes.CmdDeleteEdge:
		err = e.deleteEdge(doc, cmd.Payload)
	case datatypes.CmdSetViewport:
		err = e.setViewport(doc, cmd.Payload)
	default:
		e.logger.Warn("rejecting unknown command type",
			slog.String("type", string(cmd.Type)), slog.String("doc_id", docID))
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	if err != nil {
		return nil, err
	}

	version, err := e.store.Save(ctx, owner, docID, doc)
	if err != nil {
		return nil, err
	}

	entry := store.OpLogEntry{
		Command:      cmd,
		ConnectionID: connectionID,
		Version:      version,
		Timestamp:    time.Now().UTC(),
	}
	if logErr := e.store.AppendOpLog(ctx, owner, docID, entry); logErr != nil {
		e.logger.Warn("operation log append failed",
			slog.String("doc_id", docID), slog.String("error", logErr.Error()))
	}

	if warning != "" {
		e.logger.Warn(warning, slog.String("doc_id", docID), slog.String("command", string(cmd.Type)))
	}
	return &Result{Document: doc, Version: version, Warning: warning}, nil
}

func (e *Engine) addNode(doc *datatypes.Document, p datatypes.CommandPayload) (string, error) {
	seed := p.Node
	if seed == nil {
		seed = &datatypes.Node{}
	}
	id := seed.ID
	if id == "" {
		id = uuid.New().String()
	}

	idx := graph.BuildIndex(doc)
	if _, exists := idx.Lookup(id); exists {
		return "", fmt.Errorf("%w: %q", ErrDuplicateNode, id)
	}

	node := datatypes.NewNode(id, seed.Title)
	node.Position = seed.Position
	if seed.Kind != "" {
		node.Kind = seed.Kind
	}
	if seed.SubKind != "" {
		node.SubKind = seed.SubKind
	}
	if seed.RequiredCompletions > 1 {
		node.RequiredCompletions = seed.RequiredCompletions
	}

	if p.ParentID == "" {
		doc.Nodes = append(doc.Nodes, node)
		return "", nil
	}

	parent, ok := idx.Lookup(p.ParentID)
	if !ok {
		// Graceful degradation: an unresolved parent attaches the node
		// at the document root instead of failing the command.
		doc.Nodes = append(doc.Nodes, node)
		return fmt.Sprintf("parent %q not found, attached node %q at root", p.ParentID, id), nil
	}

	hadChildren := len(parent.Node.Children) > 0
	parent.Node.Children = append(parent.Node.Children, node)
	if !hadChildren {
		parent.Node.Promote()
	}
	return "", nil
}

func (e *Engine) updateNode(doc *datatypes.Document, p datatypes.CommandPayload) error {
	if p.NodeID == "" || p.Updates == nil {
		return fmt.Errorf("%w: UPDATE_NODE requires nodeId and updates", ErrInvalidPayload)
	}
	entry, ok := graph.BuildIndex(doc).Lookup(p.NodeID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, p.NodeID)
	}

	n := entry.Node
	u := p.Updates
	if u.Title != nil {
		n.Title = *u.Title
	}
	if u.Position != nil {
		n.Position = *u.Position
	}
	if u.IsDone != nil {
		n.IsDone = *u.IsDone
	}
	if u.CurrentCompletions != nil {
		n.CurrentCompletions = *u.CurrentCompletions
	}
	if u.RequiredCompletions != nil {
		n.RequiredCompletions = *u.RequiredCompletions
		if n.RequiredCompletions < 1 {
			n.RequiredCompletions = 1
		}
	}
	if u.CalculatedProgress != nil {
		n.CalculatedProgress = *u.CalculatedProgress
	}
	if u.LinkedNodeIDs != nil {
		// Replace-whole-value. Link symmetry stays the ingestion
		// validator's concern; nothing is repaired here.
		n.LinkedNodeIDs = *u.LinkedNodeIDs
	}
	if u.Children != nil {
		n.Children = *u.Children
		if len(n.Children) > 0 {
			n.Promote()
		}
	}

	if u.TouchesCompletion() {
		graph.RefreshAncestors(doc, p.NodeID)
	}
	return nil
}

func (e *Engine) moveNode(doc *datatypes.Document, p datatypes.CommandPayload) error {
	if p.NodeID == "" || p.Position == nil {
		return fmt.Errorf("%w: MOVE_NODE requires nodeId and position", ErrInvalidPayload)
	}
	entry, ok := graph.BuildIndex(doc).Lookup(p.NodeID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, p.NodeID)
	}
	entry.Node.Position = *p.Position
	return nil
}

// deleteNode removes the node wherever it sits in the tree and drops any
// edge touching it. Other nodes' linkedNodeIds entries referencing the
// deleted id are left dangling; the dependency relation is authored
// externally and repaired externally.
func (e *Engine) deleteNode(doc *datatypes.Document, p datatypes.CommandPayload) error {
	if p.NodeID == "" {
		return fmt.Errorf("%w: DELETE_NODE requires nodeId", ErrInvalidPayload)
	}
	entry, ok := graph.BuildIndex(doc).Lookup(p.NodeID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, p.NodeID)
	}

	if entry.Parent == nil {
		doc.Nodes = removeNode(doc.Nodes, p.NodeID)
	} else {
		entry.Parent.Children = removeNode(entry.Parent.Children, p.NodeID)
	}

	kept := doc.Edges[:0]
	for _, edge := range doc.Edges {
		if edge.Source == p.NodeID || edge.Target == p.NodeID {
			continue
		}
		kept = append(kept, edge)
	}
	doc.Edges = kept
	return nil
}

func removeNode(nodes []*datatypes.Node, id string) []*datatypes.Node {
	kept := nodes[:0]
	for _, n := range nodes {
		if n.ID == id {
			continue
		}
		kept = append(kept, n)
	}
	return kept
}

func (e *Engine) addEdge(doc *datatypes.Document, p datatypes.CommandPayload) error {
	if p.Edge == nil {
		return fmt.Errorf("%w: ADD_EDGE requires edge", ErrInvalidPayload)
	}
	edge := *p.Edge
	if edge.ID == "" {
		edge.ID = uuid.New().String()
	}
	doc.Edges = append(doc.Edges, edge)
	return nil
}

func (e *Engine) deleteEdge(doc *datatypes.Document, p datatypes.CommandPayload) error {
	if p.EdgeID == "" {
		return fmt.Errorf("%w: DELETE_EDGE requires edgeId", ErrInvalidPayload)
	}
	kept := doc.Edges[:0]
	found := false
	for _, edge := range doc.Edges {
		if edge.ID == p.EdgeID {
			found = true
			continue
		}
		kept = append(kept, edge)
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrEdgeNotFound, p.EdgeID)
	}
	doc.Edges = kept
	return nil
}

func (e *Engine) setViewport(doc *datatypes.Document, p datatypes.CommandPayload) error {
	if p.Viewport == nil {
		return fmt.Errorf("%w: SET_VIEWPORT requires viewport", ErrInvalidPayload)
	}
	doc.Viewport = *p.Viewport
	return nil
}

// NotFound reports whether err is one of the explicit not-found results,
// as opposed to a store failure or a malformed payload.
func NotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrEdgeNotFound)
}
