package graph

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/lemur/backend/internal/util"
	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
)

const storeSnapshotVersion = 1

var (
	// ErrNodeNotFound is returned when an operation references a node id
	// that is not in the store.
	ErrNodeNotFound = errors.New("graph node not found")
	// ErrEndpointMissing is returned when an edge is added before both of
	// its endpoints exist. The store never auto-creates placeholder nodes.
	ErrEndpointMissing = errors.New("edge endpoint does not exist")
)

type storeSnapshot struct {
	Nodes     map[string]Node
	Edges     []Edge
	NameIndex map[string]string
	TypeIndex map[NodeType][]string
}

// Store is an in-memory typed directed graph of maintenance entities with
// name and type lookup indices. Concurrent reads are safe; mutations
// serialize behind a single writer lock. Persistence is a single versioned
// snapshot written atomically.
type Store struct {
	mu   sync.RWMutex
	path string

	nodes map[string]Node
	out   map[string][]Edge
	in    map[string][]Edge

	nameIndex map[string]string // lowercased name -> node id
	typeIndex map[NodeType][]string
}

// NewStore creates a graph store, restoring from the snapshot at path when
// one exists. An empty path disables persistence.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:      path,
		nodes:     make(map[string]Node),
		out:       make(map[string][]Edge),
		in:        make(map[string][]Edge),
		nameIndex: make(map[string]string),
		typeIndex: make(map[NodeType][]string),
	}

	if path != "" {
		var snap storeSnapshot
		err := util.LoadSnapshot(path, storeSnapshotVersion, &snap)
		switch {
		case err == nil:
			s.restore(snap)
			logger.Debug("[Graph] Store restored", "path", path, "nodes", len(s.nodes))
		case errors.Is(err, os.ErrNotExist):
			// cold start
		default:
			return nil, fmt.Errorf("failed to restore graph store: %w", err)
		}
	}

	return s, nil
}

func (s *Store) restore(snap storeSnapshot) {
	if snap.Nodes != nil {
		s.nodes = snap.Nodes
	}
	if snap.NameIndex != nil {
		s.nameIndex = snap.NameIndex
	}
	if snap.TypeIndex != nil {
		s.typeIndex = snap.TypeIndex
	}
	for _, e := range snap.Edges {
		s.out[e.SourceID] = append(s.out[e.SourceID], e)
		s.in[e.TargetID] = append(s.in[e.TargetID], e)
	}
}

// Counts returns the number of nodes and edges in the store.
func (s *Store) Counts() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, out := range s.out {
		edges += len(out)
	}
	return len(s.nodes), edges
}

// AddNode inserts a node, or merges properties into the existing node on
// id collision. Existing edges are always preserved; a node is never
// silently replaced.
func (s *Store) AddNode(node Node) error {
	if node.ID == "" {
		return fmt.Errorf("node id must not be empty")
	}
	if node.Type == "" {
		return fmt.Errorf("node %q has no type", node.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.nodes[node.ID]
	if ok {
		if existing.Properties == nil {
			existing.Properties = make(map[string]string)
		}
		for k, v := range node.Properties {
			existing.Properties[k] = v
		}
		if node.Name != "" && node.Name != existing.Name {
			delete(s.nameIndex, strings.ToLower(existing.Name))
			existing.Name = node.Name
			s.nameIndex[strings.ToLower(node.Name)] = node.ID
		}
		s.nodes[node.ID] = existing
		return nil
	}

	s.nodes[node.ID] = node
	if node.Name != "" {
		s.nameIndex[strings.ToLower(node.Name)] = node.ID
	}
	s.typeIndex[node.Type] = append(s.typeIndex[node.Type], node.ID)
	return nil
}

// AddEdge inserts a directed edge. Both endpoints must already exist;
// self-loops are permitted. Confidence is clamped to [0,1].
func (s *Store) AddEdge(edge Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[edge.SourceID]; !ok {
		return fmt.Errorf("%w: source %q", ErrEndpointMissing, edge.SourceID)
	}
	if _, ok := s.nodes[edge.TargetID]; !ok {
		return fmt.Errorf("%w: target %q", ErrEndpointMissing, edge.TargetID)
	}

	if edge.Confidence < 0 {
		edge.Confidence = 0
	}
	if edge.Confidence > 1 {
		edge.Confidence = 1
	}

	s.out[edge.SourceID] = append(s.out[edge.SourceID], edge)
	s.in[edge.TargetID] = append(s.in[edge.TargetID], edge)
	return nil
}

// GetNode returns the node with the given id.
func (s *Store) GetNode(id string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	return node, nil
}

// NodesByType returns all nodes of the given type.
func (s *Store) NodesByType(nodeType NodeType) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.typeIndex[nodeType]))
	for _, id := range s.typeIndex[nodeType] {
		out = append(out, s.nodes[id])
	}
	return out
}

// ResolveName resolves an entity name to a node: exact case-insensitive
// match first, then substring fallback against the name index.
func (s *Store) ResolveName(name string) (Node, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return Node{}, fmt.Errorf("%w: empty name", ErrNodeNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.nameIndex[needle]; ok {
		return s.nodes[id], nil
	}
	for indexed, id := range s.nameIndex {
		if strings.Contains(indexed, needle) || strings.Contains(needle, indexed) {
			return s.nodes[id], nil
		}
	}
	return Node{}, fmt.Errorf("%w: %q", ErrNodeNotFound, name)
}

// GetRelatedEntities performs a breadth-first traversal from the given
// node up to maxHops edges away, optionally restricted to the given
// relation types and direction. Nodes are returned in discovery order,
// the start node excluded, each visited at most once.
func (s *Store) GetRelatedEntities(
	nodeID string,
	relationFilter []RelationType,
	maxHops int,
	direction Direction,
) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[nodeID]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	if maxHops <= 0 {
		return nil, nil
	}

	var allowed map[RelationType]bool
	if len(relationFilter) > 0 {
		allowed = make(map[RelationType]bool, len(relationFilter))
		for _, r := range relationFilter {
			allowed[r] = true
		}
	}

	type queued struct {
		id   string
		hops int
	}

	visited := map[string]bool{nodeID: true}
	queue := []queued{{id: nodeID, hops: 0}}
	var result []Node

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.hops >= maxHops {
			continue
		}

		for _, neighbor := range s.neighborsLocked(current.id, direction) {
			if allowed != nil && !allowed[neighbor.relation] {
				continue
			}
			if visited[neighbor.id] {
				continue
			}
			visited[neighbor.id] = true
			result = append(result, s.nodes[neighbor.id])
			queue = append(queue, queued{id: neighbor.id, hops: current.hops + 1})
		}
	}

	return result, nil
}

type neighbor struct {
	id       string
	relation RelationType
}

func (s *Store) neighborsLocked(id string, direction Direction) []neighbor {
	var out []neighbor
	if direction == DirectionBoth || direction == DirectionOutgoing {
		for _, e := range s.out[id] {
			out = append(out, neighbor{id: e.TargetID, relation: e.Relation})
		}
	}
	if direction == DirectionBoth || direction == DirectionIncoming {
		for _, e := range s.in[id] {
			out = append(out, neighbor{id: e.SourceID, relation: e.Relation})
		}
	}
	return out
}

// FailureRecord is one failure mode discovered for a piece of equipment,
// with the component it belongs to and its full effect, cause, and
// intervention lists.
type FailureRecord struct {
	Component     Node   `json:"component"`
	FailureMode   Node   `json:"failure_mode"`
	Effects       []Node `json:"effects"`
	Causes        []Node `json:"causes"`
	Interventions []Node `json:"interventions"`
}

// FindFailureCauses walks equipment → component (has-component) →
// failure-mode (fails-with) → {effect, cause, intervention} and returns
// one record per discovered failure mode.
func (s *Store) FindFailureCauses(equipmentID string) ([]FailureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[equipmentID]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, equipmentID)
	}

	var records []FailureRecord
	for _, compEdge := range s.out[equipmentID] {
		if compEdge.Relation != RelHasComponent {
			continue
		}
		component := s.nodes[compEdge.TargetID]

		for _, failEdge := range s.out[compEdge.TargetID] {
			if failEdge.Relation != RelFailsWith {
				continue
			}
			record := FailureRecord{
				Component:   component,
				FailureMode: s.nodes[failEdge.TargetID],
			}
			for _, e := range s.out[failEdge.TargetID] {
				switch e.Relation {
				case RelHasEffect:
					record.Effects = append(record.Effects, s.nodes[e.TargetID])
				case RelCausedBy:
					record.Causes = append(record.Causes, s.nodes[e.TargetID])
				case RelFixedBy:
					record.Interventions = append(record.Interventions, s.nodes[e.TargetID])
				}
			}
			records = append(records, record)
		}
	}

	return records, nil
}

// Edges returns copies of the outgoing edges of a node filtered by
// relation. A nil filter returns all outgoing edges.
func (s *Store) Edges(nodeID string, relation RelationType) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Edge
	for _, e := range s.out[nodeID] {
		if relation == "" || e.Relation == relation {
			out = append(out, e)
		}
	}
	return out
}

// Save writes the current graph, name index, and type index to the
// snapshot path via atomic replace.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var edges []Edge
	for _, out := range s.out {
		edges = append(edges, out...)
	}
	snap := storeSnapshot{
		Nodes:     s.nodes,
		Edges:     edges,
		NameIndex: s.nameIndex,
		TypeIndex: s.typeIndex,
	}
	if err := util.SaveSnapshot(s.path, storeSnapshotVersion, &snap); err != nil {
		return fmt.Errorf("failed to persist graph store: %w", err)
	}
	return nil
}
