package graph

import "fmt"

// NodeType enumerates the entity kinds the relationship graph can hold.
type NodeType string

const (
	TypeEquipment    NodeType = "equipment"
	TypeComponent    NodeType = "component"
	TypeFailureMode  NodeType = "failure-mode"
	TypeCause        NodeType = "cause"
	TypeEffect       NodeType = "effect"
	TypeIntervention NodeType = "intervention"
	TypeDocument     NodeType = "document"
	TypeTechnician   NodeType = "technician"
	TypeSparePart    NodeType = "spare-part"
	TypeSkill        NodeType = "skill"
)

// RelationType names a directed typed edge between two nodes.
type RelationType string

const (
	RelHasComponent RelationType = "has-component"
	RelFailsWith    RelationType = "fails-with"
	RelHasEffect    RelationType = "has-effect"
	RelCausedBy     RelationType = "caused-by"
	RelFixedBy      RelationType = "fixed-by"
	RelDescribedIn  RelationType = "described-in"
	RelPerformedBy  RelationType = "performed-by"
	RelRequiresPart RelationType = "requires-part"
	RelNeedsSkill   RelationType = "needs-skill"
)

// Direction restricts traversal to outgoing edges, incoming edges, or both.
type Direction int

const (
	DirectionBoth Direction = iota
	DirectionOutgoing
	DirectionIncoming
)

// Provenance records where a node or edge came from.
type Provenance struct {
	SourceSystem string `json:"source_system"`
	SourceID     string `json:"source_id"`
}

// Node is a typed entity in the relationship graph. The id is stable and
// derived from type plus source id via NodeID.
type Node struct {
	ID         string            `json:"id"`
	Type       NodeType          `json:"type"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
	Provenance Provenance        `json:"provenance"`
}

// Edge is a directed typed relation between two existing nodes.
// Confidence is clamped to [0,1] on insert.
type Edge struct {
	SourceID   string       `json:"source_id"`
	TargetID   string       `json:"target_id"`
	Relation   RelationType `json:"relation"`
	Confidence float64      `json:"confidence"`
	Provenance Provenance   `json:"provenance"`
}

// NodeID derives the stable node id from a type and source id.
func NodeID(nodeType NodeType, sourceID string) string {
	return fmt.Sprintf("%s:%s", nodeType, sourceID)
}
