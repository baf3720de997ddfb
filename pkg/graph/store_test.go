package graph

import (
	"errors"
	"path/filepath"
	"testing"
)

func newPumpGraph(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore("")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	nodes := []Node{
		{ID: NodeID(TypeEquipment, "EQ-12"), Type: TypeEquipment, Name: "Pump-12"},
		{ID: NodeID(TypeComponent, "C-1"), Type: TypeComponent, Name: "Hydraulic Seal"},
		{ID: NodeID(TypeFailureMode, "F-1"), Type: TypeFailureMode, Name: "Seal Leak", Properties: map[string]string{
			"severity": "8", "occurrence": "5", "detection": "3",
		}},
		{ID: NodeID(TypeEffect, "E-1"), Type: TypeEffect, Name: "Pressure Drop"},
		{ID: NodeID(TypeCause, "CA-1"), Type: TypeCause, Name: "Abrasive Particles"},
		{ID: NodeID(TypeCause, "CA-2"), Type: TypeCause, Name: "Filter Clogging"},
		{ID: NodeID(TypeIntervention, "I-1"), Type: TypeIntervention, Name: "Replace Seal"},
		{ID: NodeID(TypeDocument, "D-1"), Type: TypeDocument, Name: "Pump Manual", Provenance: Provenance{SourceSystem: "docs", SourceID: "doc-1"}},
	}
	for _, n := range nodes {
		if err := s.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", n.ID, err)
		}
	}

	edges := []Edge{
		{SourceID: NodeID(TypeEquipment, "EQ-12"), TargetID: NodeID(TypeComponent, "C-1"), Relation: RelHasComponent, Confidence: 1},
		{SourceID: NodeID(TypeComponent, "C-1"), TargetID: NodeID(TypeFailureMode, "F-1"), Relation: RelFailsWith, Confidence: 0.9},
		{SourceID: NodeID(TypeFailureMode, "F-1"), TargetID: NodeID(TypeEffect, "E-1"), Relation: RelHasEffect, Confidence: 0.8},
		{SourceID: NodeID(TypeFailureMode, "F-1"), TargetID: NodeID(TypeCause, "CA-1"), Relation: RelCausedBy, Confidence: 0.7},
		{SourceID: NodeID(TypeCause, "CA-1"), TargetID: NodeID(TypeCause, "CA-2"), Relation: RelCausedBy, Confidence: 0.6},
		{SourceID: NodeID(TypeFailureMode, "F-1"), TargetID: NodeID(TypeIntervention, "I-1"), Relation: RelFixedBy, Confidence: 1},
		{SourceID: NodeID(TypeEquipment, "EQ-12"), TargetID: NodeID(TypeDocument, "D-1"), Relation: RelDescribedIn, Confidence: 1},
	}
	for _, e := range edges {
		if err := s.AddEdge(e); err != nil {
			t.Fatalf("AddEdge(%s->%s) failed: %v", e.SourceID, e.TargetID, err)
		}
	}

	return s
}

func TestAddNode_MergePreservesEdges(t *testing.T) {
	s := newPumpGraph(t)
	equipID := NodeID(TypeEquipment, "EQ-12")

	err := s.AddNode(Node{ID: equipID, Type: TypeEquipment, Name: "Pump-12", Properties: map[string]string{
		"location": "hall 3",
	}})
	if err != nil {
		t.Fatalf("re-add failed: %v", err)
	}

	node, err := s.GetNode(equipID)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if node.Properties["location"] != "hall 3" {
		t.Fatalf("properties not merged: %+v", node.Properties)
	}

	related, err := s.GetRelatedEntities(equipID, nil, 1, DirectionOutgoing)
	if err != nil {
		t.Fatalf("traversal failed: %v", err)
	}
	if len(related) != 2 {
		t.Fatalf("edges lost on merge: got %d related, want 2", len(related))
	}
}

func TestAddEdge_RequiresEndpoints(t *testing.T) {
	s := newPumpGraph(t)

	err := s.AddEdge(Edge{
		SourceID: NodeID(TypeEquipment, "EQ-12"),
		TargetID: "ghost:node",
		Relation: RelHasComponent,
	})
	if !errors.Is(err, ErrEndpointMissing) {
		t.Fatalf("expected ErrEndpointMissing, got %v", err)
	}

	// no placeholder node must have been created
	if _, err := s.GetNode("ghost:node"); !errors.Is(err, ErrNodeNotFound) {
		t.Fatal("placeholder node was auto-created")
	}
}

func TestAddEdge_SelfLoopPermitted(t *testing.T) {
	s := newPumpGraph(t)
	id := NodeID(TypeEquipment, "EQ-12")
	if err := s.AddEdge(Edge{SourceID: id, TargetID: id, Relation: RelHasComponent}); err != nil {
		t.Fatalf("self-loop rejected: %v", err)
	}
}

func TestAddEdge_ConfidenceClamped(t *testing.T) {
	s := newPumpGraph(t)
	src := NodeID(TypeEquipment, "EQ-12")
	dst := NodeID(TypeComponent, "C-1")

	if err := s.AddEdge(Edge{SourceID: src, TargetID: dst, Relation: RelRequiresPart, Confidence: 2.5}); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}
	edges := s.Edges(src, RelRequiresPart)
	if len(edges) != 1 || edges[0].Confidence != 1 {
		t.Fatalf("confidence not clamped: %+v", edges)
	}
}

func TestGetRelatedEntities_RespectsMaxHops(t *testing.T) {
	s := newPumpGraph(t)
	equipID := NodeID(TypeEquipment, "EQ-12")

	oneHop, err := s.GetRelatedEntities(equipID, nil, 1, DirectionOutgoing)
	if err != nil {
		t.Fatalf("traversal failed: %v", err)
	}
	for _, n := range oneHop {
		if n.Type == TypeFailureMode {
			t.Fatalf("failure mode is 2 hops away, must not appear at maxHops=1")
		}
	}

	twoHops, err := s.GetRelatedEntities(equipID, nil, 2, DirectionOutgoing)
	if err != nil {
		t.Fatalf("traversal failed: %v", err)
	}
	foundFailure := false
	for _, n := range twoHops {
		if n.Type == TypeFailureMode {
			foundFailure = true
		}
	}
	if !foundFailure {
		t.Fatal("failure mode reachable in 2 hops was not returned")
	}
	if len(twoHops) <= len(oneHop) {
		t.Fatalf("expected more nodes at 2 hops: %d vs %d", len(twoHops), len(oneHop))
	}
}

func TestGetRelatedEntities_RelationFilter(t *testing.T) {
	s := newPumpGraph(t)
	equipID := NodeID(TypeEquipment, "EQ-12")

	docs, err := s.GetRelatedEntities(equipID, []RelationType{RelDescribedIn}, 1, DirectionOutgoing)
	if err != nil {
		t.Fatalf("traversal failed: %v", err)
	}
	if len(docs) != 1 || docs[0].Type != TypeDocument {
		t.Fatalf("expected only the document, got %+v", docs)
	}
}

func TestGetRelatedEntities_Direction(t *testing.T) {
	s := newPumpGraph(t)
	componentID := NodeID(TypeComponent, "C-1")

	incoming, err := s.GetRelatedEntities(componentID, nil, 1, DirectionIncoming)
	if err != nil {
		t.Fatalf("traversal failed: %v", err)
	}
	if len(incoming) != 1 || incoming[0].Type != TypeEquipment {
		t.Fatalf("expected the equipment upstream, got %+v", incoming)
	}
}

func TestGetRelatedEntities_UnknownNode(t *testing.T) {
	s := newPumpGraph(t)
	_, err := s.GetRelatedEntities("nope", nil, 1, DirectionBoth)
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestFindFailureCauses(t *testing.T) {
	s := newPumpGraph(t)

	records, err := s.FindFailureCauses(NodeID(TypeEquipment, "EQ-12"))
	if err != nil {
		t.Fatalf("FindFailureCauses failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 failure record, got %d", len(records))
	}

	r := records[0]
	if r.Component.Name != "Hydraulic Seal" {
		t.Fatalf("unexpected component: %s", r.Component.Name)
	}
	if r.FailureMode.Name != "Seal Leak" {
		t.Fatalf("unexpected failure mode: %s", r.FailureMode.Name)
	}
	if len(r.Effects) != 1 || r.Effects[0].Name != "Pressure Drop" {
		t.Fatalf("unexpected effects: %+v", r.Effects)
	}
	if len(r.Causes) != 1 || r.Causes[0].Name != "Abrasive Particles" {
		t.Fatalf("unexpected causes: %+v", r.Causes)
	}
	if len(r.Interventions) != 1 || r.Interventions[0].Name != "Replace Seal" {
		t.Fatalf("unexpected interventions: %+v", r.Interventions)
	}
}

func TestResolveName(t *testing.T) {
	s := newPumpGraph(t)

	tests := []struct {
		name    string
		query   string
		want    string
		wantErr bool
	}{
		{"ExactCaseInsensitive", "pump-12", "Pump-12", false},
		{"SubstringFallback", "hydraulic", "Hydraulic Seal", false},
		{"QueryContainsName", "the Pump-12 unit", "Pump-12", false},
		{"NoMatch", "compressor", "", true},
		{"Empty", "  ", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			node, err := s.ResolveName(tc.query)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.query)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveName(%q) failed: %v", tc.query, err)
			}
			if node.Name != tc.want {
				t.Fatalf("ResolveName(%q) = %s, want %s", tc.query, node.Name, tc.want)
			}
		})
	}
}

func TestStore_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.snap")

	s := newPumpGraph(t)
	s.path = path
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored, err := NewStore(path)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	wantNodes, wantEdges := s.Counts()
	gotNodes, gotEdges := restored.Counts()
	if gotNodes != wantNodes || gotEdges != wantEdges {
		t.Fatalf("restore mismatch: %d/%d vs %d/%d", gotNodes, gotEdges, wantNodes, wantEdges)
	}

	records, err := restored.FindFailureCauses(NodeID(TypeEquipment, "EQ-12"))
	if err != nil || len(records) != 1 {
		t.Fatalf("failure walk broken after restore: %v, %d records", err, len(records))
	}
}
