package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
)

// Purpose steers which context the query service accumulates for a set of
// entities.
type Purpose string

const (
	PurposeFailureAnalysis  Purpose = "failure-analysis"
	PurposeRootCause        Purpose = "root-cause"
	PurposeRelatedDocuments Purpose = "related-documents"
	PurposeEquipmentInfo    Purpose = "equipment-info"
	PurposeGeneral          Purpose = "general"
)

const (
	maxCausalHops  = 3
	relatedMaxHops = 2

	summarySeparator = "\n\n---\n\n"
)

// FailureChain is one failure mode with its surrounding context and FMEA
// scores taken from the failure-mode node's properties.
type FailureChain struct {
	Equipment     string   `json:"equipment"`
	Component     string   `json:"component"`
	FailureMode   string   `json:"failure_mode"`
	Effects       []string `json:"effects"`
	Causes        []string `json:"causes"`
	Interventions []string `json:"interventions"`
	Severity      int      `json:"severity"`
	Occurrence    int      `json:"occurrence"`
	Detection     int      `json:"detection"`
	RiskScore     int      `json:"risk_score"`
}

// CausalChain traces causes backwards from a starting entity, one name
// per hop.
type CausalChain struct {
	Start string   `json:"start"`
	Steps []string `json:"steps"`
}

// Context is the accumulated graph context for one query. Summary is the
// human-readable rendering that goes into the LLM prompt; the structured
// fields are kept for callers that asked for raw graph context.
type Context struct {
	Entities      []Node         `json:"entities"`
	Related       []Node         `json:"related"`
	FailureChains []FailureChain `json:"failure_chains"`
	CausalChains  []CausalChain  `json:"causal_chains"`
	Documents     []Node         `json:"documents"`
	DocumentIDs   []string       `json:"document_ids"`
	Summary       string         `json:"summary"`
}

// QueryService wraps the graph store to produce task-specific context for
// a set of entity names. Names that do not resolve to a node are simply
// omitted.
type QueryService struct {
	store *Store
}

func NewQueryService(store *Store) *QueryService {
	return &QueryService{store: store}
}

// BuildContext resolves each entity name and accumulates related
// entities, failure chains, causal chains, and related documents
// according to the reasoning purpose, then renders the summary string.
func (q *QueryService) BuildContext(names []string, purpose Purpose) Context {
	var ctx Context

	seenDocs := make(map[string]bool)
	for _, name := range names {
		node, err := q.store.ResolveName(name)
		if err != nil {
			logger.Debug("[Graph] Entity not resolved, skipping", "name", name)
			continue
		}
		ctx.Entities = append(ctx.Entities, node)

		switch purpose {
		case PurposeFailureAnalysis:
			ctx.FailureChains = append(ctx.FailureChains, q.failureChains(node)...)
			ctx.Related = append(ctx.Related, q.related(node)...)
		case PurposeRootCause:
			ctx.FailureChains = append(ctx.FailureChains, q.failureChains(node)...)
			ctx.CausalChains = append(ctx.CausalChains, q.causalChains(node)...)
		case PurposeRelatedDocuments:
			// documents only, collected below
		case PurposeEquipmentInfo:
			ctx.Related = append(ctx.Related, q.related(node)...)
		default:
			ctx.Related = append(ctx.Related, q.related(node)...)
			ctx.CausalChains = append(ctx.CausalChains, q.causalChains(node)...)
		}

		for _, doc := range q.documents(node) {
			if seenDocs[doc.ID] {
				continue
			}
			seenDocs[doc.ID] = true
			ctx.Documents = append(ctx.Documents, doc)
			if doc.Provenance.SourceID != "" {
				ctx.DocumentIDs = append(ctx.DocumentIDs, doc.Provenance.SourceID)
			}
		}
	}

	ctx.Summary = renderSummary(ctx)
	return ctx
}

func (q *QueryService) related(node Node) []Node {
	related, err := q.store.GetRelatedEntities(node.ID, nil, relatedMaxHops, DirectionBoth)
	if err != nil {
		return nil
	}
	return related
}

func (q *QueryService) failureChains(node Node) []FailureChain {
	records, err := q.store.FindFailureCauses(node.ID)
	if err != nil {
		return nil
	}

	chains := make([]FailureChain, 0, len(records))
	for _, r := range records {
		chain := FailureChain{
			Equipment:   node.Name,
			Component:   r.Component.Name,
			FailureMode: r.FailureMode.Name,
			Severity:    propInt(r.FailureMode, "severity"),
			Occurrence:  propInt(r.FailureMode, "occurrence"),
			Detection:   propInt(r.FailureMode, "detection"),
		}
		chain.RiskScore = chain.Severity * chain.Occurrence * chain.Detection
		for _, n := range r.Effects {
			chain.Effects = append(chain.Effects, n.Name)
		}
		for _, n := range r.Causes {
			chain.Causes = append(chain.Causes, n.Name)
		}
		for _, n := range r.Interventions {
			chain.Interventions = append(chain.Interventions, n.Name)
		}
		chains = append(chains, chain)
	}
	return chains
}

// causalChains follows caused-by edges outward from the node, up to
// maxCausalHops, producing one chain per distinct first-hop cause.
func (q *QueryService) causalChains(node Node) []CausalChain {
	var chains []CausalChain
	for _, e := range q.store.Edges(node.ID, RelCausedBy) {
		chain := CausalChain{Start: node.Name}
		currentID := e.TargetID
		for hop := 0; hop < maxCausalHops && currentID != ""; hop++ {
			current, err := q.store.GetNode(currentID)
			if err != nil {
				break
			}
			chain.Steps = append(chain.Steps, current.Name)

			nextID := ""
			for _, next := range q.store.Edges(currentID, RelCausedBy) {
				nextID = next.TargetID
				break
			}
			currentID = nextID
		}
		if len(chain.Steps) > 0 {
			chains = append(chains, chain)
		}
	}
	return chains
}

func (q *QueryService) documents(node Node) []Node {
	var docs []Node
	for _, e := range q.store.Edges(node.ID, RelDescribedIn) {
		doc, err := q.store.GetNode(e.TargetID)
		if err != nil || doc.Type != TypeDocument {
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

func propInt(node Node, key string) int {
	v, err := strconv.Atoi(node.Properties[key])
	if err != nil {
		return 0
	}
	return v
}

func renderSummary(ctx Context) string {
	var sections []string

	if len(ctx.Entities) > 0 {
		var lines []string
		for _, n := range ctx.Entities {
			lines = append(lines, fmt.Sprintf("- %s (%s)", n.Name, n.Type))
		}
		sections = append(sections, "Entities:\n"+strings.Join(lines, "\n"))
	}

	if len(ctx.FailureChains) > 0 {
		var lines []string
		for _, c := range ctx.FailureChains {
			line := fmt.Sprintf("- %s / %s: %s", c.Equipment, c.Component, c.FailureMode)
			if c.RiskScore > 0 {
				line += fmt.Sprintf(" (RPN %d, S%d O%d D%d)", c.RiskScore, c.Severity, c.Occurrence, c.Detection)
			}
			if len(c.Effects) > 0 {
				line += "\n  effects: " + strings.Join(c.Effects, ", ")
			}
			if len(c.Causes) > 0 {
				line += "\n  causes: " + strings.Join(c.Causes, ", ")
			}
			if len(c.Interventions) > 0 {
				line += "\n  interventions: " + strings.Join(c.Interventions, ", ")
			}
			lines = append(lines, line)
		}
		sections = append(sections, "Failure chains:\n"+strings.Join(lines, "\n"))
	}

	if len(ctx.CausalChains) > 0 {
		var lines []string
		for _, c := range ctx.CausalChains {
			lines = append(lines, fmt.Sprintf("- %s <- %s", c.Start, strings.Join(c.Steps, " <- ")))
		}
		sections = append(sections, "Causal chains:\n"+strings.Join(lines, "\n"))
	}

	if len(ctx.Related) > 0 {
		var lines []string
		for _, n := range ctx.Related {
			lines = append(lines, fmt.Sprintf("- %s (%s)", n.Name, n.Type))
		}
		sections = append(sections, "Related entities:\n"+strings.Join(lines, "\n"))
	}

	if len(ctx.Documents) > 0 {
		var lines []string
		for _, n := range ctx.Documents {
			lines = append(lines, "- "+n.Name)
		}
		sections = append(sections, "Related documents:\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(sections, summarySeparator)
}
