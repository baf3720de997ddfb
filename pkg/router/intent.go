package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/lemur/backend/pkg/common"
)

// defaultConfidenceThreshold is the minimum family score needed for a
// single-route classification. Below it the query is handled as HYBRID.
const defaultConfidenceThreshold = 0.6

// causalBoostFloor is the relationship score above which the presence
// of causal keywords forces the relationship route.
const causalBoostFloor = 0.5

// Classification is the classifier's verdict for one query, including
// the full score vector for explainability.
type Classification struct {
	Intent        common.IntentFamily            `json:"intent"`
	Confidence    float64                        `json:"confidence"`
	Scores        map[common.IntentFamily]float64 `json:"scores"`
	AnalyticsKind common.AnalyticsKind           `json:"analytics_kind,omitempty"`
	Reasoning     string                         `json:"reasoning"`
}

type weightedTerm struct {
	pattern *regexp.Regexp
	weight  float64
}

func term(expr string, weight float64) weightedTerm {
	return weightedTerm{pattern: regexp.MustCompile(expr), weight: weight}
}

// Curated term sets per intent family. Weights are tuned so that one
// strong domain keyword plus one supporting cue clears the default
// threshold, while a single generic word does not.
var (
	analyticsTerms = []weightedTerm{
		term(`\b(availability|uptime|downtime)\b`, 0.45),
		term(`\bmtbf\b|\bmean time between\b`, 0.5),
		term(`\bmttr\b|\bmean time to repair\b|\brepair time\b`, 0.5),
		term(`\bcosts?\b|\bexpenses?\b|\bspend(ing)?\b`, 0.45),
		term(`\bhow many\b|\bhow often\b|\bnumber of\b|\bcount of\b`, 0.45),
		term(`\btrends?\b|\bover time\b|\bincreas(e|ing)\b|\bdecreas(e|ing)\b`, 0.4),
		term(`\baverage\b|\btotal\b|\bper (month|week|year|quarter)\b`, 0.25),
		term(`\b(last|this|past) (week|month|quarter|year)\b|\blast \d+ (days?|weeks?|months?|years?)\b`, 0.25),
	}

	documentTerms = []weightedTerm{
		term(`\bhow (do|to|can) i\b|\bhow to\b`, 0.45),
		term(`\bprocedures?\b|\binstructions?\b|\bsteps\b|\bchecklist\b`, 0.5),
		term(`\bmanuals?\b|\bdatasheets?\b|\bspecifications?\b|\bdocumented\b`, 0.5),
		term(`\binstall(ation)?\b|\bcalibrat(e|ion)\b|\bdisassembl(e|y)\b|\blubricat(e|ion)\b`, 0.35),
		term(`\bwhat (is|are) the\b|\bshow me\b|\bfind\b|\blook up\b`, 0.2),
		term(`\bsafety\b|\bwarning\b|\btorque\b|\bsettings?\b`, 0.25),
	}

	relationshipTerms = []weightedTerm{
		term(`\bwhy\b|\broot cause\b|\bcaused? by\b|\breason for\b`, 0.45),
		term(`\bkeeps? (failing|breaking|leaking|tripping)\b`, 0.4),
		term(`\bfail(s|ing|ures?)?\b|\bbreak(s|ing|downs?)?\b|\bfaults?\b`, 0.25),
		term(`\bleads? to\b|\bresults? in\b|\beffects? of\b|\bimpact of\b`, 0.4),
		term(`\b(related|connected|linked) to\b|\bdepends? on\b|\baffects?\b`, 0.35),
		term(`\bwhich (components?|parts?|equipment)\b`, 0.25),
	}

	causalCue = regexp.MustCompile(`\bwhy\b|\broot cause\b|\bcaused? by\b|\bleads? to\b|\bresults? in\b`)
)

// kindPattern maps analytics phrasing to a concrete metric. Order
// matters: the first match wins.
type kindPattern struct {
	kind    common.AnalyticsKind
	pattern *regexp.Regexp
}

var kindPatterns = []kindPattern{
	{common.KindMTBF, regexp.MustCompile(`\bmtbf\b|\bmean time between\b|\btime between failures?\b`)},
	{common.KindMTTR, regexp.MustCompile(`\bmttr\b|\bmean time to repair\b|\brepair time\b|\bhow long .* (repair|fix)\b`)},
	{common.KindAvailability, regexp.MustCompile(`\bavailability\b|\buptime\b|\bdowntime\b`)},
	{common.KindCost, regexp.MustCompile(`\bcosts?\b|\bexpenses?\b|\bspend(ing)?\b`)},
	{common.KindCount, regexp.MustCompile(`\bhow many\b|\bhow often\b|\bnumber of\b|\bcount of\b`)},
	{common.KindTrend, regexp.MustCompile(`\btrends?\b|\bover time\b|\bincreas(e|ing)\b|\bdecreas(e|ing)\b`)},
}

// Classifier scores queries against the three intent families. It is a
// pure function of the query text, no external calls, no randomness.
type Classifier struct {
	threshold float64
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithConfidenceThreshold overrides the single-route threshold.
func WithConfidenceThreshold(threshold float64) ClassifierOption {
	return func(c *Classifier) {
		if threshold > 0 && threshold <= 1 {
			c.threshold = threshold
		}
	}
}

// NewClassifier creates a classifier with the default threshold.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{threshold: defaultConfidenceThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify scores the query against each family and picks the route.
func (c *Classifier) Classify(query string) Classification {
	text := strings.ToLower(strings.TrimSpace(query))

	scores := map[common.IntentFamily]float64{
		common.IntentAnalytics:    scoreTerms(text, analyticsTerms),
		common.IntentDocument:     scoreTerms(text, documentTerms),
		common.IntentRelationship: scoreTerms(text, relationshipTerms),
	}

	result := Classification{Scores: scores}
	if kind, ok := matchKind(text); ok {
		result.AnalyticsKind = kind
	}

	best, bestScore := maxScore(scores)

	// Causal phrasing overrides a marginally higher score elsewhere.
	if causalCue.MatchString(text) && scores[common.IntentRelationship] > causalBoostFloor {
		result.Intent = common.IntentRelationship
		result.Confidence = scores[common.IntentRelationship]
		result.Reasoning = "causal phrasing with strong relationship score"
		return result
	}

	if bestScore >= c.threshold {
		result.Intent = best
		result.Confidence = bestScore
		result.Reasoning = fmt.Sprintf("%s scored %.2f, at or above threshold %.2f", best, bestScore, c.threshold)
		return result
	}

	result.Intent = common.IntentHybrid
	result.Confidence = 1 - bestScore
	result.Reasoning = fmt.Sprintf("no family reached threshold %.2f, best was %s at %.2f", c.threshold, best, bestScore)
	return result
}

func scoreTerms(text string, terms []weightedTerm) float64 {
	score := 0.0
	for _, t := range terms {
		if t.pattern.MatchString(text) {
			score += t.weight
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func matchKind(text string) (common.AnalyticsKind, bool) {
	for _, kp := range kindPatterns {
		if kp.pattern.MatchString(text) {
			return kp.kind, true
		}
	}
	return "", false
}

func maxScore(scores map[common.IntentFamily]float64) (common.IntentFamily, float64) {
	families := make([]common.IntentFamily, 0, len(scores))
	for f := range scores {
		families = append(families, f)
	}
	// deterministic tie-break on family name
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })

	best := families[0]
	for _, f := range families[1:] {
		if scores[f] > scores[best] {
			best = f
		}
	}
	return best, scores[best]
}
