package router

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/OFFIS-RIT/lemur/backend/pkg/common"
)

var (
	// Formal equipment codes like "P-101", "Pump-12", "HX-204A".
	equipmentCodePattern = regexp.MustCompile(`\b[A-Za-z]{1,12}-\d{1,5}[A-Za-z]?\b`)

	relativeRangePattern = regexp.MustCompile(`\blast (\d+) (days?|weeks?|months?|years?)\b`)
	namedRangePattern    = regexp.MustCompile(`\b(last|this|past) (week|month|quarter|year)\b`)
	absoluteDatePattern  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

	// The % alternative sits outside the \b: a word boundary never
	// follows "%" at the end of a token.
	quantityPattern = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(%|(?:hours?|hrs?|days?|minutes?|bar|psi|rpm|kw|°c|degrees?|liters?|litres?|percent)\b)`)
)

// componentTerms are common component and part words recognized even
// without reference data.
var componentTerms = []string{
	"seal", "bearing", "valve", "motor", "pump", "filter", "gasket",
	"belt", "sensor", "coupling", "impeller", "shaft", "rotor",
	"compressor", "gearbox", "actuator", "hose", "o-ring", "fan",
}

// Extractor pulls equipment, components, technicians, dates, and
// quantities out of raw query text. Extraction never fails; absent
// entities leave their fields empty.
type Extractor struct {
	equipment   []string
	technicians []string
	now         func() time.Time
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithEquipmentNames supplies known equipment display names for
// free-text matching.
func WithEquipmentNames(names []string) ExtractorOption {
	return func(e *Extractor) {
		e.equipment = names
	}
}

// WithTechnicianNames supplies known technician names.
func WithTechnicianNames(names []string) ExtractorOption {
	return func(e *Extractor) {
		e.technicians = names
	}
}

// WithNow replaces the time source relative dates are anchored on.
func WithNow(now func() time.Time) ExtractorOption {
	return func(e *Extractor) {
		e.now = now
	}
}

// NewExtractor creates an extractor. Reference data is optional; without
// it only pattern-based extraction applies.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs every extraction pass over the query.
func (e *Extractor) Extract(query string) common.ExtractedEntities {
	text := strings.TrimSpace(query)
	lower := strings.ToLower(text)

	return common.ExtractedEntities{
		Equipment:   e.extractEquipment(text, lower),
		Components:  extractComponents(lower),
		Technicians: e.extractTechnicians(lower),
		Quantities:  extractQuantities(lower),
		DateRange:   e.extractDateRange(lower),
	}
}

func (e *Extractor) extractEquipment(text, lower string) []string {
	seen := make(map[string]bool)
	var out []string

	for _, code := range equipmentCodePattern.FindAllString(text, -1) {
		if absoluteDatePattern.MatchString(code) {
			continue
		}
		key := strings.ToLower(code)
		if !seen[key] {
			seen[key] = true
			out = append(out, code)
		}
	}

	for _, name := range e.equipment {
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		if strings.Contains(lower, key) {
			seen[key] = true
			out = append(out, name)
		}
	}

	return out
}

func extractComponents(lower string) []string {
	var out []string
	for _, term := range componentTerms {
		if containsWord(lower, term) {
			out = append(out, term)
		}
	}
	return out
}

func (e *Extractor) extractTechnicians(lower string) []string {
	var out []string
	for _, name := range e.technicians {
		if strings.Contains(lower, strings.ToLower(name)) {
			out = append(out, name)
		}
	}
	return out
}

func extractQuantities(lower string) []common.Quantity {
	var out []common.Quantity
	for _, m := range quantityPattern.FindAllStringSubmatch(lower, -1) {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		out = append(out, common.Quantity{Value: value, Unit: m[2]})
	}
	return out
}

// extractDateRange resolves relative expressions anchored on "today"
// first, then named calendar ranges, then absolute dates. Absolute
// dates come as a pair when two are present, otherwise the single date
// spans one day.
func (e *Extractor) extractDateRange(lower string) common.DateRange {
	today := e.now()

	if m := relativeRangePattern.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return common.DateRange{From: shiftBack(today, n, m[2]), To: today}
		}
	}

	if m := namedRangePattern.FindStringSubmatch(lower); m != nil {
		return namedRange(today, m[1], m[2])
	}

	if dates := absoluteDatePattern.FindAllString(lower, -1); len(dates) > 0 {
		from, errFrom := dateparse.ParseAny(dates[0])
		if errFrom == nil {
			to := from.AddDate(0, 0, 1)
			if len(dates) > 1 {
				if parsed, err := dateparse.ParseAny(dates[1]); err == nil {
					to = parsed
				}
			}
			if to.Before(from) {
				from, to = to, from
			}
			return common.DateRange{From: from, To: to}
		}
	}

	return common.DateRange{}
}

func shiftBack(anchor time.Time, n int, unit string) time.Time {
	switch strings.TrimSuffix(unit, "s") {
	case "day":
		return anchor.AddDate(0, 0, -n)
	case "week":
		return anchor.AddDate(0, 0, -7*n)
	case "month":
		return anchor.AddDate(0, -n, 0)
	case "year":
		return anchor.AddDate(-n, 0, 0)
	}
	return anchor
}

func namedRange(anchor time.Time, qualifier, unit string) common.DateRange {
	year, month, day := anchor.Date()
	loc := anchor.Location()

	var start, end time.Time
	switch unit {
	case "week":
		weekday := int(anchor.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = time.Date(year, month, day-weekday+1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 7)
	case "month":
		start = time.Date(year, month, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	case "quarter":
		qMonth := time.Month((int(month)-1)/3*3 + 1)
		start = time.Date(year, qMonth, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 3, 0)
	case "year":
		start = time.Date(year, 1, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(1, 0, 0)
	default:
		return common.DateRange{}
	}

	if qualifier == "last" || qualifier == "past" {
		switch unit {
		case "week":
			start, end = start.AddDate(0, 0, -7), start
		case "month":
			start, end = start.AddDate(0, -1, 0), start
		case "quarter":
			start, end = start.AddDate(0, -3, 0), start
		case "year":
			start, end = start.AddDate(-1, 0, 0), start
		}
	} else if end.After(anchor) {
		// "this ..." ranges never extend past today
		end = anchor
	}

	return common.DateRange{From: start, To: end}
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordChar(text[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(text) || !isWordChar(text[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(word)
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-'
}
