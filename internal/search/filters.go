// Package search decodes filter slugs into semantic predicates and asserts
// every result in a listing page satisfies them. Parsing, evaluation, and
// reporting are separate so each is testable on its own.
package search

import (
	"fmt"
	"strings"
)

// RangeMode distinguishes the three range shapes a slug can carry.
type RangeMode int

const (
	Between RangeMode = iota // pr_A_B: inclusive on both endpoints
	Less                     // pr_Less_B: strictly below B
	More                     // pr_A_More: strictly above A
)

// Predicate is one decoded filter: either a discrete allowed-set or a
// numeric range over a (possibly nested) field path.
type Predicate struct {
	Prefix string
	Field  string // dot path, e.g. user.user_type

	// discrete
	Allowed []string

	// range
	IsRange bool
	Mode    RangeMode
	Low     int
	High    int
}

func (p Predicate) String() string {
	if !p.IsRange {
		return fmt.Sprintf("%s in %v", p.Field, p.Allowed)
	}
	switch p.Mode {
	case Less:
		return fmt.Sprintf("%s < %d", p.Field, p.High)
	case More:
		return fmt.Sprintf("%s > %d", p.Field, p.Low)
	default:
		return fmt.Sprintf("%d <= %s <= %d", p.Low, p.Field, p.High)
	}
}

type prefixSpec struct {
	field   string
	isRange bool
}

// Prefix → field-path table. Range prefixes compare numerically.
var prefixes = map[string]prefixSpec{
	"ct":       {field: "city_name"},
	"ca":       {field: "city_area"},
	"tr":       {field: "transmission"},
	"mk":       {field: "make"},
	"md":       {field: "model"},
	"vr":       {field: "version"},
	"cl":       {field: "exterior_color"},
	"bt":       {field: "body_type"},
	"eg":       {field: "engine_type"},
	"seller":   {field: "user.user_type"},
	"assembly": {field: "assembly"},
	"pr":       {field: "price", isRange: true},
	"ml":       {field: "mileage", isRange: true},
	"yr":       {field: "model_year", isRange: true},
	"ec":       {field: "engine_capacity", isRange: true},
}

// Parse decodes the filter segments of a search path: everything between
// "/-/" and ".json", one "<prefix>_<value>" (or "<prefix>_<low>_<high>")
// predicate per segment. Unknown prefixes are rejected so typos in test
// inputs fail loud.
func Parse(path string) ([]Predicate, error) {
	_, filters, ok := strings.Cut(path, "/-/")
	if !ok {
		return nil, nil // no filter section
	}
	filters = strings.TrimSuffix(filters, ".json")
	filters = strings.Trim(filters, "/")
	if filters == "" {
		return nil, nil
	}

	var preds []Predicate
	discrete := map[string]int{} // prefix -> index in preds
	for _, seg := range strings.Split(filters, "/") {
		if seg == "" {
			continue
		}
		pred, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}
		// repeated discrete prefixes widen one predicate's allowed set;
		// /mk_toyota/mk_honda/ means "toyota or honda", not both at once
		if !pred.IsRange {
			if at, seen := discrete[pred.Prefix]; seen {
				preds[at].Allowed = append(preds[at].Allowed, pred.Allowed...)
				continue
			}
			discrete[pred.Prefix] = len(preds)
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

func parseSegment(seg string) (Predicate, error) {
	prefix, rest, ok := strings.Cut(seg, "_")
	if !ok {
		return Predicate{}, fmt.Errorf("filter segment %q has no value", seg)
	}
	spec, known := prefixes[prefix]
	if !known {
		return Predicate{}, fmt.Errorf("unknown filter prefix %q in segment %q", prefix, seg)
	}

	if spec.isRange {
		return parseRange(prefix, spec.field, rest)
	}
	return Predicate{
		Prefix:  prefix,
		Field:   spec.field,
		Allowed: []string{DecodeValue(rest)},
	}, nil
}

func parseRange(prefix, field, rest string) (Predicate, error) {
	parts := strings.Split(rest, "_")
	if len(parts) != 2 {
		return Predicate{}, fmt.Errorf("range segment %s_%s needs exactly two bounds", prefix, rest)
	}
	p := Predicate{Prefix: prefix, Field: field, IsRange: true}
	lo, hi := parts[0], parts[1]
	switch {
	case strings.EqualFold(lo, "less"):
		n, err := atoi(hi)
		if err != nil {
			return Predicate{}, fmt.Errorf("range %s_%s: %w", prefix, rest, err)
		}
		p.Mode, p.High = Less, n
	case strings.EqualFold(hi, "more"):
		n, err := atoi(lo)
		if err != nil {
			return Predicate{}, fmt.Errorf("range %s_%s: %w", prefix, rest, err)
		}
		p.Mode, p.Low = More, n
	default:
		low, err := atoi(lo)
		if err != nil {
			return Predicate{}, fmt.Errorf("range %s_%s: %w", prefix, rest, err)
		}
		high, err := atoi(hi)
		if err != nil {
			return Predicate{}, fmt.Errorf("range %s_%s: %w", prefix, rest, err)
		}
		p.Mode, p.Low, p.High = Between, low, high
	}
	return p, nil
}

// DecodeValue maps a slug value to the display form the API answers with:
// title-cased, single hyphens become spaces, doubled hyphens survive as a
// literal " - " ("dha-defence--7" -> "Dha Defence - 7").
func DecodeValue(v string) string {
	pieces := strings.Split(v, "--")
	for i, piece := range pieces {
		words := strings.Split(piece, "-")
		for j, w := range words {
			words[j] = title(w)
		}
		pieces[i] = strings.Join(words, " ")
	}
	return strings.Join(pieces, " - ")
}

func title(w string) string {
	if w == "" {
		return w
	}
	if w[0] >= 'a' && w[0] <= 'z' {
		return string(w[0]-'a'+'A') + w[1:]
	}
	return w
}

func atoi(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty bound")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("bound %q is not numeric", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
