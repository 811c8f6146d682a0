package search

import (
	"strings"

	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/jsondoc"
)

// Evaluate checks every element of the result array against the conjunction
// of all predicates and stops at the first violation.
func Evaluate(preds []Predicate, page jsondoc.Doc) error {
	results, _ := page.Array("result")
	for i, item := range results {
		ad := jsondoc.From(item)
		for _, p := range preds {
			if v := check(p, ad, i); v != nil {
				return v
			}
		}
	}
	return nil
}

func check(p Predicate, ad jsondoc.Doc, index int) *domain.FilterViolation {
	if p.IsRange {
		actual, ok := ad.Int(p.Field)
		if !ok {
			return &domain.FilterViolation{Index: index, Field: p.Field, Expected: p.String(), Actual: ad.Str(p.Field)}
		}
		if !inRange(p, actual) {
			return &domain.FilterViolation{Index: index, Field: p.Field, Expected: p.String(), Actual: actual}
		}
		return nil
	}

	actual := ad.Str(p.Field)
	for _, allowed := range p.Allowed {
		if strings.EqualFold(actual, allowed) {
			return nil
		}
	}
	return &domain.FilterViolation{Index: index, Field: p.Field, Expected: p.Allowed, Actual: actual}
}

func inRange(p Predicate, actual int) bool {
	switch p.Mode {
	case Less:
		return actual < p.High
	case More:
		return actual > p.Low
	default:
		return actual >= p.Low && actual <= p.High
	}
}

// VerifyListing is the full contract for one search call: parse the request
// path into predicates and assert the page satisfies all of them.
func VerifyListing(path string, resp httpc.Response) error {
	preds, err := Parse(path)
	if err != nil {
		return err
	}
	return Evaluate(preds, resp.Doc)
}
