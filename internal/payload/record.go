package payload

import "adqa/internal/jsondoc"

// Record is the per-flow metadata document. Flows write it at each phase
// transition and the next phase reads it back; it is never deleted
// mid-flow. Shapes vary per flow, so it stays a document with typed
// accessors rather than a struct.
type Record map[string]any

func (r Record) Int(key string) int {
	n, _ := jsondoc.CoerceInt(r[key])
	return n
}

func (r Record) Str(key string) string {
	if r[key] == nil {
		return ""
	}
	return jsondoc.Stringify(r[key])
}

// Bool reports the value plus whether the key held a boolean at all, so
// callers can tell an explicit false from an absent field.
func (r Record) Bool(key string) (value, present bool) {
	value, present = r[key].(bool)
	return value, present
}

func (r Record) AdID() int      { return r.Int("ad_id") }
func (r Record) ListingID() int { return r.Int("ad_listing_id") }
func (r Record) Slug() string   { return r.Str("slug") }
func (r Record) Price() int     { return r.Int("price") }
func (r Record) PaymentID() string {
	return r.Str("payment_id")
}
