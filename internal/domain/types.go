package domain

import "time"

// LoginMode selects which login flow mints a token.
type LoginMode string

const (
	ModeEmail  LoginMode = "email"
	ModeMobile LoginMode = "mobile"
)

// Token is a bearer token minted by a login flow and cached process-wide.
// ExpiresAt is zero when the server never told us a lifetime.
type Token struct {
	Value     string    `json:"value"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expiresAt"`
	Mode      LoginMode `json:"mode"`
}

// Valid reports whether the token can still be injected. A token with an
// unknown expiry is assumed valid until an explicit logout.
func (t *Token) Valid(now time.Time) bool {
	if t == nil || t.Value == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(t.ExpiresAt.Add(-30 * time.Second))
}

// AdRef identifies a posted listing. After a successful create all three
// fields are known; flows accept any subset and resolve the rest via GET.
type AdRef struct {
	AdID      int    `json:"ad_id"`
	ListingID int    `json:"ad_listing_id"`
	Slug      string `json:"slug"`
}

func (r AdRef) Complete() bool {
	return r.AdID > 0 && r.ListingID > 0 && r.Slug != ""
}

// Listing states reported by the my-ads endpoints.
const (
	StLive    = "st_live"
	StPending = "st_pending"
	StListing = "st_listing"
	StRemoved = "st_removed"
)
