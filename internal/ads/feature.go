package ads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adqa/internal/domain"
	"adqa/internal/jsondoc"
	"adqa/internal/payments"
)

// Feature runs the paid promotion cycle: pick an eligible week count for
// the price, buy the matching product, charge the wallet, and verify the
// featured_till date the server reports.
func (e *Engine) Feature(ctx context.Context, ref domain.AdRef) (int, error) {
	ref, err := e.Resolve(ctx, ref)
	if err != nil {
		return 0, err
	}
	meta, err := e.Store.Meta(e.Cat.Flow)
	if err != nil {
		return 0, err
	}
	price := meta.Price()
	weeks := ChooseWeeks(price, e.FeatureWeeks)

	products, err := e.Pay.ListProducts(ctx, ref.AdID)
	if err != nil {
		return 0, err
	}
	if err := e.Check.Status("products", products, 200); err != nil {
		return 0, err
	}
	productID, err := featureProduct(products.Doc, weeks)
	if err != nil {
		return 0, err
	}

	paymentID, _, err := e.Pay.ProceedCheckout(ctx, payments.CheckoutInput{
		ProductID: productID,
		SID:       ref.ListingID,
		SType:     "ad_listing",
	})
	if err != nil {
		return 0, err
	}
	if _, err := e.Store.UpdateMeta(e.Cat.Flow, map[string]any{"payment_id": paymentID}); err != nil {
		return 0, err
	}
	if err := e.Pay.PayWithWallet(ctx, paymentID); err != nil {
		return 0, err
	}
	e.phase("feature", ref)

	if err := e.verifyFeaturedTill(ctx, ref, weeks); err != nil {
		return weeks, err
	}
	return weeks, nil
}

// verifyFeaturedTill checks the wall-clock guarantee: featured_till must be
// at least weeks*7-1 days out (the server rounds the boundary day down).
func (e *Engine) verifyFeaturedTill(ctx context.Context, ref domain.AdRef, weeks int) error {
	details, err := e.Fetch(ctx, ref)
	if err != nil {
		return err
	}
	raw := details.Doc.FirstStr(
		e.Cat.TypedKey+".featured_till",
		"ad_listing.featured_till",
		"featured_till",
	)
	if raw == "" {
		return &domain.FlowError{Flow: e.Cat.Flow, Phase: "feature", Detail: "details carry no featured_till after payment"}
	}
	till, err := parseDate(raw)
	if err != nil {
		return &domain.FlowError{Flow: e.Cat.Flow, Phase: "feature", Detail: fmt.Sprintf("unparseable featured_till %q", raw)}
	}
	minDays := weeks*7 - 1
	days := int(time.Until(till).Hours() / 24)
	if days < minDays {
		return &domain.FlowError{
			Flow:   e.Cat.Flow,
			Phase:  "feature",
			Detail: fmt.Sprintf("featured_till %s is only %d days out, need >= %d", raw, days, minDays),
		}
	}
	return nil
}

// featureProduct finds the feature product matching the chosen week count,
// falling back to any feature product when weeks is not advertised.
func featureProduct(doc jsondoc.Doc, weeks int) (int, error) {
	var fallback int
	for _, key := range []string{"products", "data", "result", "items"} {
		arr, ok := doc.Array(key)
		if !ok {
			continue
		}
		for _, item := range arr {
			p := jsondoc.From(item)
			name := strings.ToLower(p.FirstStr("name", "title", "code"))
			if !strings.Contains(name, "feature") {
				continue
			}
			id, ok := p.FirstInt("id", "product_id")
			if !ok {
				continue
			}
			if w, ok := p.FirstInt("weeks", "duration_weeks", "duration"); ok && w == weeks {
				return id, nil
			}
			if fallback == 0 {
				fallback = id
			}
		}
	}
	if fallback != 0 {
		return fallback, nil
	}
	return 0, &domain.FlowError{Flow: "feature", Phase: "products", Detail: "no feature product in the product list"}
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "02 Jan 2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown date layout: %q", raw)
}
