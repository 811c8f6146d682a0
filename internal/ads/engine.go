package ads

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/jsondoc"
	"adqa/internal/observability"
	"adqa/internal/payload"
	"adqa/internal/payments"
	"adqa/internal/poll"
	"adqa/internal/validate"
)

// Fields read back before an edit and merged into the outgoing body so the
// server never sees them blank.
var preservedFields = []string{"engine_type", "engine_capacity", "model_year"}

type Engine struct {
	Client *httpc.Client
	Check  *validate.Validator
	Store  *payload.Store
	Pay    *payments.Orchestrator
	Cat    Category

	FCMToken     string
	FeatureWeeks int // env override; honored only when eligible
	PictureID    int // injected into the submit payload when set
	LocationID   int // injected into the submit payload when set

	VisiblePlan poll.Plan
	Log         *slog.Logger
}

func NewEngine(client *httpc.Client, check *validate.Validator, store *payload.Store, pay *payments.Orchestrator, cat Category) *Engine {
	return &Engine{
		Client:      client,
		Check:       check,
		Store:       store,
		Pay:         pay,
		Cat:         cat,
		VisiblePlan: poll.Plan{Attempts: 6, Delay: 5 * time.Second},
		Log:         slog.Default(),
	}
}

// Submit posts the category's payload template and records the resulting
// identifier tuple in flow metadata.
func (e *Engine) Submit(ctx context.Context) (domain.AdRef, error) {
	tpl, err := e.Store.Template(e.Cat.Template)
	if err != nil {
		return domain.AdRef{}, err
	}
	if e.PictureID > 0 || e.LocationID > 0 {
		typed := e.typedBody(tpl)
		if e.PictureID > 0 {
			typed["picture_ids"] = []any{e.PictureID}
		}
		if e.LocationID > 0 {
			typed["location_id"] = e.LocationID
		}
	}

	resp, err := e.Client.Do(ctx, httpc.Request{
		Method:   http.MethodPost,
		Endpoint: e.Cat.Path + ".json",
		Body:     tpl,
	})
	if err != nil {
		return domain.AdRef{}, err
	}
	if err := e.Check.Status(e.Cat.Path+".json", resp, 200); err != nil {
		return domain.AdRef{}, err
	}
	_ = e.Check.Elapsed(e.Cat.Path+".json", resp)
	if err := e.Check.Schema(resp, e.Cat.Name+"/post_response.json"); err != nil {
		return domain.AdRef{}, err
	}

	ref := e.refFromDoc(resp.Doc)
	if ref.AdID == 0 {
		return ref, &domain.FlowError{Flow: e.Cat.Flow, Phase: "submit", Detail: "create response carried no ad id"}
	}

	price, _ := jsondoc.From(tpl).FirstInt(e.Cat.TypedKey+".price", "price")
	if _, err := e.Store.UpdateMeta(e.Cat.Flow, map[string]any{
		"ad_id":         ref.AdID,
		"ad_listing_id": ref.ListingID,
		"slug":          ref.Slug,
		"price":         price,
		"api_version":   e.Client.APIVersion,
	}); err != nil {
		return ref, err
	}
	e.phase("submit", ref)
	return ref, nil
}

// Fetch reads current ad details, preferring the slug endpoint.
func (e *Engine) Fetch(ctx context.Context, ref domain.AdRef) (httpc.Response, error) {
	endpoint := e.detailsEndpoint(ref)
	if endpoint == "" {
		return httpc.Response{}, &domain.FlowError{Flow: e.Cat.Flow, Phase: "fetch", Detail: "neither slug nor ad id known"}
	}
	resp, err := e.Client.Do(ctx, httpc.Request{Method: http.MethodGet, Endpoint: endpoint})
	if err != nil {
		return resp, err
	}
	if err := e.Check.Status(endpoint, resp, 200); err != nil {
		return resp, err
	}
	_ = e.Check.Elapsed(endpoint, resp)
	return resp, nil
}

// Resolve accepts any subset of the identifier tuple and synthesizes the
// rest from a GET. An empty ref resumes from the flow metadata a previous
// phase recorded, so feature/close/reactivate can run as separate
// invocations after a submit.
func (e *Engine) Resolve(ctx context.Context, ref domain.AdRef) (domain.AdRef, error) {
	ref.Slug = Normalize(ref.Slug)
	if ref.AdID == 0 && ref.Slug == "" {
		if meta, err := e.Store.Meta(e.Cat.Flow); err == nil {
			ref.AdID = meta.AdID()
			ref.ListingID = meta.ListingID()
			ref.Slug = Normalize(meta.Slug())
		}
	}
	if ref.AdID == 0 && ref.Slug != "" {
		if id, ok := AdIDFrom(ref.Slug); ok {
			ref.AdID = id
		}
	}
	if ref.Complete() {
		return ref, nil
	}
	resp, err := e.Fetch(ctx, ref)
	if err != nil {
		return ref, err
	}
	fetched := e.refFromDoc(resp.Doc)
	if ref.AdID == 0 {
		ref.AdID = fetched.AdID
	}
	if ref.ListingID == 0 {
		ref.ListingID = fetched.ListingID
	}
	if ref.Slug == "" {
		ref.Slug = fetched.Slug
	}
	return ref, nil
}

// Edit PUTs changes over the existing listing. Required fields are read
// back first and merged into the body so the update never blanks them; the
// listing id always rides along in ad_listing_attributes.id.
func (e *Engine) Edit(ctx context.Context, ref domain.AdRef, changes map[string]any) error {
	ref, err := e.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	details, err := e.Fetch(ctx, ref)
	if err != nil {
		return err
	}

	tpl, err := e.Store.Template(e.Cat.Template)
	if err != nil {
		return err
	}
	typed := e.typedBody(tpl)
	for k, v := range changes {
		typed[k] = v
	}
	if err := e.preserveFields(details.Doc, typed); err != nil {
		return err
	}
	typed["ad_listing_attributes"] = map[string]any{"id": ref.ListingID}

	endpoint := fmt.Sprintf("%s/%d.json", e.Cat.Path, ref.AdID)
	resp, err := e.Client.Do(ctx, httpc.Request{Method: http.MethodPut, Endpoint: endpoint, Body: tpl})
	if err != nil {
		return err
	}
	if err := e.Check.Status(endpoint, resp, 200); err != nil {
		return err
	}
	_ = e.Check.Elapsed(endpoint, resp)
	e.phase("edit", ref)
	return nil
}

// Close transitions the listing to CLOSED, trying the endpoint variants in
// order until one answers 2xx.
func (e *Engine) Close(ctx context.Context, ref domain.AdRef) error {
	ref, err := e.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	var attempts []httpc.Attempt
	if ref.Slug != "" {
		attempts = append(attempts, httpc.Attempt{
			Name: "slug close",
			Req:  httpc.Request{Method: http.MethodPost, Endpoint: Normalize(ref.Slug) + "/close.json"},
		})
	}
	if ref.ListingID > 0 {
		attempts = append(attempts, httpc.Attempt{
			Name: "listing-id close",
			Req:  httpc.Request{Method: http.MethodPost, Endpoint: fmt.Sprintf("%s/%d/close.json", e.Cat.Path, ref.ListingID)},
		})
	}
	if ref.AdID > 0 {
		attempts = append(attempts, httpc.Attempt{
			Name: "ad-id close",
			Req:  httpc.Request{Method: http.MethodPost, Endpoint: fmt.Sprintf("%s/%d/close.json", e.Cat.Path, ref.AdID)},
		})
	}
	_, variant, err := e.Client.FirstOK(ctx, attempts)
	if err != nil {
		return err
	}
	e.Log.Info("ad closed", "flow", e.Cat.Flow, "variant", variant, "ad_id", ref.AdID)
	e.phase("close", ref)
	return nil
}

// Reactivate brings a closed listing back. Refresh answers 200 or 304 (a
// 304 is an idempotent no-op); the activate variants are fallbacks. The
// my-ads poll then confirms the ad surfaced in a live-ish bucket.
func (e *Engine) Reactivate(ctx context.Context, ref domain.AdRef) (string, error) {
	ref, err := e.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	slug := Normalize(ref.Slug)
	query := map[string]string{}
	if e.FCMToken != "" {
		query["fcm_token"] = e.FCMToken
	}

	resp, err := e.Client.Do(ctx, httpc.Request{
		Method:   http.MethodGet,
		Endpoint: slug + "/refresh.json",
		Query:    query,
	})
	ok := err == nil && (resp.OK() || resp.Status == http.StatusNotModified)
	if !ok {
		_, _, err = e.Client.FirstOK(ctx, []httpc.Attempt{
			{Name: "activate POST", Req: httpc.Request{Method: http.MethodPost, Endpoint: slug + "/activate.json", Query: query}},
			{Name: "activate GET", Req: httpc.Request{Method: http.MethodGet, Endpoint: slug + "/activate.json", Query: query}},
		})
		if err != nil {
			return "", err
		}
	}
	e.phase("reactivate", ref)

	state, err := e.WaitVisible(ctx, ref)
	if err != nil {
		return "", err
	}
	return state, nil
}

// WaitVisible polls the owner's my-ads buckets in order until the listing
// shows up in one of them.
func (e *Engine) WaitVisible(ctx context.Context, ref domain.AdRef) (string, error) {
	states := []string{domain.StLive, domain.StPending, domain.StListing}
	state, err := poll.Until(ctx, e.VisiblePlan, func(ctx context.Context) (string, error) {
		for _, st := range states {
			found, err := e.inMyAds(ctx, ref, st)
			if err != nil {
				return "", err
			}
			if found {
				return st, nil
			}
		}
		e.Log.Info("ad not visible yet", "flow", e.Cat.Flow, "ad_id", ref.AdID)
		return "", poll.ErrRetry
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &domain.FlowError{Flow: e.Cat.Flow, Phase: "reactivate", Detail: "ad never surfaced in my-ads after reactivation"}
	}
	return state, nil
}

// Removed reports whether the listing sits in the st_removed bucket.
func (e *Engine) Removed(ctx context.Context, ref domain.AdRef) (bool, error) {
	return e.inMyAds(ctx, ref, domain.StRemoved)
}

func (e *Engine) inMyAds(ctx context.Context, ref domain.AdRef, state string) (bool, error) {
	resp, err := e.Client.Do(ctx, httpc.Request{
		Method:   http.MethodGet,
		Endpoint: "/users/my-ads.json",
		Query:    map[string]string{"status": state},
	})
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		return false, &domain.UnexpectedStatus{Endpoint: "/users/my-ads.json", Want: []int{200}, Got: resp.Status}
	}
	for _, key := range []string{"result", "ads", "data"} {
		arr, ok := resp.Doc.Array(key)
		if !ok {
			continue
		}
		for _, item := range arr {
			ad := jsondoc.From(item)
			if id, ok := ad.FirstInt("ad_id", "id"); ok && id == ref.AdID {
				return true, nil
			}
			if slug := ad.FirstStr("slug", "url"); slug != "" && Normalize(slug) == Normalize(ref.Slug) {
				return true, nil
			}
		}
	}
	return false, nil
}

// refFromDoc extracts the identifier tuple using the canonical precedence:
// ad_listing, then the typed sub-document, then top level.
func (e *Engine) refFromDoc(doc jsondoc.Doc) domain.AdRef {
	typed := e.Cat.TypedKey
	ref := domain.AdRef{}
	if id, ok := doc.FirstInt("ad_listing.ad_id", typed+".ad_id", "ad_id"); ok {
		ref.AdID = id
	}
	if id, ok := doc.FirstInt("ad_listing.id", typed+".ad_listing_id", "ad_listing_id"); ok {
		ref.ListingID = id
	}
	ref.Slug = Normalize(doc.FirstStr("ad_listing.slug", typed+".slug", "slug", "url"))
	if ref.AdID == 0 && ref.Slug != "" {
		if id, ok := AdIDFrom(ref.Slug); ok {
			ref.AdID = id
		}
	}
	return ref
}

// preserveFields merges engine_type/engine_capacity/model_year from the
// current details into the outgoing typed body. Numeric fields are coerced
// by stripping non-digits; a value with no digits refuses the request
// rather than sending garbage.
func (e *Engine) preserveFields(details jsondoc.Doc, typed map[string]any) error {
	for _, field := range preservedFields {
		if _, present := typed[field]; present && typed[field] != nil && typed[field] != "" {
			if err := coerceInPlace(typed, field); err != nil {
				return err
			}
			continue
		}
		v, ok := details.First(
			e.Cat.TypedKey+"."+field,
			"ad_listing_attributes."+field,
			e.Cat.TypedKey+".ad_listing_attributes."+field,
			field,
		)
		if !ok {
			continue
		}
		typed[field] = v
		if err := coerceInPlace(typed, field); err != nil {
			return err
		}
	}
	return nil
}

func coerceInPlace(typed map[string]any, field string) error {
	if field == "engine_type" {
		return nil // categorical, not numeric
	}
	n, ok := jsondoc.CoerceInt(typed[field])
	if !ok {
		return &domain.FlowError{
			Flow:   "edit",
			Phase:  "preserve",
			Detail: fmt.Sprintf("field %s value %v has no digits to coerce", field, typed[field]),
		}
	}
	typed[field] = n
	return nil
}

// typedBody returns the typed sub-document of a payload, wrapping flat
// templates under the category key.
func (e *Engine) typedBody(tpl map[string]any) map[string]any {
	if nested, ok := tpl[e.Cat.TypedKey].(map[string]any); ok {
		return nested
	}
	nested := map[string]any{}
	for k, v := range tpl {
		nested[k] = v
		delete(tpl, k)
	}
	tpl[e.Cat.TypedKey] = nested
	return nested
}

func (e *Engine) detailsEndpoint(ref domain.AdRef) string {
	if ref.Slug != "" {
		return JSON(ref.Slug)
	}
	if ref.AdID > 0 {
		return e.Cat.Path + "/" + strconv.Itoa(ref.AdID) + ".json"
	}
	return ""
}

func (e *Engine) phase(phase string, ref domain.AdRef) {
	observability.FlowPhases.WithLabelValues(e.Cat.Flow, phase).Inc()
	e.Log.Info("flow phase",
		"flow", e.Cat.Flow,
		"phase", phase,
		"ad_id", ref.AdID,
		"ad_listing_id", ref.ListingID,
		"slug", ref.Slug,
	)
}
