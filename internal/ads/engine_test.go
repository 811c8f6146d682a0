package ads

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/payload"
	"adqa/internal/payments"
	"adqa/internal/poll"
	"adqa/internal/testserver"
	"adqa/internal/validate"
)

type staticTokens struct{}

func (staticTokens) Token(context.Context) (string, string, error) {
	return "tok-test", "Bearer", nil
}

func newTestEngine(t *testing.T, cat Category) (*Engine, *testserver.Server) {
	t.Helper()
	ts := testserver.New()
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)

	client := httpc.New(srv.URL, "17")
	client.Tokens = staticTokens{}

	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "payloads"), 0o755))
	tpl := `{
		"used_car": {
			"make": "Toyota", "model": "Corolla", "model_year": 2018,
			"price": 3250000, "engine_type": "Petrol", "engine_capacity": "1300 cc",
			"transmission": "Manual"
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "payloads", cat.Template+".json"), []byte(tpl), 0o644))

	store := payload.NewStore(dataDir, t.TempDir())
	check := validate.New(filepath.Join(dataDir, "schemas"), filepath.Join(dataDir, "expected_responses"), 30*time.Second)

	pay := payments.New(client, "03001234567", "42101-1234567-1", false)
	pay.Plan = poll.Plan{Attempts: 10, Delay: time.Millisecond}

	e := NewEngine(client, check, store, pay, cat)
	e.VisiblePlan = poll.Plan{Attempts: 5, Delay: time.Millisecond}
	return e, ts
}

func TestSubmitRecordsIdentifierTuple(t *testing.T) {
	e, ts := newTestEngine(t, UsedCar)

	ref, err := e.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, ref.Complete(), "ref %+v", ref)
	assert.NotNil(t, ts.Ad(ref.AdID))

	meta, err := e.Store.Meta(UsedCar.Flow)
	require.NoError(t, err)
	assert.Equal(t, ref.AdID, meta.AdID())
	assert.Equal(t, ref.ListingID, meta.ListingID())
	assert.Equal(t, ref.Slug, meta.Slug())
	assert.Equal(t, 3250000, meta.Price())
}

func TestResolveFillsMissingFields(t *testing.T) {
	e, _ := newTestEngine(t, UsedCar)
	ctx := context.Background()

	posted, err := e.Submit(ctx)
	require.NoError(t, err)

	resolved, err := e.Resolve(ctx, domain.AdRef{Slug: posted.Slug})
	require.NoError(t, err)
	assert.Equal(t, posted.AdID, resolved.AdID)
	assert.Equal(t, posted.ListingID, resolved.ListingID)

	resolved, err = e.Resolve(ctx, domain.AdRef{AdID: posted.AdID})
	require.NoError(t, err)
	assert.Equal(t, posted.Slug, resolved.Slug)
}

func TestSubmitInjectsPictureAndLocation(t *testing.T) {
	e, ts := newTestEngine(t, UsedCar)
	e.PictureID = 77
	e.LocationID = 5

	ref, err := e.Submit(context.Background())
	require.NoError(t, err)

	ad := ts.Ad(ref.AdID)
	require.NotNil(t, ad)
	assert.Equal(t, []any{float64(77)}, ad.Fields["picture_ids"])
	assert.Equal(t, float64(5), ad.Fields["location_id"])
}

func TestResolveResumesFromFlowMetadata(t *testing.T) {
	e, _ := newTestEngine(t, UsedCar)
	ctx := context.Background()

	posted, err := e.Submit(ctx)
	require.NoError(t, err)

	// a later invocation starts with nothing but the flow key
	resolved, err := e.Resolve(ctx, domain.AdRef{})
	require.NoError(t, err)
	assert.Equal(t, posted.AdID, resolved.AdID)
	assert.Equal(t, posted.ListingID, resolved.ListingID)
	assert.Equal(t, posted.Slug, resolved.Slug)
}

func TestResolveFailsWithoutMetadataOrRef(t *testing.T) {
	e, _ := newTestEngine(t, UsedCar)

	_, err := e.Resolve(context.Background(), domain.AdRef{})
	var fe *domain.FlowError
	require.ErrorAs(t, err, &fe)
}

func TestFeatureResumesFromFlowMetadata(t *testing.T) {
	e, ts := newTestEngine(t, UsedCar)
	ctx := context.Background()

	ref, err := e.Submit(ctx)
	require.NoError(t, err)

	weeks, err := e.Feature(ctx, domain.AdRef{})
	require.NoError(t, err)
	assert.Equal(t, 4, weeks)
	assert.NotEmpty(t, ts.Ad(ref.AdID).FeaturedTill)
}

func TestEditPreservesRequiredFields(t *testing.T) {
	e, ts := newTestEngine(t, UsedCar)
	ctx := context.Background()

	ref, err := e.Submit(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Edit(ctx, ref, map[string]any{"price": 3000000}))

	ad := ts.Ad(ref.AdID)
	require.NotNil(t, ad)
	assert.Equal(t, float64(3000000), ad.Fields["price"])
	// read back and coerced, never blanked
	assert.Equal(t, float64(1300), ad.Fields["engine_capacity"])
	assert.Equal(t, "Petrol", ad.Fields["engine_type"])
	assert.Equal(t, float64(2018), ad.Fields["model_year"])
}

func TestLifecycleCloseRemovedReactivate(t *testing.T) {
	e, ts := newTestEngine(t, UsedCar)
	ctx := context.Background()

	ref, err := e.Submit(ctx)
	require.NoError(t, err)

	state, err := e.WaitVisible(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.StLive, state)

	require.NoError(t, e.Close(ctx, ref))
	removed, err := e.Removed(ctx, ref)
	require.NoError(t, err)
	assert.True(t, removed)

	state, err = e.Reactivate(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.StPending, state)

	removed, err = e.Removed(ctx, ref)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, domain.StPending, ts.Ad(ref.AdID).State)
}

func TestReactivateTreats304AsNoOp(t *testing.T) {
	e, ts := newTestEngine(t, UsedCar)
	ctx := context.Background()

	ref, err := e.Submit(ctx)
	require.NoError(t, err)

	ts.RefreshStatus = 304
	state, err := e.Reactivate(ctx, ref)
	require.NoError(t, err)
	// still in its original bucket
	assert.Equal(t, domain.StLive, state)
}

func TestFeatureBuysWeeksAndVerifiesFeaturedTill(t *testing.T) {
	e, ts := newTestEngine(t, UsedCar)
	ctx := context.Background()

	ref, err := e.Submit(ctx)
	require.NoError(t, err)

	weeks, err := e.Feature(ctx, ref)
	require.NoError(t, err)
	// 3,250,000 sits in the lowest bracket; max eligible is 4
	assert.Equal(t, 4, weeks)
	assert.NotEmpty(t, ts.Ad(ref.AdID).FeaturedTill)

	meta, err := e.Store.Meta(UsedCar.Flow)
	require.NoError(t, err)
	assert.NotEmpty(t, meta.PaymentID())
}

func TestFeatureHonorsEligibleOverride(t *testing.T) {
	e, _ := newTestEngine(t, UsedCar)
	e.FeatureWeeks = 2
	ctx := context.Background()

	ref, err := e.Submit(ctx)
	require.NoError(t, err)

	weeks, err := e.Feature(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, weeks)
}

func TestSubmitWaitVisibleFailsWhenNeverListed(t *testing.T) {
	e, _ := newTestEngine(t, UsedCar)
	ctx := context.Background()

	_, err := e.WaitVisible(ctx, domain.AdRef{AdID: 999999, Slug: "/used-cars/ghost-999999"})
	var fe *domain.FlowError
	require.ErrorAs(t, err, &fe)
}
