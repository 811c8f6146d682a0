package validate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/jsondoc"
)

func respFrom(t *testing.T, status int, body string, elapsed time.Duration) httpc.Response {
	t.Helper()
	return httpc.Response{
		Status:  status,
		Doc:     jsondoc.Parse([]byte(body)),
		Elapsed: elapsed,
		Raw:     []byte(body),
	}
}

func TestStatus(t *testing.T) {
	v := New(t.TempDir(), t.TempDir(), time.Second)

	assert.NoError(t, v.Status("/x.json", respFrom(t, 200, `{}`, 0), 200))
	assert.NoError(t, v.Status("/x.json", respFrom(t, 304, `{}`, 0), 200, 304))

	err := v.Status("/x.json", respFrom(t, 422, `{"error":"nope"}`, 0), 200)
	var us *domain.UnexpectedStatus
	require.ErrorAs(t, err, &us)
	assert.Equal(t, 422, us.Got)
	assert.Contains(t, us.Body, "nope")
}

func TestElapsedWarnsUnlessStrict(t *testing.T) {
	v := New(t.TempDir(), t.TempDir(), 100*time.Millisecond)

	slow := respFrom(t, 200, `{}`, 500*time.Millisecond)
	assert.NoError(t, v.Elapsed("/x.json", slow))

	v.Strict = true
	assert.Error(t, v.Elapsed("/x.json", slow))
	assert.NoError(t, v.Elapsed("/x.json", respFrom(t, 200, `{}`, 50*time.Millisecond)))
}

func TestSchemaMissingFileSkips(t *testing.T) {
	v := New(t.TempDir(), t.TempDir(), time.Second)
	assert.NoError(t, v.Schema(respFrom(t, 200, `{}`, 0), "nowhere/missing.json"))
}

func TestSchemaCollectsViolations(t *testing.T) {
	dir := t.TempDir()
	schema := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["ad_listing"],
		"properties": {
			"ad_listing": {
				"type": "object",
				"required": ["ad_id", "slug"],
				"properties": {
					"ad_id": {"type": "integer"},
					"slug": {"type": "string", "minLength": 1}
				}
			}
		}
	}`
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "used_car"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "used_car", "post_response.json"), []byte(schema), 0o644))

	v := New(dir, t.TempDir(), time.Second)

	good := respFrom(t, 200, `{"ad_listing":{"ad_id":1,"slug":"/used-cars/x-1"}}`, 0)
	assert.NoError(t, v.Schema(good, "used_car/post_response.json"))

	bad := respFrom(t, 200, `{"ad_listing":{"ad_id":"not-a-number"}}`, 0)
	err := v.Schema(bad, "used_car/post_response.json")
	var sv *domain.SchemaViolation
	require.ErrorAs(t, err, &sv)
	assert.NotEmpty(t, sv.Problems)
}

func TestSnapshotEndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "search"), 0o755))
	snapshot := `{"resultCount": 2, "success": true}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "search", "page.json"), []byte(snapshot), 0o644))

	v := New(t.TempDir(), dir, time.Second)

	// dynamic success key mismatch tolerated, extra keys tolerated
	ok := respFrom(t, 200, `{"resultCount":2,"success":false,"result":[]}`, 0)
	assert.NoError(t, v.Snapshot(ok, "search/page.json"))

	bad := respFrom(t, 200, `{"resultCount":5}`, 0)
	err := v.Snapshot(bad, "search/page.json")
	var sm *domain.SnapshotMismatch
	require.ErrorAs(t, err, &sm)
	require.Len(t, sm.Diffs, 1)
	assert.Equal(t, "resultCount", sm.Diffs[0].Path)

	// missing snapshot file skips
	assert.NoError(t, v.Snapshot(ok, "search/other.json"))
}
