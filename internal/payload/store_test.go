package payload

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "payloads"), 0o755))
	tpl := `{"used_car":{"make":"Toyota","price":3250000}}`
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "payloads", "used_car_post.json"), []byte(tpl), 0o644))
	return NewStore(dataDir, t.TempDir())
}

func TestTemplateHandsOutCopies(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Template("used_car_post")
	require.NoError(t, err)
	first["used_car"].(map[string]any)["price"] = float64(1)

	second, err := s.Template("used_car_post")
	require.NoError(t, err)
	assert.Equal(t, float64(3250000), second["used_car"].(map[string]any)["price"])
}

func TestTemplateMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Template("does_not_exist")
	assert.Error(t, err)
}

func TestMetaMissingFileIsEmptyRecord(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Meta("used_car_post")
	require.NoError(t, err)
	assert.Empty(t, rec)
}

func TestSaveAndUpdateMeta(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveMeta("used_car_post", Record{"ad_id": 7712345, "slug": "/used-cars/x-7712345"}))

	rec, err := s.UpdateMeta("used_car_post", map[string]any{"payment_id": "pay-9", "price": 3250000})
	require.NoError(t, err)
	assert.Equal(t, 7712345, rec.AdID())
	assert.Equal(t, "pay-9", rec.PaymentID())

	// survives a re-read from disk
	rec, err = s.Meta("used_car_post")
	require.NoError(t, err)
	assert.Equal(t, "/used-cars/x-7712345", rec.Slug())
	assert.Equal(t, 3250000, rec.Price())
}

func TestUpdateMetaConcurrent(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.UpdateMeta("flow_a", map[string]any{"ad_id": n})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rec, err := s.Meta("flow_a")
	require.NoError(t, err)
	assert.NotZero(t, rec.Str("ad_id"))
}

func TestRecordAccessorsCoerce(t *testing.T) {
	rec := Record{"ad_id": "7712345", "price": float64(2.2e+06), "payment_id": float64(88)}
	assert.Equal(t, 7712345, rec.AdID())
	assert.Equal(t, 2200000, rec.Price())
	assert.Equal(t, "88", rec.PaymentID())
}
