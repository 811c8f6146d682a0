package ads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"https://www.pakwheels.com/used-cars/corolla-2018-12345": "/used-cars/corolla-2018-12345",
		"/used-cars/corolla-2018-12345.json":                     "/used-cars/corolla-2018-12345",
		"used-cars/corolla-2018-12345":                           "/used-cars/corolla-2018-12345",
		"/used-cars/corolla-2018-12345/":                         "/used-cars/corolla-2018-12345",
		"": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://host.example/used-bikes/cg-125-991.json",
		"/accessories-spare-parts/rims-40",
		"used-cars/x-1",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestJSONSuffix(t *testing.T) {
	assert.Equal(t, "/used-cars/x-9.json", JSON("used-cars/x-9"))
	assert.Equal(t, "/used-cars/x-9.json", JSON("/used-cars/x-9.json"))
}

func TestAdIDFrom(t *testing.T) {
	id, ok := AdIDFrom("/used-cars/toyota-corolla-2018-for-sale-7712345")
	require.True(t, ok)
	assert.Equal(t, 7712345, id)

	_, ok = AdIDFrom("/used-cars/no-trailing-id-here")
	assert.False(t, ok)
}
