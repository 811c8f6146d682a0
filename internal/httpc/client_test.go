package httpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{ value, typ string }

func (s staticTokens) Token(context.Context) (string, string, error) {
	return s.value, s.typ, nil
}

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New(srv.URL, "17")
	c.Tokens = staticTokens{value: "tok-1", typ: "Bearer"}
	return c, srv
}

func TestDoInjectsAuthAndAPIVersion(t *testing.T) {
	var seen *http.Request
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/ping.json"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "Bearer tok-1", seen.Header.Get("Authorization"))
	assert.Equal(t, "17", seen.URL.Query().Get("api_version"))
}

func TestDoNoAuthStripsAuthorization(t *testing.T) {
	var auth string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, Endpoint: "/oauth/token.json", NoAuth: true})
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestDoExplicitAPIVersionWins(t *testing.T) {
	var version string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version = r.URL.Query().Get("api_version")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := c.Do(context.Background(), Request{
		Method:   http.MethodGet,
		Endpoint: "/x.json",
		Query:    map[string]string{"api_version": "22"},
	})
	require.NoError(t, err)
	assert.Equal(t, "22", version)
}

func TestDoMarshalsJSONBody(t *testing.T) {
	var body map[string]any
	var contentType string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := c.Do(context.Background(), Request{
		Method:   http.MethodPost,
		Endpoint: "/x.json",
		Body:     map[string]any{"price": 100},
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, float64(100), body["price"])
}

func TestDoNonJSONBodyWrapsRaw(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: "/x.json"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.Contains(t, resp.Doc.Str("raw"), "bad gateway")
}

func TestDoAbsoluteEndpointBypassesBaseURL(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"host":"other"}`))
	}))
	defer other.Close()

	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("base server must not be hit")
	}))
	defer srv.Close()

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Endpoint: other.URL + "/inbox"})
	require.NoError(t, err)
	assert.Equal(t, "other", resp.Doc.Str("host"))
}

func TestFirstOKFallsThroughVariants(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/b/close.json" {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	resp, variant, err := c.FirstOK(context.Background(), []Attempt{
		{Name: "slug close", Req: Request{Method: http.MethodPost, Endpoint: "/a/close.json"}},
		{Name: "listing-id close", Req: Request{Method: http.MethodPost, Endpoint: "/b/close.json"}},
		{Name: "ad-id close", Req: Request{Method: http.MethodPost, Endpoint: "/c/close.json"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "listing-id close", variant)
}

func TestFirstOKAllFailReportsLastStatus(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, variant, err := c.FirstOK(context.Background(), []Attempt{
		{Name: "first", Req: Request{Method: http.MethodPost, Endpoint: "/a.json"}},
		{Name: "second", Req: Request{Method: http.MethodPost, Endpoint: "/b.json"}},
	})
	require.Error(t, err)
	assert.Equal(t, "second", variant)
	assert.Contains(t, err.Error(), "409")
}
