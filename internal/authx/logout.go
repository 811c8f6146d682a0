package authx

import (
	"context"
	"net/http"

	"adqa/internal/domain"
	"adqa/internal/httpc"
)

// Logout expires the server-side session and clears the cache so the next
// request mints a fresh token.
func Logout(ctx context.Context, client *httpc.Client, cache *Cache) error {
	resp, err := client.Do(ctx, httpc.Request{
		Method:   http.MethodGet,
		Endpoint: "/oauth/expire.json",
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &domain.UnexpectedStatus{Endpoint: "/oauth/expire.json", Want: []int{200}, Got: resp.Status}
	}
	cache.InvalidateAll()
	return nil
}
