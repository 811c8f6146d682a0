package mailbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adqa/internal/domain"
	"adqa/internal/poll"
)

func inboxServer(t *testing.T, subjects func(call int64) []string) (*Client, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Contains(t, body["query"], "inbox(")

		emails := []any{}
		for _, s := range subjects(n) {
			emails = append(emails, map[string]any{"subject": s})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"inbox": map[string]any{"emails": emails}},
		})
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "key-1", "ns1")
	c.Plan = poll.Plan{Attempts: 5, Delay: time.Millisecond}
	return c, &calls
}

func TestWaitForOTPFindsSubjectCode(t *testing.T) {
	c, calls := inboxServer(t, func(call int64) []string {
		if call < 3 {
			return nil
		}
		return []string{"Welcome!", "Your verification code is 654321"}
	})

	code, err := c.WaitForOTP(context.Background(), "tag-a")
	require.NoError(t, err)
	assert.Equal(t, "654321", code)
	assert.Equal(t, int64(3), calls.Load())
}

func TestWaitForOTPIgnoresShortDigitRuns(t *testing.T) {
	c, _ := inboxServer(t, func(int64) []string {
		return []string{"Order 123 shipped", "PIN 987654 inside"}
	})

	code, err := c.WaitForOTP(context.Background(), "tag-b")
	require.NoError(t, err)
	assert.Equal(t, "987654", code)
}

func TestWaitForOTPTimesOut(t *testing.T) {
	c, calls := inboxServer(t, func(int64) []string {
		return []string{"nothing relevant"}
	})

	_, err := c.WaitForOTP(context.Background(), "tag-c")
	assert.ErrorIs(t, err, domain.ErrMailboxTimeout)
	assert.Equal(t, int64(5), calls.Load())
}

func TestWaitForOTPRetriesTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	c := New(srv.URL, "", "ns1")
	c.Plan = poll.Plan{Attempts: 2, Delay: time.Millisecond}

	_, err := c.WaitForOTP(context.Background(), "tag-d")
	assert.ErrorIs(t, err, domain.ErrMailboxTimeout)
}

func TestWaitForOTPContextCancel(t *testing.T) {
	c, _ := inboxServer(t, func(int64) []string { return nil })
	c.Plan = poll.Plan{Attempts: 100, Delay: 50 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.WaitForOTP(ctx, "tag-e")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
