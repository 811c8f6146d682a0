// Package mailbox talks to the external inbox service that receives
// sign-up verification mail. Only its GraphQL query contract is assumed.
package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"adqa/internal/domain"
	"adqa/internal/jsondoc"
	"adqa/internal/poll"
)

var otpPattern = regexp.MustCompile(`\d{6}`)

type Client struct {
	URL       string
	APIKey    string
	Namespace string
	HTTP      *http.Client
	Plan      poll.Plan
	Log       *slog.Logger
}

func New(url, apiKey, namespace string) *Client {
	return &Client{
		URL:       url,
		APIKey:    apiKey,
		Namespace: namespace,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Plan:      poll.Plan{Attempts: 10, Delay: 5 * time.Second},
		Log:       slog.Default(),
	}
}

// WaitForOTP polls the inbox for mail addressed to the tag and returns the
// first 6-digit group found in a subject line. Exhausting the attempt
// budget fails with the mailbox timeout error.
func (c *Client) WaitForOTP(ctx context.Context, tag string) (string, error) {
	code, err := poll.Until(ctx, c.Plan, func(ctx context.Context) (string, error) {
		subjects, err := c.subjects(ctx, tag)
		if err != nil {
			// the inbox service drops requests now and then; keep polling
			c.Log.Warn("inbox fetch failed", "tag", tag, "err", err)
			return "", poll.ErrRetry
		}
		for _, subject := range subjects {
			if m := otpPattern.FindString(subject); m != "" {
				return m, nil
			}
		}
		c.Log.Info("no otp mail yet", "tag", tag, "inbox_size", len(subjects))
		return "", poll.ErrRetry
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: tag %q", domain.ErrMailboxTimeout, tag)
	}
	return code, nil
}

func (c *Client) subjects(ctx context.Context, tag string) ([]string, error) {
	query := fmt.Sprintf(
		`{ inbox(namespace: %q, tag: %q) { emails { subject } } }`,
		c.Namespace, tag,
	)
	body, _ := json.Marshal(map[string]string{"query": query})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.NetworkError{Op: "POST", URL: c.URL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{Op: "POST", URL: c.URL, Err: err}
	}
	defer resp.Body.Close()

	var parsed any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("inbox response was not JSON: %w", err)
	}
	doc := jsondoc.From(parsed)
	emails, _ := doc.Array("data.inbox.emails")
	subjects := make([]string, 0, len(emails))
	for _, e := range emails {
		subjects = append(subjects, jsondoc.From(e).Str("subject"))
	}
	return subjects, nil
}
