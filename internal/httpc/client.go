// Package httpc is the single HTTP session the harness drives every flow
// through: token injection, pacing, breaker protection, elapsed timing, and
// the {status, json, elapsed} response envelope.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"adqa/internal/domain"
	"adqa/internal/jsondoc"
	"adqa/internal/observability"
)

// TokenSource supplies the bearer token injected on every request.
// The auth cache implements it; login flows themselves send NoAuth requests.
type TokenSource interface {
	Token(ctx context.Context) (value, typ string, err error)
}

// Request is the input envelope for one call.
type Request struct {
	Method   string
	Endpoint string // server-relative, or absolute to bypass BaseURL
	Query    map[string]string
	Body     any // marshaled as JSON when non-nil
	Headers  map[string]string
	NoAuth   bool // strip Authorization (unauthenticated sign-up)
	Timeout  time.Duration
}

// Response is the output envelope. Doc is always a document; non-JSON
// bodies come back as {"raw": <text>}. Non-2xx is not an error here.
type Response struct {
	Status  int
	Doc     jsondoc.Doc
	Elapsed time.Duration
	Raw     []byte
}

func (r Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

func (r Response) Seconds() float64 { return r.Elapsed.Seconds() }

// Client owns the one connection-pooling session for the process.
type Client struct {
	BaseURL    string
	APIVersion string
	HTTP       *http.Client
	Tokens     TokenSource
	Limiter    *rate.Limiter
	Breaker    *gobreaker.CircuitBreaker
	Log        *slog.Logger
}

// New builds the session. The transport-level timeout is the upper bound;
// individual calls narrow it via Request.Timeout.
func New(baseURL, apiVersion string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIVersion: apiVersion,
		HTTP:       &http.Client{Timeout: 90 * time.Second},
		Limiter:    rate.NewLimiter(rate.Limit(10), 20),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "marketplace",
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			Timeout: 15 * time.Second,
		}),
		Log: slog.Default(),
	}
}

// Do performs one request. It returns a NetworkError only when the transport
// itself failed; HTTP error codes are delivered to the caller in the envelope.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	target, err := c.resolve(req.Endpoint, req.Query)
	if err != nil {
		return Response{}, &domain.NetworkError{Op: req.Method, URL: req.Endpoint, Err: err}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, &domain.NetworkError{Op: req.Method, URL: target, Err: err}
		}
		bodyReader = bytes.NewReader(b)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
	if err != nil {
		return Response{}, &domain.NetworkError{Op: req.Method, URL: target, Err: err}
	}
	if req.Body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}
	if !req.NoAuth && c.Tokens != nil {
		value, typ, err := c.Tokens.Token(ctx)
		if err != nil {
			return Response{}, err
		}
		if value != "" {
			hreq.Header.Set("Authorization", typ+" "+value)
		}
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return Response{}, &domain.NetworkError{Op: req.Method, URL: target, Err: err}
		}
	}

	start := time.Now()
	resp, err := c.send(hreq)
	elapsed := time.Since(start)
	if err != nil {
		observability.Requests.WithLabelValues(req.Endpoint, "transport_error").Inc()
		return Response{}, &domain.NetworkError{Op: req.Method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := Response{
		Status:  resp.StatusCode,
		Doc:     jsondoc.Parse(raw),
		Elapsed: elapsed,
		Raw:     raw,
	}

	observability.Requests.WithLabelValues(req.Endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	observability.RequestLatency.Observe(elapsed.Seconds())
	c.Log.Info("request",
		"method", req.Method,
		"path", req.Endpoint,
		"status", resp.StatusCode,
		"elapsed", elapsed.Round(time.Millisecond).String(),
		"body", preview(raw),
	)
	return out, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	if c.Breaker == nil {
		return c.HTTP.Do(req)
	}
	res, err := c.Breaker.Execute(func() (any, error) {
		return c.HTTP.Do(req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}

// resolve joins BaseURL and endpoint unless the endpoint is already absolute,
// then folds in the query map plus the default api_version.
func (c *Client) resolve(endpoint string, query map[string]string) (string, error) {
	target := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		target = c.BaseURL + "/" + strings.TrimLeft(endpoint, "/")
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	if q.Get("api_version") == "" && c.APIVersion != "" {
		q.Set("api_version", c.APIVersion)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func preview(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
