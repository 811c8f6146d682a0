package httpc

import (
	"context"

	"adqa/internal/domain"
)

// Attempt is one endpoint/encoding shape to try. Close, reactivate, and
// picture upload all share the same first-2xx-wins driver.
type Attempt struct {
	Name string
	Req  Request
}

// FirstOK tries each attempt in order and returns the first 2xx response
// along with the name of the attempt that produced it. When every attempt
// fails, the last status (or transport error) is reported.
func (c *Client) FirstOK(ctx context.Context, attempts []Attempt) (Response, string, error) {
	var (
		last     Response
		lastName string
		lastErr  error
	)
	for _, a := range attempts {
		resp, err := c.Do(ctx, a.Req)
		if err != nil {
			lastErr = err
			lastName = a.Name
			continue
		}
		if resp.OK() {
			return resp, a.Name, nil
		}
		last, lastName, lastErr = resp, a.Name, nil
	}
	if lastErr != nil {
		return last, lastName, lastErr
	}
	want := make([]int, 0, 1)
	return last, lastName, &domain.UnexpectedStatus{
		Endpoint: lastName,
		Want:     append(want, 200),
		Got:      last.Status,
		Body:     preview(last.Raw),
	}
}
