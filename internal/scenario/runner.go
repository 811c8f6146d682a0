package scenario

import (
	"context"
	"fmt"
	"log/slog"

	"adqa/internal/httpc"
	"adqa/internal/search"
	"adqa/internal/validate"
)

// Runner executes a suite against a live session.
type Runner struct {
	Client *httpc.Client
	Check  *validate.Validator
	Log    *slog.Logger
}

// Run walks the suite in order. The first failing case stops the run.
func (r *Runner) Run(ctx context.Context, suite Suite) error {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	for _, c := range suite.Cases {
		resp, err := r.Client.Do(ctx, httpc.Request{
			Method:   c.Method,
			Endpoint: c.Path,
			Query:    c.Query,
		})
		if err != nil {
			return fmt.Errorf("case %q: %w", c.Name, err)
		}
		if err := r.Check.Status(c.Path, resp, c.Status); err != nil {
			return fmt.Errorf("case %q: %w", c.Name, err)
		}
		if err := r.Check.Elapsed(c.Path, resp); err != nil {
			return fmt.Errorf("case %q: %w", c.Name, err)
		}
		if c.Schema != "" {
			if err := r.Check.Schema(resp, c.Schema); err != nil {
				return fmt.Errorf("case %q: %w", c.Name, err)
			}
		}
		if c.Snapshot != "" {
			if err := r.Check.Snapshot(resp, c.Snapshot); err != nil {
				return fmt.Errorf("case %q: %w", c.Name, err)
			}
		}
		if c.VerifyFilters {
			if err := search.VerifyListing(c.Path, resp); err != nil {
				return fmt.Errorf("case %q: %w", c.Name, err)
			}
		}
		log.Info("scenario case passed", "area", suite.Area, "case", c.Name, "status", resp.Status)
	}
	return nil
}
