// Package validate holds the four composable response checks flows call
// after every request: status, latency, JSON-Schema, tolerant snapshot.
package validate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/observability"
)

// DefaultDynamicKeys are stripped before snapshot comparison. Kept as a
// parameter so future entities can opt in without forking the comparator.
var DefaultDynamicKeys = []string{"ad_id", "ad_listing_id", "success"}

type Validator struct {
	SchemaDir   string // schemas/<area>/...
	SnapshotDir string // data/expected_responses/<area>/...
	MaxElapsed  time.Duration
	Strict      bool // promote latency overruns from warning to failure
	DynamicKeys []string
	Log         *slog.Logger
}

func New(schemaDir, snapshotDir string, maxElapsed time.Duration) *Validator {
	return &Validator{
		SchemaDir:   schemaDir,
		SnapshotDir: snapshotDir,
		MaxElapsed:  maxElapsed,
		DynamicKeys: DefaultDynamicKeys,
		Log:         slog.Default(),
	}
}

// Status fails unless the actual status is in the expected set.
func (v *Validator) Status(endpoint string, resp httpc.Response, want ...int) error {
	for _, w := range want {
		if resp.Status == w {
			return nil
		}
	}
	observability.ValidationFailures.WithLabelValues("status").Inc()
	return &domain.UnexpectedStatus{
		Endpoint: endpoint,
		Want:     want,
		Got:      resp.Status,
		Body:     truncate(resp.Raw),
	}
}

// Elapsed warns (or fails, under Strict) when the call took longer than the
// configured threshold.
func (v *Validator) Elapsed(endpoint string, resp httpc.Response) error {
	if v.MaxElapsed <= 0 || resp.Elapsed <= v.MaxElapsed {
		return nil
	}
	observability.ValidationFailures.WithLabelValues("elapsed").Inc()
	if v.Strict {
		return fmt.Errorf("%s: response took %.2fs, limit %.2fs", endpoint, resp.Seconds(), v.MaxElapsed.Seconds())
	}
	v.Log.Warn("slow response", "path", endpoint, "elapsed", resp.Seconds(), "limit", v.MaxElapsed.Seconds())
	return nil
}

// Schema validates the response document against a draft-07 schema stored
// under SchemaDir. All violations are collected before failing. A missing
// schema file degrades to a warning so fresh checkouts stay runnable.
func (v *Validator) Schema(resp httpc.Response, ref string) error {
	path := filepath.Join(v.SchemaDir, ref)
	if _, err := os.Stat(path); err != nil {
		v.Log.Warn("schema file missing, skipping", "ref", ref)
		return nil
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	sch, err := compiler.Compile(path)
	if err != nil {
		return fmt.Errorf("compiling schema %s: %w", ref, err)
	}
	if err := sch.Validate(resp.Doc.Value()); err != nil {
		observability.ValidationFailures.WithLabelValues("schema").Inc()
		var ve *jsonschema.ValidationError
		problems := []string{err.Error()}
		if ok := asValidationError(err, &ve); ok {
			problems = flatten(ve)
		}
		return &domain.SchemaViolation{Ref: ref, Problems: problems}
	}
	return nil
}

// Snapshot compares the response against a stored tolerant snapshot:
// dynamic keys are stripped, keys present only in the actual document are
// ignored, keys present only in the snapshot are warnings, and value
// mismatches are collected into a diff report.
func (v *Validator) Snapshot(resp httpc.Response, ref string) error {
	path := filepath.Join(v.SnapshotDir, ref)
	raw, err := os.ReadFile(path)
	if err != nil {
		v.Log.Warn("snapshot file missing, skipping", "ref", ref)
		return nil
	}
	var expected map[string]any
	if err := json.Unmarshal(raw, &expected); err != nil {
		return fmt.Errorf("snapshot %s is not a JSON object: %w", ref, err)
	}

	keys := v.DynamicKeys
	if keys == nil {
		keys = DefaultDynamicKeys
	}
	missing, diffs := CompareTolerant(expected, resp.Doc.Map(), keys)
	for _, m := range missing {
		v.Log.Warn("snapshot key absent from response", "ref", ref, "key", m)
	}
	if len(diffs) > 0 {
		observability.ValidationFailures.WithLabelValues("snapshot").Inc()
		return &domain.SnapshotMismatch{Ref: ref, Diffs: diffs}
	}
	return nil
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}

// flatten walks a validation error tree down to its leaves, formatting each
// with its JSON-pointer instance location.
func flatten(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		return []string{fmt.Sprintf("%s: %s", pointer(ve.InstanceLocation), ve.Message)}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}

func pointer(loc string) string {
	if loc == "" {
		return "/"
	}
	return loc
}

func truncate(raw []byte) string {
	s := string(raw)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
