package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

func NormalizePhone(p string) string {
	// keep it simple; server accepts local format
	return strings.ReplaceAll(strings.TrimSpace(p), " ", "")
}

// NewRunID tags one harness process. ULID is sortable (nice for log grep
// across parallel workers).
func NewRunID() string {
	t := time.Now().UTC()
	return "run_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// DisposableEmail builds a unique inbox address for sign-up flows. The tag
// doubles as the mailbox query key.
func DisposableEmail(namespace string) (email, tag string) {
	t := time.Now().UTC()
	tag = strings.ToLower(ulid.MustNew(ulid.Timestamp(t), rand.Reader).String())
	return namespace + "." + tag + "@inbox.testmail.app", tag
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
