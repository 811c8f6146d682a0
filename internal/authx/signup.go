package authx

import (
	"context"
	"net/http"
	"strings"

	"adqa/internal/config"
	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/mailbox"
	"adqa/internal/util"
)

// Signup runs the composite sign-up + email-verification flow: create the
// user without a bearer token, pull the OTP out of the external inbox, then
// verify. The unauthenticated POST is a per-request override, so the
// caller's cached token is never touched; if it ever were, restoration is
// best-effort and must not mask the original failure.
type Signup struct {
	Client  *httpc.Client
	Mailbox *mailbox.Client
	Creds   config.Credentials
}

// Run registers the user document and returns the verified token. When the
// document has no email, a disposable inbox address is generated.
func (s *Signup) Run(ctx context.Context, user map[string]any) (*domain.Token, error) {
	email, _ := user["email"].(string)
	if email == "" {
		email, _ = util.DisposableEmail(s.Creds.MailboxNamespace)
		user["email"] = email
	}

	resp, err := s.Client.Do(ctx, httpc.Request{
		Method:   http.MethodPost,
		Endpoint: "/users.json",
		NoAuth:   true,
		Body:     map[string]any{"user": user},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &domain.UnexpectedStatus{Endpoint: "/users.json", Want: []int{200, 201}, Got: resp.Status}
	}

	pinID := resp.Doc.FirstStr("pin_id", "pin_id_email", "data.pin_id")
	if pinID == "" {
		return nil, &domain.FlowError{Flow: "signup", Phase: "register", Detail: "response carried no pin_id"}
	}
	if registered := resp.Doc.FirstStr("email", "data.email", "user.email"); registered != "" {
		email = registered
	}

	code, err := s.Mailbox.WaitForOTP(ctx, mailTag(email, s.Creds.MailboxNamespace))
	if err != nil {
		return nil, err
	}

	verify, err := s.Client.Do(ctx, httpc.Request{
		Method:   http.MethodPost,
		Endpoint: "/login-with-email/verify.json",
		NoAuth:   true,
		Body: map[string]any{
			"pin_id_email": pinID,
			"pin_email":    code,
		},
	})
	if err != nil {
		return nil, err
	}
	if !verify.OK() {
		return nil, &domain.UnexpectedStatus{Endpoint: "/login-with-email/verify.json", Want: []int{200}, Got: verify.Status}
	}
	return tokenFromDoc(verify.Doc)
}

// mailTag recovers the inbox tag from a namespaced disposable address
// (namespace.tag@host -> tag).
func mailTag(email, namespace string) string {
	local, _, _ := strings.Cut(email, "@")
	if namespace != "" {
		local = strings.TrimPrefix(local, namespace+".")
	}
	return local
}
