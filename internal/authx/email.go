package authx

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"adqa/internal/config"
	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/jsondoc"
)

// EmailFlow performs the email OAuth login.
type EmailFlow struct {
	Client *httpc.Client
	Creds  config.Credentials
}

func (f *EmailFlow) Mode() domain.LoginMode { return domain.ModeEmail }

func (f *EmailFlow) Login(ctx context.Context) (*domain.Token, error) {
	if f.Creds.Email == "" || f.Creds.Password == "" {
		return nil, &domain.ConfigError{Field: "EMAIL/PASSWORD"}
	}
	resp, err := f.Client.Do(ctx, httpc.Request{
		Method:   http.MethodPost,
		Endpoint: "/oauth/token.json",
		NoAuth:   true,
		Body: map[string]any{
			"username": f.Creds.Email,
			"password": f.Creds.Password,
		},
		Query: map[string]string{
			"client_id":     f.Creds.ClientID,
			"client_secret": f.Creds.ClientSecret,
			"api_version":   f.Creds.APIVersion,
		},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &domain.UnexpectedStatus{Endpoint: "/oauth/token.json", Want: []int{200}, Got: resp.Status}
	}
	return tokenFromDoc(resp.Doc)
}

// tokenFromDoc extracts the access token from the shapes different api
// versions have answered with, then resolves expiry from expires_in, the
// token's own exp claim, or leaves it unknown.
func tokenFromDoc(doc jsondoc.Doc) (*domain.Token, error) {
	value := doc.FirstStr("access_token", "data.access_token", "result.access_token")
	if value == "" {
		return nil, &domain.FlowError{Flow: "login", Phase: "token", Detail: "response carried no access_token"}
	}
	tok := &domain.Token{
		Value: value,
		Type:  doc.FirstStr("token_type", "data.token_type"),
	}
	if tok.Type == "" {
		tok.Type = "Bearer"
	}
	if secs, ok := doc.FirstInt("expires_in", "data.expires_in"); ok && secs > 0 {
		tok.ExpiresAt = time.Now().Add(time.Duration(secs) * time.Second)
	} else if exp, ok := jwtExpiry(value); ok {
		tok.ExpiresAt = exp
	}
	return tok, nil
}

// jwtExpiry reads the exp claim without verifying the signature; the harness
// only needs a refresh hint, not trust.
func jwtExpiry(raw string) (time.Time, bool) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
