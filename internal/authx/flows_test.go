package authx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adqa/internal/config"
	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/jsondoc"
	"adqa/internal/mailbox"
	"adqa/internal/payload"
	"adqa/internal/poll"
	"adqa/internal/testserver"
)

func newTestClient(t *testing.T) (*httpc.Client, *testserver.Server) {
	t.Helper()
	ts := testserver.New()
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)
	return httpc.New(srv.URL, "17"), ts
}

func TestEmailFlowMintsToken(t *testing.T) {
	client, ts := newTestClient(t)
	flow := &EmailFlow{Client: client, Creds: config.Credentials{
		Email:    "qa@example.com",
		Password: "secret",
		ClientID: "cid",
	}}

	tok, err := flow.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-email-1", tok.Value)
	assert.Equal(t, "Bearer", tok.Type)
	assert.False(t, tok.ExpiresAt.IsZero())
	assert.Equal(t, 1, ts.Logins)
}

func TestEmailFlowMissingCredentials(t *testing.T) {
	client, _ := newTestClient(t)
	flow := &EmailFlow{Client: client}

	_, err := flow.Login(context.Background())
	var ce *domain.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestMobileFlowTwoStep(t *testing.T) {
	client, _ := newTestClient(t)
	flow := &MobileFlow{Client: client, Creds: config.Credentials{
		MobileNumber: "300 111 2233",
		MobileOTP:    "123456",
	}}

	tok, err := flow.Login(context.Background())
	require.NoError(t, err)
	assert.Contains(t, tok.Value, "tok-mobile")
}

func TestMobileFlowMissingPin(t *testing.T) {
	client, _ := newTestClient(t)
	flow := &MobileFlow{Client: client, Creds: config.Credentials{MobileNumber: "3001112233"}}

	_, err := flow.Login(context.Background())
	var ce *domain.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "MOBILE_OTP", ce.Field)
}

func newMobileTemplateStore(t *testing.T, tpl map[string]any) *payload.Store {
	t.Helper()
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "payloads"), 0o755))
	raw, err := json.Marshal(tpl)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "payloads", "mobile_login.json"), raw, 0o644))
	return payload.NewStore(dataDir, t.TempDir())
}

func TestMobileResolveKeepsExplicitWhatsappOff(t *testing.T) {
	off := false
	flow := &MobileFlow{Creds: config.Credentials{
		MobileNumber:      "3001112233",
		MobileOTP:         "123456",
		MobileViaWhatsapp: &off,
	}}

	_, _, _, via, err := flow.resolve()
	require.NoError(t, err)
	assert.False(t, via)
}

func TestMobileResolveTemplateFillsWhatsappAndCountry(t *testing.T) {
	flow := &MobileFlow{
		Creds: config.Credentials{MobileNumber: "3001112233", MobileOTP: "123456"},
		Store: newMobileTemplateStore(t, map[string]any{
			"mobile_number": "3009998877",
			"pin":           "654321",
			"country_code":  "44",
			"via_whatsapp":  false,
		}),
	}

	number, pin, countryCode, via, err := flow.resolve()
	require.NoError(t, err)
	assert.Equal(t, "3001112233", number)
	assert.Equal(t, "123456", pin)
	assert.Equal(t, "44", countryCode)
	assert.False(t, via)
}

func TestMobileResolveDefaultsWhatsappOn(t *testing.T) {
	flow := &MobileFlow{Creds: config.Credentials{MobileNumber: "3001112233", MobileOTP: "123456"}}

	_, _, countryCode, via, err := flow.resolve()
	require.NoError(t, err)
	assert.Equal(t, "92", countryCode)
	assert.True(t, via)
}

func TestTokenFromDocShapes(t *testing.T) {
	flat := jsondoc.Parse([]byte(`{"access_token":"a","token_type":"Bearer","expires_in":3600}`))
	tok, err := tokenFromDoc(flat)
	require.NoError(t, err)
	assert.Equal(t, "a", tok.Value)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	nested := jsondoc.Parse([]byte(`{"data":{"access_token":"b"}}`))
	tok, err = tokenFromDoc(nested)
	require.NoError(t, err)
	assert.Equal(t, "b", tok.Value)
	assert.Equal(t, "Bearer", tok.Type)
	assert.True(t, tok.ExpiresAt.IsZero())

	_, err = tokenFromDoc(jsondoc.Parse([]byte(`{"status":"ok"}`)))
	assert.Error(t, err)
}

func TestSignupRunVerifiesThroughInbox(t *testing.T) {
	client, _ := newTestClient(t)

	inbox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"inbox": map[string]any{"emails": []any{
				map[string]any{"subject": "Your verification code is 445566"},
			}}},
		})
	}))
	defer inbox.Close()

	mb := mailbox.New(inbox.URL, "", "ns1")
	mb.Plan = poll.Plan{Attempts: 3, Delay: time.Millisecond}

	s := &Signup{Client: client, Mailbox: mb, Creds: config.Credentials{MailboxNamespace: "ns1"}}
	user := map[string]any{"name": "QA User", "password": "secret"}

	tok, err := s.Run(context.Background(), user)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Value)
	// a disposable address was generated into the user document
	assert.Contains(t, user["email"], "@inbox.testmail.app")
}

func TestMailTag(t *testing.T) {
	assert.Equal(t, "abc123", mailTag("ns1.abc123@inbox.testmail.app", "ns1"))
	assert.Equal(t, "plain", mailTag("plain@example.com", ""))
}

func TestLogoutInvalidatesCache(t *testing.T) {
	client, ts := newTestClient(t)
	flow := &EmailFlow{Client: client, Creds: config.Credentials{Email: "qa@example.com", Password: "secret"}}
	cache := NewCache(domain.ModeEmail, flow)

	_, err := cache.GetOrMint(context.Background(), domain.ModeEmail)
	require.NoError(t, err)

	require.NoError(t, Logout(context.Background(), client, cache))

	_, err = cache.GetOrMint(context.Background(), domain.ModeEmail)
	require.NoError(t, err)
	assert.Equal(t, 2, ts.Logins)
}
