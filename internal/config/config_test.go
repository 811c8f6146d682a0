package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("BASE_URL", "https://staging.example.com")
	t.Setenv("EMAIL", "qa@example.com")
	t.Setenv("MOBILE_VIA_WHATSAPP", "false")
	t.Setenv("MAX_RESPONSE_TIME", "12.5")

	cfg := Load()
	assert.Equal(t, "https://staging.example.com", cfg.BaseURL)
	assert.Equal(t, "qa@example.com", cfg.Email)
	require.NotNil(t, cfg.MobileViaWhatsapp)
	assert.False(t, *cfg.MobileViaWhatsapp)
	assert.Equal(t, 12.5, cfg.MaxResponseTime)

	// defaults
	assert.Equal(t, "17", cfg.APIVersion)
	assert.Equal(t, "92", cfg.MobileCountryCode)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "tmp", cfg.TmpDir)
}

func TestLoadLeavesViaWhatsappUnsetWithoutEnv(t *testing.T) {
	t.Setenv("BASE_URL", "https://staging.example.com")
	t.Setenv("MOBILE_VIA_WHATSAPP", "true") // register cleanup, then drop it
	require.NoError(t, os.Unsetenv("MOBILE_VIA_WHATSAPP"))

	cfg := Load()
	assert.Nil(t, cfg.MobileViaWhatsapp)
}

func TestLoadPanicsWithoutBaseURL(t *testing.T) {
	t.Setenv("BASE_URL", "")
	assert.Panics(t, func() { Load() })
}

func TestStepOverride(t *testing.T) {
	t.Setenv("WALLET_ENDPOINT", "/v2/jazz-cash/initiate.json")
	t.Setenv("WALLET_METHOD", "PUT")
	t.Setenv("WALLET_QUERY", "channel=app, retry=2 ,broken")

	endpoint, method, query := StepOverride("WALLET")
	assert.Equal(t, "/v2/jazz-cash/initiate.json", endpoint)
	assert.Equal(t, "PUT", method)
	require.NotNil(t, query)
	assert.Equal(t, "app", query["channel"])
	assert.Equal(t, "2", query["retry"])
	assert.NotContains(t, query, "broken")
}

func TestStepOverrideUnsetFlow(t *testing.T) {
	endpoint, method, query := StepOverride("NEVER_SET_FLOW")
	assert.Empty(t, endpoint)
	assert.Empty(t, method)
	assert.Nil(t, query)
}

func TestStepOverrideNormalizesFlowName(t *testing.T) {
	t.Setenv("PAYMENT_STATUS_ENDPOINT", "/status2.json")
	endpoint, _, _ := StepOverride("payment-status")
	assert.Equal(t, "/status2.json", endpoint)
}
