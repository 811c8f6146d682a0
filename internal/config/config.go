package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Credentials is the immutable per-process configuration. Loaded once.
type Credentials struct {
	BaseURL    string `envconfig:"BASE_URL" required:"true"`
	APIVersion string `envconfig:"API_VERSION" default:"17"`

	ClientID     string `envconfig:"CLIENT_ID"`
	ClientSecret string `envconfig:"CLIENT_SECRET"`

	Email    string `envconfig:"EMAIL"`
	Password string `envconfig:"PASSWORD"`

	MobileNumber      string `envconfig:"MOBILE_NUMBER"`
	MobileOTP         string `envconfig:"MOBILE_OTP"`
	MobileCountryCode string `envconfig:"MOBILE_COUNTRY_CODE" default:"92"`

	// Nil when the variable is unset, so an explicit "false" is
	// distinguishable from "not configured" further down the chain.
	MobileViaWhatsapp *bool `envconfig:"MOBILE_VIA_WHATSAPP"`

	// wallet payment inputs
	WalletMobile   string `envconfig:"JAZZ_CASH_MOBILE"`
	WalletCNIC     string `envconfig:"JAZZ_CASH_CNIC"`
	WalletSaveInfo bool   `envconfig:"JAZZ_CASH_SAVE_INFO"`

	FeatureWeeks int    `envconfig:"FEATURE_WEEKS"` // 0 = pick max eligible
	FCMToken     string `envconfig:"FCM_TOKEN"`
	LocationID   int    `envconfig:"AD_LOCATION_ID"` // 0 = use template location

	MaxResponseTime float64 `envconfig:"MAX_RESPONSE_TIME" default:"30"`
	StrictLatency   bool    `envconfig:"STRICT_LATENCY"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	DataDir string `envconfig:"DATA_DIR" default:"data"`
	TmpDir  string `envconfig:"TMP_DIR" default:"tmp"`

	// external inbox service for sign-up OTP retrieval
	MailboxURL       string `envconfig:"MAILBOX_URL" default:"https://api.testmail.app/api/graphql"`
	MailboxAPIKey    string `envconfig:"MAILBOX_API_KEY"`
	MailboxNamespace string `envconfig:"MAILBOX_NAMESPACE"`
}

// Load reads .env best-effort, then processes the environment. Missing
// required values abort startup (there is nothing useful to do without them).
func Load() Credentials {
	_ = godotenv.Load()
	var cfg Credentials
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

// StepOverride resolves per-payment-step endpoint overrides of the shape
// <FLOW>_ENDPOINT / <FLOW>_METHOD / <FLOW>_QUERY. Query is a comma-separated
// k=v list. Empty strings mean "use the flow default".
func StepOverride(flow string) (endpoint, method string, query map[string]string) {
	prefix := strings.ToUpper(strings.ReplaceAll(flow, "-", "_"))
	endpoint = os.Getenv(prefix + "_ENDPOINT")
	method = os.Getenv(prefix + "_METHOD")
	raw := os.Getenv(prefix + "_QUERY")
	if raw == "" {
		return endpoint, method, nil
	}
	query = map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		query[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return endpoint, method, query
}
