// Package harness is the composition root: one configured instance wires the
// HTTP session, the token cache, validation, payload storage, the lifecycle
// engines and the lead flows together for tests and the smoke binary.
package harness

import (
	"log/slog"
	"path/filepath"
	"time"

	"adqa/internal/ads"
	"adqa/internal/authx"
	"adqa/internal/config"
	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/leads"
	"adqa/internal/mailbox"
	"adqa/internal/payload"
	"adqa/internal/payments"
	"adqa/internal/validate"
)

type Harness struct {
	Creds config.Credentials
	Log   *slog.Logger

	Client  *httpc.Client
	Tokens  *authx.Cache
	Check   *validate.Validator
	Store   *payload.Store
	Mailbox *mailbox.Client
	Pay     *payments.Orchestrator
	Leads   *leads.Flows

	// Engines by category name: used_car, bike, accessories.
	Engines map[string]*ads.Engine
}

// New wires a harness from loaded credentials. The default login mode is
// email when email credentials are present, mobile otherwise.
func New(cfg config.Credentials, log *slog.Logger) *Harness {
	client := httpc.New(cfg.BaseURL, cfg.APIVersion)
	client.Log = log

	store := payload.NewStore(cfg.DataDir, cfg.TmpDir)

	defaultMode := domain.ModeEmail
	if cfg.Email == "" && cfg.MobileNumber != "" {
		defaultMode = domain.ModeMobile
	}
	cache := authx.NewCache(defaultMode,
		&authx.EmailFlow{Client: client, Creds: cfg},
		&authx.MobileFlow{Client: client, Creds: cfg, Store: store},
	)
	client.Tokens = cache

	check := validate.New(
		filepath.Join(cfg.DataDir, "schemas"),
		filepath.Join(cfg.DataDir, "expected_responses"),
		time.Duration(cfg.MaxResponseTime*float64(time.Second)),
	)
	check.Strict = cfg.StrictLatency
	check.Log = log

	pay := payments.New(client, cfg.WalletMobile, cfg.WalletCNIC, cfg.WalletSaveInfo)
	pay.Log = log

	engines := map[string]*ads.Engine{}
	for _, cat := range ads.Categories {
		e := ads.NewEngine(client, check, store, pay, cat)
		e.FCMToken = cfg.FCMToken
		e.FeatureWeeks = cfg.FeatureWeeks
		e.LocationID = cfg.LocationID
		e.Log = log
		engines[cat.Name] = e
	}

	lf := leads.New(client, check, store, pay)
	lf.Log = log

	return &Harness{
		Creds:   cfg,
		Log:     log,
		Client:  client,
		Tokens:  cache,
		Check:   check,
		Store:   store,
		Mailbox: mailbox.New(cfg.MailboxURL, cfg.MailboxAPIKey, cfg.MailboxNamespace),
		Pay:     pay,
		Leads:   lf,
		Engines: engines,
	}
}

// Signup builds the composite sign-up flow against the external inbox.
func (h *Harness) Signup() *authx.Signup {
	return &authx.Signup{Client: h.Client, Mailbox: h.Mailbox, Creds: h.Creds}
}
