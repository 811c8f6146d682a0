package authx

import (
	"context"
	"net/http"

	"adqa/internal/config"
	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/payload"
	"adqa/internal/util"
)

// MobileParams are explicit overrides for one login. Unset fields fall back
// through environment, payload-template default, then hard-coded default.
type MobileParams struct {
	Number      string
	Pin         string
	CountryCode string
	ViaWhatsapp *bool
}

// MobileFlow performs the two-step mobile OTP login.
type MobileFlow struct {
	Client *httpc.Client
	Creds  config.Credentials
	Store  *payload.Store
	Params MobileParams

	// ClearFirst invokes the clear-number pre-step so shared test accounts
	// don't carry stale OTP bindings.
	ClearFirst bool
}

func (f *MobileFlow) Mode() domain.LoginMode { return domain.ModeMobile }

func (f *MobileFlow) Login(ctx context.Context) (*domain.Token, error) {
	number, pin, countryCode, viaWhatsapp, err := f.resolve()
	if err != nil {
		return nil, err
	}

	if f.ClearFirst {
		if err := f.clearNumber(ctx, number); err != nil {
			return nil, err
		}
	}

	resp, err := f.Client.Do(ctx, httpc.Request{
		Method:   http.MethodPost,
		Endpoint: "/login-with-mobile.json",
		NoAuth:   true,
		Body: map[string]any{
			"mobile_number": number,
			"country_code":  countryCode,
			"via_whatsapp":  viaWhatsapp,
		},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &domain.UnexpectedStatus{Endpoint: "/login-with-mobile.json", Want: []int{200}, Got: resp.Status}
	}
	pinID := resp.Doc.FirstStr("pin_id", "data.pin_id", "result.pin_id")
	if pinID == "" {
		return nil, &domain.FlowError{Flow: "mobile_login", Phase: "challenge", Detail: "response carried no pin_id"}
	}

	verify, err := f.Client.Do(ctx, httpc.Request{
		Method:   http.MethodPost,
		Endpoint: "/login-with-mobile/verify.json",
		NoAuth:   true,
		Body: map[string]any{
			"pin_id": pinID,
			"pin":    pin,
		},
	})
	if err != nil {
		return nil, err
	}
	if !verify.OK() {
		return nil, &domain.UnexpectedStatus{Endpoint: "/login-with-mobile/verify.json", Want: []int{200}, Got: verify.Status}
	}
	return tokenFromDoc(verify.Doc)
}

// resolve walks the parameter chain: explicit argument, environment,
// payload-template default, hard-coded default.
func (f *MobileFlow) resolve() (number, pin, countryCode string, viaWhatsapp bool, err error) {
	number = f.Params.Number
	pin = f.Params.Pin
	countryCode = f.Params.CountryCode
	via := f.Params.ViaWhatsapp

	if number == "" {
		number = f.Creds.MobileNumber
	}
	if pin == "" {
		pin = f.Creds.MobileOTP
	}
	if countryCode == "" {
		countryCode = f.Creds.MobileCountryCode
	}
	if via == nil {
		via = f.Creds.MobileViaWhatsapp
	}

	if f.Store != nil && (number == "" || pin == "" || countryCode == "" || via == nil) {
		if tpl, tplErr := f.Store.Template("mobile_login"); tplErr == nil {
			rec := payload.Record(tpl)
			if number == "" {
				number = rec.Str("mobile_number")
			}
			if pin == "" {
				pin = rec.Str("pin")
			}
			if countryCode == "" {
				countryCode = rec.Str("country_code")
			}
			if via == nil {
				if b, ok := rec.Bool("via_whatsapp"); ok {
					via = &b
				}
			}
		}
	}

	if countryCode == "" {
		countryCode = "92"
	}
	if via == nil {
		v := true
		via = &v
	}
	if number == "" {
		return "", "", "", false, &domain.ConfigError{Field: "MOBILE_NUMBER"}
	}
	if pin == "" {
		return "", "", "", false, &domain.ConfigError{Field: "MOBILE_OTP"}
	}
	return util.NormalizePhone(number), pin, countryCode, *via, nil
}

func (f *MobileFlow) clearNumber(ctx context.Context, number string) error {
	resp, err := f.Client.Do(ctx, httpc.Request{
		Method:   http.MethodGet,
		Endpoint: "/clear-number",
		NoAuth:   true,
		Query: map[string]string{
			"mobile_number": number,
			"client_id":     f.Creds.ClientID,
			"client_secret": f.Creds.ClientSecret,
			"api_version":   f.Creds.APIVersion,
		},
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &domain.UnexpectedStatus{Endpoint: "/clear-number", Want: []int{200}, Got: resp.Status}
	}
	return nil
}
