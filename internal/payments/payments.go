// Package payments drives the checkout → wallet charge → status poll cycle
// shared by ad featuring and the paid lead forms.
package payments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"adqa/internal/config"
	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/jsondoc"
	"adqa/internal/observability"
	"adqa/internal/poll"
)

// Terminal payment states.
var (
	successStates = map[string]bool{"paid": true, "success": true, "completed": true}
	failureStates = map[string]bool{"failed": true, "declined": true}
)

type Orchestrator struct {
	Client *httpc.Client

	WalletMobile string
	WalletCNIC   string
	SaveInfo     bool

	Plan poll.Plan
	Log  *slog.Logger
}

func New(client *httpc.Client, walletMobile, walletCNIC string, saveInfo bool) *Orchestrator {
	return &Orchestrator{
		Client:       client,
		WalletMobile: walletMobile,
		WalletCNIC:   walletCNIC,
		SaveInfo:     saveInfo,
		Plan:         poll.Plan{Attempts: 10, Delay: 3 * time.Second},
		Log:          slog.Default(),
	}
}

// CheckoutInput names one purchasable product attached to a subject
// (s_id/s_type pair: an ad listing, a lead, an inspection request).
type CheckoutInput struct {
	ProductID       int
	SID             int
	SType           string
	DiscountCode    string
	PaymentMethodID int
}

// ListProducts fetches the purchasable products for an ad.
func (o *Orchestrator) ListProducts(ctx context.Context, adID int) (httpc.Response, error) {
	endpoint, method, query := step("PRODUCTS", "/products.json", http.MethodGet)
	if query == nil {
		query = map[string]string{}
	}
	query["ad_id"] = strconv.Itoa(adID)
	return o.Client.Do(ctx, httpc.Request{Method: method, Endpoint: endpoint, Query: query})
}

// Credits fetches the prepaid balance document.
func (o *Orchestrator) Credits(ctx context.Context) (httpc.Response, error) {
	endpoint, method, query := step("CREDITS", "/credits.json", http.MethodGet)
	return o.Client.Do(ctx, httpc.Request{Method: method, Endpoint: endpoint, Query: query})
}

// CreditBalance returns the remaining count for one bucket, probing the
// usual nesting shapes.
func (o *Orchestrator) CreditBalance(ctx context.Context, bucket string) (int, error) {
	resp, err := o.Credits(ctx)
	if err != nil {
		return 0, err
	}
	if !resp.OK() {
		return 0, &domain.UnexpectedStatus{Endpoint: "/credits.json", Want: []int{200}, Got: resp.Status}
	}
	n, _ := resp.Doc.FirstInt(bucket, "data."+bucket, "credits."+bucket)
	return n, nil
}

// ProceedCheckout opens a payment for the product and returns the payment
// id, wherever the server chose to nest it.
func (o *Orchestrator) ProceedCheckout(ctx context.Context, in CheckoutInput) (string, httpc.Response, error) {
	body := map[string]any{
		"product_id": in.ProductID,
		"s_id":       in.SID,
		"s_type":     in.SType,
	}
	if in.DiscountCode != "" {
		body["discount_code"] = in.DiscountCode
	}
	if in.PaymentMethodID != 0 {
		body["payment_method_id"] = in.PaymentMethodID
	}
	endpoint, method, query := step("CHECKOUT", "/proceed-to-checkout.json", http.MethodPost)
	resp, err := o.Client.Do(ctx, httpc.Request{Method: method, Endpoint: endpoint, Query: query, Body: body})
	if err != nil {
		return "", resp, err
	}
	if !resp.OK() {
		return "", resp, &domain.UnexpectedStatus{Endpoint: endpoint, Want: []int{200}, Got: resp.Status}
	}
	id := ExtractPaymentID(resp.Doc.Value())
	if id == "" {
		return "", resp, &domain.FlowError{Flow: "checkout", Phase: "extract", Detail: "no payment id anywhere in the checkout response"}
	}
	return id, resp, nil
}

// InitiateWallet starts the wallet charge for an open payment.
func (o *Orchestrator) InitiateWallet(ctx context.Context, paymentID string) (httpc.Response, error) {
	if o.WalletMobile == "" || o.WalletCNIC == "" {
		return httpc.Response{}, &domain.ConfigError{Field: "JAZZ_CASH_MOBILE/JAZZ_CASH_CNIC"}
	}
	endpoint, method, query := step("WALLET", "/jazz-cash/initiate.json", http.MethodPost)
	return o.Client.Do(ctx, httpc.Request{
		Method:   method,
		Endpoint: endpoint,
		Query:    query,
		Body: map[string]any{
			"payment_id":    paymentID,
			"mobile_number": o.WalletMobile,
			"cnic":          o.WalletCNIC,
			"save_info":     o.SaveInfo,
		},
	})
}

// PollStatus polls until the payment reaches a terminal state. Terminal
// failures raise PaymentFailed; exhausting the budget raises PaymentTimeout.
func (o *Orchestrator) PollStatus(ctx context.Context, paymentID string) (string, error) {
	endpoint, method, baseQuery := step("PAYMENT_STATUS", "/payment-status.json", http.MethodGet)
	var lastSeen string
	status, err := poll.Until(ctx, o.Plan, func(ctx context.Context) (string, error) {
		query := map[string]string{"payment_id": paymentID}
		for k, v := range baseQuery {
			query[k] = v
		}
		resp, err := o.Client.Do(ctx, httpc.Request{Method: method, Endpoint: endpoint, Query: query})
		if err != nil {
			return "", err
		}
		st := resp.Doc.FirstStr("status", "data.status", "payment.status", "payment_status")
		lastSeen = st
		switch {
		case successStates[st]:
			return st, nil
		case failureStates[st]:
			return st, &domain.PaymentFailed{PaymentID: paymentID, Status: st}
		default:
			o.Log.Info("payment still pending", "payment_id", paymentID, "status", st)
			return st, poll.ErrRetry
		}
	})
	if err != nil {
		var pf *domain.PaymentFailed
		if errors.As(err, &pf) {
			observability.Payments.WithLabelValues("failed").Inc()
			return status, err
		}
		if ctx.Err() != nil {
			return status, ctx.Err()
		}
		observability.Payments.WithLabelValues("timeout").Inc()
		return status, &domain.PaymentTimeout{PaymentID: paymentID, Attempts: o.Plan.Attempts, LastSeen: lastSeen}
	}
	observability.Payments.WithLabelValues("paid").Inc()
	return status, nil
}

// PayWithWallet is the full charge cycle for an already-open payment.
func (o *Orchestrator) PayWithWallet(ctx context.Context, paymentID string) error {
	resp, err := o.InitiateWallet(ctx, paymentID)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &domain.UnexpectedStatus{Endpoint: "wallet initiate", Want: []int{200}, Got: resp.Status}
	}
	_, err = o.PollStatus(ctx, paymentID)
	return err
}

// step folds in the per-payment-step environment overrides.
func step(flow, defEndpoint, defMethod string) (string, string, map[string]string) {
	endpoint, method, query := config.StepOverride(flow)
	if endpoint == "" {
		endpoint = defEndpoint
	}
	if method == "" {
		method = defMethod
	}
	return endpoint, method, query
}

// ExtractPaymentID probes the id at the top level, then descends into the
// containers checkout responses have nested it under.
func ExtractPaymentID(v any) string {
	doc := jsondoc.From(v)
	if id := doc.FirstStr("payment_id", "order_id"); id != "" {
		return id
	}
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	for _, container := range []string{"ack", "data", "payment", "checkout", "response", "payload"} {
		child, ok := m[container]
		if !ok {
			continue
		}
		if id := ExtractPaymentID(child); id != "" {
			return id
		}
	}
	return ""
}
