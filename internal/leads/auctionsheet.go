package leads

import (
	"context"
	"net/http"

	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/jsondoc"
	"adqa/internal/payments"
)

// AuctionSheet verifies the chassis, creates the request, and pays for the
// sheet unless prepaid credits cover it. The returned payment id is empty
// when the credit gate fired.
func (f *Flows) AuctionSheet(ctx context.Context) (string, error) {
	const flow = "auction_sheet"
	tpl, err := f.Store.Template(flow)
	if err != nil {
		return "", err
	}
	doc := jsondoc.From(tpl)

	// chassis verification precedes the request
	vresp, err := f.Client.Do(ctx, httpc.Request{
		Method:   http.MethodPost,
		Endpoint: "/auction-sheet/verify.json",
		Body:     map[string]any{"chassis_number": doc.FirstStr("chassis_number", "chassis")},
	})
	if err != nil {
		return "", err
	}
	if err := f.Check.Status("/auction-sheet/verify.json", vresp, 200); err != nil {
		return "", err
	}

	resp, err := f.Client.Do(ctx, httpc.Request{Method: http.MethodPost, Endpoint: "/auction-sheet/request.json", Body: tpl})
	if err != nil {
		return "", err
	}
	if err := f.Check.Status("/auction-sheet/request.json", resp, 200); err != nil {
		return "", err
	}
	if err := f.Check.Schema(resp, "lead_forms/auction_sheet.json"); err != nil {
		return "", err
	}
	reqID, ok := resp.Doc.FirstInt("request_id", "id", "data.id")
	if !ok {
		return "", &domain.FlowError{Flow: flow, Phase: "request", Detail: "response carried no request id"}
	}
	if _, err := f.Store.UpdateMeta(flow, map[string]any{"request_id": reqID}); err != nil {
		return "", err
	}
	f.phase(flow, "request", reqID)

	// product options are listed even when credits will cover the purchase
	presp, err := f.Client.Do(ctx, httpc.Request{Method: http.MethodGet, Endpoint: "/auction-sheet/products.json"})
	if err != nil {
		return "", err
	}
	if err := f.Check.Status("/auction-sheet/products.json", presp, 200); err != nil {
		return "", err
	}

	balance, err := f.Pay.CreditBalance(ctx, "auction_sheet_credits")
	if err != nil {
		return "", err
	}
	if balance > 0 {
		f.Log.Info("auction-sheet credits cover the request, skipping checkout", "balance", balance)
		f.phase(flow, "credit_covered", reqID)
		return "", nil
	}

	productID, _ := presp.Doc.FirstInt("products[0].id", "data[0].id", "result[0].id")
	paymentID, _, err := f.Pay.ProceedCheckout(ctx, payments.CheckoutInput{
		ProductID: productID,
		SID:       reqID,
		SType:     "auction_sheet",
	})
	if err != nil {
		return "", err
	}
	if _, err := f.Store.UpdateMeta(flow, map[string]any{"payment_id": paymentID}); err != nil {
		return "", err
	}
	if err := f.Pay.PayWithWallet(ctx, paymentID); err != nil {
		return paymentID, err
	}
	f.phase(flow, "paid", reqID)
	return paymentID, nil
}
