package leads

import (
	"context"
	"net/http"
	"strconv"

	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/jsondoc"
	"adqa/internal/payments"
)

// Carsure runs the inspection flow: submit the request, discover a free
// slot, book it (or flag slot_not_found), then pay for the inspection.
func (f *Flows) Carsure(ctx context.Context) (string, error) {
	const flow = "carsure"
	tpl, err := f.Store.Template(flow)
	if err != nil {
		return "", err
	}

	resp, err := f.Client.Do(ctx, httpc.Request{Method: http.MethodPost, Endpoint: "/carsure/request.json", Body: tpl})
	if err != nil {
		return "", err
	}
	if err := f.Check.Status("/carsure/request.json", resp, 200); err != nil {
		return "", err
	}
	if err := f.Check.Schema(resp, "lead_forms/carsure_request.json"); err != nil {
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

	slot, found, err := f.carsureSlot(ctx)
	if err != nil {
		return "", err
	}
	update := map[string]any{}
	if found {
		for k, v := range slot {
			update[k] = v
		}
	} else {
		update["slot_not_found"] = true
	}
	endpoint := "/carsure/request/" + strconv.Itoa(reqID) + ".json"
	uresp, err := f.Client.Do(ctx, httpc.Request{Method: http.MethodPut, Endpoint: endpoint, Body: update})
	if err != nil {
		return "", err
	}
	if err := f.Check.Status(endpoint, uresp, 200); err != nil {
		return "", err
	}
	f.phase(flow, "schedule", reqID)

	productID, _ := jsondoc.From(tpl).FirstInt("product_id")
	paymentID, _, err := f.Pay.ProceedCheckout(ctx, payments.CheckoutInput{
		ProductID: productID,
		SID:       reqID,
		SType:     "carsure",
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

// carsureSlot fetches the free-slot list and normalizes the first offered
// slot into update fields.
func (f *Flows) carsureSlot(ctx context.Context) (map[string]any, bool, error) {
	resp, err := f.Client.Do(ctx, httpc.Request{Method: http.MethodGet, Endpoint: "/carsure/free-slots.json"})
	if err != nil {
		return nil, false, err
	}
	if !resp.OK() {
		return nil, false, &domain.UnexpectedStatus{Endpoint: "/carsure/free-slots.json", Want: []int{200}, Got: resp.Status}
	}
	for _, key := range []string{"slots", "result", "data"} {
		arr, ok := resp.Doc.Array(key)
		if !ok {
			continue
		}
		for _, item := range arr {
			slot := jsondoc.From(item)
			if avail, ok := slot.Get("available"); ok && avail == false {
				continue
			}
			return map[string]any{
				"scheduled_date": slot.FirstStr("date", "scheduled_date"),
				"slot_id":        slot.FirstStr("id", "slot_id"),
				"start_time":     slot.FirstStr("start_time", "time"),
			}, true, nil
		}
	}
	return nil, false, nil
}
