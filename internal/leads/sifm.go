package leads

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/jsondoc"
	"adqa/internal/payments"
)

// sifmInspectionDays is how many upcoming days the scheduler scans for an
// assessor slot before giving up and submitting slot_not_found.
const sifmInspectionDays = 7

// SIFM runs the Sell-It-For-Me lead through its phases: create, vehicle
// details, slot discovery + reservation, and the credit-gated checkout.
func (f *Flows) SIFM(ctx context.Context) error {
	const flow = "sifm_lead"
	tpl, err := f.Store.Template(flow)
	if err != nil {
		return err
	}

	// phase 1: lead create
	resp, err := f.Client.Do(ctx, httpc.Request{Method: http.MethodPost, Endpoint: "/sell-it-for-me/lead.json", Body: tpl})
	if err != nil {
		return err
	}
	if err := f.Check.Status("/sell-it-for-me/lead.json", resp, 200); err != nil {
		return err
	}
	if err := f.Check.Schema(resp, "lead_forms/sifm_lead.json"); err != nil {
		return err
	}
	leadID, ok := resp.Doc.FirstInt("lead_id", "id", "data.id")
	if !ok {
		return &domain.FlowError{Flow: flow, Phase: "create", Detail: "lead response carried no id"}
	}
	if _, err := f.Store.UpdateMeta(flow, map[string]any{"lead_id": leadID}); err != nil {
		return err
	}
	f.phase(flow, "create", leadID)

	// phase 2: vehicle details
	details, _ := tpl["vehicle_details"].(map[string]any)
	if details == nil {
		details = map[string]any{}
	}
	leadPath := "/sell-it-for-me/lead/" + strconv.Itoa(leadID) + ".json"
	uresp, err := f.Client.Do(ctx, httpc.Request{Method: http.MethodPut, Endpoint: leadPath, Body: details})
	if err != nil {
		return err
	}
	if err := f.Check.Status(leadPath, uresp, 200); err != nil {
		return err
	}
	f.phase(flow, "vehicle_details", leadID)

	// phase 3: schedule
	schedule, err := f.sifmSchedule(ctx)
	if err != nil {
		return err
	}
	schedulePath := "/sell-it-for-me/lead/" + strconv.Itoa(leadID) + "/schedule.json"
	sresp, err := f.Client.Do(ctx, httpc.Request{Method: http.MethodPost, Endpoint: schedulePath, Body: schedule})
	if err != nil {
		return err
	}
	if err := f.Check.Status(schedulePath, sresp, 200); err != nil {
		return err
	}
	f.phase(flow, "schedule", leadID)

	// credit gate: a positive SIFM balance substitutes for the whole
	// checkout + wallet cycle.
	balance, err := f.Pay.CreditBalance(ctx, "sifm_credits")
	if err != nil {
		return err
	}
	if balance > 0 {
		f.Log.Info("sifm credits cover the lead, skipping checkout", "balance", balance)
		f.phase(flow, "credit_covered", leadID)
		return nil
	}

	productID, _ := jsondoc.From(tpl).FirstInt("product_id")
	paymentID, _, err := f.Pay.ProceedCheckout(ctx, payments.CheckoutInput{
		ProductID: productID,
		SID:       leadID,
		SType:     "sifm",
	})
	if err != nil {
		return err
	}
	if _, err := f.Store.UpdateMeta(flow, map[string]any{"payment_id": paymentID}); err != nil {
		return err
	}
	if err := f.Pay.PayWithWallet(ctx, paymentID); err != nil {
		return err
	}
	f.phase(flow, "paid", leadID)
	return nil
}

// sifmSchedule walks the upcoming inspection-day candidates until an
// assessor has a free slot, normalizing the first hit. No slot anywhere
// yields {slot_not_found: true}, submitted as-is.
func (f *Flows) sifmSchedule(ctx context.Context) (map[string]any, error) {
	for d := 0; d < sifmInspectionDays; d++ {
		day := time.Now().AddDate(0, 0, d+1).Format("2006-01-02")
		resp, err := f.Client.Do(ctx, httpc.Request{
			Method:   http.MethodGet,
			Endpoint: "/sell-it-for-me/get_assignees_free_slots.json",
			Query:    map[string]string{"date": day},
		})
		if err != nil {
			return nil, err
		}
		if !resp.OK() {
			return nil, &domain.UnexpectedStatus{Endpoint: "get_assignees_free_slots", Want: []int{200}, Got: resp.Status}
		}
		for _, key := range []string{"slots", "result", "data"} {
			arr, ok := resp.Doc.Array(key)
			if !ok || len(arr) == 0 {
				continue
			}
			slot := jsondoc.From(arr[0])
			assessor, _ := slot.FirstInt("assessor_id", "assignee_id", "user_id")
			return map[string]any{
				"scheduled_date": day,
				"assessor_id":    assessor,
				"slot_id":        slot.FirstStr("id", "slot_id"),
				"start_time":     slot.FirstStr("start_time", "time"),
			}, nil
		}
	}
	return map[string]any{"slot_not_found": true}, nil
}
