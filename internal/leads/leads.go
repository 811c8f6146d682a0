// Package leads drives the lead-form flows: single-shot forms (insurance,
// finance, registration transfer) and the multi-phase inspection, SIFM, and
// auction-sheet machines built on the same request/validate primitives.
package leads

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"adqa/internal/domain"
	"adqa/internal/httpc"
	"adqa/internal/observability"
	"adqa/internal/payload"
	"adqa/internal/payments"
	"adqa/internal/validate"
)

type Flows struct {
	Client *httpc.Client
	Check  *validate.Validator
	Store  *payload.Store
	Pay    *payments.Orchestrator
	Log    *slog.Logger
}

func New(client *httpc.Client, check *validate.Validator, store *payload.Store, pay *payments.Orchestrator) *Flows {
	return &Flows{Client: client, Check: check, Store: store, Pay: pay, Log: slog.Default()}
}

// CarInsurance submits the insurance lead and validates its schema.
func (f *Flows) CarInsurance(ctx context.Context, update map[string]any) (int, error) {
	return f.simpleLead(ctx, "car_insurance", "/car-insurance/lead.json", "lead_forms/car_insurance.json", update)
}

// CarFinance submits the finance lead.
func (f *Flows) CarFinance(ctx context.Context, update map[string]any) (int, error) {
	return f.simpleLead(ctx, "car_finance", "/car-finance/lead.json", "lead_forms/car_finance.json", update)
}

// RegistrationTransfer submits the registration-transfer lead.
func (f *Flows) RegistrationTransfer(ctx context.Context, update map[string]any) (int, error) {
	return f.simpleLead(ctx, "registration_transfer", "/registration-transfer/lead.json", "lead_forms/registration_transfer.json", update)
}

// simpleLead is the shared single POST (plus optional PUT update) shape.
func (f *Flows) simpleLead(ctx context.Context, flow, endpoint, schemaRef string, update map[string]any) (int, error) {
	tpl, err := f.Store.Template(flow)
	if err != nil {
		return 0, err
	}
	resp, err := f.Client.Do(ctx, httpc.Request{Method: http.MethodPost, Endpoint: endpoint, Body: tpl})
	if err != nil {
		return 0, err
	}
	if err := f.Check.Status(endpoint, resp, 200); err != nil {
		return 0, err
	}
	_ = f.Check.Elapsed(endpoint, resp)
	if err := f.Check.Schema(resp, schemaRef); err != nil {
		return 0, err
	}

	leadID, ok := resp.Doc.FirstInt("lead_id", "id", "data.lead_id", "data.id")
	if !ok {
		return 0, &domain.FlowError{Flow: flow, Phase: "create", Detail: "lead response carried no id"}
	}
	if _, err := f.Store.UpdateMeta(flow, map[string]any{"lead_id": leadID}); err != nil {
		return 0, err
	}
	f.phase(flow, "create", leadID)

	if update != nil {
		updateEndpoint := updatePath(endpoint, leadID)
		uresp, err := f.Client.Do(ctx, httpc.Request{Method: http.MethodPut, Endpoint: updateEndpoint, Body: update})
		if err != nil {
			return leadID, err
		}
		if err := f.Check.Status(updateEndpoint, uresp, 200); err != nil {
			return leadID, err
		}
		f.phase(flow, "update", leadID)
	}
	return leadID, nil
}

func updatePath(createEndpoint string, leadID int) string {
	base := createEndpoint[:len(createEndpoint)-len(".json")]
	return base + "/" + strconv.Itoa(leadID) + ".json"
}

func (f *Flows) phase(flow, phase string, id int) {
	observability.FlowPhases.WithLabelValues(flow, phase).Inc()
	f.Log.Info("flow phase", "flow", flow, "phase", phase, "lead_id", id)
}
