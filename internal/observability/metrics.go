package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "adqa_http_requests_total", Help: "Harness HTTP requests"},
		[]string{"endpoint", "status"},
	)
	RequestLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "adqa_http_request_seconds", Help: "Harness request latency"},
	)
	ValidationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "adqa_validation_failures_total", Help: "Validator failures"},
		[]string{"kind"},
	)
	FlowPhases = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "adqa_flow_phase_total", Help: "Flow phase transitions"},
		[]string{"flow", "phase"},
	)
	Payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "adqa_payment_total", Help: "Payment outcomes"},
		[]string{"result"},
	)
	TokenMints = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "adqa_token_mint_total", Help: "Login round-trips by mode"},
		[]string{"mode"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(Requests, RequestLatency, ValidationFailures, FlowPhases, Payments, TokenMints)
}
