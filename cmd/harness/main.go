package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adqa/internal/ads"
	"adqa/internal/config"
	"adqa/internal/domain"
	"adqa/internal/harness"
	"adqa/internal/logging"
	"adqa/internal/observability"
	"adqa/internal/scenario"
	"adqa/internal/util"
)

func main() {
	flow := flag.String("flow", "login", "flow to run: login, signup, post:<category>, lifecycle:<category>, feature:<category>, carsure, sifm, auction-sheet, insurance, finance, registration, suite:<file>")
	metricsAddr := flag.String("metrics", "", "serve /metrics on this address while the flow runs (e.g. :9090)")
	flag.Parse()

	cfg := config.Load()
	runID := util.NewRunID()
	log := logging.Init("harness", cfg.LogFormat, runID)

	observability.Register(prometheus.DefaultRegisterer)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *metricsAddr != "" {
		r := mux.NewRouter()
		r.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, r); err != nil {
				log.Error("metrics listener stopped", "err", err)
			}
		}()
	}

	h := harness.New(cfg, log)
	if err := run(ctx, h, *flow); err != nil {
		log.Error("flow failed", "flow", *flow, "err", err)
		os.Exit(1)
	}
	log.Info("flow passed", "flow", *flow)
}

func run(ctx context.Context, h *harness.Harness, flow string) error {
	name, arg, _ := strings.Cut(flow, ":")
	switch name {
	case "login":
		tok, err := h.Tokens.GetOrMint(ctx, h.Tokens.Default)
		if err != nil {
			return err
		}
		h.Log.Info("token minted", "mode", tok.Mode, "expires_at", tok.ExpiresAt)
		return nil
	case "signup":
		_, err := h.Signup().Run(ctx, map[string]any{})
		return err
	case "post":
		e, err := engineFor(h, arg)
		if err != nil {
			return err
		}
		ref, err := e.Submit(ctx)
		if err != nil {
			return err
		}
		state, err := e.WaitVisible(ctx, ref)
		if err != nil {
			return err
		}
		h.Log.Info("ad visible", "ad_id", ref.AdID, "state", state)
		return nil
	case "lifecycle":
		e, err := engineFor(h, arg)
		if err != nil {
			return err
		}
		return runLifecycle(ctx, e)
	case "feature":
		e, err := engineFor(h, arg)
		if err != nil {
			return err
		}
		ref, err := e.Resolve(ctx, domain.AdRef{})
		if err != nil {
			return err
		}
		_, err = e.Feature(ctx, ref)
		return err
	case "carsure":
		_, err := h.Leads.Carsure(ctx)
		return err
	case "sifm":
		return h.Leads.SIFM(ctx)
	case "auction-sheet":
		_, err := h.Leads.AuctionSheet(ctx)
		return err
	case "insurance":
		_, err := h.Leads.CarInsurance(ctx, nil)
		return err
	case "finance":
		_, err := h.Leads.CarFinance(ctx, nil)
		return err
	case "registration":
		_, err := h.Leads.RegistrationTransfer(ctx, nil)
		return err
	case "suite":
		suite, err := scenario.Load(arg)
		if err != nil {
			return err
		}
		r := &scenario.Runner{Client: h.Client, Check: h.Check, Log: h.Log}
		return r.Run(ctx, suite)
	default:
		return fmt.Errorf("unknown flow %q", flow)
	}
}

func runLifecycle(ctx context.Context, e *ads.Engine) error {
	ref, err := e.Submit(ctx)
	if err != nil {
		return err
	}
	if _, err := e.WaitVisible(ctx, ref); err != nil {
		return err
	}
	if err := e.Edit(ctx, ref, map[string]any{"price": 10}); err != nil {
		return err
	}
	if err := e.Close(ctx, ref); err != nil {
		return err
	}
	removed, err := e.Removed(ctx, ref)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("ad %d did not land in the removed bucket after close", ref.AdID)
	}
	_, err = e.Reactivate(ctx, ref)
	return err
}

func engineFor(h *harness.Harness, category string) (*ads.Engine, error) {
	if category == "" {
		category = "used_car"
	}
	e, ok := h.Engines[category]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}
	return e, nil
}
