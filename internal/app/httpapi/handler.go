// Package httpapi exposes the gas station's REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/drsui/gas-station/internal/app"
	"github.com/drsui/gas-station/internal/app/domain/sponsorship"
	"github.com/drsui/gas-station/internal/app/domain/txn"
	"github.com/drsui/gas-station/internal/app/metrics"
	"github.com/drsui/gas-station/internal/app/services/admission"
	"github.com/drsui/gas-station/internal/app/services/allowlist"
	"github.com/drsui/gas-station/internal/app/services/gas"
	"github.com/drsui/gas-station/internal/app/services/outcomes"
	"github.com/drsui/gas-station/internal/app/services/sponsor"
	"github.com/drsui/gas-station/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the sponsorship API. The sponsor
// route alone sits behind the per-IP limiter; monitoring endpoints are
// not admission-controlled.
func NewHandler(application *app.Application, ipLimiter *middleware.IPRateLimiter) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()

	sponsorRoute := http.Handler(http.HandlerFunc(h.sponsorTransaction))
	if ipLimiter != nil {
		ipLimiter.OnReject(func(string) { metrics.RecordRateLimitRejection("ip") })
		sponsorRoute = ipLimiter.Handler(sponsorRoute)
	}
	mux.Handle("/v1/sponsor", sponsorRoute)

	mux.HandleFunc("/v1/records", h.records)
	mux.HandleFunc("/v1/stats", h.stats)
	mux.HandleFunc("/v1/limits", h.limits)
	mux.HandleFunc("/v1/status", h.status)
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())

	return metrics.InstrumentHandler(mux)
}

func (h *handler) sponsorTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req sponsorship.Request
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.TransactionBytes) == "" {
		writeError(w, http.StatusBadRequest, errors.New("transaction_bytes is required"))
		return
	}
	if strings.TrimSpace(req.SenderAddress) == "" {
		writeError(w, http.StatusBadRequest, errors.New("sender_address is required"))
		return
	}

	start := time.Now()
	receipt, err := h.app.Sponsor.Sponsor(r.Context(), req, middleware.ClientIP(r))
	if err != nil {
		metrics.RecordSponsorship("failed", time.Since(start))
		var limitErr *admission.LimitError
		if errors.As(err, &limitErr) {
			metrics.RecordRateLimitRejection(limitErr.Tier)
		}
		writeError(w, sponsorStatus(err), err)
		return
	}

	metrics.RecordSponsorship("success", time.Since(start))
	metrics.SetSponsorBalance(receipt.SponsorRemainingBalance)
	writeJSON(w, http.StatusOK, receipt)
}

// sponsorStatus maps pipeline failures onto HTTP status codes.
func sponsorStatus(err error) int {
	switch {
	case errors.Is(err, admission.ErrLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, txn.ErrDecode), errors.Is(err, sponsor.ErrRejectedByNode):
		return http.StatusBadRequest
	case errors.Is(err, allowlist.ErrUnauthorizedTarget):
		return http.StatusForbidden
	case errors.Is(err, gas.ErrNoEligibleCoin):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) records(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	filter := outcomes.Filter{
		Sender: r.URL.Query().Get("sender"),
		Status: sponsorship.Status(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": h.app.Recorder.List(filter),
	})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Recorder.Stats())
}

func (h *handler) limits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Ledger.Snapshot(r.URL.Query().Get("address")))
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	out := map[string]interface{}{
		"sponsor_address":    h.app.Sponsor.Address(),
		"allowed_package":    h.app.Config.Sponsor.AllowedPackage,
		"node_url":           h.app.Config.Node.RPCURL,
		"rate_limit_enabled": !h.app.Config.RateLimit.Disabled,
		"records_held":       h.app.Recorder.Len(),
	}

	balance, err := h.app.Selector.RemainingBalance(r.Context())
	if err != nil {
		out["node_reachable"] = false
	} else {
		out["node_reachable"] = true
		out["sponsor_balance_mist"] = balance
		metrics.SetSponsorBalance(balance)
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
