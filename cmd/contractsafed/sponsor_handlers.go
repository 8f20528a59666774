package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/airinterface/contract-safe/pkg/httpapi"
	"github.com/airinterface/contract-safe/pkg/principal"
	"github.com/airinterface/contract-safe/pkg/sponsor"
)

// registerSponsorRoutes mounts the fee-sponsorship API used by the
// relayer that fronts end users.
func registerSponsorRoutes(router *mux.Router, tracker *sponsor.Tracker) {
	router.HandleFunc("/sponsorship/validate", validateRequestHandler(tracker)).Methods("POST")
	router.HandleFunc("/sponsorship/record", recordCostHandler(tracker)).Methods("POST")
	router.HandleFunc("/sponsorship/quota/{user}", remainingQuotaHandler(tracker)).Methods("GET")
}

type validateRequest struct {
	User          string `json:"user"`
	Operation     string `json:"operation"`
	EstimatedCost int64  `json:"estimatedCost"`
}

func validateRequestHandler(tracker *sponsor.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpapi.WriteBadRequest(w, "invalid JSON payload")
			return
		}

		voucher, err := tracker.ValidateRequest(r.Context(), principal.Principal(req.User), req.Operation, req.EstimatedCost)
		switch {
		case err == nil:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(voucher)
		case errors.Is(err, sponsor.ErrNotSponsorable):
			httpapi.WriteError(w, http.StatusForbidden, "Forbidden", err.Error())
		case errors.Is(err, sponsor.ErrQuotaExceeded):
			httpapi.WriteError(w, http.StatusTooManyRequests, "Too Many Requests", err.Error())
		case errors.Is(err, sponsor.ErrDepositExhausted):
			httpapi.WriteError(w, http.StatusPaymentRequired, "Payment Required", err.Error())
		case errors.Is(err, sponsor.ErrInvalidAmount):
			httpapi.WriteBadRequest(w, err.Error())
		default:
			httpapi.WriteInternal(w, err)
		}
	}
}

type recordRequest struct {
	Voucher    string `json:"voucher"`
	ActualCost int64  `json:"actualCost"`
}

func recordCostHandler(tracker *sponsor.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpapi.WriteBadRequest(w, "invalid JSON payload")
			return
		}

		err := tracker.RecordActualCost(r.Context(), req.Voucher, req.ActualCost)
		switch {
		case err == nil:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case errors.Is(err, sponsor.ErrUnknownVoucher):
			httpapi.WriteError(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, sponsor.ErrInvalidAmount):
			httpapi.WriteBadRequest(w, err.Error())
		default:
			httpapi.WriteInternal(w, err)
		}
	}
}

func remainingQuotaHandler(tracker *sponsor.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := principal.Principal(mux.Vars(r)["user"])
		remaining := tracker.RemainingQuota(user)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{"remaining": remaining})
	}
}
