package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lumenpay/internal/ledger"
	"lumenpay/internal/settlement/models"
	dErrors "lumenpay/pkg/domain-errors"
	"lumenpay/pkg/platform/httputil"
	"lumenpay/pkg/requestcontext"
)

type SettlementService interface {
	Settle(ctx context.Context, ownerID, recipient, amount, note string) (*models.SettlementRecord, error)
	Reconcile(ctx context.Context, ownerID string, recordID uuid.UUID) (*models.SettlementRecord, error)
	History(ctx context.Context, ownerID string, before time.Time, limit int) ([]*models.SettlementRecord, error)
	GetBalances(ctx context.Context, ownerID string) ([]ledger.Balance, error)
}

type settleRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Note      string `json:"note"`
}

func (h *handlers) settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	record, err := h.settlements.Settle(r.Context(), requestcontext.OwnerID(r.Context()),
		req.Recipient, req.Amount, req.Note)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusCreated, record)
	case record != nil:
		// The attempt was recorded; the envelope carries the record so the
		// caller holds the ID it needs for reconciliation.
		httputil.WriteJSON(w, httputil.StatusOf(err), map[string]any{
			"error":             string(dErrors.CodeOf(err)),
			"error_description": dErrors.MessageOf(err),
			"settlement":        record,
		})
	default:
		httputil.WriteError(w, err)
	}
}

func (h *handlers) reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid settlement id"))
		return
	}

	record, err := h.settlements.Reconcile(r.Context(), requestcontext.OwnerID(r.Context()), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	var before time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "before must be RFC 3339"))
			return
		}
		before = parsed
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	records, err := h.settlements.History(r.Context(), requestcontext.OwnerID(r.Context()), before, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if records == nil {
		records = []*models.SettlementRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"settlements": records})
}

func (h *handlers) balances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.settlements.GetBalances(r.Context(), requestcontext.OwnerID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"balances": balances})
}
