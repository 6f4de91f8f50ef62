package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	identitymodels "lumenpay/internal/identity/models"
	"lumenpay/internal/resolver"
	dErrors "lumenpay/pkg/domain-errors"
	"lumenpay/pkg/platform/httputil"
	"lumenpay/pkg/requestcontext"
)

type IdentityService interface {
	CheckAvailability(ctx context.Context, handle string) (bool, error)
	Claim(ctx context.Context, handle, ownerID string) (*identitymodels.Identity, error)
	Get(ctx context.Context, ownerID string) (*identitymodels.Identity, error)
}

type ResolverService interface {
	Resolve(ctx context.Context, input string) (resolver.Resolution, error)
}

type HealthChecker interface {
	Health(ctx context.Context) error
}

type handlers struct {
	identity    IdentityService
	resolver    ResolverService
	settlements SettlementService
	health      HealthChecker
	logger      *slog.Logger
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Health(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("handle")
	available, err := h.identity.CheckAvailability(r.Context(), handle)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"handle":    handle,
		"available": available,
	})
}

type claimRequest struct {
	Handle string `json:"handle"`
}

func (h *handlers) claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	ident, err := h.identity.Claim(r.Context(), req.Handle, requestcontext.OwnerID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ident)
}

func (h *handlers) myIdentity(w http.ResponseWriter, r *http.Request) {
	ident, err := h.identity.Get(r.Context(), requestcontext.OwnerID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ident)
}

func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	input := r.URL.Query().Get("input")
	if input == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "input query parameter is required"))
		return
	}

	res, err := h.resolver.Resolve(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"input":   input,
		"address": res.Address,
		"handle":  res.Handle.String(),
	})
}
