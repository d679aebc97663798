package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/brightkids/backend/internal/middleware"
	"github.com/brightkids/backend/internal/models"
	"github.com/brightkids/backend/internal/settlement"
	"github.com/brightkids/backend/internal/wallet"
)

// Settler is the marketplace settlement operation.
type Settler interface {
	Settle(ctx context.Context, kind string, listingID uuid.UUID, acceptor settlement.Acceptor) (*settlement.Result, error)
}

// SettlementHandler serves the accept/fulfill endpoints. The three routes
// share one settlement path parameterized by listing kind.
type SettlementHandler struct {
	Settler Settler
	Logger  *slog.Logger
}

type acceptRequest struct {
	Contact string `json:"contact"`
}

// AcceptBook handles POST /api/v1/books/{id}/accept.
func (h *SettlementHandler) AcceptBook(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, models.ListingBookSale)
}

// FulfillBookRequest handles POST /api/v1/books/requests/{id}/fulfill.
func (h *SettlementHandler) FulfillBookRequest(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, models.ListingBookRequest)
}

// AcceptTeacherRequest handles POST /api/v1/teachers/requests/{id}/accept.
func (h *SettlementHandler) AcceptTeacherRequest(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, models.ListingTeacherRequest)
}

func (h *SettlementHandler) settle(w http.ResponseWriter, r *http.Request, kind string) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	listingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid listing id"}`, http.StatusBadRequest)
		return
	}
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Contact == "" {
		http.Error(w, `{"error":"contact is required"}`, http.StatusBadRequest)
		return
	}

	res, err := h.Settler.Settle(r.Context(), kind, listingID, settlement.Acceptor{
		UserID:  ident.UserID,
		Email:   ident.Email,
		Contact: req.Contact,
	})
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrAlreadySettled):
			http.Error(w, `{"error":"already_settled"}`, http.StatusConflict)
		case errors.Is(err, settlement.ErrNotFound), errors.Is(err, wallet.ErrNotFound):
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		case errors.Is(err, wallet.ErrInsufficientFunds):
			http.Error(w, `{"error":"insufficient_funds"}`, http.StatusPaymentRequired)
		case errors.Is(err, settlement.ErrDidNotCommit):
			h.Logger.Error("settlement exhausted retries", "listing_id", listingID, "error", err)
			http.Error(w, `{"error":"external_failure"}`, http.StatusBadGateway)
		default:
			h.Logger.Error("settle", "listing_id", listingID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}
