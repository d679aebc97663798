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
	"github.com/brightkids/backend/internal/payments"
	"github.com/brightkids/backend/internal/wallet"
)

// WalletService is the subset of the wallet ledger the handler needs.
type WalletService interface {
	Balance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Convert(ctx context.Context, userID uuid.UUID, from, to string, amount int) (*wallet.ConvertResult, error)
	History(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error)
}

// TopUpService verifies a payment reference and credits the wallet.
type TopUpService interface {
	TopUp(ctx context.Context, userID uuid.UUID, reference string) (newBalance int, granted int, err error)
}

// WalletHandler serves /api/v1/wallet endpoints.
type WalletHandler struct {
	Wallet WalletService
	TopUps TopUpService
	Logger *slog.Logger
}

// GetWallet handles GET /api/v1/wallet.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	wal, err := h.Wallet.Balance(r.Context(), ident.UserID)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			http.Error(w, `{"error":"wallet not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("get wallet", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"coin_balance": wal.CoinBalance,
		"gq_balance":   wal.GQBalance,
		"points":       wal.Points,
	})
}

// GetHistory handles GET /api/v1/wallet/history.
func (h *WalletHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	entries, err := h.Wallet.History(r.Context(), ident.UserID)
	if err != nil {
		h.Logger.Error("wallet history", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type topUpRequest struct {
	Reference string `json:"reference"`
}

// TopUp handles POST /api/v1/wallet/topup.
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Reference == "" {
		http.Error(w, `{"error":"reference is required"}`, http.StatusBadRequest)
		return
	}

	newBalance, granted, err := h.TopUps.TopUp(r.Context(), ident.UserID, req.Reference)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrUnrecognizedAmount):
			http.Error(w, `{"error":"invalid_amount"}`, http.StatusBadRequest)
		case errors.Is(err, payments.ErrVerificationFailed):
			http.Error(w, `{"error":"payment not verified"}`, http.StatusBadRequest)
		case errors.Is(err, payments.ErrGatewayUnavailable):
			http.Error(w, `{"error":"external_failure"}`, http.StatusBadGateway)
		case errors.Is(err, wallet.ErrNotFound):
			http.Error(w, `{"error":"wallet not found"}`, http.StatusNotFound)
		default:
			h.Logger.Error("top up", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coin_balance": newBalance, "granted": granted})
}

type convertRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int    `json:"amount"`
}

// Convert handles POST /api/v1/wallet/convert.
func (h *WalletHandler) Convert(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	res, err := h.Wallet.Convert(r.Context(), ident.UserID, req.From, req.To, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrInvalidAmount):
			http.Error(w, `{"error":"invalid_amount"}`, http.StatusBadRequest)
		case errors.Is(err, wallet.ErrInsufficientFunds):
			http.Error(w, `{"error":"insufficient_funds"}`, http.StatusPaymentRequired)
		case errors.Is(err, wallet.ErrNotFound):
			http.Error(w, `{"error":"wallet not found"}`, http.StatusNotFound)
		default:
			h.Logger.Error("convert", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
