package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/brightkids/backend/internal/leaderboard"
	"github.com/brightkids/backend/internal/middleware"
)

// Ranker computes the leaderboard view.
type Ranker interface {
	Get(ctx context.Context, userID uuid.UUID, window string, limit int) (*leaderboard.Board, error)
}

// LeaderboardHandler serves GET /api/v1/leaderboard.
type LeaderboardHandler struct {
	Ranker Ranker
	Logger *slog.Logger
}

func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	board, err := h.Ranker.Get(r.Context(), ident.UserID, r.URL.Query().Get("window"), limit)
	if err != nil {
		if errors.Is(err, leaderboard.ErrUnknownWindow) {
			http.Error(w, `{"error":"window must be daily or all"}`, http.StatusBadRequest)
			return
		}
		h.Logger.Error("leaderboard", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
