package leaderboard

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brightkids/backend/internal/models"
	"github.com/brightkids/backend/internal/repository"
)

// ErrUnknownWindow is returned for windows other than "daily" and "all".
var ErrUnknownWindow = errors.New("unknown leaderboard window")

const defaultLimit = 10

// Store is the ranking query surface the service needs.
type Store interface {
	TopN(ctx context.Context, daily bool, limit int) ([]repository.LeaderboardRow, error)
	CountHigher(ctx context.Context, daily bool, score int) (int, error)
	NextAbove(ctx context.Context, daily bool, score int) (next int, found bool, err error)
}

// WalletReader resolves the requesting user's own score.
type WalletReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

// Standing describes the requesting user's own position.
type Standing struct {
	Rank         int  `json:"rank"`
	Points       int  `json:"points"`
	PointsToNext int  `json:"points_to_next"`
	InVisibleTop bool `json:"in_visible_top"`
}

// Board is the full leaderboard response.
type Board struct {
	Window  string                      `json:"window"`
	Entries []repository.LeaderboardRow `json:"entries"`
	Me      *Standing                   `json:"me,omitempty"`
}

type Service struct {
	store   Store
	wallets WalletReader
}

func NewService(store Store, wallets WalletReader) *Service {
	return &Service{store: store, wallets: wallets}
}

// Get returns the top-N for the window plus the requester's standing. When
// the requester is outside the visible top, rank falls back to a
// count-of-higher-scores query. O(participants) per request; fine for the
// bounded population this app serves.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, window string, limit int) (*Board, error) {
	var daily bool
	switch window {
	case "daily":
		daily = true
	case "", "all":
		window = "all"
	default:
		return nil, ErrUnknownWindow
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	entries, err := s.store.TopN(ctx, daily, limit)
	if err != nil {
		return nil, err
	}
	board := &Board{Window: window, Entries: entries}

	w, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		// No wallet yet: the board is still useful without a standing.
		if errors.Is(err, pgx.ErrNoRows) {
			return board, nil
		}
		return nil, err
	}
	score := w.Points
	if daily {
		score = w.DailyPoints
	}

	me := &Standing{Points: score}
	for i, e := range entries {
		if e.UserID == userID {
			me.InVisibleTop = true
			me.Rank = i + 1
			break
		}
	}
	if !me.InVisibleTop {
		higher, err := s.store.CountHigher(ctx, daily, score)
		if err != nil {
			return nil, err
		}
		me.Rank = higher + 1
	}
	if next, found, err := s.store.NextAbove(ctx, daily, score); err != nil {
		return nil, err
	} else if found {
		me.PointsToNext = next - score
	}
	board.Me = me
	return board, nil
}
