package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LeaderboardRow is one ranked entry joined with the user's display name.
type LeaderboardRow struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Points      int       `json:"points"`
}

type LeaderboardRepo struct {
	pool *pgxpool.Pool
}

func NewLeaderboardRepo(pool *pgxpool.Pool) *LeaderboardRepo {
	return &LeaderboardRepo{pool: pool}
}

// pointsColumn maps a window name to the column it ranks by. Callers validate
// the window; this keeps the identifier out of the SQL placeholder.
func pointsColumn(daily bool) string {
	if daily {
		return "daily_points"
	}
	return "points"
}

func (r *LeaderboardRepo) TopN(ctx context.Context, daily bool, limit int) ([]LeaderboardRow, error) {
	col := pointsColumn(daily)
	rows, err := r.pool.Query(ctx, `
		SELECT w.user_id, u.display_name, w.`+col+`
		FROM wallets w JOIN users u ON u.id = w.user_id
		ORDER BY w.`+col+` DESC, w.user_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LeaderboardRow
	for rows.Next() {
		var row LeaderboardRow
		if err := rows.Scan(&row.UserID, &row.DisplayName, &row.Points); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountHigher returns how many wallets score strictly above the given score.
// Rank is that count + 1. O(participants); acceptable at this population size.
func (r *LeaderboardRepo) CountHigher(ctx context.Context, daily bool, score int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM wallets WHERE `+pointsColumn(daily)+` > $1
	`, score).Scan(&n)
	return n, err
}

// NextAbove returns the lowest score strictly above the given score, for
// computing "points needed to reach the next rank". found is false at rank 1.
func (r *LeaderboardRepo) NextAbove(ctx context.Context, daily bool, score int) (next int, found bool, err error) {
	col := pointsColumn(daily)
	err = r.pool.QueryRow(ctx, `
		SELECT `+col+` FROM wallets WHERE `+col+` > $1 ORDER BY `+col+` ASC LIMIT 1
	`, score).Scan(&next)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return 0, false, nil
		}
		return 0, false, err
	}
	return next, true, nil
}

// ResetDaily zeroes the daily window for all wallets. Run by the midnight
// cron job.
func (r *LeaderboardRepo) ResetDaily(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `UPDATE wallets SET daily_points = 0 WHERE daily_points <> 0`)
	return err
}
