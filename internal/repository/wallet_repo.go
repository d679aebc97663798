package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightkids/backend/internal/models"
)

const walletColumns = `user_id, coin_balance, gq_balance, points, daily_points, role, verified, last_top_up_at, last_top_up_ref, created_at, updated_at`

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.UserID, &w.CoinBalance, &w.GQBalance, &w.Points, &w.DailyPoints, &w.Role, &w.Verified, &w.LastTopUpAt, &w.LastTopUpRef, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Ensure creates the wallet with the starting grant if it does not exist yet.
// Conditional insert, so concurrent first requests for the same user cannot
// clobber each other. Returns true when this call created the row.
func (r *WalletRepo) Ensure(ctx context.Context, userID uuid.UUID) (created bool, err error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO wallets (user_id, coin_balance, gq_balance, role, verified)
		VALUES ($1, $2, 0, 'user', FALSE)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, models.StartingGrantCoins)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id = $1
	`, userID))
}

// GetByUserIDForUpdate locks the wallet row. Call within a transaction.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE
	`, userID))
}

// DebitCoins atomically deducts amount if coin_balance >= amount.
// Scan fails with pgx.ErrNoRows when the balance is too low.
func (r *WalletRepo) DebitCoins(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET coin_balance = coin_balance - $1, updated_at = now()
		WHERE user_id = $2 AND coin_balance >= $1
		RETURNING coin_balance
	`, amount, userID).Scan(&newBalance)
	return newBalance, err
}

// CreditCoins adds amount and returns the new balance.
func (r *WalletRepo) CreditCoins(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET coin_balance = coin_balance + $1, updated_at = now()
		WHERE user_id = $2
		RETURNING coin_balance
	`, amount, userID).Scan(&newBalance)
	return newBalance, err
}

// StampTopUp records the payment reference of the latest verified top-up.
func (r *WalletRepo) StampTopUp(ctx context.Context, tx pgx.Tx, userID uuid.UUID, reference string) error {
	_, err := tx.Exec(ctx, `
		UPDATE wallets SET last_top_up_at = now(), last_top_up_ref = $2, updated_at = now()
		WHERE user_id = $1
	`, userID, reference)
	return err
}

// AwardPoints adds graded-work points to both leaderboard windows.
func (r *WalletRepo) AwardPoints(ctx context.Context, userID uuid.UUID, points int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE wallets SET points = points + $1, daily_points = daily_points + $1, updated_at = now()
		WHERE user_id = $2
	`, points, userID)
	return err
}

// ConvertCoinsToGQ moves consumedCoins out of coin_balance and gainedGQ into
// gq_balance in one conditional update. pgx.ErrNoRows means the coin balance
// was below consumedCoins.
func (r *WalletRepo) ConvertCoinsToGQ(ctx context.Context, tx pgx.Tx, userID uuid.UUID, consumedCoins, gainedGQ int) (coinBalance, gqBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET coin_balance = coin_balance - $1, gq_balance = gq_balance + $2, updated_at = now()
		WHERE user_id = $3 AND coin_balance >= $1
		RETURNING coin_balance, gq_balance
	`, consumedCoins, gainedGQ, userID).Scan(&coinBalance, &gqBalance)
	return coinBalance, gqBalance, err
}

// ConvertGQToCoins is the reverse direction, conditional on gq_balance.
func (r *WalletRepo) ConvertGQToCoins(ctx context.Context, tx pgx.Tx, userID uuid.UUID, consumedGQ, gainedCoins int) (coinBalance, gqBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET gq_balance = gq_balance - $1, coin_balance = coin_balance + $2, updated_at = now()
		WHERE user_id = $3 AND gq_balance >= $1
		RETURNING coin_balance, gq_balance
	`, consumedGQ, gainedCoins, userID).Scan(&coinBalance, &gqBalance)
	return coinBalance, gqBalance, err
}
