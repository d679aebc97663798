package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightkids/backend/internal/models"
)

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func (r *LedgerRepo) Create(ctx context.Context, e *models.LedgerEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO wallet_ledger (id, user_id, listing_id, entry_type, currency, amount, balance_after, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, e.ID, e.UserID, e.ListingID, e.EntryType, e.Currency, e.Amount, e.BalanceAfter, e.Reference).Scan(&e.CreatedAt)
}

// CreateTx appends a ledger entry inside the given transaction.
func (r *LedgerRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallet_ledger (id, user_id, listing_id, entry_type, currency, amount, balance_after, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, e.ID, e.UserID, e.ListingID, e.EntryType, e.Currency, e.Amount, e.BalanceAfter, e.Reference).Scan(&e.CreatedAt)
}

func (r *LedgerRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, listing_id, entry_type, currency, amount, balance_after, reference, created_at
		FROM wallet_ledger WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ListingID, &e.EntryType, &e.Currency, &e.Amount, &e.BalanceAfter, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
