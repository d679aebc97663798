package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightkids/backend/internal/models"
)

const listingColumns = `id, kind, title, description, subject, owner_id, owner_contact, status, acceptor_id, acceptor_contact, settled_at, created_at, updated_at`

type ListingRepo struct {
	pool *pgxpool.Pool
}

func NewListingRepo(pool *pgxpool.Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.Kind, &l.Title, &l.Description, &l.Subject, &l.OwnerID, &l.OwnerContact, &l.Status, &l.AcceptorID, &l.AcceptorContact, &l.SettledAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ListingRepo) Create(ctx context.Context, l *models.Listing) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO listings (id, kind, title, description, subject, owner_id, owner_contact, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, l.ID, l.Kind, l.Title, l.Description, l.Subject, l.OwnerID, l.OwnerContact, l.Status).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (r *ListingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return scanListing(r.pool.QueryRow(ctx, `
		SELECT `+listingColumns+` FROM listings WHERE id = $1
	`, id))
}

// GetByIDForUpdate locks the listing row. Call within a transaction.
func (r *ListingRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID, kind string) (*models.Listing, error) {
	return scanListing(tx.QueryRow(ctx, `
		SELECT `+listingColumns+` FROM listings WHERE id = $1 AND kind = $2 FOR UPDATE
	`, id, kind))
}

// MarkAccepted transitions PENDING -> ACCEPTED and records the acceptor.
// The status guard makes the transition conditional: rows affected is 0 when
// another settlement already won the listing.
func (r *ListingRepo) MarkAccepted(ctx context.Context, tx pgx.Tx, id uuid.UUID, acceptorID uuid.UUID, acceptorContact string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE listings SET status = $2, acceptor_id = $3, acceptor_contact = $4, settled_at = now(), updated_at = now()
		WHERE id = $1 AND status = $5
	`, id, models.ListingStatusAccepted, acceptorID, acceptorContact, models.ListingStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ListingRepo) ListByKind(ctx context.Context, kind, status string) ([]*models.Listing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE kind = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`, kind, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// OwnerContactEmail returns the listing owner's account email for
// post-settlement notification.
func (r *ListingRepo) OwnerContactEmail(ctx context.Context, listingID uuid.UUID) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `
		SELECT u.email FROM listings l
		JOIN users u ON u.id = l.owner_id
		WHERE l.id = $1
	`, listingID).Scan(&email)
	return email, err
}
