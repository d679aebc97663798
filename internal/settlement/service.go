package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brightkids/backend/internal/models"
	"github.com/brightkids/backend/internal/notify"
	"github.com/brightkids/backend/internal/wallet"
)

// Sentinel errors surfaced to handlers. Insufficient funds reuses the wallet
// package sentinel so callers need only one errors.Is chain.
var (
	ErrNotFound       = errors.New("listing not found")
	ErrAlreadySettled = errors.New("listing already settled")
	ErrDidNotCommit   = errors.New("settlement did not commit")
)

// maxAttempts bounds the retry loop on commit-time write conflicts.
const maxAttempts = 3

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WalletStore is the subset of the wallet repository the settlement needs.
type WalletStore interface {
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	DebitCoins(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error)
}

// ListingStore is the subset of the listing repository the settlement needs.
type ListingStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID, kind string) (*models.Listing, error)
	MarkAccepted(ctx context.Context, tx pgx.Tx, id uuid.UUID, acceptorID uuid.UUID, acceptorContact string) (bool, error)
	OwnerContactEmail(ctx context.Context, listingID uuid.UUID) (string, error)
}

// LedgerStore appends wallet_ledger entries inside the settlement transaction.
type LedgerStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

// EnqueueEmailTxFunc enqueues a notification email within the given
// transaction. Provided by main using river.Client.InsertTx, so the job
// becomes visible exactly when the settlement commits.
type EnqueueEmailTxFunc func(ctx context.Context, tx pgx.Tx, args notify.SendEmailArgs) error

// Acceptor identifies the paying party of a settlement.
type Acceptor struct {
	UserID  uuid.UUID
	Email   string
	Contact string
}

// Result is returned on successful settlement.
type Result struct {
	NewBalance int             `json:"new_balance"`
	Listing    *models.Listing `json:"listing"`
}

// Service couples one wallet debit to one listing transition so that both
// commit or neither does.
type Service struct {
	db           TxBeginner
	wallets      WalletStore
	listings     ListingStore
	ledger       LedgerStore
	enqueueEmail EnqueueEmailTxFunc
	cost         int
	log          *slog.Logger
}

func NewService(db TxBeginner, wallets WalletStore, listings ListingStore, ledger LedgerStore, enqueueEmail EnqueueEmailTxFunc, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:           db,
		wallets:      wallets,
		listings:     listings,
		ledger:       ledger,
		enqueueEmail: enqueueEmail,
		cost:         models.SettlementCostCoins,
		log:          log,
	}
}

// Settle debits the acceptor's wallet by the flat cost and transitions the
// listing PENDING -> ACCEPTED in one atomic transaction. Concurrent attempts
// on the same listing have exactly one winner; every loser gets
// ErrAlreadySettled and is not debited. Commit-time write conflicts are
// retried up to maxAttempts before surfacing ErrDidNotCommit.
func (s *Service) Settle(ctx context.Context, kind string, listingID uuid.UUID, acceptor Acceptor) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := s.settleOnce(ctx, kind, listingID, acceptor)
		if err == nil {
			return res, nil
		}
		if !retryableTxError(err) {
			return nil, err
		}
		lastErr = err
		s.log.Warn("settlement transaction conflict, retrying",
			"listing_id", listingID, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("%w: %v", ErrDidNotCommit, lastErr)
}

func (s *Service) settleOnce(ctx context.Context, kind string, listingID uuid.UUID, acceptor Acceptor) (*Result, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Lock order: acceptor wallet, then listing. Every settlement locks its
	// own wallet first, so two racers on the same listing cannot deadlock.
	w, err := s.wallets.GetByUserIDForUpdate(ctx, tx, acceptor.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrNotFound
		}
		return nil, err
	}

	listing, err := s.listings.GetByIDForUpdate(ctx, tx, listingID, kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if listing.Status != models.ListingStatusPending {
		return nil, ErrAlreadySettled
	}
	if w.CoinBalance < s.cost {
		return nil, wallet.ErrInsufficientFunds
	}

	newBalance, err := s.wallets.DebitCoins(ctx, tx, acceptor.UserID, s.cost)
	if err != nil {
		return nil, err
	}
	won, err := s.listings.MarkAccepted(ctx, tx, listingID, acceptor.UserID, acceptor.Contact)
	if err != nil {
		return nil, err
	}
	if !won {
		// Row lock should make this unreachable; guard anyway so a lost race
		// can never debit the loser.
		return nil, ErrAlreadySettled
	}

	if err := s.ledger.CreateTx(ctx, tx, &models.LedgerEntry{
		ID:           uuid.New(),
		UserID:       acceptor.UserID,
		ListingID:    &listingID,
		EntryType:    models.LedgerEntrySettlement,
		Currency:     models.CurrencyCoins,
		Amount:       s.cost,
		BalanceAfter: &newBalance,
	}); err != nil {
		return nil, err
	}

	if err := s.enqueueNotifications(ctx, tx, listing, acceptor); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	settled := *listing
	settled.Status = models.ListingStatusAccepted
	settled.AcceptorID = &acceptor.UserID
	settled.AcceptorContact = &acceptor.Contact
	settledAt := time.Now().UTC()
	settled.SettledAt = &settledAt
	return &Result{NewBalance: newBalance, Listing: &settled}, nil
}

// enqueueNotifications inserts both party emails into the job queue inside
// the settlement transaction. Delivery itself is asynchronous and
// best-effort; a failed send never unwinds the settlement.
func (s *Service) enqueueNotifications(ctx context.Context, tx pgx.Tx, listing *models.Listing, acceptor Acceptor) error {
	ownerEmail, err := s.listings.OwnerContactEmail(ctx, listing.ID)
	if err != nil {
		s.log.Warn("owner email lookup failed, skipping owner notification", "listing_id", listing.ID, "error", err)
		ownerEmail = ""
	}
	if ownerEmail != "" {
		if err := s.enqueueEmail(ctx, tx, notify.SendEmailArgs{
			To:      ownerEmail,
			Subject: fmt.Sprintf("Your listing %q was accepted", listing.Title),
			HTML: fmt.Sprintf("<p>Good news! Your listing <b>%s</b> was accepted.</p><p>Contact: %s</p>",
				listing.Title, acceptor.Contact),
		}); err != nil {
			return err
		}
	}
	if acceptor.Email != "" {
		if err := s.enqueueEmail(ctx, tx, notify.SendEmailArgs{
			To:      acceptor.Email,
			Subject: fmt.Sprintf("You accepted %q", listing.Title),
			HTML: fmt.Sprintf("<p>You accepted <b>%s</b> for %d Gocoins.</p><p>Owner contact: %s</p>",
				listing.Title, models.SettlementCostCoins, listing.OwnerContact),
		}); err != nil {
			return err
		}
	}
	return nil
}

// retryableTxError reports whether err is a commit-time write conflict
// (serialization failure or deadlock) worth retrying from scratch.
func retryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
