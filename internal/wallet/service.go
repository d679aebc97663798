package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brightkids/backend/internal/models"
)

// Sentinel errors surfaced to handlers.
var (
	ErrNotFound          = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the minimal wallet repository interface for the ledger service.
type Store interface {
	Ensure(ctx context.Context, userID uuid.UUID) (created bool, err error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	DebitCoins(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error)
	CreditCoins(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (newBalance int, err error)
	StampTopUp(ctx context.Context, tx pgx.Tx, userID uuid.UUID, reference string) error
	ConvertCoinsToGQ(ctx context.Context, tx pgx.Tx, userID uuid.UUID, consumedCoins, gainedGQ int) (coinBalance, gqBalance int, err error)
	ConvertGQToCoins(ctx context.Context, tx pgx.Tx, userID uuid.UUID, consumedGQ, gainedCoins int) (coinBalance, gqBalance int, err error)
}

// LedgerStore appends and reads wallet_ledger entries.
type LedgerStore interface {
	Create(ctx context.Context, e *models.LedgerEntry) error
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error)
}

// Service owns coin and GQ balances. Every mutation runs inside a single
// atomic read-modify-write against the store; a balance is never observable
// below zero.
type Service struct {
	db     TxBeginner
	store  Store
	ledger LedgerStore
}

func NewService(db TxBeginner, store Store, ledger LedgerStore) *Service {
	return &Service{db: db, store: store, ledger: ledger}
}

// Ensure lazily creates the wallet with the starting grant. Safe to call on
// every authenticated request; a second call is a no-op.
func (s *Service) Ensure(ctx context.Context, userID uuid.UUID) error {
	created, err := s.store.Ensure(ctx, userID)
	if err != nil {
		return err
	}
	if created {
		grant := models.StartingGrantCoins
		return s.ledger.Create(ctx, &models.LedgerEntry{
			ID:           uuid.New(),
			UserID:       userID,
			EntryType:    models.LedgerEntryGrant,
			Currency:     models.CurrencyCoins,
			Amount:       models.StartingGrantCoins,
			BalanceAfter: &grant,
		})
	}
	return nil
}

// Balance returns the wallet, or ErrNotFound when it was never initialized.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	w, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return w, nil
}

// Credit adds amount coins with the given ledger entry type. A topup entry
// also stamps the payment reference on the wallet.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount int, entryType string, reference string) (newBalance int, err error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.store.GetByUserIDForUpdate(ctx, tx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	newBalance, err = s.store.CreditCoins(ctx, tx, userID, amount)
	if err != nil {
		return 0, err
	}
	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		UserID:       userID,
		EntryType:    entryType,
		Currency:     models.CurrencyCoins,
		Amount:       amount,
		BalanceAfter: &newBalance,
	}
	if reference != "" {
		entry.Reference = &reference
	}
	if err := s.ledger.CreateTx(ctx, tx, entry); err != nil {
		return 0, err
	}
	if entryType == models.LedgerEntryTopUp {
		if err := s.store.StampTopUp(ctx, tx, userID, reference); err != nil {
			return 0, err
		}
	}
	return newBalance, tx.Commit(ctx)
}

// Debit removes amount coins, failing with ErrInsufficientFunds if the
// balance is lower than amount. The balance is left unchanged on failure.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amount int) (newBalance int, err error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	w, err := s.store.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if w.CoinBalance < amount {
		return 0, ErrInsufficientFunds
	}
	newBalance, err = s.store.DebitCoins(ctx, tx, userID, amount)
	if err != nil {
		return 0, err
	}
	if err := s.ledger.CreateTx(ctx, tx, &models.LedgerEntry{
		ID:           uuid.New(),
		UserID:       userID,
		EntryType:    models.LedgerEntryDebit,
		Currency:     models.CurrencyCoins,
		Amount:       amount,
		BalanceAfter: &newBalance,
	}); err != nil {
		return 0, err
	}
	return newBalance, tx.Commit(ctx)
}

// ConvertResult reports both balances after a conversion.
type ConvertResult struct {
	CoinBalance int `json:"coin_balance"`
	GQBalance   int `json:"gq_balance"`
	Consumed    int `json:"consumed"`
	Gained      int `json:"gained"`
}

// Convert exchanges between the two currencies at the fixed rate.
// Floor division: only whole units of the target currency are produced, and
// only the exact consumed chunk of the source is debited — converting 250
// coins yields 2 GQ and leaves 50 coins untouched. Amounts below one whole
// target unit fail with ErrInvalidAmount.
func (s *Service) Convert(ctx context.Context, userID uuid.UUID, from, to string, amount int) (*ConvertResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var consumed, gained int
	switch {
	case from == models.CurrencyCoins && to == models.CurrencyGQ:
		if amount < models.CoinsPerGQ {
			return nil, ErrInvalidAmount
		}
		gained = amount / models.CoinsPerGQ
		consumed = gained * models.CoinsPerGQ
	case from == models.CurrencyGQ && to == models.CurrencyCoins:
		consumed = amount
		gained = amount * models.CoinsPerGQ
	default:
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.store.GetByUserIDForUpdate(ctx, tx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var coinBalance, gqBalance int
	if from == models.CurrencyCoins {
		coinBalance, gqBalance, err = s.store.ConvertCoinsToGQ(ctx, tx, userID, consumed, gained)
	} else {
		coinBalance, gqBalance, err = s.store.ConvertGQToCoins(ctx, tx, userID, consumed, gained)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	sourceAfter, targetAfter := coinBalance, gqBalance
	if from == models.CurrencyGQ {
		sourceAfter, targetAfter = gqBalance, coinBalance
	}
	out := &models.LedgerEntry{
		ID: uuid.New(), UserID: userID, EntryType: models.LedgerEntryConvertOut,
		Currency: from, Amount: consumed, BalanceAfter: &sourceAfter,
	}
	in := &models.LedgerEntry{
		ID: uuid.New(), UserID: userID, EntryType: models.LedgerEntryConvertIn,
		Currency: to, Amount: gained, BalanceAfter: &targetAfter,
	}
	if err := s.ledger.CreateTx(ctx, tx, out); err != nil {
		return nil, err
	}
	if err := s.ledger.CreateTx(ctx, tx, in); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &ConvertResult{CoinBalance: coinBalance, GQBalance: gqBalance, Consumed: consumed, Gained: gained}, nil
}

// History returns the wallet's ledger entries, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.ledger.ListByUserID(ctx, userID)
}
