package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brightkids/backend/internal/models"
	"github.com/brightkids/backend/internal/notify"
	"github.com/brightkids/backend/internal/wallet"
)

// ---------------------------------------------------------------------------
// In-memory mocks mirroring the repositories' semantics: conditional updates,
// FOR UPDATE row locks held until commit, and rollback undoing writes.
// ---------------------------------------------------------------------------

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

// memTx holds acquired row locks until commit or rollback and undoes writes
// on rollback, so concurrent settlements interleave the way they would
// against Postgres.
type memTx struct {
	noopTx
	held     []*sync.Mutex
	undo     []func()
	finished bool
}

func (t *memTx) lock(m *sync.Mutex) {
	m.Lock()
	t.held = append(t.held, m)
}

func (t *memTx) onRollback(fn func()) { t.undo = append(t.undo, fn) }

func (t *memTx) finish(rollback bool) {
	if t.finished {
		return
	}
	t.finished = true
	if rollback {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
	}
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
}

func (t *memTx) Commit(context.Context) error   { t.finish(false); return nil }
func (t *memTx) Rollback(context.Context) error { t.finish(true); return nil }

type mockDB struct{}

func (mockDB) Begin(context.Context) (pgx.Tx, error) { return &memTx{}, nil }

type mockWallets struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
	locks    map[uuid.UUID]*sync.Mutex
	// lockErrs is consumed one per GetByUserIDForUpdate call, for conflict
	// injection.
	lockErrs []error
}

func (m *mockWallets) rowLock(userID uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[uuid.UUID]*sync.Mutex)
	}
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

func (m *mockWallets) GetByUserIDForUpdate(_ context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	if len(m.lockErrs) > 0 {
		err := m.lockErrs[0]
		m.lockErrs = m.lockErrs[1:]
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
	}
	m.mu.Unlock()

	if mt, ok := tx.(*memTx); ok {
		mt.lock(m.rowLock(userID))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &models.Wallet{UserID: userID, CoinBalance: b}, nil
}

func (m *mockWallets) DebitCoins(_ context.Context, tx pgx.Tx, userID uuid.UUID, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok || b < amount {
		return 0, pgx.ErrNoRows
	}
	m.balances[userID] = b - amount
	if mt, ok := tx.(*memTx); ok {
		mt.onRollback(func() {
			m.mu.Lock()
			m.balances[userID] += amount
			m.mu.Unlock()
		})
	}
	return m.balances[userID], nil
}

func (m *mockWallets) balance(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

type mockListings struct {
	mu       sync.Mutex
	listings map[uuid.UUID]*models.Listing
	locks    map[uuid.UUID]*sync.Mutex
	emails   map[uuid.UUID]string
}

func (m *mockListings) rowLock(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[uuid.UUID]*sync.Mutex)
	}
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *mockListings) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID, kind string) (*models.Listing, error) {
	if mt, ok := tx.(*memTx); ok {
		mt.lock(m.rowLock(id))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok || l.Kind != kind {
		return nil, pgx.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (m *mockListings) MarkAccepted(_ context.Context, tx pgx.Tx, id uuid.UUID, acceptorID uuid.UUID, acceptorContact string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok || l.Status != models.ListingStatusPending {
		return false, nil
	}
	l.Status = models.ListingStatusAccepted
	l.AcceptorID = &acceptorID
	l.AcceptorContact = &acceptorContact
	if mt, ok := tx.(*memTx); ok {
		mt.onRollback(func() {
			m.mu.Lock()
			l.Status = models.ListingStatusPending
			l.AcceptorID = nil
			l.AcceptorContact = nil
			m.mu.Unlock()
		})
	}
	return true, nil
}

func (m *mockListings) OwnerContactEmail(_ context.Context, listingID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emails[listingID], nil
}

func (m *mockListings) status(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listings[id].Status
}

type mockLedger struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func (m *mockLedger) CreateTx(_ context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	if mt, ok := tx.(*memTx); ok {
		mt.onRollback(func() {
			m.mu.Lock()
			m.entries = m.entries[:len(m.entries)-1]
			m.mu.Unlock()
		})
	}
	return nil
}

func (m *mockLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type emailRecorder struct {
	mu   sync.Mutex
	sent []notify.SendEmailArgs
}

func (r *emailRecorder) enqueue(_ context.Context, tx pgx.Tx, args notify.SendEmailArgs) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, args)
	if mt, ok := tx.(*memTx); ok {
		mt.onRollback(func() {
			r.mu.Lock()
			r.sent = r.sent[:len(r.sent)-1]
			r.mu.Unlock()
		})
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func pendingListing(id, owner uuid.UUID, kind string) *models.Listing {
	return &models.Listing{
		ID:           id,
		Kind:         kind,
		Title:        "Maths for Beginners",
		OwnerID:      owner,
		OwnerContact: "owner@example.com",
		Status:       models.ListingStatusPending,
	}
}

func newTestService(wallets *mockWallets, listings *mockListings) (*Service, *mockLedger, *emailRecorder) {
	ledger := &mockLedger{}
	emails := &emailRecorder{}
	svc := NewService(mockDB{}, wallets, listings, ledger, emails.enqueue, nil)
	return svc, ledger, emails
}

// ---------------------------------------------------------------------------
// Settlement
// ---------------------------------------------------------------------------

func TestSettle_Success(t *testing.T) {
	buyer := uuid.New()
	owner := uuid.New()
	listingID := uuid.New()

	wallets := &mockWallets{balances: map[uuid.UUID]int{buyer: 30}}
	listings := &mockListings{
		listings: map[uuid.UUID]*models.Listing{listingID: pendingListing(listingID, owner, models.ListingBookSale)},
		emails:   map[uuid.UUID]string{listingID: "owner@example.com"},
	}
	svc, ledger, emails := newTestService(wallets, listings)

	res, err := svc.Settle(context.Background(), models.ListingBookSale, listingID, Acceptor{
		UserID: buyer, Email: "buyer@example.com", Contact: "+123456",
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	if res.NewBalance != 25 {
		t.Errorf("new balance: got %d, want 25", res.NewBalance)
	}
	if res.Listing.Status != models.ListingStatusAccepted {
		t.Errorf("listing status in result: got %s, want ACCEPTED", res.Listing.Status)
	}
	if res.Listing.SettledAt == nil {
		t.Error("settled listing snapshot must carry the settlement time")
	}
	if listings.status(listingID) != models.ListingStatusAccepted {
		t.Error("stored listing should be ACCEPTED")
	}
	if got := wallets.balance(buyer); got != 25 {
		t.Errorf("buyer balance: got %d, want 25", got)
	}

	// One settlement ledger entry referencing the listing.
	if ledger.count() != 1 {
		t.Fatalf("ledger entries: got %d, want 1", ledger.count())
	}
	e := ledger.entries[0]
	if e.EntryType != models.LedgerEntrySettlement || e.Amount != models.SettlementCostCoins {
		t.Errorf("ledger entry: got %s/%d", e.EntryType, e.Amount)
	}
	if e.ListingID == nil || *e.ListingID != listingID {
		t.Error("ledger entry should reference the listing")
	}

	// Both parties notified.
	if len(emails.sent) != 2 {
		t.Fatalf("emails enqueued: got %d, want 2", len(emails.sent))
	}
}

func TestSettle_SecondAttemptLoses(t *testing.T) {
	winner := uuid.New()
	loser := uuid.New()
	owner := uuid.New()
	listingID := uuid.New()

	wallets := &mockWallets{balances: map[uuid.UUID]int{winner: 30, loser: 30}}
	listings := &mockListings{
		listings: map[uuid.UUID]*models.Listing{listingID: pendingListing(listingID, owner, models.ListingTeacherRequest)},
		emails:   map[uuid.UUID]string{},
	}
	svc, _, _ := newTestService(wallets, listings)
	ctx := context.Background()

	if _, err := svc.Settle(ctx, models.ListingTeacherRequest, listingID, Acceptor{UserID: winner, Contact: "w"}); err != nil {
		t.Fatalf("first Settle: %v", err)
	}

	_, err := svc.Settle(ctx, models.ListingTeacherRequest, listingID, Acceptor{UserID: loser, Contact: "l"})
	if !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got: %v", err)
	}
	// The loser must not be debited.
	if got := wallets.balance(loser); got != 30 {
		t.Errorf("loser balance: got %d, want 30", got)
	}
	if got := wallets.balance(winner); got != 25 {
		t.Errorf("winner balance: got %d, want 25", got)
	}
}

func TestSettle_ConcurrentSingleWinner(t *testing.T) {
	owner := uuid.New()
	listingID := uuid.New()
	const racers = 8

	wallets := &mockWallets{balances: map[uuid.UUID]int{}}
	acceptors := make([]uuid.UUID, racers)
	for i := range acceptors {
		acceptors[i] = uuid.New()
		wallets.balances[acceptors[i]] = 30
	}
	listings := &mockListings{
		listings: map[uuid.UUID]*models.Listing{listingID: pendingListing(listingID, owner, models.ListingBookSale)},
		emails:   map[uuid.UUID]string{},
	}
	svc, ledger, _ := newTestService(wallets, listings)

	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i, id := range acceptors {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = svc.Settle(context.Background(), models.ListingBookSale, listingID, Acceptor{UserID: id, Contact: "c"})
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
			if got := wallets.balance(acceptors[i]); got != 25 {
				t.Errorf("winner balance: got %d, want 25", got)
			}
		case errors.Is(err, ErrAlreadySettled):
			if got := wallets.balance(acceptors[i]); got != 30 {
				t.Errorf("loser balance: got %d, want 30", got)
			}
		default:
			t.Errorf("racer %d: unexpected error: %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners: got %d, want exactly 1", wins)
	}
	if listings.status(listingID) != models.ListingStatusAccepted {
		t.Error("listing should be ACCEPTED")
	}
	if ledger.count() != 1 {
		t.Errorf("ledger entries: got %d, want 1", ledger.count())
	}
}

func TestSettle_InsufficientFunds(t *testing.T) {
	buyer := uuid.New()
	listingID := uuid.New()

	wallets := &mockWallets{balances: map[uuid.UUID]int{buyer: 3}}
	listings := &mockListings{
		listings: map[uuid.UUID]*models.Listing{listingID: pendingListing(listingID, uuid.New(), models.ListingBookRequest)},
		emails:   map[uuid.UUID]string{},
	}
	svc, ledger, emails := newTestService(wallets, listings)

	_, err := svc.Settle(context.Background(), models.ListingBookRequest, listingID, Acceptor{UserID: buyer, Contact: "c"})
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got: %v", err)
	}
	if got := wallets.balance(buyer); got != 3 {
		t.Errorf("balance after rejected settle: got %d, want 3", got)
	}
	if listings.status(listingID) != models.ListingStatusPending {
		t.Error("listing must stay PENDING")
	}
	if ledger.count() != 0 || len(emails.sent) != 0 {
		t.Error("no ledger entries or emails on failure")
	}
}

func TestSettle_NotFound(t *testing.T) {
	buyer := uuid.New()
	wallets := &mockWallets{balances: map[uuid.UUID]int{buyer: 30}}
	listings := &mockListings{listings: map[uuid.UUID]*models.Listing{}, emails: map[uuid.UUID]string{}}
	svc, _, _ := newTestService(wallets, listings)
	ctx := context.Background()

	if _, err := svc.Settle(ctx, models.ListingBookSale, uuid.New(), Acceptor{UserID: buyer, Contact: "c"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing listing: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Settle(ctx, models.ListingBookSale, uuid.New(), Acceptor{UserID: uuid.New(), Contact: "c"}); !errors.Is(err, wallet.ErrNotFound) {
		t.Errorf("missing wallet: expected wallet.ErrNotFound, got %v", err)
	}
}

func TestSettle_WrongKind(t *testing.T) {
	buyer := uuid.New()
	listingID := uuid.New()
	wallets := &mockWallets{balances: map[uuid.UUID]int{buyer: 30}}
	listings := &mockListings{
		listings: map[uuid.UUID]*models.Listing{listingID: pendingListing(listingID, uuid.New(), models.ListingBookSale)},
		emails:   map[uuid.UUID]string{},
	}
	svc, _, _ := newTestService(wallets, listings)

	// A book-sale listing cannot be settled through the teacher-request route.
	if _, err := svc.Settle(context.Background(), models.ListingTeacherRequest, listingID, Acceptor{UserID: buyer, Contact: "c"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Conflict retries
// ---------------------------------------------------------------------------

func conflictErr() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
}

func TestSettle_RetriesOnConflict(t *testing.T) {
	buyer := uuid.New()
	listingID := uuid.New()

	wallets := &mockWallets{
		balances: map[uuid.UUID]int{buyer: 30},
		lockErrs: []error{conflictErr(), conflictErr()},
	}
	listings := &mockListings{
		listings: map[uuid.UUID]*models.Listing{listingID: pendingListing(listingID, uuid.New(), models.ListingBookSale)},
		emails:   map[uuid.UUID]string{},
	}
	svc, _, _ := newTestService(wallets, listings)

	// Two conflicts, then success on the third attempt.
	res, err := svc.Settle(context.Background(), models.ListingBookSale, listingID, Acceptor{UserID: buyer, Contact: "c"})
	if err != nil {
		t.Fatalf("Settle after conflicts: %v", err)
	}
	if res.NewBalance != 25 {
		t.Errorf("new balance: got %d, want 25", res.NewBalance)
	}
}

func TestSettle_ConflictCapSurfaces(t *testing.T) {
	buyer := uuid.New()
	listingID := uuid.New()

	wallets := &mockWallets{
		balances: map[uuid.UUID]int{buyer: 30},
		lockErrs: []error{conflictErr(), conflictErr(), conflictErr()},
	}
	listings := &mockListings{
		listings: map[uuid.UUID]*models.Listing{listingID: pendingListing(listingID, uuid.New(), models.ListingBookSale)},
		emails:   map[uuid.UUID]string{},
	}
	svc, _, _ := newTestService(wallets, listings)

	_, err := svc.Settle(context.Background(), models.ListingBookSale, listingID, Acceptor{UserID: buyer, Contact: "c"})
	if !errors.Is(err, ErrDidNotCommit) {
		t.Fatalf("expected ErrDidNotCommit after retry cap, got: %v", err)
	}
	if got := wallets.balance(buyer); got != 30 {
		t.Errorf("balance after failed settlement: got %d, want 30", got)
	}
}
