package payments

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/brightkids/backend/internal/models"
)

// Sentinel errors surfaced to handlers.
var (
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrUnrecognizedAmount = errors.New("paid amount does not match any coin bundle")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// coinGrants maps verified paid amounts (minor currency units) to the fixed
// coin bundle each one buys. Anything else is rejected and nothing is
// credited.
var coinGrants = map[int64]int{
	1000:  10,
	5000:  60,
	10000: 150,
}

// WalletCrediter is the wallet ledger operation the top-up needs.
type WalletCrediter interface {
	Credit(ctx context.Context, userID uuid.UUID, amount int, entryType string, reference string) (newBalance int, err error)
}

// Service turns a verified gateway payment into a wallet credit.
type Service struct {
	gateway Gateway
	wallet  WalletCrediter
	log     *slog.Logger
}

func NewService(gateway Gateway, wallet WalletCrediter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{gateway: gateway, wallet: wallet, log: log}
}

// TopUp verifies the payment reference and credits the mapped coin bundle.
// The wallet stays untouched on any failure.
func (s *Service) TopUp(ctx context.Context, userID uuid.UUID, reference string) (newBalance int, granted int, err error) {
	v, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		s.log.Error("gateway verify", "reference", reference, "error", err)
		return 0, 0, ErrGatewayUnavailable
	}
	if !v.Valid {
		return 0, 0, ErrVerificationFailed
	}
	grant, ok := coinGrants[v.Amount]
	if !ok {
		return 0, 0, ErrUnrecognizedAmount
	}
	newBalance, err = s.wallet.Credit(ctx, userID, grant, models.LedgerEntryTopUp, reference)
	if err != nil {
		return 0, 0, err
	}
	return newBalance, grant, nil
}
