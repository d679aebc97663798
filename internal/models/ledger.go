package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet ledger entry_type values. Every balance mutation appends one entry.
const (
	LedgerEntryGrant      = "grant"       // starting grant on wallet creation
	LedgerEntryTopUp      = "topup"       // verified payment credited
	LedgerEntrySettlement = "settlement"  // listing acceptance debit
	LedgerEntryDebit      = "debit"       // plain debit outside settlement
	LedgerEntryConvertIn  = "convert_in"  // coins/GQ received from conversion
	LedgerEntryConvertOut = "convert_out" // coins/GQ consumed by conversion
)

type LedgerEntry struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	ListingID    *uuid.UUID `json:"listing_id,omitempty"`
	EntryType    string     `json:"entry_type"`
	Currency     string     `json:"currency"`
	Amount       int        `json:"amount"`
	BalanceAfter *int       `json:"balance_after,omitempty"`
	Reference    *string    `json:"reference,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
