package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing kinds. All three share the same settlement contract; kind only
// selects which creation endpoint produced the row.
const (
	ListingBookSale       = "book_sale"
	ListingBookRequest    = "book_request"
	ListingTeacherRequest = "teacher_request"
)

// Listing status values. The transition PENDING -> ACCEPTED happens at most
// once per listing; there is no re-open.
const (
	ListingStatusPending  = "PENDING"
	ListingStatusAccepted = "ACCEPTED"
)

type Listing struct {
	ID              uuid.UUID  `json:"id"`
	Kind            string     `json:"kind"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Subject         string     `json:"subject,omitempty"` // teacher requests only
	OwnerID         uuid.UUID  `json:"owner_id"`
	OwnerContact    string     `json:"owner_contact"`
	Status          string     `json:"status"`
	AcceptorID      *uuid.UUID `json:"acceptor_id,omitempty"`
	AcceptorContact *string    `json:"acceptor_contact,omitempty"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ValidListingKind reports whether k is one of the three listing kinds.
func ValidListingKind(k string) bool {
	switch k {
	case ListingBookSale, ListingBookRequest, ListingTeacherRequest:
		return true
	}
	return false
}
