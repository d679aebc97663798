package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/brightkids/backend/internal/middleware"
	"github.com/brightkids/backend/internal/models"
)

// ListingRepoForHandler is the subset of the listing repository the handler needs.
type ListingRepoForHandler interface {
	Create(ctx context.Context, l *models.Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListByKind(ctx context.Context, kind, status string) ([]*models.Listing, error)
}

// ListingHandler serves listing creation and browsing. Creation is a plain
// insert with no payment; settlement is a separate operation.
type ListingHandler struct {
	Listings ListingRepoForHandler
	Logger   *slog.Logger
}

type createListingRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Subject     string `json:"subject"`
	Contact     string `json:"contact"`
}

// PostBook handles POST /api/v1/books.
func (h *ListingHandler) PostBook(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, models.ListingBookSale)
}

// RequestBook handles POST /api/v1/books/requests.
func (h *ListingHandler) RequestBook(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, models.ListingBookRequest)
}

// RequestTeacher handles POST /api/v1/teachers/requests.
func (h *ListingHandler) RequestTeacher(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, models.ListingTeacherRequest)
}

func (h *ListingHandler) create(w http.ResponseWriter, r *http.Request, kind string) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, `{"error":"title is required"}`, http.StatusBadRequest)
		return
	}
	if req.Contact == "" {
		req.Contact = ident.Email
	}
	if kind == models.ListingTeacherRequest && req.Subject == "" {
		http.Error(w, `{"error":"subject is required"}`, http.StatusBadRequest)
		return
	}

	l := &models.Listing{
		ID:           uuid.New(),
		Kind:         kind,
		Title:        req.Title,
		Description:  req.Description,
		Subject:      req.Subject,
		OwnerID:      ident.UserID,
		OwnerContact: req.Contact,
		Status:       models.ListingStatusPending,
	}
	if err := h.Listings.Create(r.Context(), l); err != nil {
		h.Logger.Error("create listing", "kind", kind, "error", err)
		http.Error(w, `{"error":"failed to create listing"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// ListBooks handles GET /api/v1/books. ?status=PENDING filters open listings.
func (h *ListingHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.ListingBookSale)
}

// ListBookRequests handles GET /api/v1/books/requests.
func (h *ListingHandler) ListBookRequests(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.ListingBookRequest)
}

// ListTeacherRequests handles GET /api/v1/teachers/requests.
func (h *ListingHandler) ListTeacherRequests(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.ListingTeacherRequest)
}

func (h *ListingHandler) list(w http.ResponseWriter, r *http.Request, kind string) {
	if middleware.IdentityFromCtx(r.Context()) == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	listings, err := h.Listings.ListByKind(r.Context(), kind, r.URL.Query().Get("status"))
	if err != nil {
		h.Logger.Error("list listings", "kind", kind, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if listings == nil {
		listings = []*models.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}
