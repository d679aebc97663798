package router

import (
	"net/http"

	"github.com/brightkids/backend/internal/auth"
	"github.com/brightkids/backend/internal/content"
	"github.com/brightkids/backend/internal/handlers"
)

// New returns an http.Handler serving the API under /api/v1.
// requireAuth is the TokenAuth middleware; register/login stay public.
func New(
	authHandler *auth.Handler,
	walletHandler *handlers.WalletHandler,
	settlementHandler *handlers.SettlementHandler,
	listingHandler *handlers.ListingHandler,
	leaderboardHandler *handlers.LeaderboardHandler,
	contentHandler *content.Handler,
	requireAuth func(http.Handler) http.Handler,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	authed := func(h http.HandlerFunc) http.Handler {
		return requireAuth(h)
	}

	mux.Handle("GET "+base+"/wallet", authed(walletHandler.GetWallet))
	mux.Handle("GET "+base+"/wallet/history", authed(walletHandler.GetHistory))
	mux.Handle("POST "+base+"/wallet/topup", authed(walletHandler.TopUp))
	mux.Handle("POST "+base+"/wallet/convert", authed(walletHandler.Convert))

	mux.Handle("POST "+base+"/books", authed(listingHandler.PostBook))
	mux.Handle("GET "+base+"/books", authed(listingHandler.ListBooks))
	mux.Handle("POST "+base+"/books/requests", authed(listingHandler.RequestBook))
	mux.Handle("GET "+base+"/books/requests", authed(listingHandler.ListBookRequests))
	mux.Handle("POST "+base+"/teachers/requests", authed(listingHandler.RequestTeacher))
	mux.Handle("GET "+base+"/teachers/requests", authed(listingHandler.ListTeacherRequests))

	mux.Handle("POST "+base+"/books/{id}/accept", authed(settlementHandler.AcceptBook))
	mux.Handle("POST "+base+"/books/requests/{id}/fulfill", authed(settlementHandler.FulfillBookRequest))
	mux.Handle("POST "+base+"/teachers/requests/{id}/accept", authed(settlementHandler.AcceptTeacherRequest))

	mux.Handle("GET "+base+"/leaderboard", authed(leaderboardHandler.Get))

	mux.Handle("POST "+base+"/content/simplify", authed(contentHandler.Simplify))
	mux.Handle("POST "+base+"/content/quiz", authed(contentHandler.Quiz))
	mux.Handle("POST "+base+"/content/grade", authed(contentHandler.Grade))
	mux.Handle("POST "+base+"/content/ocr", authed(contentHandler.Recognize))

	return mux
}
