package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkhella/fairshare/internal/auth"
	"github.com/nkhella/fairshare/internal/session"
)

// NewRouter wires the endpoints and middleware into a single handler.
//
// /api/v1 splits into a public surface (OTP, signup flows) and a bearer-token
// surface (everything about the authenticated user). App shell pages sit
// behind the session guard, except the login page itself.
func NewRouter(h *Handlers, jwtManager *auth.JWTManager, sessions *session.Store, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(Logging(logger))
	r.Use(CORS)
	r.Use(Metrics())

	r.HandleFunc("/healthz", h.HandleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/otp/send", h.HandleSendOtp).Methods(http.MethodPost)
	api.HandleFunc("/auth/otp/verify", h.HandleVerifyOtp).Methods(http.MethodPost)

	api.HandleFunc("/signup", h.HandleStartSignup).Methods(http.MethodPost)
	api.HandleFunc("/signup/{id}", h.HandleGetSignup).Methods(http.MethodGet)
	api.HandleFunc("/signup/{id}/back", h.HandleSignupBack).Methods(http.MethodPost)
	api.HandleFunc("/signup/{id}/{step}", h.HandleSignupSubmit).Methods(http.MethodPost)

	private := api.NewRoute().Subrouter()
	private.Use(RequireBearer(jwtManager))
	private.HandleFunc("/auth/logout", h.HandleLogout).Methods(http.MethodPost)
	private.HandleFunc("/profile", h.HandleGetProfile).Methods(http.MethodGet)
	private.HandleFunc("/profile", h.HandleUpdateProfile).Methods(http.MethodPatch)
	private.HandleFunc("/profiles/search", h.HandleSearchProfiles).Methods(http.MethodGet)
	private.HandleFunc("/shares", h.HandleComputeShares).Methods(http.MethodPost)
	private.HandleFunc("/payment-links", h.HandlePaymentLink).Methods(http.MethodPost)

	r.HandleFunc("/login", appShell).Methods(http.MethodGet)

	pages := r.NewRoute().Subrouter()
	pages.Use(Guard(sessions))
	pages.HandleFunc("/", appShell).Methods(http.MethodGet)
	pages.HandleFunc("/split", appShell).Methods(http.MethodGet)
	pages.HandleFunc("/profile", appShell).Methods(http.MethodGet)

	return r
}

// appShell serves the mount point the web client renders into. Which screen
// shows is decided client-side from the path.
func appShell(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>fairshare</title></head>
<body><div id="root"></div><script src="/assets/app.js"></script></body>
</html>
`))
}
