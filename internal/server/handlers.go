package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/nkhella/fairshare/internal/allocation"
	"github.com/nkhella/fairshare/internal/auth"
	"github.com/nkhella/fairshare/internal/deeplink"
	"github.com/nkhella/fairshare/internal/models"
	"github.com/nkhella/fairshare/internal/session"
	"github.com/nkhella/fairshare/internal/signup"
	"github.com/nkhella/fairshare/internal/storage"
)

// flowTTL is how long an abandoned signup flow stays in the registry before
// it is swept.
const flowTTL = time.Hour

// flowEntry pairs a signup flow with the lock that serializes requests to it.
// Flow itself models a single form and is not safe for concurrent use, so
// every access happens under mu.
type flowEntry struct {
	mu      sync.Mutex
	flow    *signup.Flow
	created time.Time
}

// Handlers carries the dependencies of the JSON endpoints.
type Handlers struct {
	provider auth.Provider
	store    storage.Store
	sessions *session.Store
	logger   *slog.Logger

	// Signup flows in progress, keyed by flow ID. One per open signup form.
	mu    sync.Mutex
	flows map[string]*flowEntry
}

// NewHandlers creates the endpoint handlers.
func NewHandlers(provider auth.Provider, store storage.Store, sessions *session.Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		provider: provider,
		store:    store,
		sessions: sessions,
		logger:   logger,
		flows:    make(map[string]*flowEntry),
	}
}

type errorBody struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, field, message string) {
	respondJSON(w, status, map[string]errorBody{"error": {Field: field, Message: message}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		respondError(w, http.StatusBadRequest, "", "request body is not valid JSON")
		return false
	}
	return true
}

// --- Auth ---

// HandleSendOtp requests a verification code for a phone number.
func (h *Handlers) HandleSendOtp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Phone == "" {
		respondError(w, http.StatusBadRequest, "phone", "Phone number is required")
		return
	}

	if err := h.provider.SendOtp(r.Context(), req.Phone); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrInvalidPhone) {
			status = http.StatusBadRequest
		}
		respondError(w, status, "phone", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleVerifyOtp checks a verification code and returns the new session.
func (h *Handlers) HandleVerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := h.provider.VerifyOtp(r.Context(), req.Phone, req.Code)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrInvalidCode) {
			status = http.StatusBadRequest
		}
		respondError(w, status, "code", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, sess)
}

// HandleLogout clears the active session.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.SignOut(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Profiles ---

// HandleGetProfile returns the authenticated user's profile.
func (h *Handlers) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.store.GetProfile(r.Context(), UserID(r.Context()))
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "", "profile not found")
		return
	}
	if err != nil {
		h.logger.Error("profile lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "", "could not load profile")
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// HandleUpdateProfile partially updates the authenticated user's profile.
// Income can be given monthly; it is annualized before storage.
func (h *Handlers) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         *string  `json:"name"`
		Income       *float64 `json:"income"`
		IncomePeriod string   `json:"income_period"` // "annual" (default) or "monthly"
	}
	if !decodeBody(w, r, &req) {
		return
	}

	update := &models.Profile{
		ID:    UserID(r.Context()),
		Phone: Phone(r.Context()),
	}

	if req.Name != nil {
		if *req.Name == "" {
			respondError(w, http.StatusBadRequest, "name", "Name is required")
			return
		}
		update.Name = req.Name
	}
	if req.Income != nil {
		income := *req.Income
		if income <= 0 {
			respondError(w, http.StatusBadRequest, "income", "Income must be a positive number")
			return
		}
		switch req.IncomePeriod {
		case "", "annual":
		case "monthly":
			income *= 12
		default:
			respondError(w, http.StatusBadRequest, "income", "income_period must be annual or monthly")
			return
		}
		update.AnnualizedIncome = &income
	}

	profile, err := h.store.UpsertProfile(r.Context(), update)
	if err != nil {
		h.logger.Error("profile update failed", "error", err)
		respondError(w, http.StatusInternalServerError, "", "could not save profile")
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// HandleSearchProfiles looks up profiles by typed phone prefix. The country
// code is prepended server-side, matching what the search box sends. Lookup
// failures degrade to an empty result set.
func (h *Handlers) HandleSearchProfiles(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	var results []models.Profile
	if prefix != "" {
		var err error
		results, err = h.store.SearchProfilesByPhonePrefix(r.Context(), "1"+prefix)
		if err != nil {
			h.logger.Warn("profile search failed", "prefix", prefix, "error", err)
			results = nil
		}
	}
	if results == nil {
		results = []models.Profile{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"profiles": results})
}

// --- Shares ---

type shareResponse struct {
	Profile    models.Profile `json:"profile"`
	Amount     float64        `json:"amount"`
	AmountDue  string         `json:"amount_due"` // rounded to cents
	Percentage float64        `json:"percentage"`
	VenmoURL   string         `json:"venmo_url,omitempty"`
}

// HandleComputeShares splits a total expense across the selected participants
// plus the acting user, and attaches a pre-filled Venmo request link for each
// counterparty.
func (h *Handlers) HandleComputeShares(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TotalExpense   float64  `json:"total_expense"`
		Ratio          float64  `json:"ratio"`
		ParticipantIDs []string `json:"participant_ids"`
		Note           string   `json:"note"`
		Txn            string   `json:"txn"` // "charge" (default) or "pay"
	}
	if !decodeBody(w, r, &req) {
		return
	}

	txn := deeplink.TxnCharge
	switch req.Txn {
	case "", "charge":
	case "pay":
		txn = deeplink.TxnPay
	default:
		respondError(w, http.StatusBadRequest, "", "txn must be pay or charge")
		return
	}

	// The acting user is always a participant; selections never repeat.
	actingID := UserID(r.Context())
	ids := make([]string, 0, len(req.ParticipantIDs)+1)
	seen := map[string]bool{actingID: true}
	ids = append(ids, actingID)
	for _, id := range req.ParticipantIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	participants := make([]models.Profile, 0, len(ids))
	for _, id := range ids {
		profile, err := h.store.GetProfile(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "", "participant "+id+" not found")
			return
		}
		if err != nil {
			h.logger.Error("participant lookup failed", "participant", id, "error", err)
			respondError(w, http.StatusInternalServerError, "", "could not load participants")
			return
		}
		participants = append(participants, *profile)
	}

	shares, err := allocation.ComputeShares(req.TotalExpense, participants, req.Ratio)
	if err != nil {
		respondError(w, http.StatusBadRequest, "", err.Error())
		return
	}

	out := make([]shareResponse, 0, len(shares))
	for _, s := range shares {
		resp := shareResponse{
			Profile:    s.Profile,
			Amount:     s.Amount,
			AmountDue:  s.AmountCents().StringFixed(2),
			Percentage: s.Percentage,
		}
		if s.Profile.ID != actingID {
			link := deeplink.PaymentLink{
				Txn:       txn,
				Recipient: s.Profile.Phone,
				Amount:    s.AmountCents(),
				Note:      req.Note,
			}
			if u, err := link.URL(); err == nil {
				resp.VenmoURL = u
			} else {
				h.logger.Warn("could not build payment link", "participant", s.Profile.ID, "error", err)
			}
		}
		out = append(out, resp)
	}

	respondJSON(w, http.StatusOK, map[string]any{"shares": out})
}

// HandlePaymentLink builds a single pre-filled Venmo link.
func (h *Handlers) HandlePaymentLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string  `json:"recipient"`
		Amount    float64 `json:"amount"`
		Note      string  `json:"note"`
		Txn       string  `json:"txn"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	txn := deeplink.TxnCharge
	switch req.Txn {
	case "", "charge":
	case "pay":
		txn = deeplink.TxnPay
	default:
		respondError(w, http.StatusBadRequest, "", "txn must be pay or charge")
		return
	}

	link := deeplink.PaymentLink{
		Txn:       txn,
		Recipient: req.Recipient,
		Amount:    decimal.NewFromFloat(req.Amount),
		Note:      req.Note,
	}
	u, err := link.URL()
	if err != nil {
		respondError(w, http.StatusBadRequest, "", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": u})
}

// --- Signup flows ---

type flowState struct {
	FlowID      string            `json:"flow_id"`
	Step        string            `json:"step"`
	Complete    bool              `json:"complete"`
	Redirect    string            `json:"redirect,omitempty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

func (h *Handlers) flowStateResponse(id string, f *signup.Flow) flowState {
	fieldErrors := make(map[string]string)
	for _, field := range []signup.Field{signup.FieldPhone, signup.FieldCode, signup.FieldName, signup.FieldIncome} {
		if msg := f.FieldError(field); msg != "" {
			fieldErrors[string(field)] = msg
		}
	}

	state := flowState{
		FlowID:      id,
		Step:        f.Step().String(),
		Complete:    f.Step() == signup.StepComplete,
		FieldErrors: fieldErrors,
	}
	if state.Complete {
		state.Redirect = f.Redirect()
	}
	return state
}

// HandleStartSignup opens a new signup flow. With a live session the flow
// starts at the name step; the optional "next" query parameter is where the
// client should navigate once the flow completes.
func (h *Handlers) HandleStartSignup(w http.ResponseWriter, r *http.Request) {
	flow := signup.NewFlow(h.provider, h.store, h.sessions.Current(), r.URL.Query().Get("next"), h.logger)
	id := uuid.New().String()

	h.mu.Lock()
	h.sweepFlowsLocked()
	h.flows[id] = &flowEntry{flow: flow, created: time.Now()}
	h.mu.Unlock()

	respondJSON(w, http.StatusCreated, h.flowStateResponse(id, flow))
}

// sweepFlowsLocked drops abandoned flows. Caller holds h.mu.
func (h *Handlers) sweepFlowsLocked() {
	cutoff := time.Now().Add(-flowTTL)
	for id, entry := range h.flows {
		if entry.created.Before(cutoff) {
			delete(h.flows, id)
		}
	}
}

// HandleGetSignup returns the current state of a signup flow.
func (h *Handlers) HandleGetSignup(w http.ResponseWriter, r *http.Request) {
	id, entry, ok := h.lookupFlow(w, r)
	if !ok {
		return
	}

	entry.mu.Lock()
	state := h.flowStateResponse(id, entry.flow)
	entry.mu.Unlock()

	respondJSON(w, http.StatusOK, state)
}

// HandleSignupSubmit advances a signup flow by one step. The step name is in
// the URL; the payload carries the submitted value. A completed flow is
// evicted from the registry after its final state is reported.
func (h *Handlers) HandleSignupSubmit(w http.ResponseWriter, r *http.Request) {
	id, entry, ok := h.lookupFlow(w, r)
	if !ok {
		return
	}

	var req struct {
		Value  string `json:"value"`
		Period string `json:"period"` // income only: "annual" (default) or "monthly"
	}
	if !decodeBody(w, r, &req) {
		return
	}

	entry.mu.Lock()
	flow := entry.flow

	var err error
	switch step := mux.Vars(r)["step"]; step {
	case "phone":
		err = flow.SubmitPhone(r.Context(), req.Value)
	case "code":
		err = flow.SubmitCode(r.Context(), req.Value)
	case "name":
		err = flow.SubmitName(r.Context(), req.Value)
	case "income":
		period := signup.PeriodAnnual
		switch req.Period {
		case "", "annual":
		case "monthly":
			period = signup.PeriodMonthly
		default:
			entry.mu.Unlock()
			respondError(w, http.StatusBadRequest, "income", "period must be annual or monthly")
			return
		}
		err = flow.SubmitIncome(r.Context(), req.Value, period)
	default:
		entry.mu.Unlock()
		respondError(w, http.StatusNotFound, "", "unknown signup step "+step)
		return
	}

	state := h.flowStateResponse(id, flow)
	entry.mu.Unlock()

	if errors.Is(err, signup.ErrMissingSession) {
		respondError(w, http.StatusConflict, "", err.Error())
		return
	}

	if state.Complete {
		h.mu.Lock()
		delete(h.flows, id)
		h.mu.Unlock()
	}

	// Step errors live in the flow state as field errors; the submit itself
	// still answers 200 so the client re-renders the form.
	respondJSON(w, http.StatusOK, state)
}

// HandleSignupBack regresses a signup flow one step without touching any
// collaborator.
func (h *Handlers) HandleSignupBack(w http.ResponseWriter, r *http.Request) {
	id, entry, ok := h.lookupFlow(w, r)
	if !ok {
		return
	}

	entry.mu.Lock()
	err := entry.flow.Back()
	state := h.flowStateResponse(id, entry.flow)
	entry.mu.Unlock()

	if err != nil {
		respondError(w, http.StatusConflict, "", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (h *Handlers) lookupFlow(w http.ResponseWriter, r *http.Request) (string, *flowEntry, bool) {
	id := mux.Vars(r)["id"]

	h.mu.Lock()
	entry, ok := h.flows[id]
	h.mu.Unlock()

	if !ok {
		respondError(w, http.StatusNotFound, "", "signup flow not found")
		return "", nil, false
	}
	return id, entry, true
}

// --- Health ---

// HandleHealthz reports liveness, probing the store with a cache read.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	_, err := h.store.GetCache(r.Context(), "healthz")
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Error("health probe failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
