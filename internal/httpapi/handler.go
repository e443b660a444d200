// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi exposes the address store over a small JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/civicpulse/pipeline/internal/appstate"
	"github.com/civicpulse/pipeline/internal/civic"
	"github.com/civicpulse/pipeline/internal/docstore"
	"github.com/civicpulse/pipeline/internal/events"
	"github.com/civicpulse/pipeline/internal/models"
)

// UserHeader carries the caller's user id on write requests.
const UserHeader = "X-User-ID"

// DefaultWait bounds how long a request waits for the store.
const DefaultWait = 20 * time.Second

// Store is the part of *appstate.Store the API uses.
type Store interface {
	SetAddress(slot appstate.Slot, addr models.Address) *appstate.Pending
	Address(slot appstate.Slot) (models.Address, bool)
	Officials(slot appstate.Slot) []models.Official
	Events(slot appstate.Slot) []models.Event

	SubscribeOfficialEvents(officialRef string, fn appstate.EventsListener, opts ...appstate.SubscribeOption) (appstate.Token, error)
	SubscribeUserEvents(user models.UserID, fn appstate.EventsListener, opts ...appstate.SubscribeOption) (appstate.Token, error)
	SubscribeAttendees(eventID string, fn appstate.AttendeesListener, opts ...appstate.SubscribeOption) (appstate.Token, error)
	Unsubscribe(tok appstate.Token) bool

	CreateEvent(ctx context.Context, e models.Event) (models.Event, error)
	UpdateEvent(ctx context.Context, editor models.UserID, e models.Event) (models.Event, error)
	DeleteEvent(ctx context.Context, editor models.UserID, id string) error
	RSVP(ctx context.Context, eventID string, user models.UserID) (*models.Attendee, error)
	SetRSVP(ctx context.Context, eventID string, user models.UserID, status models.RSVP) (models.Attendee, error)
	ClearRSVP(ctx context.Context, eventID string, user models.UserID) error
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler serves the API.
type Handler struct {
	store  Store
	checks map[string]HealthCheck
	wait   time.Duration
}

// NewHandler creates an API handler. checks are run by GET /health.
func NewHandler(store Store, checks map[string]HealthCheck) *Handler {
	return &Handler{store: store, checks: checks, wait: DefaultWait}
}

// Routes returns the API mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("PUT /addresses/{slot}", h.putAddress)
	mux.HandleFunc("GET /addresses/{slot}", h.getAddress)
	mux.HandleFunc("GET /officials/{slot}", h.getOfficials)
	mux.HandleFunc("GET /officials/{ref}/events", h.getOfficialEvents)
	mux.HandleFunc("GET /events/{slot}", h.getSlotEvents)
	mux.HandleFunc("GET /users/{id}/events", h.getUserEvents)
	mux.HandleFunc("POST /events", h.createEvent)
	mux.HandleFunc("PUT /events/{id}", h.updateEvent)
	mux.HandleFunc("DELETE /events/{id}", h.deleteEvent)
	mux.HandleFunc("GET /events/{id}/rsvp", h.getRSVP)
	mux.HandleFunc("PUT /events/{id}/rsvp", h.putRSVP)
	mux.HandleFunc("DELETE /events/{id}/rsvp", h.deleteRSVP)
	mux.HandleFunc("GET /events/{id}/attendees", h.getAttendees)
	return mux
}

type addressResponse struct {
	Slot      string            `json:"slot"`
	Address   *models.Address   `json:"address"`
	Outcome   string            `json:"outcome,omitempty"`
	Officials []models.Official `json:"officials"`
}

type rsvpRequest struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			status[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	writeJSON(w, code, status)
}

// putAddress sets a slot's address and waits for the officials cascade.
func (h *Handler) putAddress(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}
	var addr models.Address
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode address: %w", err))
		return
	}
	if addr.IsZero() {
		writeError(w, http.StatusBadRequest, errors.New("address is empty"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.wait)
	defer cancel()

	outcome, err := h.store.SetAddress(slot, addr).Wait(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, errors.New("officials lookup still running"))
		return
	case err != nil:
		writeError(w, statusFor(err), err)
		return
	}

	slog.Info("address set via api", "slot", slot, "outcome", outcome)
	h.writeAddress(w, slot, outcome.String())
}

func (h *Handler) getAddress(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}
	h.writeAddress(w, slot, "")
}

func (h *Handler) writeAddress(w http.ResponseWriter, slot appstate.Slot, outcome string) {
	resp := addressResponse{
		Slot:      slot.String(),
		Outcome:   outcome,
		Officials: nonNil(h.store.Officials(slot)),
	}
	if addr, ok := h.store.Address(slot); ok {
		resp.Address = &addr
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOfficials(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.store.Officials(slot)))
}

func (h *Handler) getSlotEvents(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.store.Events(slot)))
}

func (h *Handler) getOfficialEvents(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	list, err := first(r.Context(), h.wait, h.store.Unsubscribe, func(fn func([]models.Event), opt appstate.SubscribeOption) (appstate.Token, error) {
		return h.store.SubscribeOfficialEvents(ref, fn, opt)
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) getUserEvents(w http.ResponseWriter, r *http.Request) {
	user := models.UserID(r.PathValue("id"))
	list, err := first(r.Context(), h.wait, h.store.Unsubscribe, func(fn func([]models.Event), opt appstate.SubscribeOption) (appstate.Token, error) {
		return h.store.SubscribeUserEvents(user, fn, opt)
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) getAttendees(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	list, err := first(r.Context(), h.wait, h.store.Unsubscribe, func(fn func([]models.Attendee), opt appstate.SubscribeOption) (appstate.Token, error) {
		return h.store.SubscribeAttendees(id, fn, opt)
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var e models.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode event: %w", err))
		return
	}
	e.ID = ""
	e.Owner = user

	created, err := h.store.CreateEvent(r.Context(), e)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var e models.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode event: %w", err))
		return
	}
	e.ID = r.PathValue("id")

	updated, err := h.store.UpdateEvent(r.Context(), user, e)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteEvent(r.Context(), user, r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) putRSVP(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req rsvpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode rsvp: %w", err))
		return
	}
	status, err := models.ParseRSVP(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	a, err := h.store.SetRSVP(r.Context(), r.PathValue("id"), user, status)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) getRSVP(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	a, err := h.store.RSVP(r.Context(), id, user)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no rsvp from %s for event %s", user, id))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) deleteRSVP(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.store.ClearRSVP(r.Context(), r.PathValue("id"), user); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) slot(w http.ResponseWriter, r *http.Request) (appstate.Slot, bool) {
	slot, ok := appstate.ParseSlot(r.PathValue("slot"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown slot %q", r.PathValue("slot")))
	}
	return slot, ok
}

func requireUser(w http.ResponseWriter, r *http.Request) (models.UserID, bool) {
	user := r.Header.Get(UserHeader)
	if user == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("missing %s header", UserHeader))
		return "", false
	}
	return models.UserID(user), true
}

// first subscribes, waits for the stream's first value or load failure
// and unsubscribes.
func first[T any](ctx context.Context, wait time.Duration, unsubscribe func(appstate.Token) bool, subscribe func(func([]T), appstate.SubscribeOption) (appstate.Token, error)) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ch := make(chan []T, 1)
	errCh := make(chan error, 1)
	tok, err := subscribe(func(list []T) {
		select {
		case ch <- list:
		default:
		}
	}, appstate.WithErrorListener(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}))
	if err != nil {
		return nil, err
	}
	defer unsubscribe(tok)

	select {
	case list := <-ch:
		return list, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var civicErr *civic.Error
	switch {
	case errors.Is(err, events.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, events.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, appstate.ErrStopped), errors.Is(err, appstate.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.As(err, &civicErr):
		if civicErr.Kind == civic.KindInvalidArgument {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	resp := errorResponse{Error: err.Error()}
	var civicErr *civic.Error
	if errors.As(err, &civicErr) {
		resp.Kind = civicErr.Kind.String()
	}
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "status", code, "error", err)
	}
	writeJSON(w, code, resp)
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

// Serve starts the API server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// starting to accept connections. The server shuts down when ctx ends.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind api port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	go func() {
		slog.Info("api server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()

	return ready, nil
}
