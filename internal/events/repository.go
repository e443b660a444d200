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

// Package events persists events and RSVPs through the document store and
// aggregates the events of a set of officials into one ordered list.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/civicpulse/pipeline/internal/docstore"
	"github.com/civicpulse/pipeline/internal/models"
)

// DefaultTimeout bounds a single document-store call.
const DefaultTimeout = 10 * time.Second

var (
	// ErrNotOwner is returned when the editor does not own an event with the given id.
	ErrNotOwner = errors.New("event not owned by editor")
	// ErrInvalidEvent is returned when an event is missing a required field.
	ErrInvalidEvent = errors.New("invalid event")
)

// Repository reads and writes events and attendees.
type Repository struct {
	docs    docstore.Store
	timeout time.Duration

	// rsvpMu serialises lookup-before-insert so one (event, user) pair
	// never gets two attendee documents from this process.
	rsvpMu sync.Mutex
}

// NewRepository creates an event repository. A zero timeout uses DefaultTimeout.
func NewRepository(docs docstore.Store, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Repository{docs: docs, timeout: timeout}
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// Create persists a new event and returns it with its assigned id.
func (r *Repository) Create(ctx context.Context, e models.Event) (models.Event, error) {
	if err := validate(e); err != nil {
		return models.Event{}, err
	}

	fields, err := eventFields(e)
	if err != nil {
		return models.Event{}, fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	id, err := r.docs.Put(ctx, docstore.CollectionEvents, e.ID, fields)
	if err != nil {
		return models.Event{}, fmt.Errorf("create event: %w", err)
	}
	e.ID = id

	slog.Info("event created", "event_id", id, "official", e.OfficialRef, "owner", e.Owner)
	return e, nil
}

// Update saves an edited event. Only the owner may edit; the owner itself
// cannot change.
func (r *Repository) Update(ctx context.Context, editor models.UserID, e models.Event) (models.Event, error) {
	if e.ID == "" {
		return models.Event{}, fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if err := r.checkOwner(ctx, editor, e.ID); err != nil {
		return models.Event{}, err
	}
	e.Owner = editor
	if err := validate(e); err != nil {
		return models.Event{}, err
	}

	fields, err := eventFields(e)
	if err != nil {
		return models.Event{}, fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.docs.Update(ctx, docstore.CollectionEvents, e.ID, fields); err != nil {
		return models.Event{}, fmt.Errorf("update event: %w", err)
	}
	return e, nil
}

// Delete removes an owned event and its attendee records.
func (r *Repository) Delete(ctx context.Context, editor models.UserID, id string) error {
	if err := r.checkOwner(ctx, editor, id); err != nil {
		return err
	}

	attendees, err := r.Attendees(ctx, id)
	if err != nil {
		slog.Warn("could not list attendees of deleted event", "event_id", id, "error", err)
	}
	for _, a := range attendees {
		if err := r.deleteDoc(ctx, docstore.CollectionEventAttendees, a.ID); err != nil {
			slog.Warn("failed to delete attendee", "event_id", id, "attendee_id", a.ID, "error", err)
		}
	}

	if err := r.deleteDoc(ctx, docstore.CollectionEvents, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	slog.Info("event deleted", "event_id", id, "attendees", len(attendees))
	return nil
}

// ForOfficial returns the events that reference an official.
func (r *Repository) ForOfficial(ctx context.Context, officialRef string) ([]models.Event, error) {
	return r.query(ctx, fieldOfficialRef, officialRef)
}

// ForOwner returns the events a user owns.
func (r *Repository) ForOwner(ctx context.Context, owner models.UserID) ([]models.Event, error) {
	return r.query(ctx, fieldOwner, string(owner))
}

func (r *Repository) query(ctx context.Context, field, value string) ([]models.Event, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	docs, err := r.docs.Get(ctx, docstore.CollectionEvents, field, value)
	if err != nil {
		return nil, fmt.Errorf("query events by %s: %w", field, err)
	}

	out := make([]models.Event, 0, len(docs))
	for _, d := range docs {
		e, err := decodeEvent(d)
		if err != nil {
			slog.Warn("skipping malformed event document", "event_id", d.ID, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Repository) checkOwner(ctx context.Context, editor models.UserID, id string) error {
	owned, err := r.ForOwner(ctx, editor)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(owned, func(e models.Event) bool { return e.ID == id }) {
		return fmt.Errorf("%w: event %s, editor %s", ErrNotOwner, id, editor)
	}
	return nil
}

// Attendees returns the RSVPs for an event.
func (r *Repository) Attendees(ctx context.Context, eventID string) ([]models.Attendee, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	docs, err := r.docs.Get(ctx, docstore.CollectionEventAttendees, fieldEventID, eventID)
	if err != nil {
		return nil, fmt.Errorf("query attendees: %w", err)
	}

	out := make([]models.Attendee, 0, len(docs))
	for _, d := range docs {
		a, err := decodeAttendee(d)
		if err != nil {
			slog.Warn("skipping malformed attendee document", "attendee_id", d.ID, "error", err)
			continue
		}
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b models.Attendee) int {
		return strings.Compare(string(a.UserID), string(b.UserID))
	})
	return out, nil
}

// RSVPFor returns the user's attendee record for an event, or nil.
func (r *Repository) RSVPFor(ctx context.Context, eventID string, userID models.UserID) (*models.Attendee, error) {
	matches, err := r.attendeesFor(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// SetRSVP records a user's response, updating the existing attendee record
// if there is one. Extra records left by other writers are removed.
func (r *Repository) SetRSVP(ctx context.Context, eventID string, userID models.UserID, status models.RSVP) (models.Attendee, error) {
	if eventID == "" || userID == "" {
		return models.Attendee{}, fmt.Errorf("%w: rsvp needs event and user", ErrInvalidEvent)
	}

	r.rsvpMu.Lock()
	defer r.rsvpMu.Unlock()

	existing, err := r.attendeesFor(ctx, eventID, userID)
	if err != nil {
		return models.Attendee{}, err
	}

	attendee := models.Attendee{EventID: eventID, UserID: userID, Status: status}
	fields, err := attendeeFields(attendee)
	if err != nil {
		return models.Attendee{}, fmt.Errorf("encode attendee: %w", err)
	}

	if len(existing) > 0 {
		attendee.ID = existing[0].ID
		if err := r.updateDoc(ctx, docstore.CollectionEventAttendees, attendee.ID, fields); err != nil {
			return models.Attendee{}, fmt.Errorf("update rsvp: %w", err)
		}
		for _, dup := range existing[1:] {
			slog.Warn("removing duplicate attendee record", "event_id", eventID, "user_id", userID, "attendee_id", dup.ID)
			if err := r.deleteDoc(ctx, docstore.CollectionEventAttendees, dup.ID); err != nil {
				slog.Warn("failed to remove duplicate attendee", "attendee_id", dup.ID, "error", err)
			}
		}
		return attendee, nil
	}

	putCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	id, err := r.docs.Put(putCtx, docstore.CollectionEventAttendees, "", fields)
	if err != nil {
		return models.Attendee{}, fmt.Errorf("create rsvp: %w", err)
	}
	attendee.ID = id
	return attendee, nil
}

// ClearRSVP removes a user's response to an event. Clearing a missing
// response is not an error.
func (r *Repository) ClearRSVP(ctx context.Context, eventID string, userID models.UserID) error {
	r.rsvpMu.Lock()
	defer r.rsvpMu.Unlock()

	existing, err := r.attendeesFor(ctx, eventID, userID)
	if err != nil {
		return err
	}
	for _, a := range existing {
		if err := r.deleteDoc(ctx, docstore.CollectionEventAttendees, a.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("clear rsvp: %w", err)
		}
	}
	return nil
}

func (r *Repository) attendeesFor(ctx context.Context, eventID string, userID models.UserID) ([]models.Attendee, error) {
	all, err := r.Attendees(ctx, eventID)
	if err != nil {
		return nil, err
	}
	var out []models.Attendee
	for _, a := range all {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b models.Attendee) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *Repository) updateDoc(ctx context.Context, collection, id string, fields docstore.Fields) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.docs.Update(ctx, collection, id, fields)
}

func (r *Repository) deleteDoc(ctx context.Context, collection, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.docs.Delete(ctx, collection, id)
}

func validate(e models.Event) error {
	switch {
	case strings.TrimSpace(e.Name) == "":
		return fmt.Errorf("%w: missing name", ErrInvalidEvent)
	case e.Owner == "":
		return fmt.Errorf("%w: missing owner", ErrInvalidEvent)
	case e.OfficialRef == "":
		return fmt.Errorf("%w: missing official reference", ErrInvalidEvent)
	case !e.EndDate.IsZero() && e.EndDate.Before(e.StartDate):
		return fmt.Errorf("%w: ends before it starts", ErrInvalidEvent)
	}
	return nil
}
