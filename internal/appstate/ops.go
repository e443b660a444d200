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

package appstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/civicpulse/pipeline/internal/events"
	"github.com/civicpulse/pipeline/internal/models"
)

// ErrNoRepository is returned by write operations when the store was
// built without an EventRepository.
var ErrNoRepository = errors.New("no event repository configured")

// CreateEvent persists e and splices it into every cached event list it
// belongs to.
func (s *Store) CreateEvent(ctx context.Context, e models.Event) (models.Event, error) {
	if s.repo == nil {
		return models.Event{}, ErrNoRepository
	}
	created, err := s.repo.Create(ctx, e)
	if err != nil {
		return models.Event{}, fmt.Errorf("creating event: %w", err)
	}
	if err := s.call(ctx, func() { s.applyEvent(created.ID, &created) }); err != nil {
		return created, err
	}
	return created, nil
}

// UpdateEvent persists an owner's edit and moves the event between cached
// lists if its official changed.
func (s *Store) UpdateEvent(ctx context.Context, editor models.UserID, e models.Event) (models.Event, error) {
	if s.repo == nil {
		return models.Event{}, ErrNoRepository
	}
	updated, err := s.repo.Update(ctx, editor, e)
	if err != nil {
		return models.Event{}, fmt.Errorf("updating event %s: %w", e.ID, err)
	}
	if err := s.call(ctx, func() { s.applyEvent(updated.ID, &updated) }); err != nil {
		return updated, err
	}
	return updated, nil
}

// DeleteEvent removes an owner's event from the store and from every
// cached list. Listeners of its attendee stream receive an empty list.
func (s *Store) DeleteEvent(ctx context.Context, editor models.UserID, id string) error {
	if s.repo == nil {
		return ErrNoRepository
	}
	if err := s.repo.Delete(ctx, editor, id); err != nil {
		return fmt.Errorf("deleting event %s: %w", id, err)
	}
	return s.call(ctx, func() {
		s.applyEvent(id, nil)
		s.publishAttendees(id, []models.Attendee{})
	})
}

// RSVP returns a user's response to an event, or nil if there is none.
func (s *Store) RSVP(ctx context.Context, eventID string, user models.UserID) (*models.Attendee, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	a, err := s.repo.RSVPFor(ctx, eventID, user)
	if err != nil {
		return nil, fmt.Errorf("reading rsvp: %w", err)
	}
	return a, nil
}

// SetRSVP records a user's response and refreshes the event's attendees.
func (s *Store) SetRSVP(ctx context.Context, eventID string, user models.UserID, status models.RSVP) (models.Attendee, error) {
	if s.repo == nil {
		return models.Attendee{}, ErrNoRepository
	}
	a, err := s.repo.SetRSVP(ctx, eventID, user, status)
	if err != nil {
		return models.Attendee{}, fmt.Errorf("setting rsvp: %w", err)
	}
	return a, s.refreshAttendees(ctx, eventID)
}

// ClearRSVP removes a user's response and refreshes the event's attendees.
func (s *Store) ClearRSVP(ctx context.Context, eventID string, user models.UserID) error {
	if s.repo == nil {
		return ErrNoRepository
	}
	if err := s.repo.ClearRSVP(ctx, eventID, user); err != nil {
		return fmt.Errorf("clearing rsvp: %w", err)
	}
	return s.refreshAttendees(ctx, eventID)
}

// refreshAttendees reloads an observed attendee stream. Unobserved events
// are skipped.
func (s *Store) refreshAttendees(ctx context.Context, eventID string) error {
	key := streamKey{kind: kindAttendees, subject: eventID}
	s.mu.Lock()
	_, observed := s.subjects[key]
	s.mu.Unlock()
	if !observed {
		return nil
	}

	attendees, err := s.repo.Attendees(ctx, eventID)
	if err != nil {
		return fmt.Errorf("reloading attendees for %s: %w", eventID, err)
	}
	return s.call(ctx, func() { s.publishAttendees(eventID, attendees) })
}

// publishAttendees replaces an observed attendee list. Runs on the
// dispatch goroutine.
func (s *Store) publishAttendees(eventID string, attendees []models.Attendee) {
	key := streamKey{kind: kindAttendees, subject: eventID}
	s.mu.Lock()
	subj, ok := s.subjects[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	subj.attendees = attendees
	subj.loaded = true
	listeners := s.listenersLocked(key)
	s.mu.Unlock()

	for _, sub := range listeners {
		sub.deliverAttendees(attendees)
	}
}

// applyEvent splices one event change into the cached lists: e is added
// (or replaced) where it belongs and removed where it no longer does. A
// nil e removes id everywhere. Runs on the dispatch goroutine.
func (s *Store) applyEvent(id string, e *models.Event) {
	type change struct {
		key  streamKey
		list []models.Event
	}
	var changes []change

	s.mu.Lock()
	for slot, st := range s.slots {
		if !st.eventsLoaded {
			continue
		}
		belongs := e != nil && slices.ContainsFunc(st.officials, func(o models.Official) bool {
			return o.Ref() == e.OfficialRef
		})
		if next, ok := splice(st.events, id, e, belongs); ok {
			st.events = next
			changes = append(changes, change{streamKey{kind: kindEvents, slot: Slot(slot)}, next})
		}
	}

	for _, kind := range []streamKind{kindOfficialEvents, kindUserEvents} {
		for _, subj := range s.subjectsLocked(kind) {
			if !subj.loaded {
				continue
			}
			belongs := false
			if e != nil {
				switch kind {
				case kindOfficialEvents:
					belongs = e.OfficialRef == subj.key.subject
				case kindUserEvents:
					belongs = string(e.Owner) == subj.key.subject
				}
			}
			if next, ok := splice(subj.events, id, e, belongs); ok {
				subj.events = next
				changes = append(changes, change{subj.key, next})
			}
		}
	}

	notify := make([][]*subscription, len(changes))
	for i, c := range changes {
		notify[i] = s.listenersLocked(c.key)
	}
	s.mu.Unlock()

	slog.Debug("event change applied", "event_id", id, "lists", len(changes))

	for i, c := range changes {
		for _, sub := range notify[i] {
			sub.deliverEvents(c.list)
		}
	}
}

// splice returns the list with the change applied and whether it changed.
// An event already in the list is edited in place.
func splice(list []models.Event, id string, e *models.Event, belongs bool) ([]models.Event, bool) {
	switch {
	case belongs:
		if next, ok := events.Update(list, *e); ok {
			return next, true
		}
		return events.Add(list, *e), true
	case events.Contains(list, id):
		return events.Remove(list, id), true
	default:
		return list, false
	}
}
