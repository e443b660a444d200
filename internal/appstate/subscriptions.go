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
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/civicpulse/pipeline/internal/models"
)

// Token identifies one subscription. The zero Token is never issued.
type Token uint64

// Listener callbacks run on the dispatch goroutine. They must not call
// store methods that wait on it (CreateEvent, UpdateEvent, DeleteEvent,
// SetRSVP, ClearRSVP).
type (
	OfficialsListener func([]models.Official)
	EventsListener    func([]models.Event)
	AttendeesListener func([]models.Attendee)
)

type streamKind int

const (
	kindOfficials streamKind = iota
	kindEvents
	kindOfficialEvents
	kindUserEvents
	kindAttendees
)

func (k streamKind) String() string {
	switch k {
	case kindOfficials:
		return "officials"
	case kindEvents:
		return "events"
	case kindOfficialEvents:
		return "official_events"
	case kindUserEvents:
		return "user_events"
	case kindAttendees:
		return "attendees"
	default:
		return "unknown"
	}
}

// streamKey names a stream. slot applies to officials and events streams,
// subject to the transient ones (an official ref, a user id or an event id).
type streamKey struct {
	kind    streamKind
	slot    Slot
	subject string
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscription)

// WithErrorListener registers fn for load failures of a transient stream.
// After a failure the stream is dropped and the next subscribe reloads it.
func WithErrorListener(fn func(error)) SubscribeOption {
	return func(sub *subscription) { sub.onError = fn }
}

// subscription is a registered listener. ready is set once the listener
// has been handed the stream's snapshot; publishes before that are
// covered by the snapshot and skipped.
type subscription struct {
	token  Token
	key    streamKey
	active atomic.Bool
	ready  atomic.Bool

	officials OfficialsListener
	events    EventsListener
	attendees AttendeesListener
	onError   func(error)
}

func (sub *subscription) live() bool {
	return sub.active.Load() && sub.ready.Load()
}

func (sub *subscription) deliverOfficials(list []models.Official) {
	if sub.officials != nil && sub.live() {
		sub.officials(models.CloneOfficials(list))
	}
}

func (sub *subscription) deliverEvents(list []models.Event) {
	if sub.events != nil && sub.live() {
		sub.events(cloneEvents(list))
	}
}

func (sub *subscription) deliverAttendees(list []models.Attendee) {
	if sub.attendees != nil && sub.live() {
		sub.attendees(slices.Clone(list))
	}
}

func (sub *subscription) deliverError(err error) {
	if sub.onError != nil && sub.active.Load() {
		sub.onError(err)
	}
}

// subjectState caches a transient stream. It exists only while the stream
// has at least one listener; gen guards loads against a reset subject.
type subjectState struct {
	key       streamKey
	gen       uint64
	loaded    bool
	events    []models.Event
	attendees []models.Attendee
}

// SubscribeOfficials registers fn for the slot's officials. If officials
// were already published, fn receives them first.
func (s *Store) SubscribeOfficials(slot Slot, fn OfficialsListener, opts ...SubscribeOption) (Token, error) {
	return s.subscribe(&subscription{key: streamKey{kind: kindOfficials, slot: slot}, officials: fn}, opts)
}

// SubscribeEvents registers fn for the events of the slot's officials.
func (s *Store) SubscribeEvents(slot Slot, fn EventsListener, opts ...SubscribeOption) (Token, error) {
	return s.subscribe(&subscription{key: streamKey{kind: kindEvents, slot: slot}, events: fn}, opts)
}

// SubscribeOfficialEvents registers fn for one official's events. The
// first listener triggers the load.
func (s *Store) SubscribeOfficialEvents(officialRef string, fn EventsListener, opts ...SubscribeOption) (Token, error) {
	return s.subscribe(&subscription{key: streamKey{kind: kindOfficialEvents, subject: officialRef}, events: fn}, opts)
}

// SubscribeUserEvents registers fn for the events a user owns.
func (s *Store) SubscribeUserEvents(user models.UserID, fn EventsListener, opts ...SubscribeOption) (Token, error) {
	return s.subscribe(&subscription{key: streamKey{kind: kindUserEvents, subject: string(user)}, events: fn}, opts)
}

// SubscribeAttendees registers fn for one event's attendee list.
func (s *Store) SubscribeAttendees(eventID string, fn AttendeesListener, opts ...SubscribeOption) (Token, error) {
	return s.subscribe(&subscription{key: streamKey{kind: kindAttendees, subject: eventID}, attendees: fn}, opts)
}

func (s *Store) subscribe(sub *subscription, opts []SubscribeOption) (Token, error) {
	for _, opt := range opts {
		opt(sub)
	}
	if !s.started.Load() {
		return 0, ErrNotStarted
	}
	if s.stopped.Load() {
		return 0, ErrStopped
	}

	s.mu.Lock()
	s.nextTok++
	sub.token = s.nextTok
	sub.active.Store(true)
	s.subs[sub.token] = sub

	var load *subjectState
	if sub.key.kind >= kindOfficialEvents {
		if _, ok := s.subjects[sub.key]; !ok {
			s.subjectGen++
			load = &subjectState{key: sub.key, gen: s.subjectGen}
			s.subjects[sub.key] = load
		}
	}
	s.mu.Unlock()

	slog.Debug("listener subscribed",
		"stream", sub.key.kind,
		"slot", sub.key.slot,
		"subject", sub.key.subject,
		"token", sub.token,
	)

	if load != nil {
		s.loadSubject(load)
	} else {
		s.post(func() { s.replay(sub) })
	}
	return sub.token, nil
}

// replay hands a new subscriber the stream's cached value and marks it
// ready for publishes. Runs on the dispatch goroutine, so a publish queued
// before the subscribe is delivered once, through the snapshot.
func (s *Store) replay(sub *subscription) {
	s.mu.Lock()
	sub.ready.Store(true)
	var (
		officials []models.Official
		evs       []models.Event
		attendees []models.Attendee
		ok        bool
	)
	switch sub.key.kind {
	case kindOfficials:
		st := s.slots[sub.key.slot]
		officials, ok = st.officials, st.officialsLoaded
	case kindEvents:
		st := s.slots[sub.key.slot]
		evs, ok = st.events, st.eventsLoaded
	default:
		if subj, found := s.subjects[sub.key]; found {
			evs, attendees, ok = subj.events, subj.attendees, subj.loaded
		}
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	sub.deliverOfficials(officials)
	sub.deliverEvents(evs)
	sub.deliverAttendees(attendees)
}

// loadSubject fetches a transient stream in the background and publishes
// it if the subject is still the same when the load completes.
func (s *Store) loadSubject(subj *subjectState) {
	key, gen := subj.key, subj.gen
	s.goWorker(func() {
		var (
			evs       []models.Event
			attendees []models.Attendee
			err       error
		)
		switch key.kind {
		case kindOfficialEvents:
			if s.loader != nil {
				evs, err = s.loader.AggregateOfficial(s.ctx, key.subject)
			}
		case kindUserEvents:
			if s.loader != nil {
				evs, err = s.loader.AggregateOwner(s.ctx, models.UserID(key.subject))
			}
		case kindAttendees:
			if s.repo != nil {
				attendees, err = s.repo.Attendees(s.ctx, key.subject)
			}
		}
		if err != nil {
			s.post(func() { s.failSubject(key, gen, err) })
			return
		}
		s.post(func() { s.completeSubject(key, gen, evs, attendees) })
	})
}

// completeSubject runs on the dispatch goroutine.
func (s *Store) completeSubject(key streamKey, gen uint64, evs []models.Event, attendees []models.Attendee) {
	s.mu.Lock()
	subj, ok := s.subjects[key]
	if !ok || subj.gen != gen {
		s.mu.Unlock()
		slog.Debug("dropping load for released subject", "stream", key.kind, "subject", key.subject)
		return
	}
	subj.events = evs
	subj.attendees = attendees
	subj.loaded = true
	listeners := s.listenersLocked(key)
	s.mu.Unlock()

	for _, sub := range listeners {
		sub.deliverEvents(evs)
		sub.deliverAttendees(attendees)
	}
}

// failSubject drops a subject whose load failed so that the next
// subscribe retries, and reports the failure to the sink and to the
// subject's error listeners. Runs on the dispatch goroutine.
func (s *Store) failSubject(key streamKey, gen uint64, err error) {
	s.mu.Lock()
	subj, ok := s.subjects[key]
	if !ok || subj.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.subjects, key)
	listeners := s.listenersLocked(key)
	s.mu.Unlock()

	err = fmt.Errorf("loading %s %s: %w", key.kind, key.subject, err)
	s.subjSink(key.kind.String(), key.subject, err)
	for _, sub := range listeners {
		sub.deliverError(err)
	}
}

// Unsubscribe removes a subscription. It reports false for an unknown
// token. When the last listener of a transient stream leaves, its cache
// is dropped. When the last sandbox officials listener leaves, the
// sandbox slot is reset.
func (s *Store) Unsubscribe(tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[tok]
	if !ok {
		return false
	}
	sub.active.Store(false)
	delete(s.subs, tok)

	if len(s.listenersLocked(sub.key)) > 0 {
		return true
	}

	switch {
	case sub.key.kind >= kindOfficialEvents:
		delete(s.subjects, sub.key)
		slog.Debug("released subject", "stream", sub.key.kind, "subject", sub.key.subject)
	case sub.key.kind == kindOfficials && sub.key.slot == SlotSandbox:
		st := s.slots[SlotSandbox]
		*st = slotState{gen: st.gen + 1}
		slog.Debug("reset idle sandbox slot")
	}
	return true
}

// listenersLocked returns the stream's subscriptions in registration
// order. Callers hold s.mu.
func (s *Store) listenersLocked(key streamKey) []*subscription {
	var out []*subscription
	for _, sub := range s.subs {
		if sub.key == key {
			out = append(out, sub)
		}
	}
	slices.SortFunc(out, func(a, b *subscription) int { return cmp.Compare(a.token, b.token) })
	return out
}

// subjectsLocked returns the cached transient subjects of one kind.
// Callers hold s.mu.
func (s *Store) subjectsLocked(kind streamKind) []*subjectState {
	var out []*subjectState
	for key, subj := range s.subjects {
		if key.kind == kind {
			out = append(out, subj)
		}
	}
	return out
}
