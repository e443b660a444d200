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

// Package appstate holds the current home and sandbox addresses and keeps
// the officials, events and attendees derived from them up to date.
//
// An address change fetches officials in the background, publishes them to
// officials listeners, then aggregates the officials' events and publishes
// those. A result computed for an address that has since been replaced is
// dropped at the publish boundary and never reaches a listener.
//
// All state changes that follow an asynchronous completion, and every
// listener callback, run on a single dispatch goroutine started by Start.
package appstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/civicpulse/pipeline/internal/models"
)

// DefaultQueueSize is the dispatch queue length.
const DefaultQueueSize = 256

var (
	// ErrNotStarted is returned by operations issued before Start.
	ErrNotStarted = errors.New("store not started")
	// ErrStopped resolves futures still pending when Stop is called.
	ErrStopped = errors.New("store stopped")
)

// Slot names one of the two independent address slots.
type Slot int

const (
	SlotHome Slot = iota
	SlotSandbox
)

func (s Slot) String() string {
	switch s {
	case SlotHome:
		return "home"
	case SlotSandbox:
		return "sandbox"
	default:
		return "unknown"
	}
}

// ParseSlot resolves a slot name.
func ParseSlot(name string) (Slot, bool) {
	switch name {
	case "home":
		return SlotHome, true
	case "sandbox":
		return SlotSandbox, true
	}
	return 0, false
}

// Directory fetches the officials for an address. Implemented by
// *civic.Client.
type Directory interface {
	Fetch(ctx context.Context, addr models.Address) ([]models.Official, error)
}

// EventLoader derives event lists. Implemented by *events.Aggregator.
type EventLoader interface {
	Aggregate(ctx context.Context, officials []models.Official) []models.Event
	AggregateOfficial(ctx context.Context, officialRef string) ([]models.Event, error)
	AggregateOwner(ctx context.Context, owner models.UserID) ([]models.Event, error)
}

// EventRepository persists event and RSVP changes. Implemented by
// *events.Repository.
type EventRepository interface {
	Create(ctx context.Context, e models.Event) (models.Event, error)
	Update(ctx context.Context, editor models.UserID, e models.Event) (models.Event, error)
	Delete(ctx context.Context, editor models.UserID, id string) error
	Attendees(ctx context.Context, eventID string) ([]models.Attendee, error)
	RSVPFor(ctx context.Context, eventID string, userID models.UserID) (*models.Attendee, error)
	SetRSVP(ctx context.Context, eventID string, userID models.UserID, status models.RSVP) (models.Attendee, error)
	ClearRSVP(ctx context.Context, eventID string, userID models.UserID) error
}

// ErrorSink receives officials fetch failures. The store keeps the
// previous officials when a fetch fails.
type ErrorSink func(slot Slot, addr models.Address, err error)

// SubjectErrorSink receives load failures of the per-official, per-user
// and attendee streams. stream is one of "official_events", "user_events"
// or "attendees". The default logs a warning.
type SubjectErrorSink func(stream, subject string, err error)

// Config holds the store's collaborators.
type Config struct {
	Directory        Directory
	Events           EventLoader
	Repository       EventRepository
	ErrorSink        ErrorSink
	SubjectErrorSink SubjectErrorSink
	QueueSize        int
}

// slotState is the per-slot cache. gen increases on every accepted address
// change and is the supersession check at publish time.
type slotState struct {
	address    models.Address
	hasAddress bool
	gen        uint64

	officials       []models.Official
	officialsLoaded bool
	events          []models.Event
	eventsLoaded    bool
}

// Store is the reactive address store. Create it with New, then Start it.
type Store struct {
	directory Directory
	loader    EventLoader
	repo      EventRepository
	errorSink ErrorSink
	subjSink  SubjectErrorSink

	mu         sync.Mutex
	slots      [2]*slotState
	subjects   map[streamKey]*subjectState
	subjectGen uint64
	subs       map[Token]*subscription
	nextTok    Token
	pending    map[*Pending]struct{}

	ops     chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
	stopped atomic.Bool
	loop    sync.WaitGroup
	workers sync.WaitGroup
}

// New creates a store. Nothing runs until Start.
func New(cfg Config) *Store {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	sink := cfg.ErrorSink
	if sink == nil {
		sink = func(slot Slot, addr models.Address, err error) {
			slog.Warn("officials fetch failed, keeping previous officials",
				"slot", slot,
				"address", addr.SingleLine(),
				"error", err,
			)
		}
	}

	subjSink := cfg.SubjectErrorSink
	if subjSink == nil {
		subjSink = func(stream, subject string, err error) {
			slog.Warn("subject load failed",
				"stream", stream,
				"subject", subject,
				"error", err,
			)
		}
	}

	return &Store{
		directory: cfg.Directory,
		loader:    cfg.Events,
		repo:      cfg.Repository,
		errorSink: sink,
		subjSink:  subjSink,
		slots:     [2]*slotState{{}, {}},
		subjects:  make(map[streamKey]*subjectState),
		subs:      make(map[Token]*subscription),
		pending:   make(map[*Pending]struct{}),
		ops:       make(chan func(), size),
		done:      make(chan struct{}),
	}
}

// Start launches the dispatch goroutine. Background fetches are bound to ctx.
func (s *Store) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.loop.Add(1)
	go s.run()

	slog.Info("address store started")
}

// Stop cancels in-flight work, waits for it to return and resolves any
// outstanding futures with ErrStopped.
func (s *Store) Stop() {
	if !s.started.Load() || !s.stopped.CompareAndSwap(false, true) {
		return
	}
	// Workers registered after this point see stopped.
	s.mu.Lock()
	s.mu.Unlock()

	s.cancel()
	close(s.done)
	s.loop.Wait()
	s.workers.Wait()

	s.mu.Lock()
	outstanding := make([]*Pending, 0, len(s.pending))
	for p := range s.pending {
		outstanding = append(outstanding, p)
	}
	s.pending = make(map[*Pending]struct{})
	s.mu.Unlock()

	for _, p := range outstanding {
		p.resolve(OutcomeFailed, ErrStopped)
	}

	slog.Info("address store stopped")
}

// run is the dispatch loop.
func (s *Store) run() {
	defer s.loop.Done()
	for {
		select {
		case <-s.done:
			return
		case op := <-s.ops:
			op()
		}
	}
}

// post queues op on the dispatch goroutine. It reports false once the
// store is stopped.
func (s *Store) post(op func()) bool {
	if s.stopped.Load() {
		return false
	}
	select {
	case s.ops <- op:
		return true
	case <-s.done:
		return false
	}
}

// call runs op on the dispatch goroutine and waits for it.
func (s *Store) call(ctx context.Context, op func()) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	finished := make(chan struct{})
	if !s.post(func() {
		defer close(finished)
		op()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// goWorker runs fn in the background, tracked for Stop. It reports false
// once the store is stopped.
func (s *Store) goWorker(fn func()) bool {
	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		return false
	}
	s.workers.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.workers.Done()
		fn()
	}()
	return true
}

func (s *Store) track(p *Pending) {
	s.mu.Lock()
	s.pending[p] = struct{}{}
	s.mu.Unlock()
}

func (s *Store) settle(p *Pending, o Outcome, err error) {
	s.mu.Lock()
	delete(s.pending, p)
	s.mu.Unlock()
	p.resolve(o, err)
}

// SetHomeAddress sets the home slot's address.
func (s *Store) SetHomeAddress(addr models.Address) *Pending {
	return s.SetAddress(SlotHome, addr)
}

// SetSandboxAddress sets the sandbox slot's address.
func (s *Store) SetSandboxAddress(addr models.Address) *Pending {
	return s.SetAddress(SlotSandbox, addr)
}

// SetAddress records addr as the slot's current address and, if it
// differs from the previous one, starts the officials → events cascade.
// The address is visible to Address immediately; the returned future
// settles when the cascade publishes, fails or is superseded.
func (s *Store) SetAddress(slot Slot, addr models.Address) *Pending {
	if !s.started.Load() {
		return resolved(OutcomeFailed, ErrNotStarted)
	}
	if s.stopped.Load() {
		return resolved(OutcomeFailed, ErrStopped)
	}

	s.mu.Lock()
	st := s.slots[slot]
	if st.hasAddress && st.address == addr {
		s.mu.Unlock()
		slog.Debug("address unchanged, skipping fetch", "slot", slot)
		return resolved(OutcomeUnchanged, nil)
	}
	st.address = addr
	st.hasAddress = true
	st.gen++
	gen := st.gen
	s.mu.Unlock()

	p := newPending()
	s.track(p)

	slog.Info("address changed, fetching officials",
		"slot", slot,
		"address", addr.SingleLine(),
		"generation", gen,
	)

	ok := s.goWorker(func() {
		officials, err := s.directory.Fetch(s.ctx, addr)
		if !s.post(func() { s.completeOfficials(slot, addr, gen, officials, err, p) }) {
			s.settle(p, OutcomeFailed, ErrStopped)
		}
	})
	if !ok {
		s.settle(p, OutcomeFailed, ErrStopped)
	}

	return p
}

// current reports whether (addr, gen) is still the slot's latest change.
// Callers hold s.mu.
func (st *slotState) current(addr models.Address, gen uint64) bool {
	return st.hasAddress && st.gen == gen && st.address == addr
}

// completeOfficials runs on the dispatch goroutine.
func (s *Store) completeOfficials(slot Slot, addr models.Address, gen uint64, officials []models.Official, err error, p *Pending) {
	s.mu.Lock()
	st := s.slots[slot]
	if !st.current(addr, gen) {
		s.mu.Unlock()
		slog.Debug("dropping superseded officials",
			"slot", slot,
			"address", addr.SingleLine(),
			"generation", gen,
		)
		s.settle(p, OutcomeSuperseded, nil)
		return
	}

	if err != nil {
		s.mu.Unlock()
		s.errorSink(slot, addr, err)
		s.settle(p, OutcomeFailed, err)
		return
	}

	officials = models.CloneOfficials(officials)
	models.SortOfficials(officials)
	st.officials = officials
	st.officialsLoaded = true
	listeners := s.listenersLocked(streamKey{kind: kindOfficials, slot: slot})
	s.mu.Unlock()

	slog.Info("officials published",
		"slot", slot,
		"officials", len(officials),
		"listeners", len(listeners),
	)
	for _, sub := range listeners {
		sub.deliverOfficials(officials)
	}

	if s.loader == nil {
		s.settle(p, OutcomePublished, nil)
		return
	}

	ok := s.goWorker(func() {
		evs := s.loader.Aggregate(s.ctx, officials)
		if !s.post(func() { s.completeSlotEvents(slot, addr, gen, evs, p) }) {
			s.settle(p, OutcomeFailed, ErrStopped)
		}
	})
	if !ok {
		s.settle(p, OutcomeFailed, ErrStopped)
	}
}

// completeSlotEvents runs on the dispatch goroutine.
func (s *Store) completeSlotEvents(slot Slot, addr models.Address, gen uint64, evs []models.Event, p *Pending) {
	s.mu.Lock()
	st := s.slots[slot]
	if !st.current(addr, gen) {
		s.mu.Unlock()
		slog.Debug("dropping superseded events", "slot", slot, "generation", gen)
		s.settle(p, OutcomePublished, nil)
		return
	}
	st.events = evs
	st.eventsLoaded = true
	listeners := s.listenersLocked(streamKey{kind: kindEvents, slot: slot})
	s.mu.Unlock()

	for _, sub := range listeners {
		sub.deliverEvents(evs)
	}
	s.settle(p, OutcomePublished, nil)
}

// Address returns the slot's current address.
func (s *Store) Address(slot Slot) (models.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.slots[slot]
	return st.address, st.hasAddress
}

// Officials returns a copy of the slot's published officials.
func (s *Store) Officials(slot Slot) []models.Official {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneOfficials(s.slots[slot].officials)
}

// Events returns a copy of the slot's published events.
func (s *Store) Events(slot Slot) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEvents(s.slots[slot].events)
}

func cloneEvents(evs []models.Event) []models.Event {
	if evs == nil {
		return nil
	}
	out := make([]models.Event, len(evs))
	copy(out, evs)
	return out
}
