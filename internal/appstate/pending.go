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
	"sync"
)

// Outcome is how an address change settled.
type Outcome int

const (
	// OutcomeUnchanged: the address equalled the current one; nothing ran.
	OutcomeUnchanged Outcome = iota
	// OutcomePublished: officials were published and the events cascade settled.
	OutcomePublished
	// OutcomeSuperseded: a newer address was set before the fetch finished.
	OutcomeSuperseded
	// OutcomeFailed: the fetch failed and the previous officials were kept,
	// or the store was not running (ErrNotStarted, ErrStopped).
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomePublished:
		return "published"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pending is the future returned by SetAddress.
type Pending struct {
	once    sync.Once
	done    chan struct{}
	outcome Outcome
	err     error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func resolved(o Outcome, err error) *Pending {
	p := newPending()
	p.resolve(o, err)
	return p
}

// resolve settles the future. Only the first call has an effect.
func (p *Pending) resolve(o Outcome, err error) {
	p.once.Do(func() {
		p.outcome = o
		p.err = err
		close(p.done)
	})
}

// Done is closed once the outcome is known.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the change settles or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		return p.outcome, p.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
