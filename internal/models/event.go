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

package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// UserID identifies an account in the document store.
type UserID string

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Event is a public event tied to an official. ID is empty until the event
// is first persisted.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	Owner       UserID    `json:"owner"`
	Location    LatLng    `json:"location"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	OfficialRef string    `json:"official_ref"`
	Description string    `json:"description,omitempty"`
}

// EventKey identifies an event independently of its storage id.
type EventKey struct {
	Owner     UserID
	Name      string
	StartDate int64
	Location  LatLng
}

// NaturalKey returns the (owner, name, start, location) identity of the event.
func (e Event) NaturalKey() EventKey {
	return EventKey{
		Owner:     e.Owner,
		Name:      e.Name,
		StartDate: e.StartDate.UnixNano(),
		Location:  e.Location,
	}
}

// CompareEvents orders events by start date, then by name.
func CompareEvents(a, b Event) int {
	if c := a.StartDate.Compare(b.StartDate); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SortEvents orders events for display.
func SortEvents(events []Event) {
	slices.SortFunc(events, CompareEvents)
}

// RSVP is an attendee's response to an event.
type RSVP string

const (
	RSVPGoing    RSVP = "going"
	RSVPMaybe    RSVP = "maybe"
	RSVPNotGoing RSVP = "not_going"
)

// ParseRSVP validates an RSVP status string.
func ParseRSVP(s string) (RSVP, error) {
	switch RSVP(strings.ToLower(strings.TrimSpace(s))) {
	case RSVPGoing:
		return RSVPGoing, nil
	case RSVPMaybe:
		return RSVPMaybe, nil
	case RSVPNotGoing, "not going", "notgoing":
		return RSVPNotGoing, nil
	}
	return "", fmt.Errorf("unknown rsvp status %q", s)
}

// Attendee records one user's RSVP to one event. There is at most one
// attendee per (EventID, UserID).
type Attendee struct {
	ID      string `json:"id,omitempty"`
	EventID string `json:"event_id"`
	UserID  UserID `json:"user_id"`
	Status  RSVP   `json:"status"`
}
