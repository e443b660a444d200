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

package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/civicpulse/pipeline/internal/docstore"
	"github.com/civicpulse/pipeline/internal/models"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func townHall(owner models.UserID, ref string, start time.Time) models.Event {
	return models.Event{
		Name:        "Town hall",
		Owner:       owner,
		Location:    models.LatLng{Lat: 39.78, Lng: -89.65},
		StartDate:   start,
		EndDate:     start.Add(2 * time.Hour),
		OfficialRef: ref,
		Description: "Open questions",
	}
}

// TestRepository_CreateAndQuery verifies the events document round trip.
func TestRepository_CreateAndQuery(t *testing.T) {
	repo := NewRepository(docstore.NewMemory(), 0)
	ctx := context.Background()

	created, err := repo.Create(ctx, townHall("u1", "Jane Doe", t0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected persisted event to have an id")
	}

	byOfficial, err := repo.ForOfficial(ctx, "Jane Doe")
	if err != nil {
		t.Fatalf("for official: %v", err)
	}
	if len(byOfficial) != 1 {
		t.Fatalf("expected 1 event, got %d", len(byOfficial))
	}

	got := byOfficial[0]
	if got.ID != created.ID || got.Name != "Town hall" || got.Owner != "u1" {
		t.Errorf("unexpected event: %+v", got)
	}
	if !got.StartDate.Equal(t0) || !got.EndDate.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("dates = %v..%v", got.StartDate, got.EndDate)
	}
	if got.Location != (models.LatLng{Lat: 39.78, Lng: -89.65}) {
		t.Errorf("location = %+v", got.Location)
	}

	byOwner, _ := repo.ForOwner(ctx, "u1")
	if len(byOwner) != 1 {
		t.Errorf("expected 1 owned event, got %d", len(byOwner))
	}
}

// TestRepository_CreateValidates verifies required event fields.
func TestRepository_CreateValidates(t *testing.T) {
	repo := NewRepository(docstore.NewMemory(), 0)

	bad := []models.Event{
		{Owner: "u1", OfficialRef: "x"},
		{Name: "n", OfficialRef: "x"},
		{Name: "n", Owner: "u1"},
		{Name: "n", Owner: "u1", OfficialRef: "x", StartDate: t0, EndDate: t0.Add(-time.Hour)},
	}
	for i, e := range bad {
		if _, err := repo.Create(context.Background(), e); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("case %d: expected ErrInvalidEvent, got %v", i, err)
		}
	}
}

// TestRepository_OwnerOnlyEdits verifies update and delete permissions.
func TestRepository_OwnerOnlyEdits(t *testing.T) {
	repo := NewRepository(docstore.NewMemory(), 0)
	ctx := context.Background()

	e, _ := repo.Create(ctx, townHall("owner", "Jane Doe", t0))

	e.Name = "Renamed"
	if _, err := repo.Update(ctx, "intruder", e); !errors.Is(err, ErrNotOwner) {
		t.Errorf("update by non-owner: expected ErrNotOwner, got %v", err)
	}
	if err := repo.Delete(ctx, "intruder", e.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("delete by non-owner: expected ErrNotOwner, got %v", err)
	}

	updated, err := repo.Update(ctx, "owner", e)
	if err != nil {
		t.Fatalf("update by owner: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", updated.Name)
	}

	evs, _ := repo.ForOfficial(ctx, "Jane Doe")
	if len(evs) != 1 || evs[0].Name != "Renamed" {
		t.Errorf("unexpected stored events: %+v", evs)
	}
}

// TestRepository_DeleteRemovesAttendees verifies cascade on delete.
func TestRepository_DeleteRemovesAttendees(t *testing.T) {
	repo := NewRepository(docstore.NewMemory(), 0)
	ctx := context.Background()

	e, _ := repo.Create(ctx, townHall("owner", "Jane Doe", t0))
	repo.SetRSVP(ctx, e.ID, "a", models.RSVPGoing)
	repo.SetRSVP(ctx, e.ID, "b", models.RSVPMaybe)

	if err := repo.Delete(ctx, "owner", e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	evs, _ := repo.ForOfficial(ctx, "Jane Doe")
	if len(evs) != 0 {
		t.Errorf("expected no events, got %d", len(evs))
	}
	attendees, _ := repo.Attendees(ctx, e.ID)
	if len(attendees) != 0 {
		t.Errorf("expected no attendees, got %d", len(attendees))
	}
}

// TestRepository_SetRSVPIsUnique verifies one attendee record per (event, user).
func TestRepository_SetRSVPIsUnique(t *testing.T) {
	repo := NewRepository(docstore.NewMemory(), 0)
	ctx := context.Background()

	first, err := repo.SetRSVP(ctx, "e1", "u1", models.RSVPMaybe)
	if err != nil {
		t.Fatalf("set rsvp: %v", err)
	}
	second, err := repo.SetRSVP(ctx, "e1", "u1", models.RSVPGoing)
	if err != nil {
		t.Fatalf("set rsvp: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected the same attendee record, got %q and %q", first.ID, second.ID)
	}

	attendees, _ := repo.Attendees(ctx, "e1")
	if len(attendees) != 1 {
		t.Fatalf("expected 1 attendee, got %d", len(attendees))
	}
	if attendees[0].Status != models.RSVPGoing {
		t.Errorf("status = %q, want going", attendees[0].Status)
	}
}

// TestRepository_SetRSVPConcurrent verifies concurrent RSVPs never duplicate.
func TestRepository_SetRSVPConcurrent(t *testing.T) {
	repo := NewRepository(docstore.NewMemory(), 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			repo.SetRSVP(ctx, "e1", "u1", models.RSVPGoing)
		}()
	}
	wg.Wait()

	attendees, _ := repo.Attendees(ctx, "e1")
	if len(attendees) != 1 {
		t.Errorf("expected 1 attendee, got %d", len(attendees))
	}
}

// TestRepository_SetRSVPRemovesDuplicates verifies cleanup of records
// written by another client.
func TestRepository_SetRSVPRemovesDuplicates(t *testing.T) {
	docs := docstore.NewMemory()
	repo := NewRepository(docs, 0)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2"} {
		docs.Put(ctx, docstore.CollectionEventAttendees, id, docstore.Fields{"eventId": "e1", "userId": "u1", "status": "maybe"})
	}

	got, err := repo.SetRSVP(ctx, "e1", "u1", models.RSVPNotGoing)
	if err != nil {
		t.Fatalf("set rsvp: %v", err)
	}
	if got.ID != "a1" {
		t.Errorf("kept id = %q, want a1", got.ID)
	}

	attendees, _ := repo.Attendees(ctx, "e1")
	if len(attendees) != 1 || attendees[0].Status != models.RSVPNotGoing {
		t.Errorf("unexpected attendees: %+v", attendees)
	}
}

// TestRepository_RSVPForAndClear verifies lookup and removal.
func TestRepository_RSVPForAndClear(t *testing.T) {
	repo := NewRepository(docstore.NewMemory(), 0)
	ctx := context.Background()

	none, err := repo.RSVPFor(ctx, "e1", "u1")
	if err != nil || none != nil {
		t.Fatalf("expected no rsvp, got %+v, %v", none, err)
	}

	repo.SetRSVP(ctx, "e1", "u1", models.RSVPMaybe)
	a, _ := repo.RSVPFor(ctx, "e1", "u1")
	if a == nil || a.Status != models.RSVPMaybe {
		t.Fatalf("unexpected rsvp: %+v", a)
	}

	if err := repo.ClearRSVP(ctx, "e1", "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := repo.ClearRSVP(ctx, "e1", "u1"); err != nil {
		t.Errorf("clearing twice should not fail: %v", err)
	}
	a, _ = repo.RSVPFor(ctx, "e1", "u1")
	if a != nil {
		t.Errorf("expected rsvp to be cleared, got %+v", a)
	}
}
