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
	"encoding/json"
	"fmt"
	"time"

	"github.com/civicpulse/pipeline/internal/docstore"
	"github.com/civicpulse/pipeline/internal/models"
)

// Field names used in the document store.
const (
	fieldOwner       = "owner"
	fieldOfficialRef = "officialRef"
	fieldEventID     = "eventId"
	fieldUserID      = "userId"
)

// eventDoc mirrors an events document.
type eventDoc struct {
	Name     string `json:"name"`
	Owner    string `json:"owner"`
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	OfficialRef string    `json:"officialRef"`
	Description string    `json:"description"`
}

// attendeeDoc mirrors an event_attendees document.
type attendeeDoc struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
	Status  string `json:"status"`
}

func eventFields(e models.Event) (docstore.Fields, error) {
	doc := eventDoc{
		Name:        e.Name,
		Owner:       string(e.Owner),
		StartDate:   e.StartDate.UTC(),
		EndDate:     e.EndDate.UTC(),
		OfficialRef: e.OfficialRef,
		Description: e.Description,
	}
	doc.Location.Lat = e.Location.Lat
	doc.Location.Lng = e.Location.Lng
	return toFields(doc)
}

func decodeEvent(d docstore.Document) (models.Event, error) {
	var doc eventDoc
	if err := fromFields(d.Fields, &doc); err != nil {
		return models.Event{}, fmt.Errorf("decode event %s: %w", d.ID, err)
	}
	return models.Event{
		ID:          d.ID,
		Name:        doc.Name,
		Owner:       models.UserID(doc.Owner),
		Location:    models.LatLng{Lat: doc.Location.Lat, Lng: doc.Location.Lng},
		StartDate:   doc.StartDate,
		EndDate:     doc.EndDate,
		OfficialRef: doc.OfficialRef,
		Description: doc.Description,
	}, nil
}

func attendeeFields(a models.Attendee) (docstore.Fields, error) {
	return toFields(attendeeDoc{
		EventID: a.EventID,
		UserID:  string(a.UserID),
		Status:  string(a.Status),
	})
}

func decodeAttendee(d docstore.Document) (models.Attendee, error) {
	var doc attendeeDoc
	if err := fromFields(d.Fields, &doc); err != nil {
		return models.Attendee{}, fmt.Errorf("decode attendee %s: %w", d.ID, err)
	}
	status, err := models.ParseRSVP(doc.Status)
	if err != nil {
		return models.Attendee{}, fmt.Errorf("decode attendee %s: %w", d.ID, err)
	}
	return models.Attendee{
		ID:      d.ID,
		EventID: doc.EventID,
		UserID:  models.UserID(doc.UserID),
		Status:  status,
	}, nil
}

func toFields(v any) (docstore.Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := docstore.Fields{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func fromFields(fields docstore.Fields, v any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
