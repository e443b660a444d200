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

package civic

import (
	"errors"
	"strings"
	"testing"

	"github.com/civicpulse/pipeline/internal/models"
)

// TestDecodeOfficials_SingleOfficial covers the minimal end-to-end payload.
func TestDecodeOfficials_SingleOfficial(t *testing.T) {
	body := `{"divisions":{"d1":{"name":"d","officeIndices":[0]}},"offices":[{"name":"o","officialIndices":[0]}],"officials":[{"name":"Jane Doe","party":"Democratic Party"}]}`

	officials, err := DecodeOfficials(strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(officials) != 1 {
		t.Fatalf("expected 1 official, got %d", len(officials))
	}

	o := officials[0]
	if o.Name != "Jane Doe" {
		t.Errorf("name = %q, want Jane Doe", o.Name)
	}
	if o.Party != models.PartyDemocratic {
		t.Errorf("party = %v, want Democratic", o.Party)
	}
	if o.Office != "o" {
		t.Errorf("office = %q, want o", o.Office)
	}
	if o.Division != "d" {
		t.Errorf("division = %q, want d", o.Division)
	}
	if o.DivisionID != "d1" {
		t.Errorf("divisionID = %q, want d1", o.DivisionID)
	}
	if o.RankIndex != 0 {
		t.Errorf("rankIndex = %d, want 0", o.RankIndex)
	}

	// Absent optional fields default to empty, not nil.
	if o.Phones == nil || o.Emails == nil || o.URLs == nil || o.Addresses == nil {
		t.Error("optional list fields should default to empty slices")
	}
}

// TestDecodeOfficials_MissingName verifies fail-fast on each structure.
func TestDecodeOfficials_MissingName(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantStructure string
	}{
		{
			name:          "official",
			body:          `{"divisions":{"d1":{"name":"d","officeIndices":[0]}},"offices":[{"name":"o","officialIndices":[0]}],"officials":[{"party":"x"}]}`,
			wantStructure: "JSONOfficial",
		},
		{
			name:          "office",
			body:          `{"divisions":{"d1":{"name":"d","officeIndices":[0]}},"offices":[{"officialIndices":[0]}],"officials":[{"name":"Jane"}]}`,
			wantStructure: "JSONOffice",
		},
		{
			name:          "division",
			body:          `{"divisions":{"d1":{"officeIndices":[0]}},"offices":[{"name":"o","officialIndices":[0]}],"officials":[{"name":"Jane"}]}`,
			wantStructure: "JSONDivision",
		},
		{
			name:          "null name",
			body:          `{"divisions":{},"offices":[],"officials":[{"name":null}]}`,
			wantStructure: "JSONOfficial",
		},
		{
			name:          "unreferenced official still validated",
			body:          `{"divisions":{"d1":{"name":"d","officeIndices":[0]}},"offices":[{"name":"o","officialIndices":[0]}],"officials":[{"name":"Jane"},{"phones":["1"]}]}`,
			wantStructure: "JSONOfficial",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			officials, err := DecodeOfficials(strings.NewReader(tt.body))
			if err == nil {
				t.Fatal("expected error, got none")
			}
			if officials != nil {
				t.Errorf("expected no records, got %d", len(officials))
			}

			if !errors.Is(err, ErrMissingRequiredField) {
				t.Fatalf("expected MissingRequiredField, got %v", err)
			}

			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if cerr.Structure != tt.wantStructure {
				t.Errorf("structure = %q, want %q", cerr.Structure, tt.wantStructure)
			}
			if cerr.Field != "name" {
				t.Errorf("field = %q, want name", cerr.Field)
			}
		})
	}
}

// TestDecodeOfficials_DecodeErrors verifies malformed bodies surface as DecodeError.
func TestDecodeOfficials_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `<html>oops</html>`},
		{name: "truncated", body: `{"divisions":{`},
		{name: "trailing garbage", body: `{"divisions":{},"offices":[],"officials":[]} this is not json`},
		{name: "second value", body: `{"divisions":{},"offices":[],"officials":[]} {}`},
		{name: "type mismatch", body: `{"divisions":{},"offices":[],"officials":[{"name":"Jane","phones":"555"}]}`},
		{name: "office index out of range", body: `{"divisions":{"d1":{"name":"d","officeIndices":[3]}},"offices":[],"officials":[]}`},
		{name: "official index out of range", body: `{"divisions":{"d1":{"name":"d","officeIndices":[0]}},"offices":[{"name":"o","officialIndices":[1]}],"officials":[{"name":"Jane"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeOfficials(strings.NewReader(tt.body))
			if !errors.Is(err, ErrDecode) {
				t.Errorf("expected DecodeError, got %v", err)
			}
		})
	}
}

// TestDecodeOfficials_SortedByRank verifies the output order is independent
// of division key order.
func TestDecodeOfficials_SortedByRank(t *testing.T) {
	body := `{
		"divisions": {
			"ocd-division/country:us/state:ca/cd:12": {"name": "CA 12th", "officeIndices": [2]},
			"ocd-division/country:us": {"name": "United States", "officeIndices": [0, 1]},
			"ocd-division/country:us/state:ca": {"name": "California", "officeIndices": [3]}
		},
		"offices": [
			{"name": "President", "officialIndices": [0]},
			{"name": "Vice President", "officialIndices": [1]},
			{"name": "U.S. Representative", "officialIndices": [4]},
			{"name": "U.S. Senator", "officialIndices": [2, 3]}
		],
		"officials": [
			{"name": "P"}, {"name": "VP"}, {"name": "S1"}, {"name": "S2"}, {"name": "Rep"}
		]
	}`

	for i := 0; i < 10; i++ {
		officials, err := DecodeOfficials(strings.NewReader(body))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"P", "VP", "S1", "S2", "Rep"}
		if len(officials) != len(want) {
			t.Fatalf("expected %d officials, got %d", len(want), len(officials))
		}
		for j, name := range want {
			if officials[j].Name != name {
				t.Errorf("officials[%d] = %q, want %q", j, officials[j].Name, name)
			}
			if officials[j].RankIndex != j {
				t.Errorf("officials[%d].RankIndex = %d, want %d", j, officials[j].RankIndex, j)
			}
		}
		if officials[4].Division != "CA 12th" {
			t.Errorf("Rep division = %q, want CA 12th", officials[4].Division)
		}
	}
}

// TestDecodeOfficials_FullOfficial verifies optional field mapping.
func TestDecodeOfficials_FullOfficial(t *testing.T) {
	body := `{
		"divisions": {"ocd-division/country:us": {"name": "United States", "officeIndices": [0]}},
		"offices": [{"name": "President", "divisionId": "ocd-division/country:us", "levels": ["country"], "officialIndices": [0]}],
		"officials": [{
			"name": "Alex Example",
			"party": "Republican Party",
			"photoUrl": "https://example.com/a.jpg",
			"address": [{"line1": "1600 Pennsylvania Ave NW", "line2": "Suite 1", "city": "Washington", "state": "DC", "zip": "20500"}],
			"phones": ["(202) 456-1111"],
			"urls": ["https://example.gov"],
			"emails": ["alex@example.gov"],
			"channels": [
				{"type": "Facebook", "id": "alex"},
				{"type": "Twitter", "id": "alex_tw"},
				{"type": "YouTube", "id": "alexyt"},
				{"type": "GooglePlus", "id": "ignored"}
			]
		}]
	}`

	officials, err := DecodeOfficials(strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o := officials[0]

	if o.Party != models.PartyRepublican {
		t.Errorf("party = %v, want Republican", o.Party)
	}
	if o.PhotoURL != "https://example.com/a.jpg" {
		t.Errorf("photoURL = %q", o.PhotoURL)
	}
	if len(o.Addresses) != 1 {
		t.Fatalf("expected 1 address, got %d", len(o.Addresses))
	}
	if o.Addresses[0].StreetAddress != "1600 Pennsylvania Ave NW Suite 1" {
		t.Errorf("street = %q", o.Addresses[0].StreetAddress)
	}
	if o.Addresses[0].Zipcode != "20500" {
		t.Errorf("zip = %q, want 20500", o.Addresses[0].Zipcode)
	}
	if o.FacebookURL != "https://www.facebook.com/alex" {
		t.Errorf("facebook = %q", o.FacebookURL)
	}
	if o.TwitterURL != "https://twitter.com/alex_tw" {
		t.Errorf("twitter = %q", o.TwitterURL)
	}
	if o.YouTubeURL != "https://www.youtube.com/alexyt" {
		t.Errorf("youtube = %q", o.YouTubeURL)
	}
	if len(o.Phones) != 1 || len(o.URLs) != 1 || len(o.Emails) != 1 {
		t.Errorf("unexpected contact lists: %+v", o)
	}
}

// TestDecodeOfficials_Empty verifies an address with no officials.
func TestDecodeOfficials_Empty(t *testing.T) {
	officials, err := DecodeOfficials(strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(officials) != 0 {
		t.Errorf("expected no officials, got %d", len(officials))
	}
}
