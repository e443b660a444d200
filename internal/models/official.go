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
)

// Party is the closed set of party affiliations an official can carry.
type Party int

const (
	PartyUnknown Party = iota
	PartyRepublican
	PartyDemocratic
	PartyNonpartisan
)

// partyAliases maps lower-cased free-text party strings to a Party.
var partyAliases = map[string]Party{
	"republican":          PartyRepublican,
	"republican party":    PartyRepublican,
	"rep":                 PartyRepublican,
	"r":                   PartyRepublican,
	"gop":                 PartyRepublican,
	"democratic":          PartyDemocratic,
	"democratic party":    PartyDemocratic,
	"democrat":            PartyDemocratic,
	"democrats":           PartyDemocratic,
	"dem":                 PartyDemocratic,
	"d":                   PartyDemocratic,
	"nonpartisan":         PartyNonpartisan,
	"non-partisan":        PartyNonpartisan,
	"non partisan":        PartyNonpartisan,
	"independent":         PartyNonpartisan,
	"no party preference": PartyNonpartisan,
}

// ParseParty resolves a free-text party string. Unrecognised strings
// resolve to PartyUnknown.
func ParseParty(s string) Party {
	if p, ok := partyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p
	}
	return PartyUnknown
}

func (p Party) String() string {
	switch p {
	case PartyRepublican:
		return "Republican"
	case PartyDemocratic:
		return "Democratic"
	case PartyNonpartisan:
		return "Nonpartisan"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the party by name.
func (p Party) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a party name. Unknown names decode to PartyUnknown.
func (p *Party) UnmarshalText(b []byte) error {
	*p = ParseParty(string(b))
	return nil
}

// Official is an elected or appointed representative for an address.
// Officials are built only by the civic decoder and are read-only afterwards.
type Official struct {
	// RankIndex is the position assigned by the civic API. Lower values
	// belong to broader constituencies.
	RankIndex   int       `json:"rank_index"`
	Name        string    `json:"name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Party       Party     `json:"party"`
	Addresses   []Address `json:"addresses"`
	Phones      []string  `json:"phones"`
	Emails      []string  `json:"emails"`
	URLs        []string  `json:"urls"`
	FacebookURL string    `json:"facebook_url,omitempty"`
	TwitterURL  string    `json:"twitter_url,omitempty"`
	YouTubeURL  string    `json:"youtube_url,omitempty"`
	Office      string    `json:"office"`
	Division    string    `json:"division"`
	DivisionID  string    `json:"division_id"`
}

// Ref is the reference events use to point at an official.
func (o Official) Ref() string {
	return o.Name
}

// String implements fmt.Stringer for log output.
func (o Official) String() string {
	return fmt.Sprintf("%s (%s, %s)", o.Name, o.Office, o.Division)
}

// SortOfficials orders officials ascending by RankIndex. Officials sharing
// a rank keep their relative order.
func SortOfficials(officials []Official) {
	slices.SortStableFunc(officials, func(a, b Official) int {
		return a.RankIndex - b.RankIndex
	})
}

// CloneOfficials returns a copy of the slice that shares no backing array
// with the input.
func CloneOfficials(officials []Official) []Official {
	if officials == nil {
		return nil
	}
	return slices.Clone(officials)
}
