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
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/civicpulse/pipeline/internal/models"
)

// Structure names reported by MissingRequiredField.
const (
	structDivision = "JSONDivision"
	structOffice   = "JSONOffice"
	structOfficial = "JSONOfficial"
)

// representativesResponse is the body of GET /representatives.
type representativesResponse struct {
	NormalizedInput *jsonAddress            `json:"normalizedInput"`
	Divisions       map[string]jsonDivision `json:"divisions"`
	Offices         []jsonOffice            `json:"offices"`
	Officials       []jsonOfficial          `json:"officials"`
}

type jsonDivision struct {
	Name          *string `json:"name"`
	OfficeIndices []int   `json:"officeIndices"`
}

type jsonOffice struct {
	Name            *string  `json:"name"`
	DivisionID      string   `json:"divisionId"`
	Levels          []string `json:"levels"`
	Roles           []string `json:"roles"`
	OfficialIndices []int    `json:"officialIndices"`
}

type jsonOfficial struct {
	Name     *string       `json:"name"`
	Address  []jsonAddress `json:"address"`
	Party    string        `json:"party"`
	Phones   []string      `json:"phones"`
	URLs     []string      `json:"urls"`
	PhotoURL string        `json:"photoUrl"`
	Emails   []string      `json:"emails"`
	Channels []jsonChannel `json:"channels"`
}

type jsonAddress struct {
	LocationName string `json:"locationName"`
	Line1        string `json:"line1"`
	Line2        string `json:"line2"`
	Line3        string `json:"line3"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
}

type jsonChannel struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// DecodeOfficials turns a /representatives body into officials sorted by
// RankIndex. Any missing required field aborts the whole decode.
func DecodeOfficials(body io.Reader) ([]models.Official, error) {
	var resp representativesResponse
	dec := json.NewDecoder(body)
	if err := dec.Decode(&resp); err != nil {
		return nil, decodeError("decode representatives response", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, decodeError("trailing data after representatives response", err)
	}

	if err := resp.validate(); err != nil {
		return nil, err
	}

	divisionIDs := make([]string, 0, len(resp.Divisions))
	for id := range resp.Divisions {
		divisionIDs = append(divisionIDs, id)
	}
	slices.Sort(divisionIDs)

	var officials []models.Official
	for _, divisionID := range divisionIDs {
		division := resp.Divisions[divisionID]
		for _, oi := range division.OfficeIndices {
			if oi < 0 || oi >= len(resp.Offices) {
				return nil, decodeError(fmt.Sprintf("division %s references office %d of %d", divisionID, oi, len(resp.Offices)), nil)
			}
			office := resp.Offices[oi]
			for _, pi := range office.OfficialIndices {
				if pi < 0 || pi >= len(resp.Officials) {
					return nil, decodeError(fmt.Sprintf("office %q references official %d of %d", *office.Name, pi, len(resp.Officials)), nil)
				}
				officials = append(officials, buildOfficial(pi, resp.Officials[pi], *office.Name, *division.Name, divisionID))
			}
		}
	}

	models.SortOfficials(officials)
	return officials, nil
}

// validate checks required fields on every structure before any record
// is built.
func (r *representativesResponse) validate() error {
	for _, d := range r.Divisions {
		if d.Name == nil {
			return missingField(structDivision, "name")
		}
	}
	for _, o := range r.Offices {
		if o.Name == nil {
			return missingField(structOffice, "name")
		}
	}
	for _, o := range r.Officials {
		if o.Name == nil {
			return missingField(structOfficial, "name")
		}
	}
	return nil
}

func buildOfficial(rank int, o jsonOfficial, office, division, divisionID string) models.Official {
	official := models.Official{
		RankIndex:  rank,
		Name:       *o.Name,
		PhotoURL:   o.PhotoURL,
		Party:      models.ParseParty(o.Party),
		Addresses:  make([]models.Address, 0, len(o.Address)),
		Phones:     nonNil(o.Phones),
		Emails:     nonNil(o.Emails),
		URLs:       nonNil(o.URLs),
		Office:     office,
		Division:   division,
		DivisionID: divisionID,
	}

	for _, a := range o.Address {
		official.Addresses = append(official.Addresses, a.toAddress())
	}

	for _, ch := range o.Channels {
		if ch.ID == "" {
			continue
		}
		switch strings.ToLower(ch.Type) {
		case "facebook":
			official.FacebookURL = "https://www.facebook.com/" + ch.ID
		case "twitter":
			official.TwitterURL = "https://twitter.com/" + ch.ID
		case "youtube":
			official.YouTubeURL = "https://www.youtube.com/" + ch.ID
		}
	}

	return official
}

func (a jsonAddress) toAddress() models.Address {
	lines := make([]string, 0, 3)
	for _, l := range []string{a.Line1, a.Line2, a.Line3} {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return models.Address{
		StreetAddress: strings.Join(lines, " "),
		City:          a.City,
		State:         a.State,
		Zipcode:       a.Zip,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
