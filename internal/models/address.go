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

// Package models defines the data structures shared across the civic pipeline.
package models

import "strings"

// Address is a postal address handed to the store by the UI or a geocoder.
//
// Address is a comparable value: two addresses are the same address exactly
// when all fields are equal. A change of address is always a new value.
type Address struct {
	StreetAddress string `json:"street_address"`
	StreetNumber  string `json:"street_number,omitempty"`
	StreetName    string `json:"street_name,omitempty"`
	City          string `json:"city"`
	State         string `json:"state"`
	Zipcode       string `json:"zipcode"`
}

// IsZero reports whether no field of the address is set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Street returns the street line, falling back to "<number> <name>".
func (a Address) Street() string {
	if s := strings.TrimSpace(a.StreetAddress); s != "" {
		return s
	}
	return strings.TrimSpace(strings.TrimSpace(a.StreetNumber) + " " + strings.TrimSpace(a.StreetName))
}

// SingleLine renders the address the way the civic API expects it in the
// address query parameter, e.g. "1600 Pennsylvania Ave NW, Washington, DC 20500".
func (a Address) SingleLine() string {
	parts := make([]string, 0, 3)
	if s := a.Street(); s != "" {
		parts = append(parts, s)
	}
	if c := strings.TrimSpace(a.City); c != "" {
		parts = append(parts, c)
	}
	stateZip := strings.TrimSpace(strings.TrimSpace(a.State) + " " + strings.TrimSpace(a.Zipcode))
	if stateZip != "" {
		parts = append(parts, stateZip)
	}
	return strings.Join(parts, ", ")
}

// String implements fmt.Stringer for log output.
func (a Address) String() string {
	return a.SingleLine()
}
