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
	"slices"

	"github.com/civicpulse/pipeline/internal/models"
)

// Merge removes duplicates and returns a new sorted slice. Events with an
// id are unique by id; events without one are unique by natural key.
func Merge(evs []models.Event) []models.Event {
	seenID := make(map[string]bool, len(evs))
	seenKey := make(map[models.EventKey]bool)
	out := make([]models.Event, 0, len(evs))

	for _, e := range evs {
		if e.ID != "" {
			if seenID[e.ID] {
				continue
			}
			seenID[e.ID] = true
		} else {
			k := e.NaturalKey()
			if seenKey[k] {
				continue
			}
			seenKey[k] = true
		}
		out = append(out, e)
	}

	models.SortEvents(out)
	return out
}

// Add returns a copy of evs with e spliced in. An event with the same id
// is replaced.
func Add(evs []models.Event, e models.Event) []models.Event {
	out := Remove(evs, e.ID)
	out = append(out, e)
	models.SortEvents(out)
	return out
}

// Update returns a copy of evs with the event of the same id replaced.
// The second result is false when no event had that id.
func Update(evs []models.Event, e models.Event) ([]models.Event, bool) {
	i := slices.IndexFunc(evs, func(x models.Event) bool { return x.ID == e.ID })
	if i < 0 {
		return slices.Clone(evs), false
	}
	out := slices.Clone(evs)
	out[i] = e
	models.SortEvents(out)
	return out, true
}

// Remove returns a copy of evs without the event with the given id.
func Remove(evs []models.Event, id string) []models.Event {
	out := make([]models.Event, 0, len(evs))
	for _, e := range evs {
		if id != "" && e.ID == id {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Contains reports whether evs holds an event with the given id.
func Contains(evs []models.Event, id string) bool {
	return slices.ContainsFunc(evs, func(e models.Event) bool { return e.ID == id })
}
