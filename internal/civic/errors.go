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

import "fmt"

// Kind is the closed set of failures Fetch can report.
type Kind int

const (
	KindInvalidArgument Kind = iota + 1
	KindDecode
	KindMissingRequiredField
	KindRequestFailed
	KindInvalidAPIKey
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindDecode:
		return "DecodeError"
	case KindMissingRequiredField:
		return "MissingRequiredField"
	case KindRequestFailed:
		return "RequestFailed"
	case KindInvalidAPIKey:
		return "InvalidAPIKey"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is returned by the decoder and the client. Err keeps the
// underlying cause for diagnostics.
type Error struct {
	Kind      Kind
	Structure string // MissingRequiredField only
	Field     string // MissingRequiredField only
	Detail    string
	Err       error
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument}
	ErrDecode               = &Error{Kind: KindDecode}
	ErrMissingRequiredField = &Error{Kind: KindMissingRequiredField}
	ErrRequestFailed        = &Error{Kind: KindRequestFailed}
	ErrInvalidAPIKey        = &Error{Kind: KindInvalidAPIKey}
)

func (e *Error) Error() string {
	switch {
	case e.Kind == KindMissingRequiredField:
		return fmt.Sprintf("%s: %s.%s", e.Kind, e.Structure, e.Field)
	case e.Err != nil && e.Detail != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, civic.ErrDecode).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func invalidArgument(detail string) *Error {
	return &Error{Kind: KindInvalidArgument, Detail: detail}
}

func decodeError(detail string, err error) *Error {
	return &Error{Kind: KindDecode, Detail: detail, Err: err}
}

func missingField(structure, field string) *Error {
	return &Error{Kind: KindMissingRequiredField, Structure: structure, Field: field}
}

func requestFailed(detail string, err error) *Error {
	return &Error{Kind: KindRequestFailed, Detail: detail, Err: err}
}

func invalidAPIKey(detail string) *Error {
	return &Error{Kind: KindInvalidAPIKey, Detail: detail}
}
