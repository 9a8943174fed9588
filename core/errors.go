// Copyright 2025 Poiesic Systems
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


package core

import "errors"

// Identifier errors
var (
	// ErrMalformedIdentifier indicates an identifier that is not of the form "table:key".
	ErrMalformedIdentifier = errors.New("malformed identifier")

	// ErrInvalidKey indicates a key that the active engine cannot address.
	ErrInvalidKey = errors.New("invalid key")
)

// Domain validation errors
var (
	// ErrInvalidRecord indicates a record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidNoteType indicates a note_type other than "human" or "ai".
	ErrInvalidNoteType = errors.New("note type must be human or ai")

	// ErrEmptyName indicates a required name field is empty.
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrInvalidJobState indicates an unknown job status value.
	ErrInvalidJobState = errors.New("invalid job state")
)
