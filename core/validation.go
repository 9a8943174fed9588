package core

import (
	"fmt"
	"strings"
)

// ValidateRecord applies the domain rules for a record about to be written to table.
// Only fields present in data are checked, so partial updates validate too.
//
// Validation rules:
//   - note.note_type, when set, must be "human" or "ai"
//   - notebook, transformation, episode_profile and speaker_profile names must not be blank
//
// NOT validated:
//   - embedding (may be absent until an executor runs)
//   - references (checked by the storage engine)
func ValidateRecord(table string, data Record) error {
	if data == nil {
		return fmt.Errorf("%w: %s record is nil", ErrInvalidRecord, table)
	}

	switch table {
	case TableNote:
		if v, ok := data["note_type"]; ok && v != nil {
			if err := ValidateNoteType(fmt.Sprint(v)); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
			}
		}
	case TableNotebook, TableTransformation, TableEpisodeProfile, TableSpeakerProfile:
		if v, ok := data["name"]; ok {
			if s, _ := v.(string); strings.TrimSpace(s) == "" {
				return fmt.Errorf("%w: %s: %w", ErrInvalidRecord, table, ErrEmptyName)
			}
		}
	}
	return nil
}

// ValidateNoteType validates that a note type is one of the known kinds.
func ValidateNoteType(v string) error {
	switch NoteType(v) {
	case NoteTypeHuman, NoteTypeAI, "":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidNoteType, v)
}

// ParseJobState validates a stored job status value.
func ParseJobState(v string) (JobState, error) {
	for _, s := range JobStates {
		if string(s) == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidJobState, v)
}
