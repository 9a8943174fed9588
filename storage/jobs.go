package storage

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/notebase/core"
)

// MarshalJobPayload encodes job arguments or results as JSON.
// Raw JSON passes through; nil becomes an empty object.
func MarshalJobPayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(p) {
			return nil, fmt.Errorf("job payload is not valid JSON")
		}
		return p, nil
	case []byte:
		return MarshalJobPayload(json.RawMessage(p))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding job payload: %w", err)
	}
	return data, nil
}

// EmptyJobStats returns a stats map holding zero for every job state.
func EmptyJobStats() map[core.JobState]int {
	stats := make(map[core.JobState]int, len(core.JobStates))
	for _, s := range core.JobStates {
		stats[s] = 0
	}
	return stats
}
