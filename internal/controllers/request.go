package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// looseString accepts a JSON string or number, so numeric passwords and
// codes typed into spreadsheets survive the trip.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = looseString(strings.TrimSpace(str))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*s = looseString(num.String())
		return nil
	}
	return fmt.Errorf("expected string or number, got %s", data)
}

func (s looseString) String() string { return string(s) }

// normalizeIDs parses ids as UUIDs and returns them in canonical form,
// skipping blanks and duplicates while keeping the first-seen order.
func normalizeIDs(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", raw, err)
		}
		key := id.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out, nil
}
