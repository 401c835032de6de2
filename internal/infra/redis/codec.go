package redis

import (
	"encoding/json"
	"fmt"

	"duel-match-service/internal/domain"
)

// encodeFields JSON-encodes each typed field value for storage as hash fields.
func encodeFields(fields map[string]any) (map[string]any, error) {
	encoded := make(map[string]any, len(fields))
	for path, value := range fields {
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", path, err)
		}
		encoded[path] = string(data)
	}
	return encoded, nil
}

func mustEncode(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// decodeMatch rebuilds a match from its hash fields.
func decodeMatch(raw map[string]string) (*domain.Match, error) {
	m := &domain.Match{
		TeamA: domain.Team{Players: map[string]*domain.Player{}},
		TeamB: domain.Team{Players: map[string]*domain.Player{}},
	}
	for path, data := range raw {
		value, err := domain.DecodeField(path, []byte(data))
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}
		if err := m.ApplyField(path, value); err != nil {
			return nil, err
		}
	}
	return m, nil
}
