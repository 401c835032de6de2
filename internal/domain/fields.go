package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Field paths of the match document. The store adapter addresses partial
// updates by these paths; each player lives at its own path so concurrent
// per-player writes never overlap.
const (
	FieldCode           = "code"
	FieldPin            = "pin"
	FieldHost           = "hostId"
	FieldStarted        = "started"
	FieldFinished       = "finished"
	FieldWinner         = "winner"
	FieldQuestionCount  = "questionCount"
	FieldQuestionAuthor = "questionAuthor"
	FieldTeamAName      = "teamA.name"
	FieldTeamBName      = "teamB.name"
	FieldEvents         = "events"
	FieldCreatedAt      = "createdAt"
	FieldFinishedAt     = "finishedAt"
)

// PlayerField returns the document path of one player's record.
func PlayerField(side TeamSide, playerID string) string {
	return "player:" + string(side) + ":" + playerID
}

// ParsePlayerField splits a player path back into side and id.
func ParsePlayerField(path string) (TeamSide, string, bool) {
	rest, ok := strings.CutPrefix(path, "player:")
	if !ok {
		return "", "", false
	}
	side, id, ok := strings.Cut(rest, ":")
	if !ok || id == "" {
		return "", "", false
	}
	switch TeamSide(side) {
	case TeamSideA, TeamSideB:
		return TeamSide(side), id, true
	}
	return "", "", false
}

// FieldMap flattens the match into its full set of path-addressed fields.
func (m *Match) FieldMap() map[string]any {
	fields := map[string]any{
		FieldCode:           m.Code,
		FieldPin:            m.PIN,
		FieldHost:           m.HostID,
		FieldStarted:        m.Started,
		FieldFinished:       m.Finished,
		FieldWinner:         m.Winner,
		FieldQuestionCount:  m.QuestionCount,
		FieldQuestionAuthor: m.QuestionAuthor,
		FieldTeamAName:      m.TeamA.Name,
		FieldTeamBName:      m.TeamB.Name,
		FieldEvents:         m.Events,
		FieldCreatedAt:      m.CreatedAt,
		FieldFinishedAt:     m.FinishedAt,
	}
	for id, p := range m.TeamA.Players {
		fields[PlayerField(TeamSideA, id)] = p
	}
	for id, p := range m.TeamB.Players {
		fields[PlayerField(TeamSideB, id)] = p
	}
	return fields
}

// ApplyField sets one path-addressed field to a typed value.
func (m *Match) ApplyField(path string, value any) error {
	if side, _, ok := ParsePlayerField(path); ok {
		p, ok := value.(*Player)
		if !ok {
			return fmt.Errorf("field %s: expected *Player, got %T", path, value)
		}
		team := m.Team(side)
		if team.Players == nil {
			team.Players = make(map[string]*Player)
		}
		team.Players[p.ID] = p
		return nil
	}

	switch path {
	case FieldCode:
		return assign(path, value, &m.Code)
	case FieldPin:
		return assign(path, value, &m.PIN)
	case FieldHost:
		return assign(path, value, &m.HostID)
	case FieldStarted:
		return assign(path, value, &m.Started)
	case FieldFinished:
		return assign(path, value, &m.Finished)
	case FieldWinner:
		return assign(path, value, &m.Winner)
	case FieldQuestionCount:
		return assign(path, value, &m.QuestionCount)
	case FieldQuestionAuthor:
		return assign(path, value, &m.QuestionAuthor)
	case FieldTeamAName:
		return assign(path, value, &m.TeamA.Name)
	case FieldTeamBName:
		return assign(path, value, &m.TeamB.Name)
	case FieldEvents:
		return assign(path, value, &m.Events)
	case FieldCreatedAt:
		return assign(path, value, &m.CreatedAt)
	case FieldFinishedAt:
		if value == nil {
			m.FinishedAt = nil
			return nil
		}
		return assign(path, value, &m.FinishedAt)
	}
	return fmt.Errorf("unknown match field %q", path)
}

func assign[T any](path string, value any, dst *T) error {
	v, ok := value.(T)
	if !ok {
		return fmt.Errorf("field %s: expected %T, got %T", path, *dst, value)
	}
	*dst = v
	return nil
}

// DecodeField unmarshals one JSON-encoded field value into its typed form,
// suitable for ApplyField.
func DecodeField(path string, data []byte) (any, error) {
	if _, _, ok := ParsePlayerField(path); ok {
		p := &Player{}
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return p, nil
	}

	decode := func(dst any) (any, error) {
		if err := json.Unmarshal(data, dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return dst, nil
	}

	switch path {
	case FieldCode, FieldPin, FieldHost, FieldQuestionAuthor, FieldTeamAName, FieldTeamBName:
		var s string
		if _, err := decode(&s); err != nil {
			return nil, err
		}
		return s, nil
	case FieldStarted, FieldFinished:
		var b bool
		if _, err := decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case FieldWinner:
		var w Winner
		if _, err := decode(&w); err != nil {
			return nil, err
		}
		return w, nil
	case FieldQuestionCount:
		var n int
		if _, err := decode(&n); err != nil {
			return nil, err
		}
		return n, nil
	case FieldEvents:
		var events []MatchEvent
		if _, err := decode(&events); err != nil {
			return nil, err
		}
		return events, nil
	case FieldCreatedAt:
		var t time.Time
		if _, err := decode(&t); err != nil {
			return nil, err
		}
		return t, nil
	case FieldFinishedAt:
		var t *time.Time
		if _, err := decode(&t); err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}
		return t, nil
	}
	return nil, fmt.Errorf("unknown match field %q", path)
}
