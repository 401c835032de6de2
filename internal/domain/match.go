package domain

import (
	"sort"
	"time"
)

// TeamSide identifies one of the two sides of a match.
type TeamSide string

const (
	TeamSideA TeamSide = "A"
	TeamSideB TeamSide = "B"
)

// Winner marks the outcome of a finished match.
type Winner string

const (
	WinnerNone  Winner = ""
	WinnerTeamA Winner = "A"
	WinnerTeamB Winner = "B"
	WinnerDraw  Winner = "draw"
)

// Identity is the caller identity passed explicitly into every service call.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// PlayerAnswer is the append-only record of one submitted (or timed-out) answer.
type PlayerAnswer struct {
	QuestionIndex int       `json:"questionIndex"`
	Correct       bool      `json:"correct"`
	TimeRemaining int       `json:"timeRemaining"`
	AnsweredAt    time.Time `json:"answeredAt"`
}

// Player is one participant's independently-paced progress through the shared
// question sequence.
type Player struct {
	ID            string         `json:"id"`
	DisplayName   string         `json:"displayName"`
	AvatarURL     string         `json:"avatarUrl,omitempty"`
	QuestionIndex int            `json:"questionIndex"`
	TimeLeft      int            `json:"timeLeft"`
	Answers       []PlayerAnswer `json:"answers"`
	Score         int            `json:"score"`
	Finished      bool           `json:"finished"`
	FinishedAt    *time.Time     `json:"finishedAt,omitempty"`
	JoinedAt      time.Time      `json:"joinedAt"`
}

// HasAnswered reports whether an answer already exists for the given index.
// It is the sole guard against double-scoring.
func (p *Player) HasAnswered(index int) bool {
	for _, a := range p.Answers {
		if a.QuestionIndex == index {
			return true
		}
	}
	return false
}

// ResetProgress returns the player to index 0 with a full timer and no history.
func (p *Player) ResetProgress(timeLeft int) {
	p.QuestionIndex = 0
	p.TimeLeft = timeLeft
	p.Answers = nil
	p.Score = 0
	p.Finished = false
	p.FinishedAt = nil
}

// Clone deep-copies the player record.
func (p *Player) Clone() *Player {
	return p.clone()
}

func (p *Player) clone() *Player {
	cp := *p
	if p.Answers != nil {
		cp.Answers = append([]PlayerAnswer(nil), p.Answers...)
	}
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// Team is one side of a match. Players are keyed by id so concurrent
// per-player writes touch disjoint keys in the shared document.
type Team struct {
	Name    string             `json:"name"`
	Players map[string]*Player `json:"players"`
}

func (t *Team) Size() int { return len(t.Players) }

// TotalScore is derived, never stored.
func (t *Team) TotalScore() int {
	total := 0
	for _, p := range t.Players {
		total += p.Score
	}
	return total
}

// AllFinished reports whether every player on the team has finished.
// An empty team counts as finished; the match-level check requires both
// teams non-empty before a match can start at all.
func (t *Team) AllFinished() bool {
	for _, p := range t.Players {
		if !p.Finished {
			return false
		}
	}
	return true
}

// Roster returns the players ordered by join time, then id.
func (t *Team) Roster() []*Player {
	players := make([]*Player, 0, len(t.Players))
	for _, p := range t.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
	return players
}

func (t *Team) clone() Team {
	cp := Team{Name: t.Name}
	if t.Players != nil {
		cp.Players = make(map[string]*Player, len(t.Players))
		for id, p := range t.Players {
			cp.Players[id] = p.clone()
		}
	}
	return cp
}

// Event kinds appended to the match log.
const (
	EventCreated  = "created"
	EventJoined   = "joined"
	EventStarted  = "started"
	EventAnswered = "answered"
	EventTimeout  = "timeout"
	EventFinished = "finished"
)

// MatchEvent is one structured entry of the match event log.
type MatchEvent struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

// Match is one complete team-vs-team duel session: two teams, lifecycle flags,
// and an append-only event log. Started and Finished are monotonic.
type Match struct {
	Code           string       `json:"code"`
	PIN            string       `json:"pin,omitempty"`
	HostID         string       `json:"hostId"`
	Started        bool         `json:"started"`
	Finished       bool         `json:"finished"`
	Winner         Winner       `json:"winner,omitempty"`
	QuestionCount  int          `json:"questionCount"`
	QuestionAuthor string       `json:"questionAuthor"`
	TeamA          Team         `json:"teamA"`
	TeamB          Team         `json:"teamB"`
	Events         []MatchEvent `json:"events"`
	CreatedAt      time.Time    `json:"createdAt"`
	FinishedAt     *time.Time   `json:"finishedAt,omitempty"`
}

// Team returns the team for a side.
func (m *Match) Team(side TeamSide) *Team {
	if side == TeamSideB {
		return &m.TeamB
	}
	return &m.TeamA
}

// FindPlayer locates a player on either side.
func (m *Match) FindPlayer(id string) (*Player, TeamSide, bool) {
	if p, ok := m.TeamA.Players[id]; ok {
		return p, TeamSideA, true
	}
	if p, ok := m.TeamB.Players[id]; ok {
		return p, TeamSideB, true
	}
	return nil, "", false
}

// Players returns every player across both teams, team A roster first.
func (m *Match) Players() []*Player {
	return append(m.TeamA.Roster(), m.TeamB.Roster()...)
}

// Balanced reports whether the lobby can start: both teams non-empty, equal
// in size, and within the team size cap.
func (m *Match) Balanced(maxTeamSize int) bool {
	a, b := m.TeamA.Size(), m.TeamB.Size()
	return a > 0 && a == b && a <= maxTeamSize
}

// AllPlayersFinished reports whether every player on both teams has finished.
func (m *Match) AllPlayersFinished() bool {
	if m.TeamA.Size() == 0 || m.TeamB.Size() == 0 {
		return false
	}
	return m.TeamA.AllFinished() && m.TeamB.AllFinished()
}

// AppendEvent adds a log entry.
func (m *Match) AppendEvent(e MatchEvent) {
	m.Events = append(m.Events, e)
}

// Clone deep-copies the match so stores can hand out snapshots safely.
func (m *Match) Clone() *Match {
	cp := *m
	cp.TeamA = m.TeamA.clone()
	cp.TeamB = m.TeamB.clone()
	if m.Events != nil {
		cp.Events = append([]MatchEvent(nil), m.Events...)
	}
	if m.FinishedAt != nil {
		t := *m.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
