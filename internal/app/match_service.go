package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"duel-match-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// MatchStore abstracts the shared real-time match document store (in-memory,
// Redis, etc). Mutate is a read-latest/apply/compare-and-swap cycle: the
// callback receives a fresh snapshot, and a conflicting concurrent write
// causes a re-read and retry instead of a lost update. UpdateFields is a
// last-write-wins partial write keyed by field path, safe only for paths no
// other client writes.
type MatchStore interface {
	Create(ctx context.Context, m *domain.Match) error
	Get(ctx context.Context, code string) (*domain.Match, error)
	UpdateFields(ctx context.Context, code string, fields map[string]any) error
	Mutate(ctx context.Context, code string, fn func(*domain.Match) error) (*domain.Match, error)
	Watch(ctx context.Context, code string) (<-chan *domain.Match, func(), error)
}

// Settings carries the per-match tunables.
type Settings struct {
	QuestionsPerMatch int
	QuestionSeconds   int
	MaxTeamSize       int
	PointsPerQuestion int
}

// DefaultSettings mirrors the stock duel format: 20 questions, 20 seconds
// each, up to 4 players per team, 10 points per correct answer.
func DefaultSettings() Settings {
	return Settings{
		QuestionsPerMatch: 20,
		QuestionSeconds:   20,
		MaxTeamSize:       4,
		PointsPerQuestion: 10,
	}
}

// errNoChange aborts a Mutate cycle without writing; the service maps it to a
// silent no-op, which is how submit/force guard rejections are reported.
var errNoChange = errors.New("no state change")

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const codeLength = 6

const createAttempts = 5

// MatchService is the orchestration layer and the only component allowed to
// mutate match state.
type MatchService struct {
	store     MatchStore
	questions *QuestionSource
	settings  Settings
	clock     clockwork.Clock
	log       zerolog.Logger
}

func NewMatchService(store MatchStore, questions *QuestionSource, settings Settings, log zerolog.Logger) *MatchService {
	return NewMatchServiceWithClock(store, questions, settings, log, clockwork.NewRealClock())
}

// NewMatchServiceWithClock is test-only for deterministic timestamps.
func NewMatchServiceWithClock(store MatchStore, questions *QuestionSource, settings Settings, log zerolog.Logger, clock clockwork.Clock) *MatchService {
	return &MatchService{
		store:     store,
		questions: questions,
		settings:  settings,
		clock:     clock,
		log:       log.With().Str("component", "match_service").Logger(),
	}
}

func (s *MatchService) Settings() Settings { return s.settings }

// CreateMatch opens a new lobby with the host as the sole team A player.
func (s *MatchService) CreateMatch(ctx context.Context, host domain.Identity, teamName, pin string) (*domain.Match, error) {
	if host.ID == "" {
		return nil, domain.ErrAuthRequired
	}

	now := s.clock.Now()
	for attempt := 0; attempt < createAttempts; attempt++ {
		m := &domain.Match{
			Code:      newMatchCode(),
			PIN:       pin,
			HostID:    host.ID,
			TeamA:     domain.Team{Name: teamName, Players: map[string]*domain.Player{}},
			TeamB:     domain.Team{Name: "Team B", Players: map[string]*domain.Player{}},
			CreatedAt: now,
		}
		m.TeamA.Players[host.ID] = s.newPlayer(host, now)
		m.AppendEvent(s.event(domain.EventCreated, fmt.Sprintf("%s created the match", host.DisplayName)))
		m.AppendEvent(s.event(domain.EventJoined, fmt.Sprintf("%s joined team %s", host.DisplayName, teamName)))

		err := s.store.Create(ctx, m)
		if err == nil {
			s.log.Info().Str("code", m.Code).Str("host", host.ID).Msg("match created")
			return m, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) {
			return nil, err
		}
	}
	return nil, domain.ErrCodeTaken
}

// JoinMatch adds a player to one side of an open lobby. Duplicate joins by the
// same id are idempotent.
func (s *MatchService) JoinMatch(ctx context.Context, code, pin string, player domain.Identity, side domain.TeamSide) (*domain.Match, error) {
	if player.ID == "" {
		return nil, domain.ErrAuthRequired
	}

	m, err := s.store.Mutate(ctx, code, func(m *domain.Match) error {
		if m.PIN != "" && m.PIN != pin {
			return domain.ErrInvalidPin
		}
		if m.Started {
			return domain.ErrAlreadyStarted
		}
		if _, _, ok := m.FindPlayer(player.ID); ok {
			return errNoChange
		}
		team := m.Team(side)
		if team.Size() >= s.settings.MaxTeamSize {
			return domain.ErrTeamFull
		}
		now := s.clock.Now()
		team.Players[player.ID] = s.newPlayer(player, now)
		m.AppendEvent(s.event(domain.EventJoined, fmt.Sprintf("%s joined team %s", player.DisplayName, teamLabel(m, side))))
		return nil
	})
	if errors.Is(err, errNoChange) {
		return s.store.Get(ctx, code)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("code", code).Str("player", player.ID).Str("side", string(side)).Msg("player joined")
	return m, nil
}

// StartGame transitions a balanced lobby into the running state. Only the
// host may start, and only once: a second call fails with ErrAlreadyStarted.
func (s *MatchService) StartGame(ctx context.Context, code, callerID string) (*domain.Match, error) {
	current, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	// Load the batch before entering the CAS cycle; the per-match cache keeps
	// it stable across retries and across every client of this match.
	batch, err := s.questions.BatchForMatch(ctx, code, current.HostID, s.settings.QuestionsPerMatch)
	if err != nil {
		return nil, err
	}

	m, err := s.store.Mutate(ctx, code, func(m *domain.Match) error {
		if callerID == "" || callerID != m.HostID {
			return domain.ErrAuthRequired
		}
		if m.Started {
			return domain.ErrAlreadyStarted
		}
		if !m.Balanced(s.settings.MaxTeamSize) {
			return domain.ErrNotBalanced
		}
		// Reset everyone, defending against stale state from an earlier
		// aborted attempt.
		for _, p := range m.Players() {
			p.ResetProgress(s.settings.QuestionSeconds)
		}
		m.Started = true
		m.QuestionCount = len(batch)
		m.QuestionAuthor = m.HostID
		m.AppendEvent(s.event(domain.EventStarted, fmt.Sprintf("match started with %d questions", len(batch))))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("code", code).Int("questions", len(batch)).Msg("match started")
	return m, nil
}

// SubmitAnswer is the operation of record. The caller names the question
// index it is answering, taken from its latest observed snapshot; a stale
// index (player already advanced past it) is a silent no-op, which is the
// sole guard against double-scoring under client retries. The return reports
// whether the answer was correct; guard rejections (already finished, stale
// index, missing or invalid question) return false without mutation.
func (s *MatchService) SubmitAnswer(ctx context.Context, code, playerID string, questionIndex int, letter string) (bool, error) {
	return s.advance(ctx, code, playerID, questionIndex, letter, true)
}

// ForceNextQuestion is the timeout path: it advances a player with zero
// credited points. The index check makes a submission that landed just before
// the timeout fired turn this into a no-op rather than a double advance.
func (s *MatchService) ForceNextQuestion(ctx context.Context, code, playerID string, questionIndex int) error {
	_, err := s.advance(ctx, code, playerID, questionIndex, "", false)
	return err
}

func (s *MatchService) advance(ctx context.Context, code, playerID string, questionIndex int, letter string, scored bool) (bool, error) {
	correct := false

	_, err := s.store.Mutate(ctx, code, func(m *domain.Match) error {
		if !m.Started || m.Finished {
			return errNoChange
		}
		p, _, ok := m.FindPlayer(playerID)
		if !ok {
			return errNoChange
		}
		if p.Finished || p.QuestionIndex != questionIndex || p.HasAnswered(questionIndex) {
			return errNoChange
		}

		correct = false
		if scored {
			q, err := s.questions.QuestionAt(ctx, m, p.QuestionIndex)
			if err != nil {
				s.log.Error().Err(err).Str("code", code).Str("player", playerID).
					Int("index", p.QuestionIndex).Msg("rejecting submission: invalid question state")
				return errNoChange
			}
			correct = q.IsCorrect(letter)
		}

		now := s.clock.Now()
		p.Answers = append(p.Answers, domain.PlayerAnswer{
			QuestionIndex: p.QuestionIndex,
			Correct:       correct,
			TimeRemaining: p.TimeLeft,
			AnsweredAt:    now,
		})
		if correct {
			p.Score += s.settings.PointsPerQuestion
		}
		p.QuestionIndex++
		p.TimeLeft = s.settings.QuestionSeconds
		if p.QuestionIndex >= m.QuestionCount {
			p.Finished = true
			t := now
			p.FinishedAt = &t
		}

		kind := domain.EventAnswered
		msg := fmt.Sprintf("%s answered question %d", p.DisplayName, p.QuestionIndex)
		if !scored {
			kind = domain.EventTimeout
			msg = fmt.Sprintf("%s ran out of time on question %d", p.DisplayName, p.QuestionIndex)
		}
		m.AppendEvent(s.event(kind, msg))

		// Finalization folds into the same write as the last player's update.
		s.finalizeIfDone(m)
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return correct, nil
}

// finalizeIfDone performs the convergent all-finished check. It recomputes
// strictly from the snapshot inside the CAS cycle, and a match that is already
// finished is left untouched, so racing evaluations converge on one result.
func (s *MatchService) finalizeIfDone(m *domain.Match) {
	if m.Finished || !m.AllPlayersFinished() {
		return
	}
	scoreA, scoreB := m.TeamA.TotalScore(), m.TeamB.TotalScore()
	switch {
	case scoreA > scoreB:
		m.Winner = domain.WinnerTeamA
	case scoreB > scoreA:
		m.Winner = domain.WinnerTeamB
	default:
		m.Winner = domain.WinnerDraw
	}
	m.Finished = true
	t := s.clock.Now()
	m.FinishedAt = &t
	m.AppendEvent(s.event(domain.EventFinished,
		fmt.Sprintf("match finished: %s %d - %s %d", m.TeamA.Name, scoreA, m.TeamB.Name, scoreB)))
	s.log.Info().Str("code", m.Code).Int("teamA", scoreA).Int("teamB", scoreB).
		Str("winner", string(m.Winner)).Msg("match finished")
}

// DecrementTimer ticks one second off a player's current-question countdown.
// The tick shares the player's record with the same client's submit path, so
// it runs through the CAS cycle: a tick racing a submit re-reads the fresh
// record and re-checks its guards instead of reverting the committed answer.
func (s *MatchService) DecrementTimer(ctx context.Context, code, playerID string) (int, error) {
	timeLeft := 0
	_, err := s.store.Mutate(ctx, code, func(m *domain.Match) error {
		if !m.Started || m.Finished {
			return errNoChange
		}
		p, _, ok := m.FindPlayer(playerID)
		if !ok || p.Finished || p.HasAnswered(p.QuestionIndex) {
			return errNoChange
		}
		if p.TimeLeft <= 0 {
			return errNoChange
		}
		p.TimeLeft--
		timeLeft = p.TimeLeft
		return nil
	})
	if errors.Is(err, errNoChange) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return timeLeft, nil
}

// Observe returns a long-lived subscription to the match document. The caller
// must invoke the returned cancel function to release it.
func (s *MatchService) Observe(ctx context.Context, code string) (<-chan *domain.Match, func(), error) {
	return s.store.Watch(ctx, code)
}

// Get returns the latest match snapshot.
func (s *MatchService) Get(ctx context.Context, code string) (*domain.Match, error) {
	return s.store.Get(ctx, code)
}

func (s *MatchService) newPlayer(id domain.Identity, now time.Time) *domain.Player {
	return &domain.Player{
		ID:          id.ID,
		DisplayName: id.DisplayName,
		AvatarURL:   id.AvatarURL,
		TimeLeft:    s.settings.QuestionSeconds,
		JoinedAt:    now,
	}
}

func (s *MatchService) event(kind, message string) domain.MatchEvent {
	return domain.MatchEvent{
		ID:      uuid.NewString(),
		At:      s.clock.Now(),
		Kind:    kind,
		Message: message,
	}
}

func teamLabel(m *domain.Match, side domain.TeamSide) string {
	if name := m.Team(side).Name; name != "" {
		return name
	}
	return string(side)
}

func newMatchCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
