package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"duel-match-service/internal/app"
	"duel-match-service/internal/domain"
	"duel-match-service/internal/infra/memory"
	"github.com/rs/zerolog"
)

var (
	ana  = domain.Identity{ID: "ana", DisplayName: "Ana"}
	beto = domain.Identity{ID: "beto", DisplayName: "Beto"}
)

func bankQuestions(n int) []domain.Question {
	letters := []string{"A", "B", "C", "D"}
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, domain.Question{
			ID:            fmt.Sprintf("q%d", i),
			Text:          fmt.Sprintf("Question number %d?", i),
			OptionA:       "first",
			OptionB:       "second",
			OptionC:       "third",
			OptionD:       "fourth",
			CorrectLetter: letters[i%len(letters)],
		})
	}
	return questions
}

func newTestService(t *testing.T, questionCount int) (*app.MatchService, *app.QuestionSource) {
	t.Helper()
	store := memory.NewMatchStore()
	bank := memory.NewStaticQuestionBank(map[string][]domain.Question{
		"ana": bankQuestions(questionCount),
	})
	source := app.NewQuestionSource(bank, app.FallbackQuestions(), zerolog.Nop())
	settings := app.DefaultSettings()
	settings.QuestionsPerMatch = questionCount
	return app.NewMatchService(store, source, settings, zerolog.Nop()), source
}

func startedMatch(t *testing.T, svc *app.MatchService) *domain.Match {
	t.Helper()
	ctx := context.Background()

	m, err := svc.CreateMatch(ctx, ana, "Comets", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.JoinMatch(ctx, m.Code, "", beto, domain.TeamSideB); err != nil {
		t.Fatalf("join: %v", err)
	}
	m, err = svc.StartGame(ctx, m.Code, ana.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return m
}

func TestCreateJoinStart(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 20)

	m, err := svc.CreateMatch(ctx, ana, "Comets", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(m.Code) != 6 {
		t.Fatalf("expected 6-char code, got %q", m.Code)
	}
	if m.TeamA.Size() != 1 || m.TeamA.Players[ana.ID] == nil {
		t.Fatalf("host should be sole team A player")
	}

	// Unbalanced lobby must not start.
	if _, err := svc.StartGame(ctx, m.Code, ana.ID); err != domain.ErrNotBalanced {
		t.Fatalf("expected ErrNotBalanced, got %v", err)
	}

	if _, err := svc.JoinMatch(ctx, m.Code, "", beto, domain.TeamSideB); err != nil {
		t.Fatalf("join: %v", err)
	}
	m, err = svc.StartGame(ctx, m.Code, ana.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.Started || m.QuestionCount != 20 {
		t.Fatalf("expected started match with 20 questions, got %+v", m)
	}
	for _, p := range m.Players() {
		if p.QuestionIndex != 0 || p.TimeLeft != svc.Settings().QuestionSeconds || p.Score != 0 {
			t.Fatalf("player not at initial state: %+v", p)
		}
	}

	// A second start must be rejected.
	if _, err := svc.StartGame(ctx, m.Code, ana.ID); err != domain.ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestCreateRequiresIdentity(t *testing.T) {
	svc, _ := newTestService(t, 5)
	if _, err := svc.CreateMatch(context.Background(), domain.Identity{}, "Comets", ""); err != domain.ErrAuthRequired {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}

func TestStartRequiresHost(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 5)

	m, _ := svc.CreateMatch(ctx, ana, "Comets", "")
	_, _ = svc.JoinMatch(ctx, m.Code, "", beto, domain.TeamSideB)

	if _, err := svc.StartGame(ctx, m.Code, beto.ID); err != domain.ErrAuthRequired {
		t.Fatalf("expected ErrAuthRequired for non-host, got %v", err)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 5)

	m, _ := svc.CreateMatch(ctx, ana, "Comets", "")
	if _, err := svc.JoinMatch(ctx, m.Code, "", beto, domain.TeamSideB); err != nil {
		t.Fatalf("join: %v", err)
	}
	again, err := svc.JoinMatch(ctx, m.Code, "", beto, domain.TeamSideB)
	if err != nil {
		t.Fatalf("duplicate join: %v", err)
	}
	if again.TeamB.Size() != 1 {
		t.Fatalf("duplicate join must not add a second record, got %d", again.TeamB.Size())
	}
	// Same id on the other side is also a no-op: team assignment is permanent.
	again, err = svc.JoinMatch(ctx, m.Code, "", beto, domain.TeamSideA)
	if err != nil {
		t.Fatalf("cross-side join: %v", err)
	}
	if again.TeamA.Size() != 1 || again.TeamB.Size() != 1 {
		t.Fatalf("cross-side join must not move the player")
	}
}

func TestJoinWrongPin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 5)

	m, _ := svc.CreateMatch(ctx, ana, "Comets", "4321")
	if _, err := svc.JoinMatch(ctx, m.Code, "9999", beto, domain.TeamSideB); err != domain.ErrInvalidPin {
		t.Fatalf("expected ErrInvalidPin, got %v", err)
	}

	// The document must be untouched.
	current, err := svc.Get(ctx, m.Code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.TeamB.Size() != 0 || len(current.Events) != len(m.Events) {
		t.Fatalf("failed join mutated the match: %+v", current)
	}
}

func TestJoinUnknownCode(t *testing.T) {
	svc, _ := newTestService(t, 5)
	if _, err := svc.JoinMatch(context.Background(), "ZZZZZZ", "", beto, domain.TeamSideB); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitAnswerScoring(t *testing.T) {
	ctx := context.Background()
	svc, source := newTestService(t, 20)
	m := startedMatch(t, svc)

	batch, err := source.BatchForMatch(ctx, m.Code, ana.ID, 20)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	correct, err := svc.SubmitAnswer(ctx, m.Code, ana.ID, 0, batch[0].CorrectLetter)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !correct {
		t.Fatalf("expected correct answer")
	}

	current, _ := svc.Get(ctx, m.Code)
	p, _, _ := current.FindPlayer(ana.ID)
	if p.Score != 10 || p.QuestionIndex != 1 || p.Finished {
		t.Fatalf("expected score 10 at index 1, got %+v", p)
	}
	if p.TimeLeft != svc.Settings().QuestionSeconds {
		t.Fatalf("timer must reset after answer, got %d", p.TimeLeft)
	}
	if len(p.Answers) != 1 || !p.Answers[0].Correct || p.Answers[0].QuestionIndex != 0 {
		t.Fatalf("answer record wrong: %+v", p.Answers)
	}

	// Submitting again for the old index mutates nothing.
	correct, err = svc.SubmitAnswer(ctx, m.Code, ana.ID, 0, batch[0].CorrectLetter)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if correct {
		t.Fatalf("stale resubmit must report false")
	}
	current, _ = svc.Get(ctx, m.Code)
	p, _, _ = current.FindPlayer(ana.ID)
	if p.Score != 10 || p.QuestionIndex != 1 || len(p.Answers) != 1 {
		t.Fatalf("stale resubmit mutated state: %+v", p)
	}

	// A wrong letter advances without points.
	correct, err = svc.SubmitAnswer(ctx, m.Code, ana.ID, 1, wrongLetterFor(batch[1]))
	if err != nil || correct {
		t.Fatalf("expected incorrect answer, got correct=%v err=%v", correct, err)
	}
	current, _ = svc.Get(ctx, m.Code)
	p, _, _ = current.FindPlayer(ana.ID)
	if p.Score != 10 || p.QuestionIndex != 2 {
		t.Fatalf("wrong answer must advance without points: %+v", p)
	}
}

func TestForceNextQuestion(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 20)
	m := startedMatch(t, svc)

	if err := svc.ForceNextQuestion(ctx, m.Code, ana.ID, 0); err != nil {
		t.Fatalf("force: %v", err)
	}
	current, _ := svc.Get(ctx, m.Code)
	p, _, _ := current.FindPlayer(ana.ID)
	if p.QuestionIndex != 1 || p.Score != 0 {
		t.Fatalf("force must advance with zero points: %+v", p)
	}
	if p.TimeLeft != svc.Settings().QuestionSeconds {
		t.Fatalf("force must reset the timer, got %d", p.TimeLeft)
	}
	if len(p.Answers) != 1 || p.Answers[0].Correct {
		t.Fatalf("force must record an uncredited answer: %+v", p.Answers)
	}

	// A force racing a just-landed submission is a no-op.
	if err := svc.ForceNextQuestion(ctx, m.Code, ana.ID, 0); err != nil {
		t.Fatalf("stale force: %v", err)
	}
	current, _ = svc.Get(ctx, m.Code)
	p, _, _ = current.FindPlayer(ana.ID)
	if p.QuestionIndex != 1 || len(p.Answers) != 1 {
		t.Fatalf("stale force mutated state: %+v", p)
	}
}

func TestMatchFinishAndWinner(t *testing.T) {
	ctx := context.Background()
	svc, source := newTestService(t, 1)
	m := startedMatch(t, svc)

	batch, _ := source.BatchForMatch(ctx, m.Code, ana.ID, 1)

	if _, err := svc.SubmitAnswer(ctx, m.Code, ana.ID, 0, batch[0].CorrectLetter); err != nil {
		t.Fatalf("submit ana: %v", err)
	}
	current, _ := svc.Get(ctx, m.Code)
	if current.Finished {
		t.Fatalf("match must not finish while beto is playing")
	}

	if _, err := svc.SubmitAnswer(ctx, m.Code, beto.ID, 0, wrongLetterFor(batch[0])); err != nil {
		t.Fatalf("submit beto: %v", err)
	}
	current, _ = svc.Get(ctx, m.Code)
	if !current.Finished || current.Winner != domain.WinnerTeamA {
		t.Fatalf("expected finished match won by team A, got finished=%v winner=%q", current.Finished, current.Winner)
	}
	if current.FinishedAt == nil {
		t.Fatalf("expected finishedAt set")
	}
	for _, p := range current.Players() {
		if !p.Finished {
			t.Fatalf("finished match with unfinished player: %+v", p)
		}
	}

	// Submissions after the finish are silent no-ops.
	correct, err := svc.SubmitAnswer(ctx, m.Code, ana.ID, 0, batch[0].CorrectLetter)
	if err != nil || correct {
		t.Fatalf("post-finish submit must no-op, got correct=%v err=%v", correct, err)
	}
}

func TestMatchDraw(t *testing.T) {
	ctx := context.Background()
	svc, source := newTestService(t, 1)
	m := startedMatch(t, svc)

	batch, _ := source.BatchForMatch(ctx, m.Code, ana.ID, 1)
	if _, err := svc.SubmitAnswer(ctx, m.Code, ana.ID, 0, batch[0].CorrectLetter); err != nil {
		t.Fatalf("submit ana: %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, m.Code, beto.ID, 0, batch[0].CorrectLetter); err != nil {
		t.Fatalf("submit beto: %v", err)
	}

	current, _ := svc.Get(ctx, m.Code)
	if !current.Finished || current.Winner != domain.WinnerDraw {
		t.Fatalf("expected draw, got winner=%q", current.Winner)
	}
}

func TestJoinAfterStartRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 5)
	m := startedMatch(t, svc)

	carla := domain.Identity{ID: "carla", DisplayName: "Carla"}
	if _, err := svc.JoinMatch(ctx, m.Code, "", carla, domain.TeamSideB); err != domain.ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestTeamSizeCap(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 5)

	m, _ := svc.CreateMatch(ctx, ana, "Comets", "")
	for i := 0; i < 4; i++ {
		id := domain.Identity{ID: fmt.Sprintf("b%d", i), DisplayName: fmt.Sprintf("B%d", i)}
		if _, err := svc.JoinMatch(ctx, m.Code, "", id, domain.TeamSideB); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	extra := domain.Identity{ID: "b4", DisplayName: "B4"}
	if _, err := svc.JoinMatch(ctx, m.Code, "", extra, domain.TeamSideB); err != domain.ErrTeamFull {
		t.Fatalf("expected ErrTeamFull, got %v", err)
	}
}

func TestDecrementTimerRacingSubmitKeepsAnswer(t *testing.T) {
	ctx := context.Background()

	inner := memory.NewMatchStore()
	store := &interceptStore{MatchStore: inner}
	bank := memory.NewStaticQuestionBank(map[string][]domain.Question{
		"ana": bankQuestions(5),
	})
	source := app.NewQuestionSource(bank, app.FallbackQuestions(), zerolog.Nop())
	settings := app.DefaultSettings()
	settings.QuestionsPerMatch = 5
	svc := app.NewMatchService(store, source, settings, zerolog.Nop())
	direct := app.NewMatchService(inner, source, settings, zerolog.Nop())

	m := startedMatch(t, svc)
	batch, err := source.BatchForMatch(ctx, m.Code, ana.ID, 5)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	// An answer commits just as the tick's read-apply-write cycle begins. The
	// tick must act on the post-answer record, never revert it.
	store.arm(func() {
		if _, err := direct.SubmitAnswer(ctx, m.Code, ana.ID, 0, batch[0].CorrectLetter); err != nil {
			t.Errorf("submit: %v", err)
		}
	})

	left, err := svc.DecrementTimer(ctx, m.Code, ana.ID)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}

	current, _ := svc.Get(ctx, m.Code)
	p, _, _ := current.FindPlayer(ana.ID)
	if p.Score != 10 || p.QuestionIndex != 1 || len(p.Answers) != 1 {
		t.Fatalf("tick erased the committed answer: %+v", p)
	}
	if want := settings.QuestionSeconds - 1; p.TimeLeft != want || left != want {
		t.Fatalf("expected fresh timer at %d, got left=%d record=%d", want, left, p.TimeLeft)
	}
}

func TestDecrementTimer(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 5)
	m := startedMatch(t, svc)

	left, err := svc.DecrementTimer(ctx, m.Code, ana.ID)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if left != svc.Settings().QuestionSeconds-1 {
		t.Fatalf("expected %d left, got %d", svc.Settings().QuestionSeconds-1, left)
	}

	current, _ := svc.Get(ctx, m.Code)
	p, _, _ := current.FindPlayer(ana.ID)
	if p.TimeLeft != left {
		t.Fatalf("decrement not persisted: %+v", p)
	}
	// Only the timer moved.
	if p.QuestionIndex != 0 || p.Score != 0 || len(p.Answers) != 0 {
		t.Fatalf("decrement touched more than the timer: %+v", p)
	}
}

// interceptStore runs a one-shot hook before delegating the next Mutate,
// letting tests pin a concurrent commit directly in front of a mutation cycle.
type interceptStore struct {
	app.MatchStore
	mu     sync.Mutex
	before func()
}

func (s *interceptStore) arm(hook func()) {
	s.mu.Lock()
	s.before = hook
	s.mu.Unlock()
}

func (s *interceptStore) Mutate(ctx context.Context, code string, fn func(*domain.Match) error) (*domain.Match, error) {
	s.mu.Lock()
	hook := s.before
	s.before = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return s.MatchStore.Mutate(ctx, code, fn)
}

func wrongLetterFor(q domain.Question) string {
	for _, letter := range []string{"A", "B", "C", "D"} {
		if !q.IsCorrect(letter) {
			return letter
		}
	}
	return "A"
}
