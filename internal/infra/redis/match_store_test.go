package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"duel-match-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *MatchStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return NewMatchStore(client, zerolog.Nop())
}

func sampleMatch(code string) *domain.Match {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Match{
		Code:   code,
		PIN:    "4321",
		HostID: "ana",
		TeamA: domain.Team{Name: "Comets", Players: map[string]*domain.Player{
			"ana": {ID: "ana", DisplayName: "Ana", TimeLeft: 20, Answers: []domain.PlayerAnswer{}, JoinedAt: now},
		}},
		TeamB:     domain.Team{Name: "Meteors", Players: map[string]*domain.Player{}},
		Events:    []domain.MatchEvent{{ID: "e1", At: now, Kind: domain.EventCreated, Message: "Ana created the match"}},
		CreatedAt: now,
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, sampleMatch("AAAAAA")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "AAAAAA")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Code != "AAAAAA" || got.PIN != "4321" || got.HostID != "ana" {
		t.Fatalf("header fields lost: %+v", got)
	}
	p, side, ok := got.FindPlayer("ana")
	if !ok || side != domain.TeamSideA || p.DisplayName != "Ana" || p.TimeLeft != 20 {
		t.Fatalf("player lost in round trip: %+v", p)
	}
	if len(got.Events) != 1 || got.Events[0].Kind != domain.EventCreated {
		t.Fatalf("events lost in round trip: %+v", got.Events)
	}
}

func TestCreateRejectsTakenCode(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, sampleMatch("AAAAAA")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, sampleMatch("AAAAAA")); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected ErrCodeTaken, got %v", err)
	}
}

func TestGetUnknownCode(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "ZZZZZZ"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateFieldsTouchesOnlyNamedPaths(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	m := sampleMatch("AAAAAA")
	m.TeamB.Players["beto"] = &domain.Player{ID: "beto", DisplayName: "Beto", TimeLeft: 20}
	if err := store.Create(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := store.UpdateFields(ctx, "AAAAAA", map[string]any{
		domain.PlayerField(domain.TeamSideA, "ana"): &domain.Player{ID: "ana", DisplayName: "Ana", TimeLeft: 3, Score: 20},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.Get(ctx, "AAAAAA")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p := got.TeamA.Players["ana"]; p.TimeLeft != 3 || p.Score != 20 {
		t.Fatalf("named path not written: %+v", p)
	}
	if p := got.TeamB.Players["beto"]; p.TimeLeft != 20 || p.Score != 0 {
		t.Fatalf("unrelated path touched: %+v", p)
	}
}

func TestMutateCommitsFullDocument(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Create(ctx, sampleMatch("AAAAAA")); err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := store.Mutate(ctx, "AAAAAA", func(m *domain.Match) error {
		m.Started = true
		m.QuestionCount = 20
		m.TeamA.Players["ana"].Score = 10
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if !result.Started || result.QuestionCount != 20 {
		t.Fatalf("mutate result stale: %+v", result)
	}

	got, _ := store.Get(ctx, "AAAAAA")
	if !got.Started || got.TeamA.Players["ana"].Score != 10 {
		t.Fatalf("mutation not committed: %+v", got)
	}
}

func TestMutateErrorAbortsTransaction(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Create(ctx, sampleMatch("AAAAAA")); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	if _, err := store.Mutate(ctx, "AAAAAA", func(m *domain.Match) error {
		m.Started = true
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected mutate error passthrough, got %v", err)
	}

	got, _ := store.Get(ctx, "AAAAAA")
	if got.Started {
		t.Fatalf("aborted mutation must not commit")
	}

	if _, err := store.Mutate(ctx, "ZZZZZZ", func(*domain.Match) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWatchStreamsCommits(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Create(ctx, sampleMatch("AAAAAA")); err != nil {
		t.Fatalf("create: %v", err)
	}

	updates, cancel, err := store.Watch(ctx, "AAAAAA")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	initial := <-updates
	if initial.Code != "AAAAAA" || initial.Started {
		t.Fatalf("unexpected initial snapshot: %+v", initial)
	}

	if _, err := store.Mutate(ctx, "AAAAAA", func(m *domain.Match) error {
		m.Started = true
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-updates:
			if m.Started {
				return
			}
		case <-deadline:
			t.Fatalf("started snapshot never delivered")
		}
	}
}

func TestWatchUnknownCode(t *testing.T) {
	store := newTestStore(t)
	if _, _, err := store.Watch(context.Background(), "ZZZZZZ"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWatchCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Create(ctx, sampleMatch("AAAAAA")); err != nil {
		t.Fatalf("create: %v", err)
	}

	updates, cancel, err := store.Watch(ctx, "AAAAAA")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	cancel()
	cancel()

	// Pump goroutine closes the channel on cancel.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("updates channel never closed")
		}
	}
}
