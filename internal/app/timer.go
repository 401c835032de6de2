package app

import (
	"context"
	"time"

	"duel-match-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// TimerLoop ticks one local player's countdown once per second. Each client
// runs a loop for its own player only, so no client ever writes another
// player's timer field. The loop stops when the player finishes, the match
// finishes, or the context is cancelled; store transport errors are retried
// on the next tick.
type TimerLoop struct {
	clock    clockwork.Clock
	svc      *MatchService
	code     string
	playerID string
	latest   func() *domain.Match
	log      zerolog.Logger
}

// NewTimerLoop builds a loop over the latest-known-state accessor, typically
// a Controller's Latest.
func NewTimerLoop(clock clockwork.Clock, svc *MatchService, code, playerID string, latest func() *domain.Match, log zerolog.Logger) *TimerLoop {
	return &TimerLoop{
		clock:    clock,
		svc:      svc,
		code:     code,
		playerID: playerID,
		latest:   latest,
		log:      log.With().Str("component", "timer_loop").Str("code", code).Str("player", playerID).Logger(),
	}
}

// Run blocks until the loop stops. Cancellation comes from local view
// teardown via ctx, never from the network.
func (l *TimerLoop) Run(ctx context.Context) {
	ticker := l.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		m := l.latest()
		if m == nil || !m.Started {
			continue
		}
		if m.Finished {
			return
		}
		p, _, ok := m.FindPlayer(l.playerID)
		if !ok || p.Finished {
			return
		}
		if p.HasAnswered(p.QuestionIndex) {
			continue
		}

		if p.TimeLeft > 0 {
			if _, err := l.svc.DecrementTimer(ctx, l.code, l.playerID); err != nil {
				l.log.Warn().Err(err).Msg("timer decrement failed, retrying next tick")
			}
			continue
		}

		if err := l.svc.ForceNextQuestion(ctx, l.code, l.playerID, p.QuestionIndex); err != nil {
			l.log.Warn().Err(err).Msg("force advance failed, retrying next tick")
		}
	}
}
