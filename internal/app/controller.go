package app

import (
	"context"
	"sync"

	"duel-match-service/internal/domain"
)

// Controller binds one local identity to one match's live stream. It owns no
// authoritative state: it caches the latest observed snapshot and exposes
// derived queries against it, delegating every mutation to the MatchService.
type Controller struct {
	svc  *MatchService
	code string
	me   domain.Identity

	mu     sync.RWMutex
	latest *domain.Match

	cancel func()
	done   chan struct{}
}

// NewController subscribes to the match and starts tracking snapshots. Close
// must be called when the match view is torn down.
func NewController(ctx context.Context, svc *MatchService, code string, me domain.Identity) (*Controller, error) {
	updates, cancel, err := svc.Observe(ctx, code)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		svc:    svc,
		code:   code,
		me:     me,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		for m := range updates {
			c.mu.Lock()
			c.latest = m
			c.mu.Unlock()
		}
	}()
	return c, nil
}

func (c *Controller) Code() string              { return c.code }
func (c *Controller) Identity() domain.Identity { return c.me }

// Latest returns the most recent observed snapshot, or nil before the first
// delivery.
func (c *Controller) Latest() *domain.Match {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Me returns the local player's record from the latest snapshot.
func (c *Controller) Me() *domain.Player {
	m := c.Latest()
	if m == nil {
		return nil
	}
	p, _, ok := m.FindPlayer(c.me.ID)
	if !ok {
		return nil
	}
	return p
}

// MyScore returns the local player's score.
func (c *Controller) MyScore() int {
	if p := c.Me(); p != nil {
		return p.Score
	}
	return 0
}

// MyTimeLeft returns the seconds remaining on the local player's current question.
func (c *Controller) MyTimeLeft() int {
	if p := c.Me(); p != nil {
		return p.TimeLeft
	}
	return 0
}

// HasFinished reports whether the local player has exhausted the sequence.
func (c *Controller) HasFinished() bool {
	if p := c.Me(); p != nil {
		return p.Finished
	}
	return false
}

// AnsweredCurrent reports whether an answer already exists for the local
// player's current index.
func (c *Controller) AnsweredCurrent() bool {
	if p := c.Me(); p != nil {
		return p.HasAnswered(p.QuestionIndex)
	}
	return false
}

// Submit forwards an answer for the local player's current question, as seen
// in the latest observed snapshot. A stale snapshot makes the submission a
// silent no-op rather than an answer to the wrong question.
func (c *Controller) Submit(ctx context.Context, letter string) (bool, error) {
	p := c.Me()
	if p == nil {
		return false, domain.ErrNotFound
	}
	return c.svc.SubmitAnswer(ctx, c.code, c.me.ID, p.QuestionIndex, letter)
}

// Close releases the subscription and waits for the tracking goroutine.
func (c *Controller) Close() {
	c.cancel()
	<-c.done
}
