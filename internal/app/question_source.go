package app

import (
	"context"
	"strings"
	"sync"

	"duel-match-service/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// QuestionProvider fetches candidate questions from an external content bank,
// keyed by their author. Consumed, not implemented, by this engine.
type QuestionProvider interface {
	FetchActiveQuestions(ctx context.Context, authorID string) ([]domain.Question, error)
}

// QuestionSource supplies the ordered question batch for a match. The batch is
// deduplicated by normalized text, filtered to valid questions, truncated to
// the requested count, and cached per match so every player in one match sees
// the identical sequence. A failing or empty provider falls back to a fixed
// local pool; only an empty fallback is an error.
type QuestionSource struct {
	provider QuestionProvider
	fallback []domain.Question
	log      zerolog.Logger
	sf       singleflight.Group

	mu      sync.RWMutex
	batches map[string][]domain.Question
}

func NewQuestionSource(provider QuestionProvider, fallback []domain.Question, log zerolog.Logger) *QuestionSource {
	return &QuestionSource{
		provider: provider,
		fallback: fallback,
		log:      log.With().Str("component", "question_source").Logger(),
		batches:  make(map[string][]domain.Question),
	}
}

// BatchForMatch returns the fixed ordered batch assigned to one match,
// loading and caching it on first use.
func (s *QuestionSource) BatchForMatch(ctx context.Context, matchCode, authorID string, count int) ([]domain.Question, error) {
	s.mu.RLock()
	if batch, ok := s.batches[matchCode]; ok {
		s.mu.RUnlock()
		return batch, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do(matchCode, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		s.mu.RLock()
		if batch, ok := s.batches[matchCode]; ok {
			s.mu.RUnlock()
			return batch, nil
		}
		s.mu.RUnlock()

		batch := s.load(ctx, authorID, count)
		if len(batch) == 0 {
			return nil, domain.ErrNoQuestions
		}

		s.mu.Lock()
		s.batches[matchCode] = batch
		s.mu.Unlock()
		return batch, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// QuestionAt returns the question a player is currently facing.
func (s *QuestionSource) QuestionAt(ctx context.Context, m *domain.Match, index int) (domain.Question, error) {
	batch, err := s.BatchForMatch(ctx, m.Code, m.QuestionAuthor, m.QuestionCount)
	if err != nil {
		return domain.Question{}, err
	}
	if index < 0 || index >= len(batch) {
		return domain.Question{}, domain.ErrInvalidQuestionState
	}
	q := batch[index]
	if !q.IsValid() {
		return domain.Question{}, domain.ErrInvalidQuestionState
	}
	return q, nil
}

// Forget drops a match's cached batch once the match is archived.
func (s *QuestionSource) Forget(matchCode string) {
	s.mu.Lock()
	delete(s.batches, matchCode)
	s.mu.Unlock()
}

func (s *QuestionSource) load(ctx context.Context, authorID string, count int) []domain.Question {
	if s.provider != nil {
		candidates, err := s.provider.FetchActiveQuestions(ctx, authorID)
		if err != nil {
			s.log.Warn().Err(err).Str("author", authorID).Msg("question provider failed, using fallback pool")
		} else if batch := s.selectBatch(candidates, count); len(batch) > 0 {
			return batch
		} else {
			s.log.Warn().Str("author", authorID).Msg("question provider returned no usable questions, using fallback pool")
		}
	}
	return s.selectBatch(s.fallback, count)
}

// selectBatch applies the dedup and validity filters and takes the first count.
func (s *QuestionSource) selectBatch(candidates []domain.Question, count int) []domain.Question {
	seen := make(map[string]struct{}, len(candidates))
	batch := make([]domain.Question, 0, count)
	for _, q := range candidates {
		if len(batch) == count {
			break
		}
		if !q.IsValid() {
			s.log.Warn().Str("question", q.ID).Msg("rejected invalid question")
			continue
		}
		key := normalizeText(q.Text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		batch = append(batch, q)
	}
	return batch
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
