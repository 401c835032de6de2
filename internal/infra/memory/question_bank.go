package memory

import (
	"context"

	"duel-match-service/internal/domain"
)

// StaticQuestionBank is a QuestionProvider backed by an in-memory map keyed by
// author (useful for tests and demos).
type StaticQuestionBank struct {
	byAuthor map[string][]domain.Question
}

func NewStaticQuestionBank(byAuthor map[string][]domain.Question) *StaticQuestionBank {
	return &StaticQuestionBank{byAuthor: byAuthor}
}

func (b *StaticQuestionBank) FetchActiveQuestions(_ context.Context, authorID string) ([]domain.Question, error) {
	questions := b.byAuthor[authorID]
	return append([]domain.Question(nil), questions...), nil
}
