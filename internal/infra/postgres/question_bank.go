package postgres

import (
	"context"
	"fmt"

	"duel-match-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionBank loads host-authored questions from Postgres.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) FetchActiveQuestions(ctx context.Context, authorID string) ([]domain.Question, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, text, option_a, option_b, option_c, option_d,
		       correct_letter, difficulty, topic, created_at
		FROM questions
		WHERE author_id = $1 AND active
		ORDER BY created_at, id`, authorID)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
			&q.CorrectLetter, &q.Difficulty, &q.Topic, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}
