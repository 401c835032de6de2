package cli

import (
	"context"
	"os"

	"duel-match-service/internal/app"
	"duel-match-service/internal/domain"
	"duel-match-service/internal/infra/memory"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewDemoCmd runs a scripted 1v1 duel against the in-memory store, useful for
// smoke-testing the engine without Redis or Postgres.
func NewDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted local 1v1 match",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context())
		},
	}
}

func runDemo(ctx context.Context) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	settings := app.DefaultSettings()
	settings.QuestionsPerMatch = 5

	store := memory.NewMatchStore()
	source := app.NewQuestionSource(nil, app.FallbackQuestions(), logger)
	svc := app.NewMatchService(store, source, settings, logger)

	ana := domain.Identity{ID: "ana", DisplayName: "Ana"}
	beto := domain.Identity{ID: "beto", DisplayName: "Beto"}

	m, err := svc.CreateMatch(ctx, ana, "Comets", "")
	if err != nil {
		return err
	}
	if _, err := svc.JoinMatch(ctx, m.Code, "", beto, domain.TeamSideB); err != nil {
		return err
	}
	if _, err := svc.StartGame(ctx, m.Code, ana.ID); err != nil {
		return err
	}

	batch, err := source.BatchForMatch(ctx, m.Code, ana.ID, settings.QuestionsPerMatch)
	if err != nil {
		return err
	}

	// Ana answers everything correctly; Beto alternates between the right
	// letter and a wrong one, and times out on the last question.
	for i, q := range batch {
		if _, err := svc.SubmitAnswer(ctx, m.Code, ana.ID, i, q.CorrectLetter); err != nil {
			return err
		}
		switch {
		case i == len(batch)-1:
			if err := svc.ForceNextQuestion(ctx, m.Code, beto.ID, i); err != nil {
				return err
			}
		case i%2 == 0:
			if _, err := svc.SubmitAnswer(ctx, m.Code, beto.ID, i, q.CorrectLetter); err != nil {
				return err
			}
		default:
			if _, err := svc.SubmitAnswer(ctx, m.Code, beto.ID, i, wrongLetter(q)); err != nil {
				return err
			}
		}
	}

	final, err := svc.Get(ctx, m.Code)
	if err != nil {
		return err
	}
	for _, event := range final.Events {
		logger.Info().Str("kind", event.Kind).Msg(event.Message)
	}
	logger.Info().
		Str("code", final.Code).
		Int("teamA", final.TeamA.TotalScore()).
		Int("teamB", final.TeamB.TotalScore()).
		Str("winner", string(final.Winner)).
		Bool("finished", final.Finished).
		Msg("demo match complete")
	return nil
}

func wrongLetter(q domain.Question) string {
	for _, letter := range []string{"A", "B", "C", "D"} {
		if !q.IsCorrect(letter) {
			return letter
		}
	}
	return "A"
}
