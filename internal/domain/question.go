package domain

import (
	"strings"
	"time"
)

// Question is an immutable MCQ item with four lettered options and one correct letter.
// Questions are owned by the question source and referenced from player progress by
// index only; they are never embedded into the synchronized match document.
type Question struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	OptionA       string    `json:"optionA"`
	OptionB       string    `json:"optionB"`
	OptionC       string    `json:"optionC"`
	OptionD       string    `json:"optionD"`
	CorrectLetter string    `json:"correctLetter"`
	Difficulty    string    `json:"difficulty"`
	Topic         string    `json:"topic"`
	CreatedAt     time.Time `json:"createdAt"`
}

// IsValid reports whether the question is well-formed: non-empty text, four
// non-empty options, and a correct letter in A-D. Invalid questions must never
// be dealt to a player.
func (q Question) IsValid() bool {
	if strings.TrimSpace(q.Text) == "" {
		return false
	}
	for _, opt := range []string{q.OptionA, q.OptionB, q.OptionC, q.OptionD} {
		if strings.TrimSpace(opt) == "" {
			return false
		}
	}
	switch NormalizeLetter(q.CorrectLetter) {
	case "A", "B", "C", "D":
		return true
	}
	return false
}

// IsCorrect compares a submitted letter against the correct one, case-insensitively.
func (q Question) IsCorrect(letter string) bool {
	l := NormalizeLetter(letter)
	return l != "" && l == NormalizeLetter(q.CorrectLetter)
}

// CorrectAnswerText returns the option text behind the correct letter.
func (q Question) CorrectAnswerText() string {
	return q.OptionText(q.CorrectLetter)
}

// OptionText returns the option text for a letter, or "" for an unknown letter.
func (q Question) OptionText(letter string) string {
	switch NormalizeLetter(letter) {
	case "A":
		return q.OptionA
	case "B":
		return q.OptionB
	case "C":
		return q.OptionC
	case "D":
		return q.OptionD
	}
	return ""
}

// NormalizeLetter trims and uppercases an answer letter.
func NormalizeLetter(letter string) string {
	return strings.ToUpper(strings.TrimSpace(letter))
}
