package app

import "duel-match-service/internal/domain"

// FallbackQuestions is the fixed local pool used when the external question
// bank is empty or unreachable.
func FallbackQuestions() []domain.Question {
	return []domain.Question{
		{
			ID: "fb-1", Text: "If 3x - 7 = 14, what is the value of x?",
			OptionA: "5", OptionB: "7", OptionC: "9", OptionD: "21",
			CorrectLetter: "B", Difficulty: "easy", Topic: "algebra",
		},
		{
			ID: "fb-2", Text: "Which word is a synonym of \"candid\"?",
			OptionA: "Secretive", OptionB: "Frank", OptionC: "Hesitant", OptionD: "Bitter",
			CorrectLetter: "B", Difficulty: "easy", Topic: "vocabulary",
		},
		{
			ID: "fb-3", Text: "What is the next number in the sequence 2, 6, 12, 20, ...?",
			OptionA: "28", OptionB: "30", OptionC: "32", OptionD: "36",
			CorrectLetter: "B", Difficulty: "medium", Topic: "sequences",
		},
		{
			ID: "fb-4", Text: "A train travels 180 km in 2 hours. What is its average speed?",
			OptionA: "60 km/h", OptionB: "80 km/h", OptionC: "90 km/h", OptionD: "100 km/h",
			CorrectLetter: "C", Difficulty: "easy", Topic: "rates",
		},
		{
			ID: "fb-5", Text: "Which of the following is a prime number?",
			OptionA: "51", OptionB: "57", OptionC: "91", OptionD: "97",
			CorrectLetter: "D", Difficulty: "medium", Topic: "arithmetic",
		},
		{
			ID: "fb-6", Text: "Complete the analogy: book is to library as painting is to ____.",
			OptionA: "Frame", OptionB: "Gallery", OptionC: "Canvas", OptionD: "Artist",
			CorrectLetter: "B", Difficulty: "easy", Topic: "analogies",
		},
		{
			ID: "fb-7", Text: "What is 15% of 240?",
			OptionA: "24", OptionB: "30", OptionC: "36", OptionD: "48",
			CorrectLetter: "C", Difficulty: "easy", Topic: "percentages",
		},
		{
			ID: "fb-8", Text: "If all bloops are razzies and all razzies are lazzies, then all bloops are definitely ____.",
			OptionA: "Lazzies", OptionB: "Razzies only", OptionC: "Neither", OptionD: "Cannot be determined",
			CorrectLetter: "A", Difficulty: "medium", Topic: "logic",
		},
	}
}
