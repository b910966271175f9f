package models

import (
	"fmt"
	"math/rand"
)

// QuestionPoints is the score awarded for every correctly answered question.
const QuestionPoints = 10

// Question is a single math problem. The answer never leaves the server;
// clients only ever see the statement and point value.
type Question struct {
	Statement string `json:"statement"`
	Answer    int    `json:"-"`
	Points    int    `json:"points"`
}

// GenerateQuestions produces an ordered question set for a new session.
// The set is fixed at creation and shared by every player in the session.
func GenerateQuestions(rng *rand.Rand, count int) []Question {
	questions := make([]Question, 0, count)
	for i := 0; i < count; i++ {
		questions = append(questions, generateQuestion(rng))
	}
	return questions
}

func generateQuestion(rng *rand.Rand) Question {
	switch rng.Intn(3) {
	case 0:
		a, b := rng.Intn(20)+1, rng.Intn(20)+1
		return Question{
			Statement: fmt.Sprintf("%d+%d", a, b),
			Answer:    a + b,
			Points:    QuestionPoints,
		}
	case 1:
		a, b := rng.Intn(20)+1, rng.Intn(20)+1
		// Keep subtraction results non-negative.
		if b > a {
			a, b = b, a
		}
		return Question{
			Statement: fmt.Sprintf("%d-%d", a, b),
			Answer:    a - b,
			Points:    QuestionPoints,
		}
	default:
		a, b := rng.Intn(12)+1, rng.Intn(12)+1
		return Question{
			Statement: fmt.Sprintf("%d*%d", a, b),
			Answer:    a * b,
			Points:    QuestionPoints,
		}
	}
}
