package room

import "github.com/duelmath/duelmath/internal/models"

// AnswerResult is the outcome of one answer submission. A wrong answer is a
// normal result, not an error; the player's state is untouched and they may
// retry the same question.
type AnswerResult struct {
	Correct      bool `json:"correct"`
	NextQuestion int  `json:"nextQuestion"`
	Score        int  `json:"score"`
	Finished     bool `json:"finished"`
}

// validateAnswer checks an answer against the player's current question and,
// only on a match, advances the player. Submissions outside an active
// session fail with ErrInvalidState; submissions after the player has
// finished are a no-op so duplicate or late deliveries are harmless.
//
// Must only be called from the room worker, which serializes all mutations.
func validateAnswer(s *models.Session, identity string, answer int) (AnswerResult, error) {
	if s.Status != models.StatusActive {
		return AnswerResult{}, ErrInvalidState
	}
	ps, ok := s.Players[identity]
	if !ok {
		return AnswerResult{}, ErrPlayerNotFound
	}
	if ps.CurrentIndex >= len(s.Questions) {
		return AnswerResult{
			Correct:      false,
			NextQuestion: ps.CurrentIndex,
			Score:        ps.Score,
			Finished:     true,
		}, nil
	}
	q := s.Questions[ps.CurrentIndex]
	if answer != q.Answer {
		return AnswerResult{
			Correct:      false,
			NextQuestion: ps.CurrentIndex,
			Score:        ps.Score,
		}, nil
	}
	ps.CurrentIndex++
	ps.Score += q.Points
	return AnswerResult{
		Correct:      true,
		NextQuestion: ps.CurrentIndex,
		Score:        ps.Score,
		Finished:     ps.CurrentIndex == len(s.Questions),
	}, nil
}
