package services

import (
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/validator"
)

// normalizeAnswer folds case and collapses whitespace
func normalizeAnswer(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// isCorrect compares a taker's answer with the question's canonical answer.
// Choice questions are answered with the option text.
func isCorrect(q *models.Question, answer string) bool {
	given := normalizeAnswer(answer)
	if given == "" {
		return false
	}

	switch q.Type {
	case models.MultipleChoice, models.TrueFalse:
		for _, opt := range q.Options {
			if normalizeAnswer(opt.Text) == given {
				return opt.IsCorrect
			}
		}
	case models.FillInTheGap:
		for _, accepted := range q.Answers {
			if normalizeAnswer(accepted) == given {
				return true
			}
		}
	}
	return false
}

// gradeAnswers keeps answers for questions of the test only; a repeated
// question id keeps the last answer
func gradeAnswers(questions []*models.Question, answers []validator.AnswerRequest) []models.AttemptAnswer {
	byID := make(map[string]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	position := make(map[string]int, len(answers))
	graded := make([]models.AttemptAnswer, 0, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		ga := models.AttemptAnswer{QuestionID: a.QuestionID, Answer: a.Answer, IsCorrect: isCorrect(q, a.Answer)}
		if i, seen := position[a.QuestionID]; seen {
			graded[i] = ga
			continue
		}
		position[a.QuestionID] = len(graded)
		graded = append(graded, ga)
	}
	return graded
}

// score is 100 * correct / answered, and 0 when nothing was answered
func score(answers []models.AttemptAnswer) float64 {
	if len(answers) == 0 {
		return 0
	}
	correct := 0
	for _, a := range answers {
		if a.IsCorrect {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(answers))
}

// questionOrder is stable for one attempt so pages do not move between reads
func questionOrder(test *models.Test, attemptID string) []string {
	ids := append([]string(nil), test.Questions...)
	if !test.Configuration.RandomizeQuestions || len(ids) < 2 {
		return ids
	}

	h := fnv.New64a()
	h.Write([]byte(attemptID))
	seed := h.Sum64()
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

// shuffleOptions is a Fisher-Yates shuffle on a copy; each option keeps its
// own correctness flag
func shuffleOptions(options []models.QuestionOption, r *rand.Rand) []models.QuestionOption {
	out := append([]models.QuestionOption(nil), options...)
	for i := len(out) - 1; i > 0; i-- {
		var j int
		if r != nil {
			j = r.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func toTakerQuestion(q *models.Question, r *rand.Rand) TakerQuestion {
	options := []models.QuestionOption(q.Options)
	if q.RandomizeAnswers {
		options = shuffleOptions(options, r)
	}

	tq := TakerQuestion{ID: q.ID, Type: q.Type, Question: q.Text, Points: q.Points}
	for _, o := range options {
		tq.Options = append(tq.Options, TakerOption{Text: o.Text})
	}
	return tq
}
