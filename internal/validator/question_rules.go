package validator

import (
	"fmt"
	"strings"

	"github.com/qzplatform/qz-service/internal/models"
)

const (
	minChoiceOptions = 3
	maxChoiceOptions = 5
)

// Canonical true/false option pairs, compared case-insensitively and in any order
var trueFalsePairs = [][2]string{
	{"true", "false"},
	{"yes", "no"},
}

// ValidateQuestion is the single source of the per-type question rules.
// Every entry point that creates or replaces a question goes through it.
func ValidateQuestion(q *models.Question) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(q.Text) == "" {
		errs = append(errs, ValidationError{Field: "question", Message: "is required", Rule: "required"})
	}
	if q.Points < 0 {
		errs = append(errs, ValidationError{Field: "points", Message: "must not be negative", Value: q.Points, Rule: "min"})
	}

	switch q.Type {
	case models.MultipleChoice:
		errs = append(errs, validateMultipleChoice(q)...)
	case models.TrueFalse:
		errs = append(errs, validateTrueFalse(q)...)
	case models.FillInTheGap:
		errs = append(errs, validateFillInTheGap(q)...)
	default:
		errs = append(errs, ValidationError{
			Field:   "type",
			Message: "unsupported question type",
			Value:   q.Type,
			Rule:    "question_type",
		})
	}
	return errs
}

func validateMultipleChoice(q *models.Question) ValidationErrors {
	var errs ValidationErrors
	n := len(q.Options)
	if n < minChoiceOptions || n > maxChoiceOptions {
		errs = append(errs, ValidationError{
			Field:   "options",
			Message: fmt.Sprintf("multiple choice questions must have between %d and %d options", minChoiceOptions, maxChoiceOptions),
			Value:   n,
			Rule:    "option_count",
		})
	}
	// Answers are matched by option text, so texts must be distinct
	seen := make(map[string]bool, n)
	for i, opt := range q.Options {
		key := foldOptionText(opt.Text)
		switch {
		case key == "":
			errs = append(errs, ValidationError{Field: fmt.Sprintf("options[%d].text", i), Message: "must not be blank", Rule: "notblank"})
		case seen[key]:
			errs = append(errs, ValidationError{Field: fmt.Sprintf("options[%d].text", i), Message: "duplicates another option", Value: opt.Text, Rule: "unique_option"})
		}
		seen[key] = true
	}
	if countCorrect(q.Options) != 1 {
		errs = append(errs, ValidationError{Field: "options", Message: "exactly one option must be correct", Rule: "correct_option"})
	}
	if len(q.Answers) > 0 {
		errs = append(errs, ValidationError{Field: "answers", Message: "only fill in the gap questions take answers", Rule: "answers"})
	}
	return errs
}

func validateTrueFalse(q *models.Question) ValidationErrors {
	var errs ValidationErrors
	if len(q.Options) != 2 {
		return append(errs, ValidationError{
			Field:   "options",
			Message: "true or false questions must have exactly 2 options",
			Value:   len(q.Options),
			Rule:    "option_count",
		})
	}
	if !isCanonicalPair(q.Options[0].Text, q.Options[1].Text) {
		errs = append(errs, ValidationError{
			Field:   "options",
			Message: "options must be True/False or Yes/No",
			Value:   []string{q.Options[0].Text, q.Options[1].Text},
			Rule:    "true_false_pair",
		})
	}
	if countCorrect(q.Options) != 1 {
		errs = append(errs, ValidationError{Field: "options", Message: "exactly one option must be correct", Rule: "correct_option"})
	}
	if len(q.Answers) > 0 {
		errs = append(errs, ValidationError{Field: "answers", Message: "only fill in the gap questions take answers", Rule: "answers"})
	}
	return errs
}

func validateFillInTheGap(q *models.Question) ValidationErrors {
	var errs ValidationErrors
	if len(q.Options) != 0 {
		errs = append(errs, ValidationError{
			Field:   "options",
			Message: "fill in the gap questions must not have options",
			Value:   len(q.Options),
			Rule:    "option_count",
		})
	}
	nonEmpty := 0
	for _, a := range q.Answers {
		if strings.TrimSpace(a) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		errs = append(errs, ValidationError{Field: "answers", Message: "fill in the gap questions must have at least one answer", Rule: "answers"})
	}
	return errs
}

func isCanonicalPair(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	for _, pair := range trueFalsePairs {
		if (a == pair[0] && b == pair[1]) || (a == pair[1] && b == pair[0]) {
			return true
		}
	}
	return false
}

// foldOptionText matches the normalization answers are graded with
func foldOptionText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func countCorrect(options []models.QuestionOption) int {
	n := 0
	for _, o := range options {
		if o.IsCorrect {
			n++
		}
	}
	return n
}
