package validator

import (
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/qzplatform/qz-service/internal/models"
)

// AdministerRequest is a partial update of the five administration sub-objects.
// A nil sub-object, or a nil field inside one, keeps the stored value.
type AdministerRequest struct {
	Scheduling      *SchedulingPatch      `json:"scheduling"`
	TimeAndAttempts *TimeAndAttemptsPatch `json:"timeAndAttempts"`
	Configuration   *ConfigurationPatch   `json:"configuration"`
	Proctoring      *ProctoringPatch      `json:"proctoring"`
	Assignment      *AssignmentPatch      `json:"assignment"`
}

type SchedulingPatch struct {
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}

type TimeAndAttemptsPatch struct {
	TimeLimit   *int `json:"timeLimit" validate:"omitempty,min=0,max=1440"`
	MaxAttempts *int `json:"maxAttempts" validate:"omitempty,min=1,max=100"`
}

type ConfigurationPatch struct {
	RandomizeQuestions *bool   `json:"randomizeQuestions"`
	PassingScore       *int    `json:"passingScore" validate:"omitempty,min=0,max=100"`
	AccessCode         *string `json:"accessCode" validate:"omitempty,max=32"`
}

type ProctoringPatch struct {
	AllowEdit *bool `json:"allowEdit"`
}

type AssignmentPatch struct {
	Method              *models.AssignmentMethod  `json:"method" validate:"omitempty,assignment_method"`
	ScheduledAssignment *ScheduledAssignmentPatch `json:"scheduledAssignment"`
	ManualAssignment    *ManualAssignmentPatch    `json:"manualAssignment"`
	InvitationEmails    []string                  `json:"invitationEmails" validate:"omitempty,dive,email"`
	LinkSharing         *models.LinkSharing       `json:"linkSharing" validate:"omitempty,link_sharing"`
}

// ScheduledAssignmentPatch keeps the time as text so a malformed value can be
// reported as a bad schedule rather than a generic decode failure
type ScheduledAssignmentPatch struct {
	Enabled          *bool   `json:"enabled"`
	ScheduledTimeUTC *string `json:"scheduledTimeUtc"`
}

// ManualAssignmentPatch carries literal emails and group ids; they are resolved to
// user ids before being stored
type ManualAssignmentPatch struct {
	IndividualUsers []string `json:"individualUsers" validate:"omitempty,dive,email"`
	Groups          []string `json:"groups" validate:"omitempty,dive,required"`
}

// ParseScheduledTime accepts RFC 3339 with or without fractional seconds and
// returns the instant in UTC
func ParseScheduledTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ===== QUESTIONS =====

type QuestionOptionRequest struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// QuestionRequest is used for create and full replace. Per-type rules live in
// ValidateQuestion, not in tags.
type QuestionRequest struct {
	Type             models.QuestionType     `json:"type" validate:"required,question_type"`
	Question         string                  `json:"question" validate:"required,notblank,max=2000"`
	Options          []QuestionOptionRequest `json:"options" validate:"omitempty,max=10"`
	Answers          []string                `json:"answers" validate:"omitempty,max=20,dive,max=500"`
	Points           int                     `json:"points" validate:"min=0,max=100"`
	Category         string                  `json:"category" validate:"omitempty,max=100"`
	RandomizeAnswers bool                    `json:"randomizeAnswers"`
}

// ApplyTo copies the request onto q without touching identity or link fields
func (r *QuestionRequest) ApplyTo(q *models.Question) {
	options := make(datatypes.JSONSlice[models.QuestionOption], 0, len(r.Options))
	for _, o := range r.Options {
		options = append(options, models.QuestionOption{Text: strings.TrimSpace(o.Text), IsCorrect: o.IsCorrect})
	}
	answers := make(datatypes.JSONSlice[string], 0, len(r.Answers))
	for _, a := range r.Answers {
		answers = append(answers, strings.TrimSpace(a))
	}

	q.Type = r.Type
	q.Text = strings.TrimSpace(r.Question)
	q.Options = options
	q.Answers = answers
	q.Points = r.Points
	if q.Points == 0 {
		q.Points = 1
	}
	q.Category = strings.TrimSpace(r.Category)
	q.RandomizeAnswers = r.RandomizeAnswers
}

// ===== TESTS =====

type TestCreateRequest struct {
	Title       string `json:"title" validate:"required,notblank,max=200"`
	Description string `json:"description" validate:"omitempty,max=2000"`
	Category    string `json:"category" validate:"omitempty,max=100"`
	Instruction string `json:"instruction" validate:"omitempty,max=5000"`
}

type TestUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
	Instruction *string `json:"instruction" validate:"omitempty,max=5000"`
}

// ===== GROUPS =====

type GroupCreateRequest struct {
	GroupName    string   `json:"groupName" validate:"required,notblank,max=200"`
	Description  string   `json:"description" validate:"omitempty,max=1000"`
	MemberEmails []string `json:"memberEmails" validate:"omitempty,max=500,dive,email"`
}

// ===== ATTEMPTS =====

// ProgressRequest accepts remainingTime or remainingTimeSeconds for the budget
// hint. Answers, when present, replace the draft answers kept on the attempt.
type ProgressRequest struct {
	CurrentQuestionIndex int             `json:"currentQuestionIndex" validate:"min=0"`
	RemainingTime        *int            `json:"remainingTime" validate:"omitempty,min=0"`
	RemainingTimeSeconds *int            `json:"remainingTimeSeconds" validate:"omitempty,min=0"`
	Answers              []AnswerRequest `json:"answers" validate:"omitempty,max=500,dive"`
}

func (r *ProgressRequest) ToProgress() models.AttemptProgress {
	p := models.AttemptProgress{CurrentQuestionIndex: r.CurrentQuestionIndex}
	switch {
	case r.RemainingTimeSeconds != nil:
		p.RemainingTimeSeconds = *r.RemainingTimeSeconds
	case r.RemainingTime != nil:
		p.RemainingTimeSeconds = *r.RemainingTime
	}
	return p
}

type AnswerRequest struct {
	QuestionID string `json:"questionId" validate:"required"`
	Answer     string `json:"answer" validate:"max=2000"`
}

type SubmitRequest struct {
	Answers []AnswerRequest `json:"answers" validate:"max=500,dive"`
}

// ===== LISTING =====

type ListQuery struct {
	Limit     int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset    int    `form:"offset" validate:"omitempty,min=0"`
	SortBy    string `form:"sort_by" validate:"omitempty,max=50"`
	SortOrder string `form:"sort_order" validate:"sort_order"`
	Category  string `form:"category" validate:"omitempty,max=100"`
}
