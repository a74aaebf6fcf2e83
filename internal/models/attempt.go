package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not-started"
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptCompleted  AttemptStatus = "completed"
)

const (
	AttemptEndReasonSubmitted = "submitted"
	AttemptEndReasonTimeout   = "time_out"
)

type AttemptProgress struct {
	CurrentQuestionIndex int `json:"currentQuestionIndex" gorm:"default:0"`
	RemainingTimeSeconds int `json:"remainingTime" gorm:"default:0"`
}

type AttemptAnswer struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	IsCorrect  bool   `json:"isCorrect"`
}

// TestAttempt is the single attempt a user holds for a test.
type TestAttempt struct {
	ID     string        `json:"id" gorm:"primaryKey;size:36"`
	UserID string        `json:"userId" gorm:"not null;size:36;uniqueIndex:idx_attempt_user_test"`
	TestID string        `json:"testId" gorm:"not null;size:36;uniqueIndex:idx_attempt_user_test;index"`
	Status AttemptStatus `json:"status" gorm:"size:20;default:in-progress;index"`

	StartTimeUTC time.Time  `json:"startTime"`
	EndTimeUTC   *time.Time `json:"endTime,omitempty"`

	// Budget fixed at start; zero means untimed.
	AllottedSeconds int             `json:"allottedSeconds"`
	Progress        AttemptProgress `json:"progress" gorm:"embedded;embeddedPrefix:progress_"`

	Answers   datatypes.JSONSlice[AttemptAnswer] `json:"answers" gorm:"type:jsonb"`
	Score     *float64                           `json:"score,omitempty"`
	EndReason *string                            `json:"endReason,omitempty" gorm:"size:20"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

func (a *TestAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Elapsed is wall-clock time since start; the stored remaining time is only a hint.
func (a *TestAttempt) Elapsed(now time.Time) time.Duration {
	return now.Sub(a.StartTimeUTC)
}

func (a *TestAttempt) IsExpired(now time.Time) bool {
	if a.AllottedSeconds <= 0 {
		return false
	}
	return a.Elapsed(now) >= time.Duration(a.AllottedSeconds)*time.Second
}

func (a *TestAttempt) RemainingSeconds(now time.Time) int {
	if a.AllottedSeconds <= 0 {
		return 0
	}
	left := a.AllottedSeconds - int(a.Elapsed(now)/time.Second)
	if left < 0 {
		return 0
	}
	return left
}
