package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multipleChoice"
	TrueFalse      QuestionType = "trueFalse"
	FillInTheGap   QuestionType = "fillInTheGap"
)

type QuestionOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type Question struct {
	ID               string                              `json:"id" gorm:"primaryKey;size:36"`
	Type             QuestionType                        `json:"type" gorm:"not null;size:20;index"`
	Text             string                              `json:"question" gorm:"type:text;not null"`
	Options          datatypes.JSONSlice[QuestionOption] `json:"options" gorm:"type:jsonb"`
	Answers          datatypes.JSONSlice[string]         `json:"answers" gorm:"type:jsonb"` // fillInTheGap only
	Points           int                                 `json:"points" gorm:"default:1"`
	Category         string                              `json:"category" gorm:"size:100;index"`
	RandomizeAnswers bool                                `json:"randomizeAnswers" gorm:"default:false"`
	CreatedBy        string                              `json:"createdBy" gorm:"not null;index;size:36"`

	// Mirrors Test.Questions; both sides change in the same transaction.
	LinkedTestIDs datatypes.JSONSlice[string] `json:"linkedTestIds" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Question) TableName() string {
	return "questions"
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

func (q *Question) IsLinkedTo(testID string) bool {
	for _, id := range q.LinkedTestIDs {
		if id == testID {
			return true
		}
	}
	return false
}
