package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	eventSource  = "qz-service"
	eventVersion = "1.0"
)

// Event types double as topic names
const (
	TypeAssignmentExecuted   = "assignment.executed"
	TypeUserProvisioned      = "user.provisioned"
	TypeAttemptSubmitted     = "attempt.submitted"
	TypeAttemptAutoSubmitted = "attempt.auto_submitted"
)

// Event is the envelope published for every domain event
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

type AssignmentExecutedData struct {
	TestID     string `json:"testId"`
	Method     string `json:"method"`
	Scheduled  bool   `json:"scheduled"`
	Recipients int    `json:"recipients"`
	Failed     int    `json:"failed"`
}

type UserProvisionedData struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	CreatedBy string `json:"createdBy"`
}

type AttemptFinishedData struct {
	AttemptID string  `json:"attemptId"`
	TestID    string  `json:"testId"`
	UserID    string  `json:"userId"`
	Score     float64 `json:"score"`
	Answered  int     `json:"answered"`
	Reason    string  `json:"reason"`
}
