package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SchedulingStatus string

const (
	SchedulingUnscheduled SchedulingStatus = "unscheduled"
	SchedulingScheduled   SchedulingStatus = "scheduled"
	SchedulingActive      SchedulingStatus = "active"
	SchedulingExpired     SchedulingStatus = "expired"
	// SchedulingClosed is accepted from older records but never derived.
	SchedulingClosed SchedulingStatus = "closed"
)

type AssignmentMethod string

const (
	AssignmentManual AssignmentMethod = "manual"
	AssignmentEmail  AssignmentMethod = "email"
	AssignmentLink   AssignmentMethod = "link"
)

type LinkSharing string

const (
	LinkPublic     LinkSharing = "public"
	LinkRestricted LinkSharing = "restricted"
)

// Column names used by the scheduled-assignment poller.
const (
	ColumnScheduledEnabled = "assignment_scheduled_enabled"
	ColumnScheduledTime    = "assignment_scheduled_time_utc"
)

type Scheduling struct {
	StartDate *time.Time       `json:"startDate,omitempty"`
	EndDate   *time.Time       `json:"endDate,omitempty"`
	Status    SchedulingStatus `json:"status" gorm:"size:20;default:unscheduled;index"`
}

type TimeAndAttempts struct {
	TimeLimitMinutes int `json:"timeLimit" gorm:"default:0"`
	MaxAttempts      int `json:"maxAttempts" gorm:"default:1"`
}

type Configuration struct {
	RandomizeQuestions bool   `json:"randomizeQuestions" gorm:"default:false"`
	PassingScore       int    `json:"passingScore" gorm:"default:0"`
	AccessCode         string `json:"accessCode" gorm:"size:32"`
}

type Proctoring struct {
	AllowEdit bool `json:"allowEdit" gorm:"default:false"`
}

type ScheduledAssignment struct {
	Enabled          bool       `json:"enabled" gorm:"column:enabled;default:false;index"`
	ScheduledTimeUTC *time.Time `json:"scheduledTimeUtc,omitempty" gorm:"column:time_utc;index"`
}

type ManualAssignment struct {
	IndividualUserIDs datatypes.JSONSlice[string] `json:"individualUsers" gorm:"column:individual_users;type:jsonb"`
	GroupIDs          datatypes.JSONSlice[string] `json:"groups" gorm:"column:groups;type:jsonb"`
}

type Assignment struct {
	Method              AssignmentMethod            `json:"method" gorm:"size:20"`
	ScheduledAssignment ScheduledAssignment         `json:"scheduledAssignment" gorm:"embedded;embeddedPrefix:scheduled_"`
	ManualAssignment    ManualAssignment            `json:"manualAssignment" gorm:"embedded;embeddedPrefix:manual_"`
	InvitationEmails    datatypes.JSONSlice[string] `json:"invitationEmails" gorm:"type:jsonb"`
	LinkSharing         LinkSharing                 `json:"linkSharing" gorm:"size:20;default:restricted"`
}

type Test struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	Title       string `json:"title" gorm:"not null;size:200;index"`
	Description string `json:"description" gorm:"type:text"`
	Category    string `json:"category" gorm:"size:100"`
	Instruction string `json:"instruction" gorm:"type:text"`
	CreatedBy   string `json:"createdBy" gorm:"not null;index;size:36"`

	// Ordered question ids; mirrored by Question.LinkedTestIDs.
	Questions datatypes.JSONSlice[string] `json:"questions" gorm:"type:jsonb"`

	Scheduling      Scheduling      `json:"scheduling" gorm:"embedded;embeddedPrefix:scheduling_"`
	TimeAndAttempts TimeAndAttempts `json:"timeAndAttempts" gorm:"embedded;embeddedPrefix:time_"`
	Configuration   Configuration   `json:"configuration" gorm:"embedded;embeddedPrefix:config_"`
	Proctoring      Proctoring      `json:"proctoring" gorm:"embedded;embeddedPrefix:proctoring_"`
	Assignment      Assignment      `json:"assignment" gorm:"embedded;embeddedPrefix:assignment_"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Test) TableName() string {
	return "tests"
}

func (t *Test) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// AfterFind keeps the stored status from leaking out stale.
func (t *Test) AfterFind(tx *gorm.DB) error {
	t.RefreshStatus(time.Now())
	return nil
}

// ComputeSchedulingStatus derives the scheduling state from the window and the
// current time. The window is inclusive at both ends.
func ComputeSchedulingStatus(start, end *time.Time, now time.Time) SchedulingStatus {
	if start == nil {
		return SchedulingUnscheduled
	}
	if now.Before(*start) {
		return SchedulingScheduled
	}
	if end != nil && now.After(*end) {
		return SchedulingExpired
	}
	return SchedulingActive
}

func (t *Test) RefreshStatus(now time.Time) SchedulingStatus {
	t.Scheduling.Status = ComputeSchedulingStatus(t.Scheduling.StartDate, t.Scheduling.EndDate, now)
	return t.Scheduling.Status
}

func (t *Test) HasQuestion(questionID string) bool {
	for _, id := range t.Questions {
		if id == questionID {
			return true
		}
	}
	return false
}

// SharingType falls back to restricted when no sharing mode was chosen.
func (a Assignment) SharingType() LinkSharing {
	if a.LinkSharing == LinkPublic {
		return LinkPublic
	}
	return LinkRestricted
}

// IsDeferred reports whether the assignment waits for the poller at now.
func (s ScheduledAssignment) IsDeferred(now time.Time) bool {
	return s.Enabled && s.ScheduledTimeUTC != nil && s.ScheduledTimeUTC.After(now)
}

// IsDue reports whether the poller should execute the assignment at now.
func (s ScheduledAssignment) IsDue(now time.Time) bool {
	return s.Enabled && s.ScheduledTimeUTC != nil && !s.ScheduledTimeUTC.After(now)
}
