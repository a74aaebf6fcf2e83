package services

import (
	"context"
	"time"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/sharelink"
	"github.com/qzplatform/qz-service/internal/validator"
)

// Clock is the time source; tests pin it
type Clock func() time.Time

// ===== REQUEST/RESPONSE DTOs =====

type AdministerRequest = validator.AdministerRequest
type QuestionRequest = validator.QuestionRequest
type CreateTestRequest = validator.TestCreateRequest
type UpdateTestRequest = validator.TestUpdateRequest
type CreateGroupRequest = validator.GroupCreateRequest
type ProgressRequest = validator.ProgressRequest
type SubmitRequest = validator.SubmitRequest
type ListQuery = validator.ListQuery

// AdministerSettings is the read projection of a test's administration block
type AdministerSettings struct {
	Scheduling      models.Scheduling      `json:"scheduling"`
	TimeAndAttempts models.TimeAndAttempts `json:"timeAndAttempts"`
	Configuration   models.Configuration   `json:"configuration"`
	Proctoring      models.Proctoring      `json:"proctoring"`
	Assignment      models.Assignment      `json:"assignment"`
}

// DeliveryReport counts notification outcomes; failures never fail the request
type DeliveryReport struct {
	Recipients  int `json:"recipients"`
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
	Provisioned int `json:"provisioned"`
}

type AdministerResult struct {
	Test     *models.Test    `json:"test"`
	Link     *sharelink.Link `json:"link,omitempty"`
	Deferred bool            `json:"deferred"`
	Delivery *DeliveryReport `json:"delivery,omitempty"`
}

type TestListResponse struct {
	Tests []*models.Test `json:"tests"`
	Total int64          `json:"total"`
}

type QuestionListResponse struct {
	Questions []*models.Question `json:"questions"`
	Total     int64              `json:"total"`
}

type GroupListResponse struct {
	Groups []*models.Group `json:"groups"`
	Total  int64           `json:"total"`
}

type GroupResult struct {
	Group       *models.Group `json:"group"`
	Provisioned int           `json:"provisioned"`
}

// TakerOption hides correctness from the test-taker
type TakerOption struct {
	Text string `json:"text"`
}

type TakerQuestion struct {
	ID       string              `json:"id"`
	Type     models.QuestionType `json:"type"`
	Question string              `json:"question"`
	Options  []TakerOption       `json:"options,omitempty"`
	Points   int                 `json:"points"`
}

type QuestionPage struct {
	Index         int           `json:"index"`
	Total         int           `json:"total"`
	RemainingTime int           `json:"remainingTime"`
	Question      TakerQuestion `json:"question"`
}

// AttemptResult is returned by progress saves and submissions. AutoSubmitted
// distinguishes a time-out from a normal acknowledgment.
type AttemptResult struct {
	Message       string              `json:"message"`
	AutoSubmitted bool                `json:"autoSubmitted"`
	Score         *float64            `json:"score,omitempty"`
	Attempt       *models.TestAttempt `json:"attempt"`
}

type LinkResolution struct {
	Claims *sharelink.Claims       `json:"payload"`
	Status models.SchedulingStatus `json:"status"`
}

type ResultRow struct {
	AttemptID string               `json:"attemptId"`
	UserID    string               `json:"userId"`
	Email     string               `json:"email"`
	Status    models.AttemptStatus `json:"status"`
	Score     *float64             `json:"score,omitempty"`
	Answered  int                  `json:"answered"`
	Passed    bool                 `json:"passed"`
	Start     time.Time            `json:"startTime"`
	End       *time.Time           `json:"endTime,omitempty"`
	EndReason string               `json:"endReason,omitempty"`
}

// ===== SERVICES =====

type AdministerService interface {
	Administer(ctx context.Context, testID string, req *AdministerRequest, userID string) (*AdministerResult, error)
	GetSettings(ctx context.Context, testID string, userID string) (*AdministerSettings, error)
	// PatchSettings merges like Administer but never resolves assignment
	PatchSettings(ctx context.Context, testID string, req *AdministerRequest, userID string) (*models.Test, error)
}

type TestService interface {
	Create(ctx context.Context, req *CreateTestRequest, creatorID string) (*models.Test, error)
	GetByID(ctx context.Context, id string, userID string) (*models.Test, error)
	List(ctx context.Context, creatorID string, query ListQuery) (*TestListResponse, error)
	Update(ctx context.Context, id string, req *UpdateTestRequest, userID string) (*models.Test, error)
	// Delete unlinks the test's questions; attempts are retained
	Delete(ctx context.Context, id string, userID string) error
	ListAvailable(ctx context.Context, userID string) ([]*models.Test, error)
	ListQuestions(ctx context.Context, testID string, userID string) ([]*models.Question, error)
	ResolveLink(ctx context.Context, token string) (*LinkResolution, error)
}

type QuestionService interface {
	Create(ctx context.Context, req *QuestionRequest, creatorID string) (*models.Question, error)
	GetByID(ctx context.Context, id string, userID string) (*models.Question, error)
	List(ctx context.Context, creatorID string, query ListQuery) (*QuestionListResponse, error)
	Update(ctx context.Context, id string, req *QuestionRequest, userID string) (*models.Question, error)
	Delete(ctx context.Context, id string, userID string) error
	// CreateForTest creates the question and links it to the test in one transaction
	CreateForTest(ctx context.Context, testID string, req *QuestionRequest, userID string) (*models.Question, error)
	Link(ctx context.Context, testID, questionID, userID string) (*models.Test, error)
	Unlink(ctx context.Context, testID, questionID, userID string) (*models.Test, error)
}

type GroupService interface {
	Create(ctx context.Context, req *CreateGroupRequest, creatorID string) (*GroupResult, error)
	GetByID(ctx context.Context, id string, userID string) (*models.Group, error)
	List(ctx context.Context, creatorID string, query ListQuery) (*GroupListResponse, error)
	Delete(ctx context.Context, id string, userID string) error
}

type UserService interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	ProvisionTestTaker(ctx context.Context, email string, createdBy string) (*models.User, error)
}

type AttemptService interface {
	Start(ctx context.Context, userID, testID string) (*models.TestAttempt, error)
	Get(ctx context.Context, userID, testID string) (*models.TestAttempt, error)
	GetQuestion(ctx context.Context, userID, testID string, index int) (*QuestionPage, error)
	SaveProgress(ctx context.Context, userID, testID string, req *ProgressRequest) (*AttemptResult, error)
	Submit(ctx context.Context, userID, testID string, req *SubmitRequest) (*AttemptResult, error)
}

type ResultsService interface {
	List(ctx context.Context, testID string, userID string) ([]ResultRow, error)
	ExportXLSX(ctx context.Context, testID string, userID string) ([]byte, string, error)
}

type ServiceManager interface {
	Administer() AdministerService
	Test() TestService
	Question() QuestionService
	Group() GroupService
	User() UserService
	Attempt() AttemptService
	Results() ResultsService
	Scheduler() *Scheduler

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
