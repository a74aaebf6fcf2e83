package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/events"
	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
	"github.com/qzplatform/qz-service/internal/validator"
)

const (
	msgProgressSaved = "Progress saved successfully"
	msgSubmitted     = "Test submitted successfully"
	msgAutoSubmitted = "Test time expired. Test submitted automatically."
)

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	now       Clock
	// nil uses the global source
	rng *rand.Rand
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, now Clock) AttemptService {
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		now:       now,
	}
}

// Start returns the caller's existing attempt unchanged, or opens one if the
// test is inside its window
func (s *attemptService) Start(ctx context.Context, userID, testID string) (*models.TestAttempt, error) {
	test, err := getTest(ctx, s.repo, testID, false)
	if err != nil {
		return nil, err
	}

	now := s.now()
	existing, err := s.repo.Attempt().GetByUserAndTest(ctx, s.db, userID, testID)
	switch {
	case err == nil:
		return s.expireIfDue(ctx, existing, now)
	case !repositories.IsNotFoundError(err):
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if test.RefreshStatus(now) != models.SchedulingActive {
		return nil, fmt.Errorf("%w: status is %s", ErrTestNotAvailable, test.Scheduling.Status)
	}

	allotted := test.TimeAndAttempts.TimeLimitMinutes * 60
	attempt := &models.TestAttempt{
		UserID:          userID,
		TestID:          testID,
		Status:          models.AttemptInProgress,
		StartTimeUTC:    now,
		AllottedSeconds: allotted,
		Progress: models.AttemptProgress{
			CurrentQuestionIndex: 0,
			RemainingTimeSeconds: allotted,
		},
	}

	stored, created, err := s.repo.Attempt().CreateIfAbsent(ctx, s.db, attempt)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("Attempt started", "attempt_id", stored.ID, "user_id", userID, "test_id", testID)
	}
	return stored, nil
}

func (s *attemptService) Get(ctx context.Context, userID, testID string) (*models.TestAttempt, error) {
	attempt, err := s.repo.Attempt().GetByUserAndTest(ctx, s.db, userID, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return s.expireIfDue(ctx, attempt, s.now())
}

func (s *attemptService) GetQuestion(ctx context.Context, userID, testID string, index int) (*QuestionPage, error) {
	attempt, err := s.loadActive(ctx, userID, testID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if attempt.IsExpired(now) {
		if _, err := s.autoSubmit(ctx, attempt, now); err != nil {
			return nil, err
		}
		return nil, ErrAttemptTimeExpired
	}

	test, err := getTest(ctx, s.repo, testID, false)
	if err != nil {
		return nil, err
	}

	order := questionOrder(test, attempt.ID)
	if index < 0 || index >= len(order) {
		return nil, ErrQuestionIndexOutOfRange
	}
	question, err := getQuestion(ctx, s.repo, order[index], false)
	if err != nil {
		return nil, err
	}

	return &QuestionPage{
		Index:         index,
		Total:         len(order),
		RemainingTime: attempt.RemainingSeconds(now),
		Question:      toTakerQuestion(question, s.rng),
	}, nil
}

// SaveProgress persists the caller's progress unless the time budget, measured
// from the start time, is spent. In that case the attempt is auto-submitted and
// the payload is ignored.
func (s *attemptService) SaveProgress(ctx context.Context, userID, testID string, req *ProgressRequest) (*AttemptResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.loadActive(ctx, userID, testID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if attempt.IsExpired(now) {
		return s.autoSubmit(ctx, attempt, now)
	}

	attempt.Progress = req.ToProgress()
	if req.Answers != nil {
		questions, err := s.testQuestions(ctx, testID)
		if err != nil {
			return nil, err
		}
		attempt.Answers = gradeAnswers(questions, req.Answers)
	}

	saved, err := s.repo.Attempt().SaveProgressIfInProgress(ctx, s.db, attempt, req.Answers != nil)
	if err != nil {
		return nil, err
	}
	if !saved {
		// Submitted or auto-submitted since it was loaded
		return nil, ErrAttemptNotActive
	}
	return &AttemptResult{Message: msgProgressSaved, Attempt: attempt}, nil
}

func (s *attemptService) Submit(ctx context.Context, userID, testID string, req *SubmitRequest) (*AttemptResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.loadActive(ctx, userID, testID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if attempt.IsExpired(now) {
		// Answers sent after the deadline are not accepted
		return s.autoSubmit(ctx, attempt, now)
	}

	questions, err := s.testQuestions(ctx, testID)
	if err != nil {
		return nil, err
	}
	attempt.Answers = gradeAnswers(questions, req.Answers)

	if err := s.complete(ctx, attempt, now, models.AttemptEndReasonSubmitted); err != nil {
		return nil, err
	}
	s.publishFinished(ctx, events.TypeAttemptSubmitted, attempt)

	s.logger.Info("Attempt submitted", "attempt_id", attempt.ID, "user_id", userID, "score", *attempt.Score)
	return &AttemptResult{Message: msgSubmitted, Score: attempt.Score, Attempt: attempt}, nil
}

func (s *attemptService) loadActive(ctx context.Context, userID, testID string) (*models.TestAttempt, error) {
	attempt, err := s.repo.Attempt().GetByUserAndTest(ctx, s.db, userID, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotStarted
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptNotActive
	}
	return attempt, nil
}

// expireIfDue closes an in-progress attempt whose budget is spent and returns it
func (s *attemptService) expireIfDue(ctx context.Context, attempt *models.TestAttempt, now time.Time) (*models.TestAttempt, error) {
	if attempt.Status != models.AttemptInProgress || !attempt.IsExpired(now) {
		return attempt, nil
	}
	result, err := s.autoSubmit(ctx, attempt, now)
	if err != nil {
		if errors.Is(err, ErrAttemptNotActive) {
			return s.repo.Attempt().GetByUserAndTest(ctx, s.db, attempt.UserID, attempt.TestID)
		}
		return nil, err
	}
	return result.Attempt, nil
}

// autoSubmit scores whatever answers the attempt already holds
func (s *attemptService) autoSubmit(ctx context.Context, attempt *models.TestAttempt, now time.Time) (*AttemptResult, error) {
	if err := s.complete(ctx, attempt, now, models.AttemptEndReasonTimeout); err != nil {
		return nil, err
	}
	s.publishFinished(ctx, events.TypeAttemptAutoSubmitted, attempt)

	s.logger.Info("Attempt auto-submitted", "attempt_id", attempt.ID, "user_id", attempt.UserID, "test_id", attempt.TestID)
	return &AttemptResult{Message: msgAutoSubmitted, AutoSubmitted: true, Score: attempt.Score, Attempt: attempt}, nil
}

func (s *attemptService) complete(ctx context.Context, attempt *models.TestAttempt, now time.Time, reason string) error {
	sc := score(attempt.Answers)
	end := now
	attempt.Score = &sc
	attempt.Status = models.AttemptCompleted
	attempt.EndTimeUTC = &end
	attempt.EndReason = &reason
	attempt.Progress.RemainingTimeSeconds = attempt.RemainingSeconds(now)

	ok, err := s.repo.Attempt().CompleteIfInProgress(ctx, s.db, attempt)
	if err != nil {
		return fmt.Errorf("failed to complete attempt: %w", err)
	}
	if !ok {
		return ErrAttemptNotActive
	}
	return nil
}

func (s *attemptService) testQuestions(ctx context.Context, testID string) ([]*models.Question, error) {
	test, err := getTest(ctx, s.repo, testID, false)
	if err != nil {
		return nil, err
	}
	questions, err := s.repo.Question().GetByIDs(ctx, s.db, test.Questions)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	return questions, nil
}

func (s *attemptService) publishFinished(ctx context.Context, eventType string, attempt *models.TestAttempt) {
	data := events.AttemptFinishedData{
		AttemptID: attempt.ID,
		TestID:    attempt.TestID,
		UserID:    attempt.UserID,
		Answered:  len(attempt.Answers),
	}
	if attempt.Score != nil {
		data.Score = *attempt.Score
	}
	if attempt.EndReason != nil {
		data.Reason = *attempt.EndReason
	}
	if err := s.publisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		s.logger.Warn("Failed to publish event", "type", eventType, "attempt_id", attempt.ID, "error", err)
	}
}
