package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
	"github.com/qzplatform/qz-service/internal/sharelink"
	"github.com/qzplatform/qz-service/internal/validator"
)

type testService struct {
	repo             repositories.Repository
	db               *gorm.DB
	logger           *slog.Logger
	validator        *validator.Validator
	codec            *sharelink.Codec
	accessCodeLength int
	now              Clock
}

func NewTestService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, codec *sharelink.Codec, accessCodeLength int, now Clock) TestService {
	return &testService{
		repo:             repo,
		db:               db,
		logger:           logger,
		validator:        validator,
		codec:            codec,
		accessCodeLength: accessCodeLength,
		now:              now,
	}
}

func (s *testService) Create(ctx context.Context, req *CreateTestRequest, creatorID string) (*models.Test, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	test := &models.Test{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Category:    strings.TrimSpace(req.Category),
		Instruction: req.Instruction,
		CreatedBy:   creatorID,
		TimeAndAttempts: models.TimeAndAttempts{
			MaxAttempts: 1,
		},
		Assignment: models.Assignment{
			LinkSharing: models.LinkRestricted,
		},
	}
	if err := ensureAccessCode(test, s.accessCodeLength); err != nil {
		return nil, err
	}
	test.RefreshStatus(s.now())

	if err := s.repo.Test().Create(ctx, s.db, test); err != nil {
		return nil, fmt.Errorf("failed to create test: %w", err)
	}

	s.logger.Info("Test created", "test_id", test.ID, "creator_id", creatorID)
	return test, nil
}

func (s *testService) GetByID(ctx context.Context, id string, userID string) (*models.Test, error) {
	test, err := getTest(ctx, s.repo, id, false)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(test.CreatedBy, userID, id, "test", "read"); err != nil {
		return nil, err
	}
	test.RefreshStatus(s.now())
	return test, nil
}

func (s *testService) List(ctx context.Context, creatorID string, query ListQuery) (*TestListResponse, error) {
	if err := s.validator.Validate(&query); err != nil {
		return nil, err
	}

	filters := repositories.TestFilters{
		CreatedBy: &creatorID,
		Limit:     query.Limit,
		Offset:    query.Offset,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	if query.Category != "" {
		filters.Category = &query.Category
	}

	tests, total, err := s.repo.Test().List(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}

	now := s.now()
	for _, t := range tests {
		t.RefreshStatus(now)
	}
	return &TestListResponse{Tests: tests, Total: total}, nil
}

func (s *testService) Update(ctx context.Context, id string, req *UpdateTestRequest, userID string) (*models.Test, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var updated *models.Test
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		test, err := getTest(ctx, r, id, true)
		if err != nil {
			return err
		}
		if err := ensureOwner(test.CreatedBy, userID, id, "test", "update"); err != nil {
			return err
		}

		if req.Title != nil {
			test.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			test.Description = *req.Description
		}
		if req.Category != nil {
			test.Category = strings.TrimSpace(*req.Category)
		}
		if req.Instruction != nil {
			test.Instruction = *req.Instruction
		}
		test.RefreshStatus(s.now())

		if err := r.Test().Update(ctx, nil, test); err != nil {
			return err
		}
		updated = test
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Test updated", "test_id", id, "user_id", userID)
	return updated, nil
}

// Delete drops the test id from each linked question before removing the test.
// Attempts are left in place.
func (s *testService) Delete(ctx context.Context, id string, userID string) error {
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		test, err := getTest(ctx, r, id, true)
		if err != nil {
			return err
		}
		if err := ensureOwner(test.CreatedBy, userID, id, "test", "delete"); err != nil {
			return err
		}

		for _, questionID := range test.Questions {
			question, err := getQuestion(ctx, r, questionID, true)
			if err != nil {
				if errors.Is(err, ErrQuestionNotFound) {
					continue
				}
				return err
			}
			question.LinkedTestIDs = removeID(question.LinkedTestIDs, id)
			if err := r.Question().Update(ctx, nil, question); err != nil {
				return err
			}
		}
		return r.Test().Delete(ctx, nil, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Test deleted", "test_id", id, "user_id", userID)
	return nil
}

// ListAvailable returns the tests the caller can start right now
func (s *testService) ListAvailable(ctx context.Context, userID string) ([]*models.Test, error) {
	now := s.now()
	tests, err := s.repo.Test().ListAvailableFor(ctx, s.db, userID, now)
	if err != nil {
		return nil, err
	}

	available := make([]*models.Test, 0, len(tests))
	for _, t := range tests {
		if t.RefreshStatus(now) == models.SchedulingActive {
			available = append(available, t)
		}
	}
	return available, nil
}

func (s *testService) ListQuestions(ctx context.Context, testID string, userID string) ([]*models.Question, error) {
	test, err := getTest(ctx, s.repo, testID, false)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(test.CreatedBy, userID, testID, "test", "read"); err != nil {
		return nil, err
	}

	questions, err := s.repo.Question().GetByIDs(ctx, s.db, test.Questions)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	return questions, nil
}

// ResolveLink verifies a sharable token and checks the test behind it is
// still open. The snapshot in the token is returned as signed.
func (s *testService) ResolveLink(ctx context.Context, token string) (*LinkResolution, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLinkToken, err)
	}

	test, err := getTest(ctx, s.repo, claims.TestID, false)
	if err != nil {
		return nil, err
	}

	status := test.RefreshStatus(s.now())
	if status == models.SchedulingExpired || status == models.SchedulingClosed {
		return nil, fmt.Errorf("%w: test is %s", ErrInvalidLinkToken, status)
	}
	return &LinkResolution{Claims: claims, Status: status}, nil
}
