package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
	"github.com/qzplatform/qz-service/internal/validator"
)

type questionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewQuestionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) QuestionService {
	return &questionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *questionService) Create(ctx context.Context, req *QuestionRequest, creatorID string) (*models.Question, error) {
	question, err := s.build(req, creatorID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Question().Create(ctx, s.db, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	s.logger.Info("Question created", "question_id", question.ID, "creator_id", creatorID, "type", question.Type)
	return question, nil
}

func (s *questionService) GetByID(ctx context.Context, id string, userID string) (*models.Question, error) {
	question, err := getQuestion(ctx, s.repo, id, false)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(question.CreatedBy, userID, id, "question", "read"); err != nil {
		return nil, err
	}
	return question, nil
}

func (s *questionService) List(ctx context.Context, creatorID string, query ListQuery) (*QuestionListResponse, error) {
	if err := s.validator.Validate(&query); err != nil {
		return nil, err
	}

	filters := repositories.QuestionFilters{
		CreatedBy: &creatorID,
		Limit:     query.Limit,
		Offset:    query.Offset,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	if query.Category != "" {
		filters.Category = &query.Category
	}

	questions, total, err := s.repo.Question().List(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return &QuestionListResponse{Questions: questions, Total: total}, nil
}

// Update replaces the question's content; links are kept
func (s *questionService) Update(ctx context.Context, id string, req *QuestionRequest, userID string) (*models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var updated *models.Question
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		question, err := getQuestion(ctx, r, id, true)
		if err != nil {
			return err
		}
		if err := ensureOwner(question.CreatedBy, userID, id, "question", "update"); err != nil {
			return err
		}

		req.ApplyTo(question)
		if errs := validator.ValidateQuestion(question); len(errs) > 0 {
			return errs
		}
		if err := r.Question().Update(ctx, nil, question); err != nil {
			return err
		}
		updated = question
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Question updated", "question_id", id, "user_id", userID)
	return updated, nil
}

// Delete removes the question from every test that references it, then the
// question itself, in one transaction
func (s *questionService) Delete(ctx context.Context, id string, userID string) error {
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		question, err := getQuestion(ctx, r, id, true)
		if err != nil {
			return err
		}
		if err := ensureOwner(question.CreatedBy, userID, id, "question", "delete"); err != nil {
			return err
		}

		for _, testID := range question.LinkedTestIDs {
			test, err := getTest(ctx, r, testID, true)
			if err != nil {
				if errors.Is(err, ErrTestNotFound) {
					continue
				}
				return err
			}
			test.Questions = removeID(test.Questions, id)
			if err := r.Test().Update(ctx, nil, test); err != nil {
				return err
			}
		}
		return r.Question().Delete(ctx, nil, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Question deleted", "question_id", id, "user_id", userID)
	return nil
}

// ===== TEST-SCOPED OPERATIONS =====

func (s *questionService) CreateForTest(ctx context.Context, testID string, req *QuestionRequest, userID string) (*models.Question, error) {
	question, err := s.build(req, userID)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		test, err := getTest(ctx, r, testID, true)
		if err != nil {
			return err
		}
		if err := ensureOwner(test.CreatedBy, userID, testID, "test", "add question"); err != nil {
			return err
		}

		question.LinkedTestIDs = datatypes.JSONSlice[string]{testID}
		if err := r.Question().Create(ctx, nil, question); err != nil {
			return err
		}
		test.Questions = append(test.Questions, question.ID)
		return r.Test().Update(ctx, nil, test)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Question created for test", "question_id", question.ID, "test_id", testID, "user_id", userID)
	return question, nil
}

// Link adds the question to the test and the test to the question. Both rows
// are locked so concurrent link calls cannot duplicate the id.
func (s *questionService) Link(ctx context.Context, testID, questionID, userID string) (*models.Test, error) {
	var linked *models.Test
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		test, question, err := s.lockPair(ctx, r, testID, questionID, userID, "link")
		if err != nil {
			return err
		}
		if test.HasQuestion(questionID) || question.IsLinkedTo(testID) {
			return NewBusinessRuleError("already_linked", "question is already linked to this test", ErrQuestionAlreadyLinked)
		}

		test.Questions = append(test.Questions, questionID)
		question.LinkedTestIDs = append(question.LinkedTestIDs, testID)
		if err := r.Test().Update(ctx, nil, test); err != nil {
			return err
		}
		if err := r.Question().Update(ctx, nil, question); err != nil {
			return err
		}
		linked = test
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Question linked", "question_id", questionID, "test_id", testID, "user_id", userID)
	return linked, nil
}

func (s *questionService) Unlink(ctx context.Context, testID, questionID, userID string) (*models.Test, error) {
	var unlinked *models.Test
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		test, question, err := s.lockPair(ctx, r, testID, questionID, userID, "unlink")
		if err != nil {
			return err
		}
		if !test.HasQuestion(questionID) && !question.IsLinkedTo(testID) {
			return NewBusinessRuleError("not_linked", "question is not linked to this test", ErrQuestionNotLinked)
		}

		test.Questions = removeID(test.Questions, questionID)
		question.LinkedTestIDs = removeID(question.LinkedTestIDs, testID)
		if err := r.Test().Update(ctx, nil, test); err != nil {
			return err
		}
		if err := r.Question().Update(ctx, nil, question); err != nil {
			return err
		}
		unlinked = test
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Question unlinked", "question_id", questionID, "test_id", testID, "user_id", userID)
	return unlinked, nil
}

// lockPair loads both sides of a link for update, test first, and checks the
// caller owns them
func (s *questionService) lockPair(ctx context.Context, r repositories.Repository, testID, questionID, userID, action string) (*models.Test, *models.Question, error) {
	test, err := getTest(ctx, r, testID, true)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureOwner(test.CreatedBy, userID, testID, "test", action); err != nil {
		return nil, nil, err
	}
	question, err := getQuestion(ctx, r, questionID, true)
	if err != nil {
		return nil, nil, err
	}
	if err := ensureOwner(question.CreatedBy, userID, questionID, "question", action); err != nil {
		return nil, nil, err
	}
	return test, question, nil
}

// build validates the request with struct tags and the per-type rules
func (s *questionService) build(req *QuestionRequest, creatorID string) (*models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	question := &models.Question{CreatedBy: creatorID}
	req.ApplyTo(question)
	if errs := validator.ValidateQuestion(question); len(errs) > 0 {
		return nil, errs
	}
	return question, nil
}
