package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
	"github.com/qzplatform/qz-service/internal/validator"
)

type groupService struct {
	repo        repositories.Repository
	db          *gorm.DB
	logger      *slog.Logger
	validator   *validator.Validator
	provisioner *userProvisioner
}

func NewGroupService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, provisioner *userProvisioner) GroupService {
	return &groupService{
		repo:        repo,
		db:          db,
		logger:      logger,
		validator:   validator,
		provisioner: provisioner,
	}
}

// Create stores a group of test-takers. Unknown member emails are provisioned
// as new accounts and mailed their credentials once the group is committed.
func (s *groupService) Create(ctx context.Context, req *CreateGroupRequest, creatorID string) (*GroupResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.GroupName)

	var (
		group   *models.Group
		created []provisionedUser
	)
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		exists, err := r.Group().ExistsByName(ctx, nil, name)
		if err != nil {
			return fmt.Errorf("failed to check group name: %w", err)
		}
		if exists {
			return ErrGroupNameTaken
		}

		users, provisioned, err := s.provisioner.resolveEmails(ctx, r, req.MemberEmails, creatorID, true, "memberEmails")
		if err != nil {
			return err
		}

		memberIDs := make([]string, 0, len(users))
		for i, u := range users {
			if u.Role != models.RoleTestTaker {
				return NewValidationError(fmt.Sprintf("memberEmails[%d]", i), "belongs to an account that is not a test-taker", u.Email)
			}
			memberIDs = append(memberIDs, u.ID)
		}

		group = &models.Group{
			Name:          name,
			Description:   req.Description,
			CreatedBy:     creatorID,
			MemberUserIDs: memberIDs,
		}
		if err := r.Group().Create(ctx, nil, group); err != nil {
			if repositories.IsDuplicateError(err) {
				return ErrGroupNameTaken
			}
			return fmt.Errorf("failed to create group: %w", err)
		}
		created = provisioned
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := &DeliveryReport{}
	s.provisioner.notifyProvisioned(ctx, created, fmt.Sprintf("as a member of %q", group.Name), report)

	s.logger.Info("Group created",
		"group_id", group.ID,
		"creator_id", creatorID,
		"members", len(group.MemberUserIDs),
		"provisioned", report.Provisioned)
	return &GroupResult{Group: group, Provisioned: report.Provisioned}, nil
}

func (s *groupService) GetByID(ctx context.Context, id string, userID string) (*models.Group, error) {
	group, err := s.repo.Group().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	if err := ensureOwner(group.CreatedBy, userID, id, "group", "read"); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *groupService) List(ctx context.Context, creatorID string, query ListQuery) (*GroupListResponse, error) {
	if err := s.validator.Validate(&query); err != nil {
		return nil, err
	}

	groups, total, err := s.repo.Group().List(ctx, s.db, repositories.GroupFilters{
		CreatedBy: &creatorID,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return &GroupListResponse{Groups: groups, Total: total}, nil
}

// Delete removes the group only; tests that expanded it keep their user ids
func (s *groupService) Delete(ctx context.Context, id string, userID string) error {
	if _, err := s.GetByID(ctx, id, userID); err != nil {
		return err
	}
	if err := s.repo.Group().Delete(ctx, s.db, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("failed to delete group: %w", err)
	}

	s.logger.Info("Group deleted", "group_id", id, "user_id", userID)
	return nil
}
