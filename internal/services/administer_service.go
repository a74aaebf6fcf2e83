package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
	"github.com/qzplatform/qz-service/internal/sharelink"
	"github.com/qzplatform/qz-service/internal/utils"
	"github.com/qzplatform/qz-service/internal/validator"
)

type administerService struct {
	repo             repositories.Repository
	db               *gorm.DB
	logger           *slog.Logger
	validator        *validator.Validator
	resolver         *AssignmentResolver
	accessCodeLength int
	now              Clock
}

func NewAdministerService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, resolver *AssignmentResolver, accessCodeLength int, now Clock) AdministerService {
	return &administerService{
		repo:             repo,
		db:               db,
		logger:           logger,
		validator:        validator,
		resolver:         resolver,
		accessCodeLength: accessCodeLength,
		now:              now,
	}
}

// Administer merges the patch into the test and, when an assignment block is
// present, resolves it. Notifications are sent only after the write commits.
func (s *administerService) Administer(ctx context.Context, testID string, req *AdministerRequest, userID string) (*AdministerResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	now := s.now()
	result := &AdministerResult{}
	var (
		manual      *manualResolution
		inviteLink  *sharelink.Link
		sendInvites bool
		executed    bool
	)

	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		test, err := getTest(ctx, r, testID, true)
		if err != nil {
			return err
		}
		if err := ensureOwner(test.CreatedBy, userID, testID, "test", "administer"); err != nil {
			return err
		}
		if err := s.merge(test, req, true, now); err != nil {
			return err
		}

		if a := req.Assignment; a != nil {
			scheduled := &test.Assignment.ScheduledAssignment
			result.Deferred = scheduled.IsDeferred(now)

			switch test.Assignment.Method {
			case models.AssignmentManual:
				if m := a.ManualAssignment; m != nil {
					// A deferred assignment is stored, never sent: no accounts, no mail
					manual, err = s.resolver.ResolveManual(ctx, r, test, m.IndividualUsers, m.Groups, userID, !result.Deferred)
					if err != nil {
						return err
					}
				}
			case models.AssignmentLink:
				result.Link, err = s.resolver.MintLink(test, test.Assignment.SharingType())
				if err != nil {
					return err
				}
			case models.AssignmentEmail:
				if !result.Deferred {
					inviteLink, err = s.resolver.MintLink(test, models.LinkRestricted)
					if err != nil {
						return err
					}
					sendInvites = true
				}
			default:
				return NewValidationError("assignment.method", "is required", test.Assignment.Method)
			}

			executed = !result.Deferred
			// An assignment executed here must not be picked up again by the poller
			if executed && scheduled.Enabled {
				scheduled.Enabled = false
			}
		}

		if err := r.Test().Update(ctx, nil, test); err != nil {
			return err
		}
		result.Test = test
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := &DeliveryReport{}
	if manual != nil && !result.Deferred {
		s.resolver.NotifyManual(ctx, result.Test, manual, report)
	}
	if sendInvites {
		report = s.resolver.SendInvitations(ctx, result.Test, inviteLink)
	}
	if report.Recipients > 0 {
		result.Delivery = report
	}
	if executed {
		s.resolver.publishExecuted(ctx, result.Test, false, report)
	}

	s.logger.Info("Test administered",
		"test_id", testID,
		"user_id", userID,
		"status", result.Test.Scheduling.Status,
		"method", result.Test.Assignment.Method,
		"deferred", result.Deferred,
	)
	return result, nil
}

func (s *administerService) PatchSettings(ctx context.Context, testID string, req *AdministerRequest, userID string) (*models.Test, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	now := s.now()
	var updated *models.Test
	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		test, err := getTest(ctx, r, testID, true)
		if err != nil {
			return err
		}
		if err := ensureOwner(test.CreatedBy, userID, testID, "test", "update settings"); err != nil {
			return err
		}
		if err := s.merge(test, req, false, now); err != nil {
			return err
		}
		if err := r.Test().Update(ctx, nil, test); err != nil {
			return err
		}
		updated = test
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Test settings updated", "test_id", testID, "user_id", userID, "status", updated.Scheduling.Status)
	return updated, nil
}

func (s *administerService) GetSettings(ctx context.Context, testID string, userID string) (*AdministerSettings, error) {
	test, err := getTest(ctx, s.repo, testID, false)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(test.CreatedBy, userID, testID, "test", "read settings"); err != nil {
		return nil, err
	}

	test.RefreshStatus(s.now())
	return &AdministerSettings{
		Scheduling:      test.Scheduling,
		TimeAndAttempts: test.TimeAndAttempts,
		Configuration:   test.Configuration,
		Proctoring:      test.Proctoring,
		Assignment:      test.Assignment,
	}, nil
}

// merge applies a shallow, per-field merge of each sub-object, then fills a
// missing access code and recomputes the scheduling status
func (s *administerService) merge(test *models.Test, req *AdministerRequest, withAssignment bool, now time.Time) error {
	if p := req.Scheduling; p != nil {
		if p.StartDate != nil {
			start := p.StartDate.UTC()
			test.Scheduling.StartDate = &start
		}
		if p.EndDate != nil {
			end := p.EndDate.UTC()
			test.Scheduling.EndDate = &end
		}
	}
	if start, end := test.Scheduling.StartDate, test.Scheduling.EndDate; start != nil && end != nil && end.Before(*start) {
		return NewValidationError("scheduling.endDate", "must not be before startDate", end)
	}

	if p := req.TimeAndAttempts; p != nil {
		if p.TimeLimit != nil {
			test.TimeAndAttempts.TimeLimitMinutes = *p.TimeLimit
		}
		if p.MaxAttempts != nil {
			test.TimeAndAttempts.MaxAttempts = *p.MaxAttempts
		}
	}

	if p := req.Configuration; p != nil {
		if p.RandomizeQuestions != nil {
			test.Configuration.RandomizeQuestions = *p.RandomizeQuestions
		}
		if p.PassingScore != nil {
			test.Configuration.PassingScore = *p.PassingScore
		}
		if p.AccessCode != nil {
			test.Configuration.AccessCode = strings.TrimSpace(*p.AccessCode)
		}
	}

	if p := req.Proctoring; p != nil && p.AllowEdit != nil {
		test.Proctoring.AllowEdit = *p.AllowEdit
	}

	if withAssignment && req.Assignment != nil {
		if err := mergeAssignment(&test.Assignment, req.Assignment); err != nil {
			return err
		}
	}

	if err := ensureAccessCode(test, s.accessCodeLength); err != nil {
		return err
	}
	test.RefreshStatus(now)
	return nil
}

func mergeAssignment(a *models.Assignment, p *validator.AssignmentPatch) error {
	if p.Method != nil {
		a.Method = *p.Method
	}
	if p.LinkSharing != nil {
		a.LinkSharing = *p.LinkSharing
	}
	if p.InvitationEmails != nil {
		a.InvitationEmails = normalizeEmails(p.InvitationEmails)
	}

	if sp := p.ScheduledAssignment; sp != nil {
		scheduled := &a.ScheduledAssignment
		if sp.ScheduledTimeUTC != nil {
			at, err := validator.ParseScheduledTime(*sp.ScheduledTimeUTC)
			if err != nil {
				return ErrInvalidScheduledTime
			}
			scheduled.ScheduledTimeUTC = &at
			// Supplying a time schedules the assignment unless told otherwise
			scheduled.Enabled = true
		}
		if sp.Enabled != nil {
			scheduled.Enabled = *sp.Enabled
		}
		if scheduled.Enabled && scheduled.ScheduledTimeUTC == nil {
			return ErrInvalidScheduledTime
		}
	}
	return nil
}

// ensureAccessCode never overwrites an existing code
func ensureAccessCode(test *models.Test, length int) error {
	if test.Configuration.AccessCode != "" {
		return nil
	}
	code, err := utils.GenerateAccessCode(length)
	if err != nil {
		return err
	}
	test.Configuration.AccessCode = code
	return nil
}
