package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/events"
	"github.com/qzplatform/qz-service/internal/mailer"
	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
	"github.com/qzplatform/qz-service/internal/utils"
)

type provisionedUser struct {
	User     *models.User
	Password string
}

// userProvisioner resolves emails to accounts and creates test-takers for
// unknown addresses. Group creation and manual assignment share it.
type userProvisioner struct {
	passwordLength int
	loginURL       string
	mailer         mailer.Mailer
	publisher      events.EventPublisher
	logger         *slog.Logger
}

// normalizeEmails lower-cases, trims and dedupes, keeping first-seen order
func normalizeEmails(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func dedupeIDs(ids ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range ids {
		for _, id := range list {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// resolveEmails must run on a transaction-bound repository so that accounts
// are only created if the enclosing write commits. With provision false an
// unknown email is a validation failure on field.
func (p *userProvisioner) resolveEmails(ctx context.Context, repo repositories.Repository, emails []string, createdBy string, provision bool, field string) ([]*models.User, []provisionedUser, error) {
	emails = normalizeEmails(emails)
	if len(emails) == 0 {
		return nil, nil, nil
	}

	existing, err := repo.User().GetByEmails(ctx, nil, emails)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up users: %w", err)
	}
	byEmail := make(map[string]*models.User, len(existing))
	for _, u := range existing {
		byEmail[strings.ToLower(u.Email)] = u
	}

	users := make([]*models.User, 0, len(emails))
	var created []provisionedUser
	for _, email := range emails {
		if u, ok := byEmail[email]; ok {
			users = append(users, u)
			continue
		}
		if !provision {
			return nil, nil, NewValidationError(field, "no account exists for this email", email)
		}

		pu, err := p.newTestTaker(ctx, repo, email, createdBy)
		if err != nil {
			return nil, nil, err
		}
		users = append(users, pu.User)
		created = append(created, *pu)
	}
	return users, created, nil
}

func (p *userProvisioner) newTestTaker(ctx context.Context, repo repositories.Repository, email, createdBy string) (*provisionedUser, error) {
	password, err := utils.GeneratePassword(p.passwordLength)
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:         strings.SplitN(email, "@", 2)[0],
		Email:        email,
		Role:         models.RoleTestTaker,
		PasswordHash: hash,
		IsActive:     true,
	}
	if createdBy != "" {
		user.CreatedBy = &createdBy
	}
	if err := repo.User().Create(ctx, nil, user); err != nil {
		return nil, fmt.Errorf("failed to provision %s: %w", email, err)
	}
	return &provisionedUser{User: user, Password: password}, nil
}

// notifyProvisioned mails credentials and publishes user.provisioned. Call it
// after the transaction that created the accounts has committed.
func (p *userProvisioner) notifyProvisioned(ctx context.Context, created []provisionedUser, reason string, report *DeliveryReport) {
	for _, pu := range created {
		report.Recipients++
		msg, err := mailer.CredentialsMessage(pu.User.Email, mailer.CredentialsData{
			Email:    pu.User.Email,
			Password: pu.Password,
			LoginURL: p.loginURL,
			Context:  reason,
		})
		if err == nil {
			err = p.mailer.Send(ctx, msg)
		}
		if err != nil {
			report.Failed++
			p.logger.Error("Failed to send credentials", "user_id", pu.User.ID, "error", fmt.Errorf("%w: %v", ErrDependencyFailure, err))
		} else {
			report.Sent++
		}

		data := events.UserProvisionedData{UserID: pu.User.ID, Email: pu.User.Email}
		if pu.User.CreatedBy != nil {
			data.CreatedBy = *pu.User.CreatedBy
		}
		if err := p.publisher.Publish(ctx, events.NewEvent(events.TypeUserProvisioned, data)); err != nil {
			p.logger.Warn("Failed to publish event", "type", events.TypeUserProvisioned, "error", err)
		}
	}
	report.Provisioned += len(created)
}

type userService struct {
	repo        repositories.Repository
	db          *gorm.DB
	logger      *slog.Logger
	provisioner *userProvisioner
}

func NewUserService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, provisioner *userProvisioner) UserService {
	return &userService{repo: repo, db: db, logger: logger, provisioner: provisioner}
}

func (s *userService) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.User().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ProvisionTestTaker returns the existing account when the email is already a
// test-taker, and creates one otherwise
func (s *userService) ProvisionTestTaker(ctx context.Context, email string, createdBy string) (*models.User, error) {
	var user *models.User
	var created []provisionedUser

	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		users, provisioned, err := s.provisioner.resolveEmails(ctx, r, []string{email}, createdBy, true, "email")
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return NewValidationError("email", "is required", email)
		}
		if users[0].Role != models.RoleTestTaker {
			return NewValidationError("email", "belongs to an account that is not a test-taker", email)
		}
		user, created = users[0], provisioned
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(created) > 0 {
		s.logger.Info("Test-taker provisioned", "user_id", user.ID, "created_by", createdBy)
		s.provisioner.notifyProvisioned(ctx, created, "", &DeliveryReport{})
	}
	return user, nil
}
