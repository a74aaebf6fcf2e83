package repositories

import (
	"context"

	"github.com/qzplatform/qz-service/internal/models"
	"gorm.io/gorm"
)

// UserRepository exposes the subset of user persistence the service needs
type UserRepository interface {
	Create(ctx context.Context, tx *gorm.DB, user *models.User) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error)
	GetByEmails(ctx context.Context, tx *gorm.DB, emails []string) ([]*models.User, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.User, error)
}
