package repositories

import (
	"context"

	"github.com/qzplatform/qz-service/internal/models"
	"gorm.io/gorm"
)

// QuestionRepository persists questions
type QuestionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Question, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*models.Question, error)
	// GetByIDs keeps the order of ids and drops unknown ones
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error
	List(ctx context.Context, tx *gorm.DB, filters QuestionFilters) ([]*models.Question, int64, error)
}
