package repositories

import (
	"context"

	"github.com/qzplatform/qz-service/internal/models"
	"gorm.io/gorm"
)

type GroupRepository interface {
	Create(ctx context.Context, tx *gorm.DB, group *models.Group) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Group, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.Group, error)
	ExistsByName(ctx context.Context, tx *gorm.DB, name string) (bool, error)
	List(ctx context.Context, tx *gorm.DB, filters GroupFilters) ([]*models.Group, int64, error)
	Delete(ctx context.Context, tx *gorm.DB, id string) error
}
