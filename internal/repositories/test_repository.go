package repositories

import (
	"context"
	"time"

	"github.com/qzplatform/qz-service/internal/models"
	"gorm.io/gorm"
)

// TestRepository persists the test aggregate
type TestRepository interface {
	Create(ctx context.Context, tx *gorm.DB, test *models.Test) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error)
	// GetByIDForUpdate skips the cache and locks the row until the transaction ends
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.Test, error)
	Update(ctx context.Context, tx *gorm.DB, test *models.Test) error
	Delete(ctx context.Context, tx *gorm.DB, id string) error
	List(ctx context.Context, tx *gorm.DB, filters TestFilters) ([]*models.Test, int64, error)

	// ListAvailableFor returns tests inside their window that are assigned to the
	// user or shared by public link
	ListAvailableFor(ctx context.Context, tx *gorm.DB, userID string, now time.Time) ([]*models.Test, error)

	// Scheduled assignment polling
	ListDueScheduledAssignments(ctx context.Context, tx *gorm.DB, now time.Time) ([]*models.Test, error)
	// ClaimScheduledAssignment flips enabled to false only if it is still true.
	// It returns false when another writer got there first.
	ClaimScheduledAssignment(ctx context.Context, tx *gorm.DB, id string) (bool, error)
}
