package repositories

import (
	"context"

	"github.com/qzplatform/qz-service/internal/models"
	"gorm.io/gorm"
)

type AttemptRepository interface {
	// CreateIfAbsent inserts the attempt unless one already exists for the same
	// user and test, and returns whichever row is stored.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) (*models.TestAttempt, bool, error)
	GetByUserAndTest(ctx context.Context, tx *gorm.DB, userID, testID string) (*models.TestAttempt, error)
	// SaveProgressIfInProgress never touches status, score or end fields, so it
	// cannot reopen a completed attempt
	SaveProgressIfInProgress(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt, withAnswers bool) (bool, error)
	// CompleteIfInProgress persists a terminal attempt only while the stored row is still in progress
	CompleteIfInProgress(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) (bool, error)
	ListByTest(ctx context.Context, tx *gorm.DB, testID string, filters AttemptFilters) ([]*models.TestAttempt, int64, error)
}
