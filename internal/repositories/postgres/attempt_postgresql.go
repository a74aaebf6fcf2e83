package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
)

// AttemptPostgreSQL is not cached: attempts change on every progress save
type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

// CreateIfAbsent relies on the (user_id, test_id) unique index so concurrent
// starts converge on one row
func (a *AttemptPostgreSQL) CreateIfAbsent(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) (*models.TestAttempt, bool, error) {
	db := getDB(a.db, tx).WithContext(ctx)

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "test_id"}},
		DoNothing: true,
	}).Create(attempt)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create attempt: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return attempt, true, nil
	}

	existing, err := a.GetByUserAndTest(ctx, tx, attempt.UserID, attempt.TestID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (a *AttemptPostgreSQL) GetByUserAndTest(ctx context.Context, tx *gorm.DB, userID, testID string) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	err := getDB(a.db, tx).WithContext(ctx).
		Where("user_id = ? AND test_id = ?", userID, testID).
		First(&attempt).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", translateError(err))
	}
	return &attempt, nil
}

// SaveProgressIfInProgress writes only the progress columns, plus answers when
// withAnswers is set, and only while the stored row is still in progress
func (a *AttemptPostgreSQL) SaveProgressIfInProgress(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt, withAnswers bool) (bool, error) {
	columns := map[string]interface{}{
		"progress_current_question_index": attempt.Progress.CurrentQuestionIndex,
		"progress_remaining_time_seconds": attempt.Progress.RemainingTimeSeconds,
	}
	if withAnswers {
		columns["answers"] = attempt.Answers
	}

	result := getDB(a.db, tx).WithContext(ctx).
		Model(&models.TestAttempt{}).
		Where("id = ? AND status = ?", attempt.ID, models.AttemptInProgress).
		Updates(columns)
	if result.Error != nil {
		return false, fmt.Errorf("failed to save progress: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// CompleteIfInProgress guards against two submits racing each other
func (a *AttemptPostgreSQL) CompleteIfInProgress(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) (bool, error) {
	result := getDB(a.db, tx).WithContext(ctx).
		Model(&models.TestAttempt{}).
		Where("id = ? AND status = ?", attempt.ID, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":                          attempt.Status,
			"end_time_utc":                    attempt.EndTimeUTC,
			"answers":                         attempt.Answers,
			"score":                           attempt.Score,
			"end_reason":                      attempt.EndReason,
			"progress_current_question_index": attempt.Progress.CurrentQuestionIndex,
			"progress_remaining_time_seconds": attempt.Progress.RemainingTimeSeconds,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to complete attempt: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (a *AttemptPostgreSQL) ListByTest(ctx context.Context, tx *gorm.DB, testID string, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error) {
	query := getDB(a.db, tx).WithContext(ctx).Model(&models.TestAttempt{}).Where("test_id = ?", testID)
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.DateFrom != nil {
		query = query.Where("start_time_utc >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("start_time_utc <= ?", *filters.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	var attempts []*models.TestAttempt
	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, total, nil
}
