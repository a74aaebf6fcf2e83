package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qzplatform/qz-service/internal/cache"
	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
)

type TestPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
	invalidate   *cache.Invalidator
}

func NewTestPostgreSQL(db *gorm.DB, cm *cache.CacheManager, inv *cache.Invalidator) repositories.TestRepository {
	return &TestPostgreSQL{db: db, cacheManager: cm, invalidate: inv}
}

func (r *TestPostgreSQL) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	if err := getDB(r.db, tx).WithContext(ctx).Create(test).Error; err != nil {
		return fmt.Errorf("failed to create test: %w", translateError(err))
	}
	return nil
}

// GetByID reads through the test cache
func (r *TestPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error) {
	test, err := cache.CacheOrExecute(ctx, r.cacheManager.Test, cache.IDKey(id), cache.TestCacheConfig.TTL, func() (*models.Test, error) {
		var t models.Test
		if err := getDB(r.db, tx).WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
			return nil, translateError(err)
		}
		return &t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get test %s: %w", id, err)
	}
	return test, nil
}

func (r *TestPostgreSQL) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error) {
	var test models.Test
	err := getDB(r.db, tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&test, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock test %s: %w", id, translateError(err))
	}
	return &test, nil
}

func (r *TestPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.Test, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tests []*models.Test
	if err := getDB(r.db, tx).WithContext(ctx).Where("id IN ?", ids).Find(&tests).Error; err != nil {
		return nil, fmt.Errorf("failed to get tests: %w", err)
	}
	return tests, nil
}

// Update saves every column of the aggregate and drops the cached copy
func (r *TestPostgreSQL) Update(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	result := getDB(r.db, tx).WithContext(ctx).
		Model(test).
		Select("*").
		Omit("id", "created_at").
		Updates(test)
	if result.Error != nil {
		return fmt.Errorf("failed to update test: %w", translateError(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to update test %s: %w", test.ID, repositories.ErrNotFound)
	}
	r.invalidate.Test(ctx, test.ID)
	return nil
}

func (r *TestPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	result := getDB(r.db, tx).WithContext(ctx).Delete(&models.Test{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete test: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to delete test %s: %w", id, repositories.ErrNotFound)
	}
	r.invalidate.Test(ctx, id)
	return nil
}

func (r *TestPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	query := getDB(r.db, tx).WithContext(ctx).Model(&models.Test{})
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Category != nil {
		query = query.Where("category = ?", *filters.Category)
	}
	if filters.Method != nil {
		query = query.Where("assignment_method = ?", *filters.Method)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tests: %w", err)
	}

	var tests []*models.Test
	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&tests).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tests: %w", err)
	}
	return tests, total, nil
}

func (r *TestPostgreSQL) ListAvailableFor(ctx context.Context, tx *gorm.DB, userID string, now time.Time) ([]*models.Test, error) {
	member, err := json.Marshal([]string{userID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode user filter: %w", err)
	}

	var tests []*models.Test
	err = getDB(r.db, tx).WithContext(ctx).
		Where("scheduling_start_date IS NOT NULL AND scheduling_start_date <= ?", now).
		Where("scheduling_end_date IS NULL OR scheduling_end_date >= ?", now).
		Where(
			getDB(r.db, tx).Where("assignment_manual_individual_users @> ?::jsonb", string(member)).
				Or("assignment_method = ? AND assignment_link_sharing = ?", models.AssignmentLink, models.LinkPublic),
		).
		Order("scheduling_start_date DESC").
		Find(&tests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list available tests: %w", err)
	}
	return tests, nil
}

func (r *TestPostgreSQL) ListDueScheduledAssignments(ctx context.Context, tx *gorm.DB, now time.Time) ([]*models.Test, error) {
	var tests []*models.Test
	err := getDB(r.db, tx).WithContext(ctx).
		Where(models.ColumnScheduledEnabled+" = ?", true).
		Where(models.ColumnScheduledTime+" <= ?", now).
		Find(&tests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due scheduled assignments: %w", err)
	}
	return tests, nil
}

// ClaimScheduledAssignment is a compare-and-swap on the enabled flag
func (r *TestPostgreSQL) ClaimScheduledAssignment(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	result := getDB(r.db, tx).WithContext(ctx).
		Model(&models.Test{}).
		Where("id = ? AND "+models.ColumnScheduledEnabled+" = ?", id, true).
		Update(models.ColumnScheduledEnabled, false)
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim scheduled assignment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	r.invalidate.Test(ctx, id)
	return true, nil
}
