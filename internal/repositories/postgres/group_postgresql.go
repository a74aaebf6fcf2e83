package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/cache"
	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
)

type GroupPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
	invalidate   *cache.Invalidator
}

func NewGroupPostgreSQL(db *gorm.DB, cm *cache.CacheManager, inv *cache.Invalidator) repositories.GroupRepository {
	return &GroupPostgreSQL{db: db, cacheManager: cm, invalidate: inv}
}

func (g *GroupPostgreSQL) Create(ctx context.Context, tx *gorm.DB, group *models.Group) error {
	if err := getDB(g.db, tx).WithContext(ctx).Create(group).Error; err != nil {
		return fmt.Errorf("failed to create group: %w", translateError(err))
	}
	return nil
}

func (g *GroupPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Group, error) {
	group, err := cache.CacheOrExecute(ctx, g.cacheManager.Group, cache.IDKey(id), cache.GroupCacheConfig.TTL, func() (*models.Group, error) {
		var dbGroup models.Group
		if err := getDB(g.db, tx).WithContext(ctx).First(&dbGroup, "id = ?", id).Error; err != nil {
			return nil, translateError(err)
		}
		return &dbGroup, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get group %s: %w", id, err)
	}
	return group, nil
}

func (g *GroupPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var groups []*models.Group
	if err := getDB(g.db, tx).WithContext(ctx).Where("id IN ?", ids).Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to get groups: %w", err)
	}
	return groups, nil
}

func (g *GroupPostgreSQL) ExistsByName(ctx context.Context, tx *gorm.DB, name string) (bool, error) {
	var count int64
	err := getDB(g.db, tx).WithContext(ctx).
		Model(&models.Group{}).
		Where("LOWER(name) = LOWER(?)", name).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check group name: %w", err)
	}
	return count > 0, nil
}

func (g *GroupPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.GroupFilters) ([]*models.Group, int64, error) {
	query := getDB(g.db, tx).WithContext(ctx).Model(&models.Group{})
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	var groups []*models.Group
	query = applyPaginationAndSort(query, "name", "asc", filters.Limit, filters.Offset)
	if err := query.Find(&groups).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, total, nil
}

func (g *GroupPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	result := getDB(g.db, tx).WithContext(ctx).Delete(&models.Group{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete group: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to delete group %s: %w", id, repositories.ErrNotFound)
	}
	g.invalidate.Group(ctx, id)
	return nil
}
