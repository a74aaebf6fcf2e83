package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qzplatform/qz-service/internal/cache"
	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
	invalidate   *cache.Invalidator
}

func NewQuestionPostgreSQL(db *gorm.DB, cm *cache.CacheManager, inv *cache.Invalidator) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db, cacheManager: cm, invalidate: inv}
}

func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if err := getDB(q.db, tx).WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("failed to create question: %w", translateError(err))
	}
	return nil
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Question, error) {
	question, err := cache.CacheOrExecute(ctx, q.cacheManager.Question, cache.IDKey(id), cache.QuestionCacheConfig.TTL, func() (*models.Question, error) {
		var dbQuestion models.Question
		if err := getDB(q.db, tx).WithContext(ctx).First(&dbQuestion, "id = ?", id).Error; err != nil {
			return nil, translateError(err)
		}
		return &dbQuestion, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get question %s: %w", id, err)
	}
	return question, nil
}

func (q *QuestionPostgreSQL) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*models.Question, error) {
	var question models.Question
	err := getDB(q.db, tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&question, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock question %s: %w", id, translateError(err))
	}
	return &question, nil
}

func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var found []*models.Question
	if err := getDB(q.db, tx).WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}

	byID := make(map[string]*models.Question, len(found))
	for _, question := range found {
		byID[question.ID] = question
	}
	ordered := make([]*models.Question, 0, len(ids))
	for _, id := range ids {
		if question, ok := byID[id]; ok {
			ordered = append(ordered, question)
		}
	}
	return ordered, nil
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	result := getDB(q.db, tx).WithContext(ctx).
		Model(question).
		Select("*").
		Omit("id", "created_at", "created_by").
		Updates(question)
	if result.Error != nil {
		return fmt.Errorf("failed to update question: %w", translateError(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to update question %s: %w", question.ID, repositories.ErrNotFound)
	}
	q.invalidate.Question(ctx, question.ID)
	return nil
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	result := getDB(q.db, tx).WithContext(ctx).Delete(&models.Question{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete question: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to delete question %s: %w", id, repositories.ErrNotFound)
	}
	q.invalidate.Question(ctx, id)
	return nil
}

func (q *QuestionPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	query := getDB(q.db, tx).WithContext(ctx).Model(&models.Question{})
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.Category != nil {
		query = query.Where("category = ?", *filters.Category)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count questions: %w", err)
	}

	var questions []*models.Question
	query = applyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&questions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, total, nil
}
