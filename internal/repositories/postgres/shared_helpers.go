package postgres

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/repositories"
)

// getDB prefers an explicit transaction handle over the bound connection
func getDB(bound, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return bound
}

// applyPaginationAndSort whitelists sort columns to keep user input out of ORDER BY
func applyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	allowedSortColumns := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"title":      true,
		"name":       true,
		"category":   true,
		"score":      true,
	}
	if !allowedSortColumns[sortBy] {
		sortBy = "created_at"
	}

	order := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		order = "ASC"
	}
	query = query.Order(sortBy + " " + order)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

// translateError maps driver errors to repository sentinels
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repositories.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repositories.ErrDuplicate
	}
	return err
}
