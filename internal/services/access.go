package services

import (
	"context"
	"fmt"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
)

// ensureOwner enforces that only the creator of a test or question mutates it
func ensureOwner(ownerID, userID, resourceID, resource, action string) error {
	if ownerID == "" || ownerID != userID {
		return NewPermissionError(userID, resourceID, resource, action, "not the creator")
	}
	return nil
}

func getTest(ctx context.Context, repo repositories.Repository, id string, forUpdate bool) (*models.Test, error) {
	var (
		test *models.Test
		err  error
	)
	if forUpdate {
		test, err = repo.Test().GetByIDForUpdate(ctx, nil, id)
	} else {
		test, err = repo.Test().GetByID(ctx, nil, id)
	}
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return test, nil
}

func getQuestion(ctx context.Context, repo repositories.Repository, id string, forUpdate bool) (*models.Question, error) {
	var (
		question *models.Question
		err      error
	)
	if forUpdate {
		question, err = repo.Question().GetByIDForUpdate(ctx, nil, id)
	} else {
		question, err = repo.Question().GetByID(ctx, nil, id)
	}
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return question, nil
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
