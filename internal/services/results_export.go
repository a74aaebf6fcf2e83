package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
)

const resultsSheet = "Results"

var resultsHeader = []interface{}{"Attempt ID", "User ID", "Email", "Status", "Score", "Passed", "Answered", "Start (UTC)", "End (UTC)", "End reason"}

type resultsService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewResultsService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ResultsService {
	return &resultsService{repo: repo, db: db, logger: logger}
}

// List returns one row per attempt on the test, oldest first. Only the test's
// creator may read results.
func (s *resultsService) List(ctx context.Context, testID string, userID string) ([]ResultRow, error) {
	test, err := getTest(ctx, s.repo, testID, false)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(test.CreatedBy, userID, testID, "test", "read results"); err != nil {
		return nil, err
	}

	attempts, _, err := s.repo.Attempt().ListByTest(ctx, s.db, testID, repositories.AttemptFilters{
		SortBy:    "created_at",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	userIDs := make([]string, 0, len(attempts))
	for _, a := range attempts {
		userIDs = append(userIDs, a.UserID)
	}
	emails := make(map[string]string, len(userIDs))
	if len(userIDs) > 0 {
		users, err := s.repo.User().GetByIDs(ctx, s.db, dedupeIDs(userIDs))
		if err != nil {
			return nil, fmt.Errorf("failed to load users: %w", err)
		}
		for _, u := range users {
			emails[u.ID] = u.Email
		}
	}

	rows := make([]ResultRow, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, toResultRow(a, emails[a.UserID], test.Configuration.PassingScore))
	}
	return rows, nil
}

// ExportXLSX renders List as a single-sheet workbook
func (s *resultsService) ExportXLSX(ctx context.Context, testID string, userID string) ([]byte, string, error) {
	rows, err := s.List(ctx, testID, userID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close workbook", "test_id", testID, "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, "", fmt.Errorf("failed to prepare workbook: %w", err)
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &resultsHeader); err != nil {
		return nil, "", fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, "", err
		}
		values := resultCells(r)
		if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return nil, "", fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	s.logger.Info("Results exported", "test_id", testID, "user_id", userID, "rows", len(rows))
	return buf.Bytes(), resultsFilename(testID), nil
}

func toResultRow(a *models.TestAttempt, email string, passingScore int) ResultRow {
	row := ResultRow{
		AttemptID: a.ID,
		UserID:    a.UserID,
		Email:     email,
		Status:    a.Status,
		Score:     a.Score,
		Answered:  len(a.Answers),
		Start:     a.StartTimeUTC,
		End:       a.EndTimeUTC,
	}
	if a.EndReason != nil {
		row.EndReason = *a.EndReason
	}
	if a.Score != nil {
		row.Passed = *a.Score >= float64(passingScore)
	}
	return row
}

func resultCells(r ResultRow) []interface{} {
	var score, end interface{} = "", ""
	if r.Score != nil {
		score = *r.Score
	}
	if r.End != nil {
		end = r.End.UTC().Format(time.RFC3339)
	}
	return []interface{}{
		r.AttemptID,
		r.UserID,
		r.Email,
		string(r.Status),
		score,
		r.Passed,
		r.Answered,
		r.Start.UTC().Format(time.RFC3339),
		end,
		r.EndReason,
	}
}

func resultsFilename(testID string) string {
	short := testID
	if i := strings.IndexByte(short, '-'); i > 0 {
		short = short[:i]
	}
	return fmt.Sprintf("results-%s.xlsx", short)
}
