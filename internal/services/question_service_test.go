package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/validator"
)

func mcRequest() *QuestionRequest {
	return &QuestionRequest{
		Type:     models.MultipleChoice,
		Question: "Pick the prime",
		Options: []validator.QuestionOptionRequest{
			{Text: "4"}, {Text: "6"}, {Text: "7", IsCorrect: true},
		},
	}
}

func TestQuestion_CreateValidatesPerType(t *testing.T) {
	tests := []struct {
		name    string
		req     *QuestionRequest
		wantErr bool
	}{
		{name: "multiple choice", req: mcRequest()},
		{
			name: "multiple choice with two options",
			req: &QuestionRequest{Type: models.MultipleChoice, Question: "q", Options: []validator.QuestionOptionRequest{
				{Text: "a", IsCorrect: true}, {Text: "b"},
			}},
			wantErr: true,
		},
		{
			name: "true false",
			req: &QuestionRequest{Type: models.TrueFalse, Question: "q", Options: []validator.QuestionOptionRequest{
				{Text: "True", IsCorrect: true}, {Text: "False"},
			}},
		},
		{
			name:    "fill in the gap without answers",
			req:     &QuestionRequest{Type: models.FillInTheGap, Question: "q"},
			wantErr: true,
		},
		{
			name:    "unsupported type",
			req:     &QuestionRequest{Type: "essay", Question: "q"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(baseNow)
			q, err := f.manager.Question().Create(context.Background(), tt.req, creatorID)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, creatorID, q.CreatedBy)
			assert.Equal(t, 1, q.Points)
		})
	}
}

func TestQuestion_LinkUnlinkIsSymmetric(t *testing.T) {
	f := newFixture(baseNow)
	svc := f.manager.Question()
	ctx := context.Background()
	test := f.addTest(nil)
	q, err := svc.Create(ctx, mcRequest(), creatorID)
	require.NoError(t, err)

	linked, err := svc.Link(ctx, test.ID, q.ID, creatorID)
	require.NoError(t, err)
	assert.Equal(t, []string{q.ID}, []string(linked.Questions))

	_, err = svc.Link(ctx, test.ID, q.ID, creatorID)
	require.ErrorIs(t, err, ErrQuestionAlreadyLinked)
	assert.True(t, IsInvalidInput(err))

	stored, err := svc.GetByID(ctx, q.ID, creatorID)
	require.NoError(t, err)
	assert.Equal(t, []string{test.ID}, []string(stored.LinkedTestIDs))
	assert.Len(t, f.storedTest(test.ID).Questions, 1)

	unlinked, err := svc.Unlink(ctx, test.ID, q.ID, creatorID)
	require.NoError(t, err)
	assert.Empty(t, unlinked.Questions)

	_, err = svc.Unlink(ctx, test.ID, q.ID, creatorID)
	assert.ErrorIs(t, err, ErrQuestionNotLinked)
}

func TestQuestion_OnlyCreatorMutates(t *testing.T) {
	f := newFixture(baseNow)
	svc := f.manager.Question()
	ctx := context.Background()
	q, err := svc.Create(ctx, mcRequest(), creatorID)
	require.NoError(t, err)

	_, err = svc.Update(ctx, q.ID, mcRequest(), "intruder")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, q.ID, "intruder"), ErrForbidden)

	test := f.addTest(nil)
	_, err = svc.Link(ctx, test.ID, q.ID, "intruder")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestQuestion_CreateForTestLinksAtomically(t *testing.T) {
	f := newFixture(baseNow)
	svc := f.manager.Question()
	ctx := context.Background()
	test := f.addTest(nil)

	q, err := svc.CreateForTest(ctx, test.ID, mcRequest(), creatorID)
	require.NoError(t, err)
	assert.Equal(t, []string{test.ID}, []string(q.LinkedTestIDs))
	assert.Equal(t, []string{q.ID}, []string(f.storedTest(test.ID).Questions))

	_, err = svc.CreateForTest(ctx, "missing", mcRequest(), creatorID)
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestQuestion_DeleteUnlinksFromTests(t *testing.T) {
	f := newFixture(baseNow)
	svc := f.manager.Question()
	ctx := context.Background()
	a := f.addTest(nil)
	b := f.addTest(nil)

	q, err := svc.CreateForTest(ctx, a.ID, mcRequest(), creatorID)
	require.NoError(t, err)
	_, err = svc.Link(ctx, b.ID, q.ID, creatorID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, q.ID, creatorID))
	assert.Empty(t, f.storedTest(a.ID).Questions)
	assert.Empty(t, f.storedTest(b.ID).Questions)

	_, err = svc.GetByID(ctx, q.ID, creatorID)
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestQuestion_UpdateKeepsLinks(t *testing.T) {
	f := newFixture(baseNow)
	svc := f.manager.Question()
	ctx := context.Background()
	test := f.addTest(nil)
	q, err := svc.CreateForTest(ctx, test.ID, mcRequest(), creatorID)
	require.NoError(t, err)

	req := &QuestionRequest{Type: models.FillInTheGap, Question: "Largest planet", Answers: []string{"Jupiter"}, Points: 3}
	updated, err := svc.Update(ctx, q.ID, req, creatorID)
	require.NoError(t, err)

	assert.Equal(t, models.FillInTheGap, updated.Type)
	assert.Empty(t, updated.Options)
	assert.Equal(t, 3, updated.Points)
	assert.Equal(t, []string{test.ID}, []string(updated.LinkedTestIDs))
}
