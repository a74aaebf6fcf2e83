package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/qzplatform/qz-service/internal/models"
)

func TestTest_CreateDerivesStatusAndAccessCode(t *testing.T) {
	f := newFixture(baseNow)
	test, err := f.manager.Test().Create(context.Background(), &CreateTestRequest{Title: "  Physics  "}, creatorID)
	require.NoError(t, err)

	assert.Equal(t, "Physics", test.Title)
	assert.Equal(t, creatorID, test.CreatedBy)
	assert.Equal(t, models.SchedulingUnscheduled, test.Scheduling.Status)
	assert.Len(t, test.Configuration.AccessCode, 8)

	_, err = f.manager.Test().Create(context.Background(), &CreateTestRequest{Title: "   "}, creatorID)
	assert.True(t, IsInvalidInput(err))
}

func TestTest_UpdateAndOwnership(t *testing.T) {
	f := newFixture(baseNow)
	svc := f.manager.Test()
	test := f.addTest(nil)
	title := "Geometry"

	updated, err := svc.Update(context.Background(), test.ID, &UpdateTestRequest{Title: &title}, creatorID)
	require.NoError(t, err)
	assert.Equal(t, "Geometry", updated.Title)

	_, err = svc.Update(context.Background(), test.ID, &UpdateTestRequest{Title: &title}, "intruder")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.GetByID(context.Background(), test.ID, "intruder")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTest_DeleteUnlinksQuestionsAndKeepsAttempts(t *testing.T) {
	f := newFixture(baseNow)
	ctx := context.Background()
	q := newQuiz(t, f, 10, nil)
	_, err := f.manager.Question().Link(ctx, f.addTest(nil).ID, q.mc.ID, creatorID)
	require.NoError(t, err)

	_, err = f.manager.Attempt().Start(ctx, takerID, q.test.ID)
	require.NoError(t, err)

	require.NoError(t, f.manager.Test().Delete(ctx, q.test.ID, creatorID))

	_, err = f.manager.Test().GetByID(ctx, q.test.ID, creatorID)
	assert.ErrorIs(t, err, ErrTestNotFound)

	mc, err := f.manager.Question().GetByID(ctx, q.mc.ID, creatorID)
	require.NoError(t, err)
	assert.NotContains(t, []string(mc.LinkedTestIDs), q.test.ID)
	assert.Len(t, mc.LinkedTestIDs, 1)

	attempt, err := f.repo.Attempt().GetByUserAndTest(ctx, nil, takerID, q.test.ID)
	require.NoError(t, err)
	assert.Equal(t, q.test.ID, attempt.TestID)
}

func TestTest_ListAvailable(t *testing.T) {
	f := newFixture(baseNow)
	past := baseNow.Add(-time.Hour)
	future := baseNow.Add(time.Hour)

	assigned := f.addTest(func(t *models.Test) {
		t.Scheduling.StartDate = &past
		t.Assignment.Method = models.AssignmentManual
		t.Assignment.ManualAssignment.IndividualUserIDs = datatypes.JSONSlice[string]{takerID}
	})
	public := f.addTest(func(t *models.Test) {
		t.Scheduling.StartDate = &past
		t.Assignment.Method = models.AssignmentLink
		t.Assignment.LinkSharing = models.LinkPublic
	})
	f.addTest(func(t *models.Test) {
		t.Scheduling.StartDate = &future
		t.Assignment.ManualAssignment.IndividualUserIDs = datatypes.JSONSlice[string]{takerID}
	})
	f.addTest(func(t *models.Test) {
		t.Scheduling.StartDate = &past
		t.Assignment.Method = models.AssignmentLink
	})

	tests, err := f.manager.Test().ListAvailable(context.Background(), takerID)
	require.NoError(t, err)

	var ids []string
	for _, test := range tests {
		assert.Equal(t, models.SchedulingActive, test.Scheduling.Status)
		ids = append(ids, test.ID)
	}
	assert.ElementsMatch(t, []string{assigned.ID, public.ID}, ids)
}

func TestTest_ResolveLink(t *testing.T) {
	f := newFixture(baseNow)
	past := baseNow.Add(-time.Hour)
	end := baseNow.Add(time.Hour)
	test := f.addTest(func(t *models.Test) {
		t.Scheduling.StartDate = &past
		t.Scheduling.EndDate = &end
	})
	link, err := f.codec.Encode(test, models.LinkPublic)
	require.NoError(t, err)

	res, err := f.manager.Test().ResolveLink(context.Background(), link.Token)
	require.NoError(t, err)
	assert.Equal(t, test.ID, res.Claims.TestID)
	assert.Equal(t, models.SchedulingActive, res.Status)

	_, err = f.manager.Test().ResolveLink(context.Background(), link.Token+"x")
	assert.ErrorIs(t, err, ErrInvalidLinkToken)

	// Token expiry is capped at the end date
	f.now = end.Add(time.Minute)
	_, err = f.manager.Test().ResolveLink(context.Background(), link.Token)
	assert.ErrorIs(t, err, ErrInvalidLinkToken)
}

func TestTest_ResolveLinkForDeletedTest(t *testing.T) {
	f := newFixture(baseNow)
	test := f.addTest(nil)
	link, err := f.codec.Encode(test, models.LinkRestricted)
	require.NoError(t, err)

	require.NoError(t, f.manager.Test().Delete(context.Background(), test.ID, creatorID))
	_, err = f.manager.Test().ResolveLink(context.Background(), link.Token)
	assert.ErrorIs(t, err, ErrTestNotFound)
}
