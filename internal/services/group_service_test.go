package services

import (
	"context"
	"html"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qzplatform/qz-service/internal/events"
	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/utils"
)

var passwordPattern = regexp.MustCompile(`Temporary password: <span class="code">([^<]+)</span>`)

func TestGroup_CreateProvisionsUnknownMembers(t *testing.T) {
	f := newFixture(baseNow)
	ctx := context.Background()

	res, err := f.manager.Group().Create(ctx, &CreateGroupRequest{
		GroupName:    "Cohort A",
		MemberEmails: []string{"a@x.com", "b@x.com"},
	}, creatorID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Provisioned)

	a, err := f.repo.User().GetByEmail(ctx, nil, "a@x.com")
	require.NoError(t, err)
	b, err := f.repo.User().GetByEmail(ctx, nil, "b@x.com")
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID, b.ID}, []string(res.Group.MemberUserIDs))
	for _, u := range []*models.User{a, b} {
		assert.Equal(t, models.RoleTestTaker, u.Role)
		assert.NotEmpty(t, u.PasswordHash)
	}

	assert.ElementsMatch(t, []string{"a@x.com", "b@x.com"}, f.mailer.recipients())
	assert.Len(t, f.publisher.EventsOfType(events.TypeUserProvisioned), 2)
}

func TestGroup_CredentialsMailCarriesWorkingPassword(t *testing.T) {
	f := newFixture(baseNow)
	ctx := context.Background()

	_, err := f.manager.Group().Create(ctx, &CreateGroupRequest{GroupName: "Solo", MemberEmails: []string{"solo@x.com"}}, creatorID)
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	user, err := f.repo.User().GetByEmail(ctx, nil, "solo@x.com")
	require.NoError(t, err)

	m := passwordPattern.FindStringSubmatch(f.mailer.sent[0].HTMLBody)
	require.Len(t, m, 2)
	assert.True(t, utils.CheckPassword(user.PasswordHash, html.UnescapeString(m[1])))
}

func TestGroup_RejectsNonTakersAndDuplicateNames(t *testing.T) {
	f := newFixture(baseNow)
	ctx := context.Background()
	f.addUser("author@x.com", models.RoleTestCreator)

	_, err := f.manager.Group().Create(ctx, &CreateGroupRequest{GroupName: "Mixed", MemberEmails: []string{"author@x.com"}}, creatorID)
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))

	_, err = f.manager.Group().Create(ctx, &CreateGroupRequest{GroupName: "Taken"}, creatorID)
	require.NoError(t, err)
	_, err = f.manager.Group().Create(ctx, &CreateGroupRequest{GroupName: "Taken"}, creatorID)
	assert.ErrorIs(t, err, ErrGroupNameTaken)
}

func TestGroup_DeleteIsCreatorOnly(t *testing.T) {
	f := newFixture(baseNow)
	ctx := context.Background()
	res, err := f.manager.Group().Create(ctx, &CreateGroupRequest{GroupName: "G"}, creatorID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.manager.Group().Delete(ctx, res.Group.ID, "intruder"), ErrForbidden)
	require.NoError(t, f.manager.Group().Delete(ctx, res.Group.ID, creatorID))
	_, err = f.manager.Group().GetByID(ctx, res.Group.ID, creatorID)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestUser_ProvisionTestTaker(t *testing.T) {
	f := newFixture(baseNow)
	ctx := context.Background()

	created, err := f.manager.User().ProvisionTestTaker(ctx, "New@X.com", creatorID)
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", created.Email)

	again, err := f.manager.User().ProvisionTestTaker(ctx, "new@x.com", creatorID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Len(t, f.mailer.recipients(), 1)

	f.addUser("admin@x.com", models.RoleAdmin)
	_, err = f.manager.User().ProvisionTestTaker(ctx, "admin@x.com", creatorID)
	assert.True(t, IsInvalidInput(err))
}
