package services

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/events"
	"github.com/qzplatform/qz-service/internal/mailer"
	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
	"github.com/qzplatform/qz-service/internal/sharelink"
	"github.com/qzplatform/qz-service/internal/validator"
)

// memStore backs memRepo. Reads and writes copy rows so a failed transaction
// cannot leak half-applied changes into later reads.
type memStore struct {
	mu        sync.Mutex
	tests     map[string]*models.Test
	questions map[string]*models.Question
	groups    map[string]*models.Group
	users     map[string]*models.User
	attempts  map[string]*models.TestAttempt

	// beforeClaim runs inside ClaimScheduledAssignment, before the flag is read
	beforeClaim func(id string)
	// beforeProgressSave runs once, before SaveProgressIfInProgress reads the row
	beforeProgressSave func(a *models.TestAttempt)
}

func newMemStore() *memStore {
	return &memStore{
		tests:     map[string]*models.Test{},
		questions: map[string]*models.Question{},
		groups:    map[string]*models.Group{},
		users:     map[string]*models.User{},
		attempts:  map[string]*models.TestAttempt{},
	}
}

type memRepo struct{ s *memStore }

func (r memRepo) Test() repositories.TestRepository         { return memTests{r.s} }
func (r memRepo) Question() repositories.QuestionRepository { return memQuestions{r.s} }
func (r memRepo) Group() repositories.GroupRepository       { return memGroups{r.s} }
func (r memRepo) User() repositories.UserRepository         { return memUsers{r.s} }
func (r memRepo) Attempt() repositories.AttemptRepository   { return memAttempts{r.s} }
func (r memRepo) Ping(ctx context.Context) error            { return nil }
func (r memRepo) Close() error                              { return nil }

func (r memRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

func cloneTest(t *models.Test) *models.Test {
	c := *t
	c.Questions = slices.Clone(t.Questions)
	c.Assignment.InvitationEmails = slices.Clone(t.Assignment.InvitationEmails)
	c.Assignment.ManualAssignment.IndividualUserIDs = slices.Clone(t.Assignment.ManualAssignment.IndividualUserIDs)
	c.Assignment.ManualAssignment.GroupIDs = slices.Clone(t.Assignment.ManualAssignment.GroupIDs)
	return &c
}

func cloneQuestion(q *models.Question) *models.Question {
	c := *q
	c.Options = slices.Clone(q.Options)
	c.Answers = slices.Clone(q.Answers)
	c.LinkedTestIDs = slices.Clone(q.LinkedTestIDs)
	return &c
}

func cloneGroup(g *models.Group) *models.Group {
	c := *g
	c.MemberUserIDs = slices.Clone(g.MemberUserIDs)
	return &c
}

func cloneAttempt(a *models.TestAttempt) *models.TestAttempt {
	c := *a
	c.Answers = slices.Clone(a.Answers)
	return &c
}

func attemptKey(userID, testID string) string { return userID + "|" + testID }

// ===== TESTS =====

type memTests struct{ s *memStore }

func (m memTests) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	m.s.tests[test.ID] = cloneTest(test)
	return nil
}

func (m memTests) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.tests[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneTest(t), nil
}

func (m memTests) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error) {
	return m.GetByID(ctx, tx, id)
}

func (m memTests) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.Test, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.Test
	for _, id := range ids {
		if t, ok := m.s.tests[id]; ok {
			out = append(out, cloneTest(t))
		}
	}
	return out, nil
}

func (m memTests) Update(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.tests[test.ID]; !ok {
		return repositories.ErrNotFound
	}
	m.s.tests[test.ID] = cloneTest(test)
	return nil
}

func (m memTests) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.tests, id)
	return nil
}

func (m memTests) List(ctx context.Context, tx *gorm.DB, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.Test
	for _, t := range m.s.tests {
		if filters.CreatedBy != nil && t.CreatedBy != *filters.CreatedBy {
			continue
		}
		out = append(out, cloneTest(t))
	}
	return out, int64(len(out)), nil
}

func (m memTests) ListAvailableFor(ctx context.Context, tx *gorm.DB, userID string, now time.Time) ([]*models.Test, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.Test
	for _, t := range m.s.tests {
		start, end := t.Scheduling.StartDate, t.Scheduling.EndDate
		if start == nil || start.After(now) || (end != nil && end.Before(now)) {
			continue
		}
		public := t.Assignment.Method == models.AssignmentLink && t.Assignment.LinkSharing == models.LinkPublic
		if public || slices.Contains(t.Assignment.ManualAssignment.IndividualUserIDs, userID) {
			out = append(out, cloneTest(t))
		}
	}
	return out, nil
}

func (m memTests) ListDueScheduledAssignments(ctx context.Context, tx *gorm.DB, now time.Time) ([]*models.Test, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.Test
	for _, t := range m.s.tests {
		sa := t.Assignment.ScheduledAssignment
		if sa.Enabled && sa.ScheduledTimeUTC != nil && !sa.ScheduledTimeUTC.After(now) {
			out = append(out, cloneTest(t))
		}
	}
	return out, nil
}

func (m memTests) ClaimScheduledAssignment(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	if m.s.beforeClaim != nil {
		m.s.beforeClaim(id)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.tests[id]
	if !ok || !t.Assignment.ScheduledAssignment.Enabled {
		return false, nil
	}
	t.Assignment.ScheduledAssignment.Enabled = false
	return true, nil
}

// ===== QUESTIONS =====

type memQuestions struct{ s *memStore }

func (m memQuestions) Create(ctx context.Context, tx *gorm.DB, q *models.Question) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	m.s.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (m memQuestions) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Question, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	q, ok := m.s.questions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneQuestion(q), nil
}

func (m memQuestions) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*models.Question, error) {
	return m.GetByID(ctx, tx, id)
}

func (m memQuestions) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.Question, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]*models.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := m.s.questions[id]; ok {
			out = append(out, cloneQuestion(q))
		}
	}
	return out, nil
}

func (m memQuestions) Update(ctx context.Context, tx *gorm.DB, q *models.Question) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.questions[q.ID]; !ok {
		return repositories.ErrNotFound
	}
	m.s.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (m memQuestions) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.questions, id)
	return nil
}

func (m memQuestions) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.Question
	for _, q := range m.s.questions {
		if filters.CreatedBy != nil && q.CreatedBy != *filters.CreatedBy {
			continue
		}
		out = append(out, cloneQuestion(q))
	}
	return out, int64(len(out)), nil
}

// ===== GROUPS =====

type memGroups struct{ s *memStore }

func (m memGroups) Create(ctx context.Context, tx *gorm.DB, g *models.Group) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.groups {
		if existing.Name == g.Name {
			return repositories.ErrDuplicate
		}
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	m.s.groups[g.ID] = cloneGroup(g)
	return nil
}

func (m memGroups) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Group, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	g, ok := m.s.groups[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneGroup(g), nil
}

func (m memGroups) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.Group, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.Group
	for _, id := range ids {
		if g, ok := m.s.groups[id]; ok {
			out = append(out, cloneGroup(g))
		}
	}
	return out, nil
}

func (m memGroups) ExistsByName(ctx context.Context, tx *gorm.DB, name string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, g := range m.s.groups {
		if g.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m memGroups) List(ctx context.Context, tx *gorm.DB, filters repositories.GroupFilters) ([]*models.Group, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.Group
	for _, g := range m.s.groups {
		if filters.CreatedBy != nil && g.CreatedBy != *filters.CreatedBy {
			continue
		}
		out = append(out, cloneGroup(g))
	}
	return out, int64(len(out)), nil
}

func (m memGroups) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.groups[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.s.groups, id)
	return nil
}

// ===== USERS =====

type memUsers struct{ s *memStore }

func (m memUsers) Create(ctx context.Context, tx *gorm.DB, u *models.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repositories.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	c := *u
	m.s.users[u.ID] = &c
	return nil
}

func (m memUsers) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m memUsers) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error) {
	users, _ := m.GetByEmails(ctx, tx, []string{email})
	if len(users) == 0 {
		return nil, repositories.ErrNotFound
	}
	return users[0], nil
}

func (m memUsers) GetByEmails(ctx context.Context, tx *gorm.DB, emails []string) ([]*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.User
	for _, u := range m.s.users {
		for _, e := range emails {
			if strings.EqualFold(u.Email, e) {
				c := *u
				out = append(out, &c)
				break
			}
		}
	}
	return out, nil
}

func (m memUsers) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.User
	for _, id := range ids {
		if u, ok := m.s.users[id]; ok {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}

// ===== ATTEMPTS =====

type memAttempts struct{ s *memStore }

func (m memAttempts) CreateIfAbsent(ctx context.Context, tx *gorm.DB, a *models.TestAttempt) (*models.TestAttempt, bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := attemptKey(a.UserID, a.TestID)
	if existing, ok := m.s.attempts[key]; ok {
		return cloneAttempt(existing), false, nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.s.attempts[key] = cloneAttempt(a)
	return cloneAttempt(a), true, nil
}

func (m memAttempts) GetByUserAndTest(ctx context.Context, tx *gorm.DB, userID, testID string) (*models.TestAttempt, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.attempts[attemptKey(userID, testID)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (m memAttempts) SaveProgressIfInProgress(ctx context.Context, tx *gorm.DB, a *models.TestAttempt, withAnswers bool) (bool, error) {
	if m.s.beforeProgressSave != nil {
		hook := m.s.beforeProgressSave
		m.s.beforeProgressSave = nil
		hook(a)
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := attemptKey(a.UserID, a.TestID)
	stored, ok := m.s.attempts[key]
	if !ok || stored.Status != models.AttemptInProgress {
		return false, nil
	}
	updated := cloneAttempt(stored)
	updated.Progress = a.Progress
	if withAnswers {
		updated.Answers = slices.Clone(a.Answers)
	}
	m.s.attempts[key] = updated
	return true, nil
}

func (m memAttempts) CompleteIfInProgress(ctx context.Context, tx *gorm.DB, a *models.TestAttempt) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := attemptKey(a.UserID, a.TestID)
	stored, ok := m.s.attempts[key]
	if !ok || stored.Status != models.AttemptInProgress {
		return false, nil
	}
	m.s.attempts[key] = cloneAttempt(a)
	return true, nil
}

func (m memAttempts) ListByTest(ctx context.Context, tx *gorm.DB, testID string, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*models.TestAttempt
	for _, a := range m.s.attempts {
		if a.TestID == testID {
			out = append(out, cloneAttempt(a))
		}
	}
	slices.SortFunc(out, func(x, y *models.TestAttempt) int { return x.StartTimeUTC.Compare(y.StartTimeUTC) })
	return out, int64(len(out)), nil
}

// ===== COLLABORATORS =====

// recordingMailer keeps every message and fails for addresses in failFor
type recordingMailer struct {
	mu      sync.Mutex
	sent    []mailer.Message
	failFor map[string]bool
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[msg.To] {
		return io.ErrUnexpectedEOF
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, msg := range m.sent {
		out = append(out, msg.To)
	}
	return out
}

type fixture struct {
	store     *memStore
	repo      memRepo
	mailer    *recordingMailer
	publisher *events.MockEventPublisher
	codec     *sharelink.Codec
	now       time.Time
	manager   ServiceManager
}

const creatorID = "creator-1"

func newFixture(now time.Time) *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStore()
	f := &fixture{
		store:     store,
		repo:      memRepo{store},
		mailer:    &recordingMailer{failFor: map[string]bool{}},
		publisher: events.NewMockEventPublisher(logger),
		now:       now,
	}
	clock := func() time.Time { return f.now }
	f.codec = sharelink.NewCodec("link-secret", "https://qz.example", 7*24*time.Hour).WithClock(clock)

	f.manager = NewServiceManager(Dependencies{
		Repo:      f.repo,
		Logger:    logger,
		Validator: validator.New(),
		Mailer:    f.mailer,
		Codec:     f.codec,
		Publisher: f.publisher,
		Clock:     clock,
	}, ServiceManagerConfig{
		BaseURL:           "https://qz.example",
		AccessCodeLength:  8,
		PasswordLength:    12,
		SchedulerInterval: time.Minute,
	})
	if err := f.manager.Initialize(context.Background()); err != nil {
		panic(err)
	}
	return f
}

func (f *fixture) addUser(email string, role models.UserRole) *models.User {
	u := &models.User{Name: strings.SplitN(email, "@", 2)[0], Email: email, Role: role, IsActive: true}
	_ = f.repo.User().Create(context.Background(), nil, u)
	return u
}

func (f *fixture) addTest(mutate func(t *models.Test)) *models.Test {
	t := &models.Test{
		Title:           "Algebra",
		CreatedBy:       creatorID,
		TimeAndAttempts: models.TimeAndAttempts{MaxAttempts: 1},
		Assignment:      models.Assignment{LinkSharing: models.LinkRestricted},
	}
	if mutate != nil {
		mutate(t)
	}
	_ = f.repo.Test().Create(context.Background(), nil, t)
	return t
}

func (f *fixture) storedTest(id string) *models.Test {
	t, err := f.repo.Test().GetByID(context.Background(), nil, id)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }
