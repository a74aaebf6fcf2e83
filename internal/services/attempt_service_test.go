package services

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/qzplatform/qz-service/internal/events"
	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/validator"
)

const takerID = "taker-1"

type quiz struct {
	test *models.Test
	mc   *models.Question
	tf   *models.Question
	fitb *models.Question
}

func newQuiz(t *testing.T, f *fixture, timeLimit int, mutate func(t *models.Test)) quiz {
	ctx := context.Background()
	mc := &models.Question{
		Type: models.MultipleChoice, Text: "2 + 2?", Points: 1, CreatedBy: creatorID, RandomizeAnswers: true,
		Options: datatypes.JSONSlice[models.QuestionOption]{{Text: "3"}, {Text: "4", IsCorrect: true}, {Text: "5"}},
	}
	tf := &models.Question{
		Type: models.TrueFalse, Text: "The earth is flat", Points: 1, CreatedBy: creatorID,
		Options: datatypes.JSONSlice[models.QuestionOption]{{Text: "True"}, {Text: "False", IsCorrect: true}},
	}
	fitb := &models.Question{
		Type: models.FillInTheGap, Text: "Capital of France", Points: 1, CreatedBy: creatorID,
		Answers: datatypes.JSONSlice[string]{"Paris"},
	}
	for _, q := range []*models.Question{mc, tf, fitb} {
		require.NoError(t, f.repo.Question().Create(ctx, nil, q))
	}

	start := f.now.Add(-time.Hour)
	test := f.addTest(func(m *models.Test) {
		m.Questions = datatypes.JSONSlice[string]{mc.ID, tf.ID, fitb.ID}
		m.Scheduling.StartDate = &start
		m.TimeAndAttempts.TimeLimitMinutes = timeLimit
		if mutate != nil {
			mutate(m)
		}
	})
	return quiz{test: test, mc: mc, tf: tf, fitb: fitb}
}

func TestAttempt_StartIsIdempotent(t *testing.T) {
	f := newFixture(baseNow)
	q := newQuiz(t, f, 10, nil)
	svc := f.manager.Attempt()

	first, err := svc.Start(context.Background(), takerID, q.test.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptInProgress, first.Status)
	assert.Equal(t, 600, first.AllottedSeconds)
	assert.Equal(t, baseNow, first.StartTimeUTC)

	f.now = baseNow.Add(time.Minute)
	second, err := svc.Start(context.Background(), takerID, q.test.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, baseNow, second.StartTimeUTC)
}

func TestAttempt_StartRequiresActiveTest(t *testing.T) {
	f := newFixture(baseNow)
	future := baseNow.Add(time.Hour)
	q := newQuiz(t, f, 10, func(t *models.Test) { t.Scheduling.StartDate = &future })

	_, err := f.manager.Attempt().Start(context.Background(), takerID, q.test.ID)
	require.ErrorIs(t, err, ErrTestNotAvailable)
	assert.True(t, IsInvalidState(err))

	_, err = f.manager.Attempt().Start(context.Background(), takerID, "missing")
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestAttempt_SubmitScoring(t *testing.T) {
	tests := []struct {
		name    string
		answers func(q quiz) []validator.AnswerRequest
		want    float64
		graded  int
	}{
		{
			name:    "no answers scores zero",
			answers: func(q quiz) []validator.AnswerRequest { return nil },
			want:    0,
		},
		{
			name: "all correct",
			answers: func(q quiz) []validator.AnswerRequest {
				return []validator.AnswerRequest{
					{QuestionID: q.mc.ID, Answer: "4"},
					{QuestionID: q.tf.ID, Answer: "false"},
					{QuestionID: q.fitb.ID, Answer: "  paris "},
				}
			},
			want:   100,
			graded: 3,
		},
		{
			name: "one of two answered correctly",
			answers: func(q quiz) []validator.AnswerRequest {
				return []validator.AnswerRequest{
					{QuestionID: q.mc.ID, Answer: "3"},
					{QuestionID: q.fitb.ID, Answer: "Paris"},
				}
			},
			want:   50,
			graded: 2,
		},
		{
			name: "foreign question dropped and last duplicate wins",
			answers: func(q quiz) []validator.AnswerRequest {
				return []validator.AnswerRequest{
					{QuestionID: "not-in-test", Answer: "x"},
					{QuestionID: q.mc.ID, Answer: "3"},
					{QuestionID: q.mc.ID, Answer: "4"},
				}
			},
			want:   100,
			graded: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(baseNow)
			q := newQuiz(t, f, 10, nil)
			svc := f.manager.Attempt()

			_, err := svc.Start(context.Background(), takerID, q.test.ID)
			require.NoError(t, err)

			res, err := svc.Submit(context.Background(), takerID, q.test.ID, &SubmitRequest{Answers: tt.answers(q)})
			require.NoError(t, err)

			assert.Equal(t, msgSubmitted, res.Message)
			assert.False(t, res.AutoSubmitted)
			require.NotNil(t, res.Score)
			assert.InDelta(t, tt.want, *res.Score, 0.001)
			assert.Len(t, res.Attempt.Answers, tt.graded)
			assert.Equal(t, models.AttemptCompleted, res.Attempt.Status)
			assert.Equal(t, models.AttemptEndReasonSubmitted, *res.Attempt.EndReason)
			assert.Len(t, f.publisher.EventsOfType(events.TypeAttemptSubmitted), 1)
		})
	}
}

func TestAttempt_SubmitTwiceIsInvalidState(t *testing.T) {
	f := newFixture(baseNow)
	q := newQuiz(t, f, 10, nil)
	svc := f.manager.Attempt()

	_, err := svc.Start(context.Background(), takerID, q.test.ID)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), takerID, q.test.ID, &SubmitRequest{})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), takerID, q.test.ID, &SubmitRequest{})
	assert.ErrorIs(t, err, ErrAttemptNotActive)

	_, err = svc.SaveProgress(context.Background(), takerID, q.test.ID, &ProgressRequest{})
	assert.ErrorIs(t, err, ErrAttemptNotActive)
}

func TestAttempt_ProgressSaveCannotReopenSubmittedAttempt(t *testing.T) {
	f := newFixture(baseNow)
	q := newQuiz(t, f, 10, nil)
	svc := f.manager.Attempt()
	ctx := context.Background()

	_, err := svc.Start(ctx, takerID, q.test.ID)
	require.NoError(t, err)

	// The submit lands between the progress save's read and its write
	f.store.beforeProgressSave = func(*models.TestAttempt) {
		_, err := svc.Submit(ctx, takerID, q.test.ID, &SubmitRequest{
			Answers: []validator.AnswerRequest{{QuestionID: q.mc.ID, Answer: "4"}},
		})
		require.NoError(t, err)
	}

	_, err = svc.SaveProgress(ctx, takerID, q.test.ID, &ProgressRequest{
		CurrentQuestionIndex: 2,
		Answers:              []validator.AnswerRequest{{QuestionID: q.tf.ID, Answer: "true"}},
	})
	assert.ErrorIs(t, err, ErrAttemptNotActive)

	stored, err := f.repo.Attempt().GetByUserAndTest(ctx, nil, takerID, q.test.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptCompleted, stored.Status)
	require.NotNil(t, stored.Score)
	require.NotNil(t, stored.EndTimeUTC)
	assert.Equal(t, 0, stored.Progress.CurrentQuestionIndex)
	require.Len(t, stored.Answers, 1)
	assert.Equal(t, q.mc.ID, stored.Answers[0].QuestionID)
}

func TestAttempt_NotStarted(t *testing.T) {
	f := newFixture(baseNow)
	q := newQuiz(t, f, 10, nil)
	svc := f.manager.Attempt()

	_, err := svc.Submit(context.Background(), takerID, q.test.ID, &SubmitRequest{})
	assert.ErrorIs(t, err, ErrAttemptNotStarted)

	_, err = svc.GetQuestion(context.Background(), takerID, q.test.ID, 0)
	assert.ErrorIs(t, err, ErrAttemptNotStarted)

	_, err = svc.Get(context.Background(), takerID, q.test.ID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestAttempt_SaveProgressAutoSubmitsAfterBudget(t *testing.T) {
	f := newFixture(baseNow)
	q := newQuiz(t, f, 10, nil)
	svc := f.manager.Attempt()

	_, err := svc.Start(context.Background(), takerID, q.test.ID)
	require.NoError(t, err)

	// Client-reported remaining time is only a hint
	f.now = baseNow.Add(5 * time.Minute)
	saved, err := svc.SaveProgress(context.Background(), takerID, q.test.ID, &ProgressRequest{
		CurrentQuestionIndex: 1,
		RemainingTimeSeconds: ptr(9999),
		Answers:              []validator.AnswerRequest{{QuestionID: q.mc.ID, Answer: "4"}, {QuestionID: q.tf.ID, Answer: "true"}},
	})
	require.NoError(t, err)
	assert.Equal(t, msgProgressSaved, saved.Message)
	assert.Equal(t, models.AttemptInProgress, saved.Attempt.Status)

	f.now = baseNow.Add(10*time.Minute + time.Second)
	res, err := svc.SaveProgress(context.Background(), takerID, q.test.ID, &ProgressRequest{
		CurrentQuestionIndex: 2,
		Answers:              []validator.AnswerRequest{{QuestionID: q.tf.ID, Answer: "false"}},
	})
	require.NoError(t, err)

	assert.True(t, res.AutoSubmitted)
	assert.Equal(t, msgAutoSubmitted, res.Message)
	assert.Equal(t, models.AttemptCompleted, res.Attempt.Status)
	assert.Equal(t, models.AttemptEndReasonTimeout, *res.Attempt.EndReason)
	assert.InDelta(t, 50, *res.Score, 0.001)
	assert.Equal(t, 1, res.Attempt.Progress.CurrentQuestionIndex)
	assert.Len(t, f.publisher.EventsOfType(events.TypeAttemptAutoSubmitted), 1)

	_, err = svc.SaveProgress(context.Background(), takerID, q.test.ID, &ProgressRequest{})
	assert.ErrorIs(t, err, ErrAttemptNotActive)
}

func TestAttempt_LateSubmitIgnoresNewAnswers(t *testing.T) {
	f := newFixture(baseNow)
	q := newQuiz(t, f, 1, nil)
	svc := f.manager.Attempt()

	_, err := svc.Start(context.Background(), takerID, q.test.ID)
	require.NoError(t, err)

	f.now = baseNow.Add(2 * time.Minute)
	res, err := svc.Submit(context.Background(), takerID, q.test.ID, &SubmitRequest{
		Answers: []validator.AnswerRequest{{QuestionID: q.mc.ID, Answer: "4"}},
	})
	require.NoError(t, err)
	assert.True(t, res.AutoSubmitted)
	assert.Zero(t, *res.Score)
	assert.Empty(t, res.Attempt.Answers)
}

func TestAttempt_ReadsCloseExpiredAttempts(t *testing.T) {
	f := newFixture(baseNow)
	q := newQuiz(t, f, 1, nil)
	svc := f.manager.Attempt()

	_, err := svc.Start(context.Background(), takerID, q.test.ID)
	require.NoError(t, err)

	f.now = baseNow.Add(time.Minute)
	_, err = svc.GetQuestion(context.Background(), takerID, q.test.ID, 0)
	require.ErrorIs(t, err, ErrAttemptTimeExpired)

	attempt, err := svc.Get(context.Background(), takerID, q.test.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptCompleted, attempt.Status)
	assert.Zero(t, attempt.Progress.RemainingTimeSeconds)

	again, err := svc.Start(context.Background(), takerID, q.test.ID)
	require.NoError(t, err)
	assert.Equal(t, attempt.ID, again.ID)
	assert.Equal(t, models.AttemptCompleted, again.Status)
}

func TestAttempt_UntimedNeverExpires(t *testing.T) {
	f := newFixture(baseNow)
	q := newQuiz(t, f, 0, nil)
	svc := f.manager.Attempt()

	_, err := svc.Start(context.Background(), takerID, q.test.ID)
	require.NoError(t, err)

	f.now = baseNow.Add(30 * 24 * time.Hour)
	res, err := svc.SaveProgress(context.Background(), takerID, q.test.ID, &ProgressRequest{CurrentQuestionIndex: 2})
	require.NoError(t, err)
	assert.False(t, res.AutoSubmitted)
	assert.Equal(t, models.AttemptInProgress, res.Attempt.Status)
}

func TestAttempt_GetQuestionHidesCorrectness(t *testing.T) {
	f := newFixture(baseNow)
	q := newQuiz(t, f, 10, nil)
	svc := f.manager.Attempt()

	_, err := svc.Start(context.Background(), takerID, q.test.ID)
	require.NoError(t, err)

	f.now = baseNow.Add(90 * time.Second)
	page, err := svc.GetQuestion(context.Background(), takerID, q.test.ID, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 510, page.RemainingTime)
	assert.Equal(t, q.mc.ID, page.Question.ID)
	assert.ElementsMatch(t, []TakerOption{{Text: "3"}, {Text: "4"}, {Text: "5"}}, page.Question.Options)

	_, err = svc.GetQuestion(context.Background(), takerID, q.test.ID, 3)
	assert.ErrorIs(t, err, ErrQuestionIndexOutOfRange)
	_, err = svc.GetQuestion(context.Background(), takerID, q.test.ID, -1)
	assert.ErrorIs(t, err, ErrQuestionIndexOutOfRange)
}

func TestAttempt_RandomizedOrderIsStablePerAttempt(t *testing.T) {
	f := newFixture(baseNow)
	q := newQuiz(t, f, 10, func(t *models.Test) { t.Configuration.RandomizeQuestions = true })
	svc := f.manager.Attempt()

	_, err := svc.Start(context.Background(), takerID, q.test.ID)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		first, err := svc.GetQuestion(context.Background(), takerID, q.test.ID, i)
		require.NoError(t, err)
		again, err := svc.GetQuestion(context.Background(), takerID, q.test.ID, i)
		require.NoError(t, err)
		assert.Equal(t, first.Question.ID, again.Question.ID)
		seen[first.Question.ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestShuffleOptions(t *testing.T) {
	options := []models.QuestionOption{{Text: "a", IsCorrect: true}, {Text: "b"}, {Text: "c"}, {Text: "d"}}
	r := rand.New(rand.NewPCG(1, 2))

	firsts := map[string]int{}
	for i := 0; i < 1000; i++ {
		out := shuffleOptions(options, r)
		require.Len(t, out, 4)
		assert.ElementsMatch(t, options, out)
		firsts[out[0].Text]++
	}

	assert.Equal(t, "a", options[0].Text)
	for _, text := range []string{"a", "b", "c", "d"} {
		assert.Greater(t, firsts[text], 150, "option %s rarely comes first", text)
	}
}
