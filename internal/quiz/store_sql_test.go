package quiz_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite" // driver for "sqlite"

	dbpkg "github.com/SanmishaTech/AgriSkills-sub001/internal/db"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/grading"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/quiz"
)

type fixture struct {
	t     *testing.T
	db    *sql.DB
	store *quiz.SQLStore
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := dbpkg.EnsureSchema(context.Background(), db, dbpkg.DriverSQLite); err != nil {
		t.Fatalf("schema: %v", err)
	}
	f := &fixture{t: t, db: db, now: time.Unix(1_700_000_000, 0)}
	f.store = quiz.NewSQLStore(db, "sqlite", grading.NewDefaultGrader(), nil, func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) exec(query string, args ...any) {
	f.t.Helper()
	if _, err := f.db.Exec(query, args...); err != nil {
		f.t.Fatalf("exec %s: %v", query, err)
	}
}

func (f *fixture) count(query string, args ...any) int {
	f.t.Helper()
	var n int
	if err := f.db.QueryRow(query, args...).Scan(&n); err != nil {
		f.t.Fatalf("count %s: %v", query, err)
	}
	return n
}

// seedQuiz creates course "c1" / chapter "ch1" and a quiz with a 2-point
// multiple choice question and a 3-point fill-in-blank (max 5 points,
// passing score 50).
func (f *fixture) seedQuiz(timeLimitMin int) {
	f.t.Helper()
	f.exec(`INSERT INTO courses (id, title, created_at) VALUES ('c1', 'Organic Farming', 0)`)
	f.exec(`INSERT INTO chapters (id, course_id, title, order_index) VALUES ('ch1', 'c1', 'Soil Basics', 1)`)
	q := quiz.Quiz{
		ID:           "qz1",
		ChapterID:    "ch1",
		Title:        "Soil Basics Quiz",
		PassingScore: 50,
		TimeLimitMin: timeLimitMin,
		IsActive:     true,
		Questions: []quiz.Question{
			{
				ID: "q1", Text: "Which process builds topsoil?", Type: quiz.TypeMultipleChoice, Points: 2, OrderIndex: 1,
				Answers: []quiz.Answer{
					{ID: "a1", Text: "Decomposition", IsCorrect: true, OrderIndex: 1},
					{ID: "a2", Text: "Erosion", OrderIndex: 2},
					{ID: "a3", Text: "Compaction", OrderIndex: 3},
					{ID: "a4", Text: "Leaching", OrderIndex: 4},
				},
			},
			{
				ID: "q2", Text: "Name the capital of France.", Type: quiz.TypeFillInBlank, Points: 3, OrderIndex: 2,
				Answers: []quiz.Answer{
					{ID: "b1", Text: "Paris", IsCorrect: true, OrderIndex: 1},
				},
			},
		},
	}
	if err := f.store.UpsertQuiz(context.Background(), q); err != nil {
		f.t.Fatalf("seed quiz: %v", err)
	}
}

func TestStartAttemptIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)
	ctx := context.Background()

	first, err := f.store.StartAttempt(ctx, "u1", "qz1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := f.store.StartAttempt(ctx, "u1", "qz1")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if first.Attempt.ID != second.Attempt.ID {
		t.Fatalf("expected same attempt, got %s and %s", first.Attempt.ID, second.Attempt.ID)
	}
	if n := f.count(`SELECT COUNT(*) FROM quiz_attempts WHERE user_id='u1' AND quiz_id='qz1'`); n != 1 {
		t.Fatalf("expected 1 attempt row, got %d", n)
	}
	if first.Attempt.MaxPoints != 5 {
		t.Fatalf("expected max points 5, got %d", first.Attempt.MaxPoints)
	}
}

func TestStartAttemptWithholdsAnswerKeys(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)

	res, err := f.store.StartAttempt(context.Background(), "u1", "qz1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, q := range res.Quiz.Questions {
		if len(q.Answers) == 0 {
			t.Fatalf("question %s has no options", q.ID)
		}
		for _, a := range q.Answers {
			if a.IsCorrect {
				t.Fatalf("answer key leaked on question %s answer %s", q.ID, a.ID)
			}
		}
	}
}

func TestStartAttemptInactiveQuiz(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)
	f.exec(`UPDATE quizzes SET is_active=0 WHERE id='qz1'`)

	_, err := f.store.StartAttempt(context.Background(), "u1", "qz1")
	if !errors.Is(err, quiz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStartAttemptRequiresCaller(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)

	_, err := f.store.StartAttempt(context.Background(), "", "qz1")
	if !errors.Is(err, quiz.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestActiveAttemptUniquePerUserQuiz(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)

	if _, err := f.store.StartAttempt(context.Background(), "u1", "qz1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	// the partial unique index is the backstop for concurrent starts
	_, err := f.db.Exec(`INSERT INTO quiz_attempts (id, quiz_id, user_id, started_at, score, total_points, max_points, is_passed)
		VALUES ('dup', 'qz1', 'u1', 0, 0, 0, 5, 0)`)
	if err == nil {
		t.Fatalf("expected unique violation for second active attempt")
	}
}

func TestSubmitScoresAndFailsBelowPassing(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)
	ctx := context.Background()

	start, _ := f.store.StartAttempt(ctx, "u1", "qz1")
	res, err := f.store.SubmitAttempt(ctx, "u1", "qz1", start.Attempt.ID, []quiz.SubmittedAnswer{
		{QuestionID: "q1", AnswerID: "a1"},
		{QuestionID: "ghost", Text: "ignored"}, // unknown question ids are dropped
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 40.0 {
		t.Fatalf("expected score 40.0, got %v", res.Score)
	}
	if res.TotalPoints != 2 || res.MaxPoints != 5 {
		t.Fatalf("expected 2/5 points, got %d/%d", res.TotalPoints, res.MaxPoints)
	}
	if res.IsPassed {
		t.Fatalf("40%% must not pass a 50%% threshold")
	}
	if res.CertificateGenerated {
		t.Fatalf("failing attempt must not generate a certificate")
	}
	if n := f.count(`SELECT COUNT(*) FROM certificates`); n != 0 {
		t.Fatalf("expected 0 certificates, got %d", n)
	}
	if n := f.count(`SELECT COUNT(*) FROM quiz_responses WHERE attempt_id=$1`, start.Attempt.ID); n != 1 {
		t.Fatalf("expected 1 response row, got %d", n)
	}
}

func TestSubmitPassIssuesCertificateExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)
	ctx := context.Background()

	start, _ := f.store.StartAttempt(ctx, "u1", "qz1")
	answers := []quiz.SubmittedAnswer{
		{QuestionID: "q1", AnswerID: "a1"},
		{QuestionID: "q2", Text: " paris "}, // trimmed, case-insensitive
	}
	res, err := f.store.SubmitAttempt(ctx, "u1", "qz1", start.Attempt.ID, answers)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 100.0 || !res.IsPassed {
		t.Fatalf("expected passing 100.0, got %+v", res)
	}
	if !res.CertificateGenerated || res.CertificateID == "" {
		t.Fatalf("expected certificate, got %+v", res)
	}

	// retried request: the attempt is terminal, nothing is re-scored
	_, err = f.store.SubmitAttempt(ctx, "u1", "qz1", start.Attempt.ID, answers)
	if !errors.Is(err, quiz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double submit, got %v", err)
	}
	if n := f.count(`SELECT COUNT(*) FROM certificates WHERE attempt_id=$1`, start.Attempt.ID); n != 1 {
		t.Fatalf("expected exactly 1 certificate, got %d", n)
	}
}

func TestSubmitRecordsCourseCompletion(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)
	ctx := context.Background()

	start, _ := f.store.StartAttempt(ctx, "u1", "qz1")
	_, err := f.store.SubmitAttempt(ctx, "u1", "qz1", start.Attempt.ID, []quiz.SubmittedAnswer{
		{QuestionID: "q1", AnswerID: "a1"},
		{QuestionID: "q2", Text: "Paris"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n := f.count(`SELECT COUNT(*) FROM course_completions WHERE user_id='u1' AND course_id='c1'`); n != 1 {
		t.Fatalf("expected course completion row, got %d", n)
	}
}

func TestSubmitTimeLimitExceeded(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(10)
	ctx := context.Background()

	start, _ := f.store.StartAttempt(ctx, "u1", "qz1")
	f.advance(11 * time.Minute)

	_, err := f.store.SubmitAttempt(ctx, "u1", "qz1", start.Attempt.ID, []quiz.SubmittedAnswer{
		{QuestionID: "q1", AnswerID: "a1"},
	})
	if !errors.Is(err, quiz.ErrTimeLimitExceeded) {
		t.Fatalf("expected ErrTimeLimitExceeded, got %v", err)
	}
	// no partial writes: attempt is still active and resubmittable
	if n := f.count(`SELECT COUNT(*) FROM quiz_responses WHERE attempt_id=$1`, start.Attempt.ID); n != 0 {
		t.Fatalf("expected 0 response rows after rejection, got %d", n)
	}
	again, err := f.store.StartAttempt(ctx, "u1", "qz1")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if again.Attempt.ID != start.Attempt.ID {
		t.Fatalf("rejected attempt must remain the active one")
	}
}

func TestSubmitAtExactLimitAllowed(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(10)
	ctx := context.Background()

	start, _ := f.store.StartAttempt(ctx, "u1", "qz1")
	f.advance(10 * time.Minute)

	res, err := f.store.SubmitAttempt(ctx, "u1", "qz1", start.Attempt.ID, []quiz.SubmittedAnswer{
		{QuestionID: "q1", AnswerID: "a1"},
	})
	if err != nil {
		t.Fatalf("submit at the limit: %v", err)
	}
	if res.TimeSpentMin != 10 {
		t.Fatalf("expected 10 minutes spent, got %d", res.TimeSpentMin)
	}
}

func TestRetryCreatesFreshAttempt(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)
	ctx := context.Background()

	start, _ := f.store.StartAttempt(ctx, "u1", "qz1")
	if _, err := f.store.SubmitAttempt(ctx, "u1", "qz1", start.Attempt.ID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	retry, err := f.store.StartAttempt(ctx, "u1", "qz1")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if retry.Attempt.ID == start.Attempt.ID {
		t.Fatalf("completed attempts must never reopen")
	}
}

func TestMaxPointsSnapshotAtStart(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)
	ctx := context.Background()

	start, _ := f.store.StartAttempt(ctx, "u1", "qz1")

	// content edit mid-attempt must not change the denominator
	f.exec(`INSERT INTO questions (id, quiz_id, text, qtype, points, order_index)
		VALUES ('q3', 'qz1', 'Late addition', 'true_false', 10, 3)`)

	res, err := f.store.SubmitAttempt(ctx, "u1", "qz1", start.Attempt.ID, []quiz.SubmittedAnswer{
		{QuestionID: "q1", AnswerID: "a1"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.MaxPoints != 5 || res.Score != 40.0 {
		t.Fatalf("expected snapshot max 5 / score 40, got %d / %v", res.MaxPoints, res.Score)
	}
}

func TestEmptyQuizScoresZero(t *testing.T) {
	f := newFixture(t)
	f.exec(`INSERT INTO courses (id, title, created_at) VALUES ('c1', 'Empty', 0)`)
	f.exec(`INSERT INTO chapters (id, course_id, title, order_index) VALUES ('ch1', 'c1', 'Empty', 1)`)
	err := f.store.UpsertQuiz(context.Background(), quiz.Quiz{
		ID: "qz-empty", ChapterID: "ch1", Title: "Empty", PassingScore: 50, IsActive: true,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	ctx := context.Background()

	start, _ := f.store.StartAttempt(ctx, "u1", "qz-empty")
	res, err := f.store.SubmitAttempt(ctx, "u1", "qz-empty", start.Attempt.ID, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 0 || res.IsPassed {
		t.Fatalf("maxPoints=0 must yield a defined 0 score, got %+v", res)
	}
}

func TestSubmitWrongOwnerOrQuiz(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)
	ctx := context.Background()

	start, _ := f.store.StartAttempt(ctx, "u1", "qz1")
	if _, err := f.store.SubmitAttempt(ctx, "u2", "qz1", start.Attempt.ID, nil); !errors.Is(err, quiz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign attempt, got %v", err)
	}
	if _, err := f.store.SubmitAttempt(ctx, "u1", "other", start.Attempt.ID, nil); !errors.Is(err, quiz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong quiz, got %v", err)
	}
}

func TestGetResults(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)
	ctx := context.Background()

	start, _ := f.store.StartAttempt(ctx, "u1", "qz1")

	if _, err := f.store.GetResults(ctx, "u1", "qz1", start.Attempt.ID); !errors.Is(err, quiz.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for active attempt, got %v", err)
	}

	if _, err := f.store.SubmitAttempt(ctx, "u1", "qz1", start.Attempt.ID, []quiz.SubmittedAnswer{
		{QuestionID: "q1", AnswerID: "a2"},
		{QuestionID: "q2", Text: "Paris"},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	view, err := f.store.GetResults(ctx, "u1", "qz1", start.Attempt.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(view.Responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(view.Responses))
	}
	if r := view.Responses["q1"]; r.IsCorrect || r.PointsEarned != 0 {
		t.Fatalf("q1 graded wrong: %+v", r)
	}
	if r := view.Responses["q2"]; !r.IsCorrect || r.PointsEarned != 3 {
		t.Fatalf("q2 graded wrong: %+v", r)
	}
	// review payload includes the key so the learner can see what was right
	var sawKey bool
	for _, q := range view.Quiz.Questions {
		for _, a := range q.Answers {
			if a.IsCorrect {
				sawKey = true
			}
		}
	}
	if !sawKey {
		t.Fatalf("results view should include the answer key")
	}
	// 3/5 = 60 >= 50: passed, certificate attached
	if view.Certificate == nil {
		t.Fatalf("expected certificate on passing attempt")
	}

	// ownership is enforced unless the staff path clears the filter
	if _, err := f.store.GetResults(ctx, "u2", "qz1", start.Attempt.ID); !errors.Is(err, quiz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign viewer, got %v", err)
	}
	if _, err := f.store.GetResults(ctx, "", "qz1", start.Attempt.ID); err != nil {
		t.Fatalf("staff view failed: %v", err)
	}
}

func TestListAttempts(t *testing.T) {
	f := newFixture(t)
	f.seedQuiz(0)
	ctx := context.Background()

	start, _ := f.store.StartAttempt(ctx, "u1", "qz1")
	if _, err := f.store.SubmitAttempt(ctx, "u1", "qz1", start.Attempt.ID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.advance(time.Minute)
	if _, err := f.store.StartAttempt(ctx, "u1", "qz1"); err != nil {
		t.Fatalf("second start: %v", err)
	}

	all, err := f.store.ListAttempts(ctx, quiz.AttemptListOpts{UserID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(all))
	}
	active, err := f.store.ListAttempts(ctx, quiz.AttemptListOpts{UserID: "u1", Status: "active"})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || !active[0].Active() {
		t.Fatalf("expected 1 active attempt, got %+v", active)
	}
}
