package progress_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "modernc.org/sqlite" // driver for "sqlite"

	dbpkg "github.com/SanmishaTech/AgriSkills-sub001/internal/db"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/progress"
)

func openDB(t *testing.T) *sql.DB {
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
	return db
}

func exec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %s: %v", query, err)
	}
}

// seedCourse creates a course with n chapters, each carrying one active quiz
// ("<id>-q<i>"). Returns nothing; ids are deterministic from the course id.
func seedCourse(t *testing.T, db *sql.DB, courseID, title string, n int) {
	t.Helper()
	exec(t, db, `INSERT INTO courses (id, title, created_at) VALUES ($1, $2, 0)`, courseID, title)
	for i := 1; i <= n; i++ {
		ch := courseID + "-ch" + string(rune('0'+i))
		qz := courseID + "-q" + string(rune('0'+i))
		exec(t, db, `INSERT INTO chapters (id, course_id, title, order_index) VALUES ($1, $2, $3, $4)`,
			ch, courseID, "Chapter", i)
		exec(t, db, `INSERT INTO quizzes (id, chapter_id, title, passing_score, is_active) VALUES ($1, $2, 'Quiz', 50, 1)`,
			qz, ch)
	}
}

func completedAttempt(t *testing.T, db *sql.DB, id, quizID, userID string, score float64, passed bool, at int64) {
	t.Helper()
	p := 0
	if passed {
		p = 1
	}
	exec(t, db, `INSERT INTO quiz_attempts (id, quiz_id, user_id, started_at, completed_at, score, total_points, max_points, is_passed)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)`,
		id, quizID, userID, at-60, at, score, p)
}

func TestListCertificatesDedupsPerCourse(t *testing.T) {
	db := openDB(t)
	agg := progress.New(db)
	ctx := context.Background()

	seedCourse(t, db, "c1", "Organic Farming", 2)
	completedAttempt(t, db, "at1", "c1-q1", "u1", 80, true, 1000)
	completedAttempt(t, db, "at2", "c1-q2", "u1", 90, true, 2000)
	exec(t, db, `INSERT INTO certificates (id, user_id, attempt_id, issued_at, certificate_url)
		VALUES ('ct1', 'u1', 'at1', 1000, '/certificates/ct1/download')`)
	exec(t, db, `INSERT INTO certificates (id, user_id, attempt_id, issued_at) VALUES ('ct2', 'u1', 'at2', 2000)`)

	out, err := agg.ListCertificates(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 entry after per-course dedup, got %d", len(out))
	}
	c := out[0]
	if c.CertificateID != "ct1" || c.IssuedAt != 1000 {
		t.Fatalf("expected earliest certificate to win, got %+v", c)
	}
	if c.CourseID != "c1" || c.CourseTitle != "Organic Farming" || c.Score != 80 {
		t.Fatalf("join wrong: %+v", c)
	}
	if c.CertificateURL != "/certificates/ct1/download" {
		t.Fatalf("url wrong: %q", c.CertificateURL)
	}

	// other users' certificates are invisible
	other, err := agg.ListCertificates(ctx, "u2")
	if err != nil {
		t.Fatalf("list u2: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected empty listing for u2, got %d", len(other))
	}
}

func TestListInProgress(t *testing.T) {
	db := openDB(t)
	agg := progress.New(db)
	ctx := context.Background()

	seedCourse(t, db, "c1", "Beekeeping", 4)
	completedAttempt(t, db, "at1", "c1-q1", "u1", 100, true, 1000)
	completedAttempt(t, db, "at2", "c1-q2", "u1", 100, true, 1100)
	completedAttempt(t, db, "at3", "c1-q3", "u1", 100, true, 1200)
	completedAttempt(t, db, "at4", "c1-q4", "u1", 20, false, 1300)

	// retake of an already passed quiz must not double count
	completedAttempt(t, db, "at5", "c1-q1", "u1", 60, true, 1400)

	// untouched course never appears
	seedCourse(t, db, "c2", "Irrigation", 2)

	out, err := agg.ListInProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 in-progress course, got %d", len(out))
	}
	c := out[0]
	if c.ChaptersCompleted != 3 || c.TotalChapters != 4 {
		t.Fatalf("expected 3/4, got %d/%d", c.ChaptersCompleted, c.TotalChapters)
	}
	if c.Progress != 75 {
		t.Fatalf("expected 75%%, got %d", c.Progress)
	}
}

func TestListInProgressExcludesCompletedCourses(t *testing.T) {
	db := openDB(t)
	agg := progress.New(db)
	ctx := context.Background()

	seedCourse(t, db, "c1", "Composting", 1)
	completedAttempt(t, db, "at1", "c1-q1", "u1", 100, true, 1000)
	exec(t, db, `INSERT INTO course_completions (user_id, course_id, completed_at) VALUES ('u1', 'c1', 1000)`)

	out, err := agg.ListInProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("completed course must not be in progress, got %+v", out)
	}
}

func TestSummaryOverallProgress(t *testing.T) {
	db := openDB(t)
	agg := progress.New(db)
	ctx := context.Background()

	// one completed course, one in progress: overall 50
	seedCourse(t, db, "c1", "Composting", 1)
	completedAttempt(t, db, "at1", "c1-q1", "u1", 100, true, 1000)
	exec(t, db, `INSERT INTO certificates (id, user_id, attempt_id, issued_at) VALUES ('ct1', 'u1', 'at1', 1000)`)
	exec(t, db, `INSERT INTO course_completions (user_id, course_id, completed_at) VALUES ('u1', 'c1', 1000)`)

	seedCourse(t, db, "c2", "Beekeeping", 2)
	completedAttempt(t, db, "at2", "c2-q1", "u1", 100, true, 2000)

	s, err := agg.Summary(ctx, "u1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.OverallProgress != 50 {
		t.Fatalf("expected overall 50, got %d", s.OverallProgress)
	}
	if len(s.Completed) != 1 || len(s.InProgress) != 1 {
		t.Fatalf("expected 1 completed + 1 in progress, got %d/%d", len(s.Completed), len(s.InProgress))
	}

	// fresh user: zero, not NaN
	empty, err := agg.Summary(ctx, "nobody")
	if err != nil {
		t.Fatalf("summary nobody: %v", err)
	}
	if empty.OverallProgress != 0 {
		t.Fatalf("expected 0 for untouched user, got %d", empty.OverallProgress)
	}
}
