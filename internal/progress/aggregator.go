package progress

import (
	"context"
	"database/sql"
	"math"
)

// Aggregator answers course-level progress questions. Read-only and
// computed on demand; nothing here writes.
type Aggregator struct {
	db *sql.DB
}

func New(db *sql.DB) *Aggregator { return &Aggregator{db: db} }

// CompletedCourse is one entry in the certificate listing, deduplicated so
// only the earliest certificate per course is surfaced.
type CompletedCourse struct {
	CourseID       string  `json:"course_id"`
	CourseTitle    string  `json:"course_title"`
	CertificateID  string  `json:"certificate_id"`
	AttemptID      string  `json:"attempt_id"`
	Score          float64 `json:"score"`
	IssuedAt       int64   `json:"issued_at"`
	CertificateURL string  `json:"certificate_url,omitempty"`
}

type InProgressCourse struct {
	CourseID          string `json:"course_id"`
	CourseTitle       string `json:"course_title"`
	ChaptersCompleted int    `json:"chapters_completed"`
	TotalChapters     int    `json:"total_chapters"`
	Progress          int    `json:"progress"` // round(passed/total*100)
}

type Summary struct {
	OverallProgress int                `json:"overall_progress"`
	Completed       []CompletedCourse  `json:"completed"`
	InProgress      []InProgressCourse `json:"in_progress"`
}

// ListCertificates returns the user's certificates joined through
// attempt→quiz→chapter→course, earliest first, keeping only the first
// certificate per distinct course. Later retake certificates stay stored;
// this is a display-level policy, not a deletion.
func (g *Aggregator) ListCertificates(ctx context.Context, userID string) ([]CompletedCourse, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT ct.id, ct.attempt_id, ct.issued_at, ct.certificate_url,
		        a.score, co.id, co.title
		   FROM certificates ct
		   JOIN quiz_attempts a ON a.id = ct.attempt_id
		   JOIN quizzes q ON q.id = a.quiz_id
		   JOIN chapters ch ON ch.id = q.chapter_id
		   JOIN courses co ON co.id = ch.course_id
		  WHERE ct.user_id=$1
		  ORDER BY ct.issued_at ASC, ct.id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[string]bool{}
	var out []CompletedCourse
	for rows.Next() {
		var c CompletedCourse
		var url sql.NullString
		if err := rows.Scan(&c.CertificateID, &c.AttemptID, &c.IssuedAt, &url, &c.Score, &c.CourseID, &c.CourseTitle); err != nil {
			return nil, err
		}
		if seen[c.CourseID] {
			continue
		}
		seen[c.CourseID] = true
		c.CertificateURL = url.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListInProgress returns, for every course the user has attempted but not
// completed, the distinct-quiz pass count against the course's active quiz
// total. Courses already recorded in course_completions are excluded.
func (g *Aggregator) ListInProgress(ctx context.Context, userID string) ([]InProgressCourse, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT co.id, co.title,
		        COUNT(DISTINCT q.id) AS total,
		        COUNT(DISTINCT CASE WHEN a.is_passed THEN q.id END) AS passed
		   FROM courses co
		   JOIN chapters ch ON ch.course_id = co.id
		   JOIN quizzes q ON q.chapter_id = ch.id AND q.is_active
		   LEFT JOIN quiz_attempts a
		     ON a.quiz_id = q.id AND a.user_id = $1 AND a.completed_at IS NOT NULL
		  WHERE co.id NOT IN (SELECT course_id FROM course_completions WHERE user_id = $1)
		  GROUP BY co.id, co.title
		 HAVING COUNT(a.id) > 0
		  ORDER BY co.title`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InProgressCourse
	for rows.Next() {
		var c InProgressCourse
		if err := rows.Scan(&c.CourseID, &c.CourseTitle, &c.TotalChapters, &c.ChaptersCompleted); err != nil {
			return nil, err
		}
		if c.TotalChapters > 0 {
			c.Progress = roundPct(c.ChaptersCompleted, c.TotalChapters)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Summary combines the certificate listing, in-progress courses, and the
// overall percentage: round(completed / (completed + inProgress) * 100),
// zero when no courses were touched.
func (g *Aggregator) Summary(ctx context.Context, userID string) (Summary, error) {
	completed, err := g.ListCertificates(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	inProgress, err := g.ListInProgress(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{
		Completed:  completed,
		InProgress: inProgress,
	}
	if touched := len(completed) + len(inProgress); touched > 0 {
		s.OverallProgress = roundPct(len(completed), touched)
	}
	return s, nil
}

func roundPct(part, whole int) int {
	return int(math.Round(float64(part) / float64(whole) * 100))
}
