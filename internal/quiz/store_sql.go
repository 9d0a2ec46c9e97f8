package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/SanmishaTech/AgriSkills-sub001/internal/cert"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/grading"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/syncx"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	grader grading.Grader
	issuer cert.Issuer
	events *syncx.EventRepo
	now    func() time.Time
}

// NewSQLStore wires the attempt engine against a database. A nil clock
// defaults to time.Now; tests inject a fixed one.
func NewSQLStore(db *sql.DB, driver string, grader grading.Grader, events *syncx.EventRepo, now func() time.Time) *SQLStore {
	if now == nil {
		now = time.Now
	}
	return &SQLStore{db: db, driver: driver, grader: grader, events: events, now: now}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) UpsertQuiz(ctx context.Context, q Quiz) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO quizzes (id, chapter_id, title, passing_score, time_limit_min, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, passing_score=EXCLUDED.passing_score,
			time_limit_min=EXCLUDED.time_limit_min, is_active=EXCLUDED.is_active`,
		q.ID, q.ChapterID, q.Title, q.PassingScore, q.TimeLimitMin, q.IsActive)
	if err != nil {
		return err
	}
	// content replace: simpler than diffing question rows
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE quiz_id=$1`, q.ID); err != nil {
		return err
	}
	for _, question := range q.Questions {
		if question.ID == "" {
			question.ID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO questions (id, quiz_id, text, qtype, points, order_index)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			question.ID, q.ID, question.Text, question.Type, question.Points, question.OrderIndex)
		if err != nil {
			return err
		}
		for _, ans := range question.Answers {
			if ans.ID == "" {
				ans.ID = uuid.NewString()
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO answers (id, question_id, text, is_correct, order_index)
				VALUES ($1,$2,$3,$4,$5)`,
				ans.ID, question.ID, ans.Text, ans.IsCorrect, ans.OrderIndex)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetQuizForStudent(ctx context.Context, quizID string) (Quiz, error) {
	q, err := s.loadQuiz(ctx, s.db, quizID)
	if err != nil {
		return Quiz{}, err
	}
	if !q.IsActive {
		return Quiz{}, ErrNotFound
	}
	q.SanitizeForStudent()
	return q, nil
}

// loadQuiz returns the full quiz including answer keys. Callers serving
// students must sanitize before encoding.
func (s *SQLStore) loadQuiz(ctx context.Context, qr queryer, quizID string) (Quiz, error) {
	var q Quiz
	err := qr.QueryRowContext(ctx,
		`SELECT id, chapter_id, title, passing_score, time_limit_min, is_active
		   FROM quizzes WHERE id=$1`, quizID).
		Scan(&q.ID, &q.ChapterID, &q.Title, &q.PassingScore, &q.TimeLimitMin, &q.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, ErrNotFound
		}
		return Quiz{}, err
	}

	rows, err := qr.QueryContext(ctx,
		`SELECT id, text, qtype, points, order_index
		   FROM questions WHERE quiz_id=$1 ORDER BY order_index`, quizID)
	if err != nil {
		return Quiz{}, err
	}
	defer rows.Close()
	byID := map[string]int{}
	for rows.Next() {
		var question Question
		if err := rows.Scan(&question.ID, &question.Text, &question.Type, &question.Points, &question.OrderIndex); err != nil {
			return Quiz{}, err
		}
		byID[question.ID] = len(q.Questions)
		q.Questions = append(q.Questions, question)
	}
	if err := rows.Err(); err != nil {
		return Quiz{}, err
	}

	arows, err := qr.QueryContext(ctx,
		`SELECT a.id, a.question_id, a.text, a.is_correct, a.order_index
		   FROM answers a JOIN questions qq ON qq.id=a.question_id
		  WHERE qq.quiz_id=$1 ORDER BY a.order_index`, quizID)
	if err != nil {
		return Quiz{}, err
	}
	defer arows.Close()
	for arows.Next() {
		var a Answer
		var questionID string
		if err := arows.Scan(&a.ID, &questionID, &a.Text, &a.IsCorrect, &a.OrderIndex); err != nil {
			return Quiz{}, err
		}
		if i, ok := byID[questionID]; ok {
			q.Questions[i].Answers = append(q.Questions[i].Answers, a)
		}
	}
	return q, arows.Err()
}

func (s *SQLStore) StartAttempt(ctx context.Context, userID, quizID string) (StartResult, error) {
	if userID == "" {
		return StartResult{}, ErrUnauthorized
	}
	q, err := s.loadQuiz(ctx, s.db, quizID)
	if err != nil {
		return StartResult{}, err
	}
	if !q.IsActive {
		return StartResult{}, ErrNotFound
	}
	q.SanitizeForStudent()

	// idempotent re-entry: a page refresh must not create a second attempt
	if a, err := s.activeAttempt(ctx, userID, quizID); err == nil {
		return StartResult{Attempt: a, Quiz: q}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return StartResult{}, err
	}

	maxPoints := 0
	for _, question := range q.Questions {
		maxPoints += question.Points
	}
	a := Attempt{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		UserID:    userID,
		StartedAt: s.now().Unix(),
		MaxPoints: maxPoints,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quiz_attempts (id, quiz_id, user_id, started_at, score, total_points, max_points, is_passed)
		 VALUES ($1,$2,$3,$4,0,0,$5,$6)`,
		a.ID, a.QuizID, a.UserID, a.StartedAt, a.MaxPoints, false)
	if err != nil {
		if isUniqueViolation(err) {
			// lost a concurrent start race: the winner's attempt is ours too
			existing, lerr := s.activeAttempt(ctx, userID, quizID)
			if lerr != nil {
				return StartResult{}, lerr
			}
			return StartResult{Attempt: existing, Quiz: q}, nil
		}
		return StartResult{}, err
	}
	return StartResult{Attempt: a, Quiz: q}, nil
}

func (s *SQLStore) activeAttempt(ctx context.Context, userID, quizID string) (Attempt, error) {
	var a Attempt
	err := s.db.QueryRowContext(ctx,
		`SELECT id, quiz_id, user_id, started_at, score, total_points, max_points, is_passed
		   FROM quiz_attempts
		  WHERE user_id=$1 AND quiz_id=$2 AND completed_at IS NULL`,
		userID, quizID).
		Scan(&a.ID, &a.QuizID, &a.UserID, &a.StartedAt, &a.Score, &a.TotalPoints, &a.MaxPoints, &a.IsPassed)
	return a, err
}

func (s *SQLStore) SubmitAttempt(ctx context.Context, userID, quizID, attemptID string, answers []SubmittedAnswer) (SubmitResult, error) {
	if userID == "" {
		return SubmitResult{}, ErrUnauthorized
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SubmitResult{}, err
	}
	defer tx.Rollback()

	var startedAt int64
	var maxPoints int
	err = tx.QueryRowContext(ctx,
		`SELECT started_at, max_points FROM quiz_attempts
		  WHERE id=$1 AND quiz_id=$2 AND user_id=$3 AND completed_at IS NULL`,
		attemptID, quizID, userID).
		Scan(&startedAt, &maxPoints)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SubmitResult{}, ErrNotFound
		}
		return SubmitResult{}, err
	}

	q, err := s.loadQuiz(ctx, tx, quizID)
	if err != nil {
		return SubmitResult{}, err
	}

	elapsed := now.Sub(time.Unix(startedAt, 0))
	if q.TimeLimitMin > 0 && elapsed > time.Duration(q.TimeLimitMin)*time.Minute {
		// refuse late submissions; the attempt itself stays active
		return SubmitResult{}, ErrTimeLimitExceeded
	}

	questionByID := make(map[string]Question, len(q.Questions))
	for _, question := range q.Questions {
		questionByID[question.ID] = question
	}

	// last submission per question wins; unknown question ids are dropped
	graded := make([]Response, 0, len(answers))
	slot := map[string]int{}
	totalPoints := 0
	for _, sa := range answers {
		question, ok := questionByID[sa.QuestionID]
		if !ok {
			continue
		}
		res := s.grader.Grade(gradingQ(question), grading.Response{AnswerID: sa.AnswerID, Text: sa.Text})
		r := Response{
			ID:           uuid.NewString(),
			AttemptID:    attemptID,
			QuestionID:   sa.QuestionID,
			AnswerID:     sa.AnswerID,
			ResponseText: sa.Text,
			IsCorrect:    res.Correct,
			PointsEarned: res.PointsEarned,
		}
		if i, seen := slot[sa.QuestionID]; seen {
			totalPoints += res.PointsEarned - graded[i].PointsEarned
			graded[i] = r
			continue
		}
		slot[sa.QuestionID] = len(graded)
		graded = append(graded, r)
		totalPoints += res.PointsEarned
	}

	score := 0.0
	if maxPoints > 0 {
		score = float64(totalPoints) / float64(maxPoints) * 100
	}
	isPassed := score >= float64(q.PassingScore)
	timeSpent := int64(elapsed.Minutes())
	completedAt := now.Unix()

	for _, r := range graded {
		var answerID any
		if r.AnswerID != "" {
			answerID = r.AnswerID
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO quiz_responses (id, attempt_id, question_id, answer_id, response_text, is_correct, points_earned)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			r.ID, r.AttemptID, r.QuestionID, answerID, r.ResponseText, r.IsCorrect, r.PointsEarned)
		if err != nil {
			return SubmitResult{}, err
		}
	}

	// conditional on the attempt still being active: exactly one of two
	// racing submissions can flip it to completed
	res, err := tx.ExecContext(ctx,
		`UPDATE quiz_attempts
		    SET completed_at=$1, score=$2, total_points=$3, is_passed=$4, time_spent_min=$5
		  WHERE id=$6 AND completed_at IS NULL`,
		completedAt, score, totalPoints, isPassed, timeSpent, attemptID)
	if err != nil {
		return SubmitResult{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return SubmitResult{}, err
	} else if n == 0 {
		return SubmitResult{}, ErrNotFound
	}

	out := SubmitResult{
		Score:        score,
		TotalPoints:  totalPoints,
		MaxPoints:    maxPoints,
		IsPassed:     isPassed,
		PassingScore: q.PassingScore,
		TimeSpentMin: timeSpent,
		CompletedAt:  completedAt,
	}

	var issued *cert.Certificate
	if isPassed {
		c, created, err := s.issuer.Issue(ctx, tx, userID, attemptID, now)
		if err != nil {
			return SubmitResult{}, err
		}
		out.CertificateGenerated = created
		out.CertificateID = c.ID
		if created {
			issued = &c
		}
		if err := s.recordCompletion(ctx, tx, userID, quizID, now); err != nil {
			return SubmitResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return SubmitResult{}, err
	}

	s.appendEvent(ctx, syncx.EventAttemptSubmitted, attemptID, map[string]any{
		"attempt_id": attemptID,
		"quiz_id":    quizID,
		"user_id":    userID,
		"score":      score,
		"is_passed":  isPassed,
	})
	if issued != nil {
		s.appendEvent(ctx, syncx.EventCertificateIssued, issued.ID, map[string]any{
			"certificate_id": issued.ID,
			"attempt_id":     attemptID,
			"user_id":        userID,
		})
	}
	return out, nil
}

// recordCompletion marks the course completed once every active quiz in it
// has a passing attempt by this user. Runs inside the submit transaction so
// the aggregator never sees a passed-last-quiz without the completion row.
func (s *SQLStore) recordCompletion(ctx context.Context, tx *sql.Tx, userID, quizID string, now time.Time) error {
	var courseID string
	err := tx.QueryRowContext(ctx,
		`SELECT ch.course_id FROM quizzes q JOIN chapters ch ON ch.id=q.chapter_id WHERE q.id=$1`,
		quizID).Scan(&courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil // quiz not attached to course content yet
		}
		return err
	}
	var total, passed int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quizzes q JOIN chapters ch ON ch.id=q.chapter_id
		  WHERE ch.course_id=$1 AND q.is_active`, courseID).Scan(&total)
	if err != nil {
		return err
	}
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT a.quiz_id)
		   FROM quiz_attempts a
		   JOIN quizzes q ON q.id=a.quiz_id
		   JOIN chapters ch ON ch.id=q.chapter_id
		  WHERE ch.course_id=$1 AND a.user_id=$2 AND a.is_passed`,
		courseID, userID).Scan(&passed)
	if err != nil {
		return err
	}
	if total == 0 || passed < total {
		return nil
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO course_completions (user_id, course_id, completed_at)
		 VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`,
		userID, courseID, now.Unix())
	return err
}

func (s *SQLStore) GetResults(ctx context.Context, userID, quizID, attemptID string) (ResultsView, error) {
	a, err := s.getAttempt(ctx, userID, quizID, attemptID)
	if err != nil {
		return ResultsView{}, err
	}
	if a.Active() {
		return ResultsView{}, ErrInvalidState
	}
	q, err := s.loadQuiz(ctx, s.db, quizID)
	if err != nil {
		return ResultsView{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attempt_id, question_id, answer_id, response_text, is_correct, points_earned
		   FROM quiz_responses WHERE attempt_id=$1`, attemptID)
	if err != nil {
		return ResultsView{}, err
	}
	defer rows.Close()
	responses := map[string]Response{}
	for rows.Next() {
		var r Response
		var answerID sql.NullString
		if err := rows.Scan(&r.ID, &r.AttemptID, &r.QuestionID, &answerID, &r.ResponseText, &r.IsCorrect, &r.PointsEarned); err != nil {
			return ResultsView{}, err
		}
		r.AnswerID = answerID.String
		responses[r.QuestionID] = r
	}
	if err := rows.Err(); err != nil {
		return ResultsView{}, err
	}

	c, err := cert.GetByAttempt(ctx, s.db, attemptID)
	if err != nil {
		return ResultsView{}, err
	}
	return ResultsView{Attempt: a, Quiz: q, Responses: responses, Certificate: c}, nil
}

func (s *SQLStore) getAttempt(ctx context.Context, userID, quizID, attemptID string) (Attempt, error) {
	sqlStr := `SELECT id, quiz_id, user_id, started_at, completed_at, score, total_points, max_points, is_passed, time_spent_min
		   FROM quiz_attempts WHERE id=$1 AND quiz_id=$2`
	args := []any{attemptID, quizID}
	if userID != "" {
		sqlStr += ` AND user_id=$3`
		args = append(args, userID)
	}
	var a Attempt
	var completedAt, timeSpent sql.NullInt64
	err := s.db.QueryRowContext(ctx, sqlStr, args...).
		Scan(&a.ID, &a.QuizID, &a.UserID, &a.StartedAt, &completedAt, &a.Score, &a.TotalPoints, &a.MaxPoints, &a.IsPassed, &timeSpent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, err
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Int64
	}
	if timeSpent.Valid {
		a.TimeSpentMin = &timeSpent.Int64
	}
	return a, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	sqlStr := `SELECT id, quiz_id, user_id, started_at, completed_at, score, total_points, max_points, is_passed, time_spent_min
		   FROM quiz_attempts WHERE 1=1`
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		sqlStr += fmt.Sprintf(" AND %s=$%d", cond, len(args))
	}
	if opts.QuizID != "" {
		add("quiz_id", opts.QuizID)
	}
	if opts.UserID != "" {
		add("user_id", opts.UserID)
	}
	switch opts.Status {
	case "active":
		sqlStr += " AND completed_at IS NULL"
	case "completed":
		sqlStr += " AND completed_at IS NOT NULL"
	}
	switch opts.Sort {
	case "completed_at desc":
		sqlStr += " ORDER BY completed_at DESC"
	default:
		sqlStr += " ORDER BY started_at DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, opts.Offset)
	sqlStr += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		var a Attempt
		var completedAt, timeSpent sql.NullInt64
		if err := rows.Scan(&a.ID, &a.QuizID, &a.UserID, &a.StartedAt, &completedAt, &a.Score, &a.TotalPoints, &a.MaxPoints, &a.IsPassed, &timeSpent); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			a.CompletedAt = &completedAt.Int64
		}
		if timeSpent.Valid {
			a.TimeSpentMin = &timeSpent.Int64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) appendEvent(ctx context.Context, typ, key string, data map[string]any) {
	if s.events == nil {
		return
	}
	buf, _ := json.Marshal(data)
	if err := s.events.Append(ctx, syncx.Event{Type: typ, Key: key, DataJSON: string(buf)}); err != nil {
		log.Printf("event log append (%s %s): %v", typ, key, err)
	}
}

func gradingQ(q Question) grading.Q {
	keys := make([]grading.Key, 0, len(q.Answers))
	for _, a := range q.Answers {
		keys = append(keys, grading.Key{ID: a.ID, Text: a.Text, Correct: a.IsCorrect})
	}
	return grading.Q{Type: q.Type, Points: q.Points, Answers: keys}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// sqlite: "constraint failed: UNIQUE constraint failed: ..."
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
