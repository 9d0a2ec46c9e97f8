package quiz

import "context"

type AttemptListOpts struct {
	QuizID string // filter by quiz
	UserID string // filter by learner
	Status string // optional: active|completed
	Limit  int
	Offset int
	Sort   string // started_at|completed_at desc (default: started_at desc)
}

type Store interface {
	// Content ingestion point for seeding and admin tooling. The full
	// content CRUD surface lives elsewhere.
	UpsertQuiz(ctx context.Context, q Quiz) error

	// GetQuizForStudent returns an active quiz without answer keys.
	GetQuizForStudent(ctx context.Context, quizID string) (Quiz, error)

	// StartAttempt returns the existing active attempt for (user, quiz) or
	// creates a new one. Idempotent with respect to page refreshes.
	StartAttempt(ctx context.Context, userID, quizID string) (StartResult, error)

	// SubmitAttempt grades and closes an active attempt atomically:
	// response rows, the attempt update, certificate issuance and course
	// completion recording land in one transaction or not at all.
	SubmitAttempt(ctx context.Context, userID, quizID, attemptID string, answers []SubmittedAnswer) (SubmitResult, error)

	// GetResults returns the review payload for a completed attempt.
	// userID == "" skips the ownership filter (staff view).
	GetResults(ctx context.Context, userID, quizID, attemptID string) (ResultsView, error)

	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
}
