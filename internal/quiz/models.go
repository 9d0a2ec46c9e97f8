package quiz

import "github.com/SanmishaTech/AgriSkills-sub001/internal/cert"

// Question types. The taxonomy is closed; content authoring enforces it.
const (
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeFillInBlank    = "fill_in_blank"
)

type Answer struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct,omitempty"` // stripped on student-safe views
	OrderIndex int    `json:"order_index"`
}

type Question struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Type       string   `json:"type"`
	Points     int      `json:"points"`
	OrderIndex int      `json:"order_index"`
	Answers    []Answer `json:"answers"`
}

type Quiz struct {
	ID           string     `json:"id"`
	ChapterID    string     `json:"chapter_id"`
	Title        string     `json:"title"`
	PassingScore int        `json:"passing_score"`          // percentage, 1-100
	TimeLimitMin int        `json:"time_limit_min"`         // 0 = no limit
	IsActive     bool       `json:"is_active"`
	Questions    []Question `json:"questions"`
}

// SanitizeForStudent strips answer keys so a client cannot infer which
// option is correct.
func (q *Quiz) SanitizeForStudent() {
	for i := range q.Questions {
		for j := range q.Questions[i].Answers {
			q.Questions[i].Answers[j].IsCorrect = false
		}
	}
}

// Attempt is one learner's run through a quiz. completed_at == nil means
// the attempt is still active.
type Attempt struct {
	ID           string  `json:"id"`
	QuizID       string  `json:"quiz_id"`
	UserID       string  `json:"user_id"`
	StartedAt    int64   `json:"started_at"`
	CompletedAt  *int64  `json:"completed_at,omitempty"`
	Score        float64 `json:"score"`
	TotalPoints  int     `json:"total_points"`
	MaxPoints    int     `json:"max_points"`
	IsPassed     bool    `json:"is_passed"`
	TimeSpentMin *int64  `json:"time_spent_min,omitempty"`
}

// Active reports whether the attempt has not yet reached its terminal state.
func (a Attempt) Active() bool { return a.CompletedAt == nil }

// Response is one graded answer within a submitted attempt. Rows are written
// as a batch at submission time and never updated.
type Response struct {
	ID           string `json:"id"`
	AttemptID    string `json:"attempt_id"`
	QuestionID   string `json:"question_id"`
	AnswerID     string `json:"answer_id,omitempty"`
	ResponseText string `json:"response_text,omitempty"`
	IsCorrect    bool   `json:"is_correct"`
	PointsEarned int    `json:"points_earned"`
}

// SubmittedAnswer is the per-question input to SubmitAttempt.
type SubmittedAnswer struct {
	QuestionID string `json:"question_id"`
	AnswerID   string `json:"answer_id,omitempty"`
	Text       string `json:"text,omitempty"`
}

// StartResult is the StartAttempt payload: the attempt plus the student-safe
// quiz content (no correctness flags).
type StartResult struct {
	Attempt Attempt `json:"attempt"`
	Quiz    Quiz    `json:"quiz"`
}

// SubmitResult is the terminal summary of a scored attempt.
type SubmitResult struct {
	Score                float64 `json:"score"`
	TotalPoints          int     `json:"total_points"`
	MaxPoints            int     `json:"max_points"`
	IsPassed             bool    `json:"is_passed"`
	PassingScore         int     `json:"passing_score"`
	TimeSpentMin         int64   `json:"time_spent_min"`
	CompletedAt          int64   `json:"completed_at"`
	CertificateGenerated bool    `json:"certificate_generated"`
	CertificateID        string  `json:"certificate_id,omitempty"`
	CertificateURL       string  `json:"certificate_url,omitempty"`
}

// ResultsView is the review payload for a completed attempt: full quiz with
// answer keys, the learner's responses keyed by question, and the
// certificate when one was issued.
type ResultsView struct {
	Attempt     Attempt             `json:"attempt"`
	Quiz        Quiz                `json:"quiz"`
	Responses   map[string]Response `json:"responses"` // question_id -> response
	Certificate *cert.Certificate   `json:"certificate,omitempty"`
}
