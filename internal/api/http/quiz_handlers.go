package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SanmishaTech/AgriSkills-sub001/internal/cache"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/quiz"
)

// GET /quizzes/{quizID}/preview
// Unauthenticated free preview: quiz content with answers withheld, nothing
// persisted, no grading.
func PreviewQuizHandler(store quiz.Store, qc cache.QuizCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStudentQuiz(w, r, store, qc)
	}
}

// GET /quizzes/{quizID} (authenticated)
func GetQuizHandler(store quiz.Store, qc cache.QuizCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStudentQuiz(w, r, store, qc)
	}
}

// cache-aside over the student-safe payload; entries never hold answer keys
func writeStudentQuiz(w http.ResponseWriter, r *http.Request, store quiz.Store, qc cache.QuizCache) {
	quizID := chi.URLParam(r, "quizID")
	if qc != nil {
		if q, err := qc.Get(r.Context(), quizID); err == nil {
			writeJSON(w, q)
			return
		}
	}
	q, err := store.GetQuizForStudent(r.Context(), quizID)
	if err != nil {
		writeEngineErr(w, err)
		return
	}
	if qc != nil {
		if err := qc.Set(r.Context(), &q); err != nil {
			log.Printf("quiz cache set %s: %v", quizID, err)
		}
	}
	writeJSON(w, q)
}

type answerReq struct {
	ID         string `json:"id"`
	Text       string `json:"text" validate:"required"`
	IsCorrect  bool   `json:"is_correct"`
	OrderIndex int    `json:"order_index"`
}

type questionReq struct {
	ID         string      `json:"id"`
	Text       string      `json:"text" validate:"required"`
	Type       string      `json:"type" validate:"required,oneof=multiple_choice true_false fill_in_blank"`
	Points     int         `json:"points" validate:"min=1"`
	OrderIndex int         `json:"order_index"`
	Answers    []answerReq `json:"answers" validate:"dive"`
}

type upsertQuizReq struct {
	ID           string        `json:"id" validate:"required"`
	ChapterID    string        `json:"chapter_id" validate:"required"`
	Title        string        `json:"title" validate:"required"`
	PassingScore int           `json:"passing_score" validate:"min=1,max=100"`
	TimeLimitMin int           `json:"time_limit_min" validate:"min=0"`
	IsActive     bool          `json:"is_active"`
	Questions    []questionReq `json:"questions" validate:"dive"`
}

// POST /quizzes (quiz:create) — content ingestion point for seeding and
// admin tooling; the broader content CRUD surface lives elsewhere.
func UpsertQuizHandler(store quiz.Store, qc cache.QuizCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req upsertQuizReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		q := quiz.Quiz{
			ID:           req.ID,
			ChapterID:    req.ChapterID,
			Title:        req.Title,
			PassingScore: req.PassingScore,
			TimeLimitMin: req.TimeLimitMin,
			IsActive:     req.IsActive,
		}
		for _, qq := range req.Questions {
			question := quiz.Question{
				ID:         qq.ID,
				Text:       qq.Text,
				Type:       qq.Type,
				Points:     qq.Points,
				OrderIndex: qq.OrderIndex,
			}
			for _, a := range qq.Answers {
				question.Answers = append(question.Answers, quiz.Answer{
					ID:         a.ID,
					Text:       a.Text,
					IsCorrect:  a.IsCorrect,
					OrderIndex: a.OrderIndex,
				})
			}
			q.Questions = append(q.Questions, question)
		}
		if err := store.UpsertQuiz(r.Context(), q); err != nil {
			writeEngineErr(w, err)
			return
		}
		if qc != nil {
			if err := qc.Delete(r.Context(), q.ID); err != nil {
				log.Printf("quiz cache invalidate %s: %v", q.ID, err)
			}
		}
		writeJSON(w, map[string]string{"id": q.ID})
	}
}
