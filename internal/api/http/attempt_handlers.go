package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/SanmishaTech/AgriSkills-sub001/internal/auth/middleware"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/cert"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/quiz"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/rbac"
)

// POST /quizzes/{quizID}/attempts
// Returns the existing active attempt or a new one; the quiz payload never
// carries answer keys.
func StartAttemptHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		sub := authmw.SubjectFromContext(r.Context())
		res, err := store.StartAttempt(r.Context(), sub, quizID)
		if err != nil {
			writeEngineErr(w, err)
			return
		}
		writeJSON(w, res)
	}
}

type submittedAnswerReq struct {
	QuestionID string `json:"question_id" validate:"required"`
	AnswerID   string `json:"answer_id,omitempty"`
	Text       string `json:"text,omitempty"`
}

type submitAttemptReq struct {
	Answers []submittedAnswerReq `json:"answers" validate:"required,dive"`
}

// POST /quizzes/{quizID}/attempts/{attemptID}/submit
func SubmitAttemptHandler(store quiz.Store, pub *cert.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		attemptID := chi.URLParam(r, "attemptID")
		sub := authmw.SubjectFromContext(r.Context())

		var req submitAttemptReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		answers := make([]quiz.SubmittedAnswer, 0, len(req.Answers))
		for _, a := range req.Answers {
			answers = append(answers, quiz.SubmittedAnswer{
				QuestionID: a.QuestionID,
				AnswerID:   a.AnswerID,
				Text:       a.Text,
			})
		}

		res, err := store.SubmitAttempt(r.Context(), sub, quizID, attemptID, answers)
		if err != nil {
			writeEngineErr(w, err)
			return
		}

		// rendering happens after the issuing transaction committed; a
		// failure here is reported but never retracts the certificate
		if res.CertificateGenerated && pub != nil {
			if url, err := pub.Publish(r.Context(), res.CertificateID); err != nil {
				log.Printf("certificate render %s: %v", res.CertificateID, err)
			} else if url != "" {
				res.CertificateURL = url
			}
		}
		writeJSON(w, res)
	}
}

// GET /quizzes/{quizID}/attempts/{attemptID}/results
func GetResultsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		attemptID := chi.URLParam(r, "attemptID")
		sub := authmw.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())

		// staff may review any attempt; learners only their own
		userID := sub
		if role == "teacher" || role == "admin" {
			userID = ""
		}
		res, err := store.GetResults(r.Context(), userID, quizID, attemptID)
		if err != nil {
			writeEngineErr(w, err)
			return
		}
		writeJSON(w, res)
	}
}
