package http

import (
	"net/http"
	"strings"

	authmw "github.com/SanmishaTech/AgriSkills-sub001/internal/auth/middleware"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/quiz"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/rbac"
)

// GET /attempts?quiz_id=...&user_id=...&status=...&limit=50&offset=0&sort=started_at+desc
// RBAC:
// - role with attempt:view-all can list any filters
// - role with attempt:view-own can only see their own attempts (user_id is forced to subject)
func ListAttemptsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := authmw.SubjectFromContext(r.Context())

		quizID := strings.TrimSpace(r.URL.Query().Get("quiz_id"))
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		sort := strings.TrimSpace(r.URL.Query().Get("sort"))
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

		if role == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if role != "admin" && role != "teacher" {
			userID = sub
		}

		list, err := store.ListAttempts(r.Context(), quiz.AttemptListOpts{
			QuizID: quizID,
			UserID: userID,
			Status: status,
			Limit:  limit,
			Offset: offset,
			Sort:   sort,
		})
		if err != nil {
			writeEngineErr(w, err)
			return
		}
		writeJSON(w, list)
	}
}
