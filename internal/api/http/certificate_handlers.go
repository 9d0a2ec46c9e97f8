package http

import (
	"database/sql"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/SanmishaTech/AgriSkills-sub001/internal/auth/middleware"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/progress"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/rbac"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/storage"
)

// GET /certificates
// Course-level summary: overall progress, completed courses (earliest
// certificate per course), and in-progress courses.
func ListCertificatesHandler(agg *progress.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		summary, err := agg.Summary(r.Context(), sub)
		if err != nil {
			writeEngineErr(w, err)
			return
		}
		writeJSON(w, summary)
	}
}

// GET /certificates/{certID}/download
// Streams the rendered document. Owner only, unless the caller is staff.
func DownloadCertificateHandler(db *sql.DB, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		certID := chi.URLParam(r, "certID")
		sub := authmw.SubjectFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())

		var ownerID string
		err := db.QueryRowContext(r.Context(),
			`SELECT user_id FROM certificates WHERE id=$1`, certID).Scan(&ownerID)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if ownerID != sub && role != "teacher" && role != "admin" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		rc, err := bs.Get("certificates/" + certID + ".pdf")
		if err != nil {
			http.Error(w, "document not rendered", http.StatusNotFound)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.Copy(w, rc)
	}
}
