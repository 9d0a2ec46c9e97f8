package cert

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SanmishaTech/AgriSkills-sub001/internal/storage"
)

// RenderRequest is the contract with the external certificate renderer.
type RenderRequest struct {
	StudentName string  `json:"student_name"`
	CourseName  string  `json:"course_name"`
	Score       float64 `json:"score"`
	Date        string  `json:"date"`
	Issuer      string  `json:"issuer"`
}

// Renderer produces a downloadable certificate document.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) ([]byte, error)
}

// HTTPRenderer calls a rendering service over HTTP.
type HTTPRenderer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPRenderer(endpoint string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPRenderer{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (r *HTTPRenderer) Render(ctx context.Context, req RenderRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("renderer status %d: %s", resp.StatusCode, b)
	}
	return io.ReadAll(resp.Body)
}

// Publisher renders an issued certificate and stores the document. It runs
// strictly after the issuing transaction commits; a rendering failure never
// undoes the certificate record.
type Publisher struct {
	DB         *sql.DB
	Renderer   Renderer
	Blobs      storage.BlobStore
	IssuerName string
}

// Publish renders the document for certID, stores it, and best-effort
// updates certificate_url. Returns the download path.
func (p *Publisher) Publish(ctx context.Context, certID string) (string, error) {
	if p.Renderer == nil {
		return "", nil
	}
	var (
		studentName string
		courseName  string
		score       float64
		issuedAt    int64
	)
	err := p.DB.QueryRowContext(ctx,
		`SELECT COALESCE(NULLIF(u.full_name, ''), a.user_id), co.title, a.score, ct.issued_at
		   FROM certificates ct
		   JOIN quiz_attempts a ON a.id = ct.attempt_id
		   JOIN quizzes q ON q.id = a.quiz_id
		   JOIN chapters ch ON ch.id = q.chapter_id
		   JOIN courses co ON co.id = ch.course_id
		   LEFT JOIN users u ON u.id = a.user_id
		  WHERE ct.id=$1`, certID).
		Scan(&studentName, &courseName, &score, &issuedAt)
	if err != nil {
		return "", err
	}

	doc, err := p.Renderer.Render(ctx, RenderRequest{
		StudentName: studentName,
		CourseName:  courseName,
		Score:       score,
		Date:        time.Unix(issuedAt, 0).UTC().Format("2006-01-02"),
		Issuer:      p.IssuerName,
	})
	if err != nil {
		return "", err
	}

	key := "certificates/" + certID + ".pdf"
	if _, err := p.Blobs.Put(key, bytes.NewReader(doc)); err != nil {
		return "", err
	}
	url := "/certificates/" + certID + "/download"
	_, err = p.DB.ExecContext(ctx,
		`UPDATE certificates SET certificate_url=$1 WHERE id=$2`, url, certID)
	return url, err
}
