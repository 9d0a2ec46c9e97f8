package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	api "github.com/SanmishaTech/AgriSkills-sub001/internal/api/http"
	auth "github.com/SanmishaTech/AgriSkills-sub001/internal/auth/middleware"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/cache"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/cert"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/config"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/db"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/grading"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/progress"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/quiz"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/rbac"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/storage"
	"github.com/SanmishaTech/AgriSkills-sub001/internal/syncx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	events := syncx.NewEventRepo(dbh)
	store := quiz.NewSQLStore(dbh, cfg.DBDriver, grading.NewDefaultGrader(), events, nil)
	agg := progress.New(dbh)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Blobs + renderer ---
	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}
	var pub *cert.Publisher
	if cfg.CertRendererURL != "" {
		pub = &cert.Publisher{
			DB:         dbh,
			Renderer:   cert.NewHTTPRenderer(cfg.CertRendererURL, 15*time.Second),
			Blobs:      bs,
			IssuerName: cfg.CertIssuerName,
		}
	}

	// --- Quiz cache (optional) ---
	var qc cache.QuizCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable, quiz cache disabled: %v", err)
		} else {
			qc = cache.NewQuizCache(rdb)
		}
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Free preview: quiz content without an attempt, answers withheld
	r.Get("/quizzes/{quizID}/preview", api.PreviewQuizHandler(store, qc))

	// Protected API (JWT → subject/role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", api.UpsertQuizHandler(store, qc))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", api.GetQuizHandler(store, qc))

		// Learner flow
		pr.With(rbac.Require("attempt:create")).
			Post("/quizzes/{quizID}/attempts", api.StartAttemptHandler(store))
		pr.With(rbac.Require("attempt:submit")).
			Post("/quizzes/{quizID}/attempts/{attemptID}/submit", api.SubmitAttemptHandler(store, pub))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/quizzes/{quizID}/attempts/{attemptID}/results", api.GetResultsHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(store))

		// Certificates + progress
		pr.With(rbac.Require("certificate:view-own")).
			Get("/certificates", api.ListCertificatesHandler(agg))
		pr.With(rbac.RequireAny("certificate:view-own", "attempt:view-all")).
			Get("/certificates/{certID}/download", api.DownloadCertificateHandler(dbh, bs))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
