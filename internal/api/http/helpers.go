package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/SanmishaTech/AgriSkills-sub001/internal/quiz"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeEngineErr maps the engine error taxonomy onto HTTP statuses.
// Anything unrecognized is an internal error and the detail stays server-side.
func writeEngineErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, quiz.ErrUnauthorized):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, quiz.ErrInvalidState):
		http.Error(w, "attempt not in a valid state", http.StatusConflict)
	case errors.Is(err, quiz.ErrTimeLimitExceeded):
		http.Error(w, "time limit exceeded", http.StatusUnprocessableEntity)
	case errors.Is(err, quiz.ErrValidation):
		http.Error(w, "invalid request", http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
