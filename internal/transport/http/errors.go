package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"trivia-service/internal/domain"
	"trivia-service/internal/engine"
)

// userMessage turns an error into a short sentence fit for players. Raw
// transport errors never reach clients.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrQuestionsUnavailable):
		return "Couldn't load questions. Check your connection and try again."
	case errors.Is(err, domain.ErrNoQuestions):
		return "No questions are available right now."
	case errors.Is(err, domain.ErrSessionNotFound):
		return "Quiz session not found."
	case errors.Is(err, engine.ErrAlreadyLoaded):
		return "The quiz is already running."
	case errors.Is(err, domain.ErrSessionClosed):
		return "This quiz has ended."
	case errors.Is(err, domain.ErrNotAwaitingAnswer), errors.Is(err, domain.ErrStaleQuestion):
		return "That question is no longer open."
	case errors.Is(err, domain.ErrInvalidOption):
		return "Pick one of the listed options."
	case errors.Is(err, domain.ErrInvalidRole):
		return "Unknown role."
	case errors.Is(err, domain.ErrForbidden):
		return "You are not allowed to do that."
	case errors.Is(err, domain.ErrMissingUser):
		return "A user id is required."
	case errors.Is(err, domain.ErrInvalidLimit):
		return "Limit must be between 1 and 100."
	default:
		return "Something went wrong. Please try again."
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidLimit),
		errors.Is(err, domain.ErrMissingUser):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

type errorPayload struct {
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	writeJSON(w, status, errorPayload{Message: userMessage(err), Retry: status == http.StatusServiceUnavailable})
}
