package domain

import "errors"

var (
	// ErrNoQuestions is returned when the question source yields an empty list.
	ErrNoQuestions = errors.New("no questions available")
	// ErrQuestionsUnavailable wraps failures of the question source.
	ErrQuestionsUnavailable = errors.New("questions could not be loaded")
	// ErrSessionNotFound is returned when a quiz session is unknown.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned when acting on a cancelled or completed session.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrNotAwaitingAnswer is returned when an answer arrives outside the answer window.
	ErrNotAwaitingAnswer = errors.New("session is not awaiting an answer")
	// ErrStaleQuestion is returned when an answer targets a question that is not current.
	ErrStaleQuestion = errors.New("answer does not match the current question")
	// ErrInvalidOption indicates a selection outside the option range.
	ErrInvalidOption = errors.New("option out of range")
	// ErrInvalidRole indicates an unknown role name.
	ErrInvalidRole = errors.New("invalid role")
	// ErrForbidden is returned when a non-admin attempts an admin operation.
	ErrForbidden = errors.New("forbidden")
	// ErrMissingUser is returned when an operation needs an identified user.
	ErrMissingUser = errors.New("user id required")
	// ErrInvalidLimit indicates a page size outside the accepted range.
	ErrInvalidLimit = errors.New("invalid limit")
	// ErrUnsupportedStatsVersion is returned for aggregate payloads newer than this build understands.
	ErrUnsupportedStatsVersion = errors.New("unsupported stats payload version")
)
