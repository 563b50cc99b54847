package domain

import "errors"

var (
	// ErrQuestionSetNotFound indicates the catalog content could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrSessionNotFound is returned when a session has no host state yet.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPlayerNotFound is returned when a player acts before being initialized.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrLateJoinDisabled is returned when a player tries to join a session
	// that was created without late-join support.
	ErrLateJoinDisabled = errors.New("late join disabled for session")
	// ErrPlayerSessionMismatch is returned when a player id is presented
	// against a session it does not belong to.
	ErrPlayerSessionMismatch = errors.New("player belongs to a different session")
)

// Failure reasons returned as structured result values, never as errors.
const (
	ReasonInvalidQuestionIndex = "Invalid question index"
	ReasonQuestionNotStarted   = "Question not started"
	ReasonAnswerTooLate        = "Answer submitted after time limit"
	ReasonAnswerBeforeStart    = "Answer submitted before question started"
	ReasonAlreadySubmitted     = "Answer already submitted"
	ReasonInvalidOption        = "Invalid option index"
)
