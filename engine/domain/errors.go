package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline's unrecoverable conditions.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrMissingDocument   = errors.New("missing source document")
	ErrEmptyQuestion     = errors.New("question is empty")
	ErrQuestionTooShort  = errors.New("question too short")
	ErrNoExtractableText = errors.New("no extractable text")
)

// StageError wraps a failure with the name of the pipeline stage that
// produced it, so callers can see where a query died instead of a generic
// message.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with a stage name. Returns nil for a nil err.
func NewStageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// FailedStage reports which stage an error came from, or "" if the error
// carries no stage information.
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
