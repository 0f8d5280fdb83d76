// Package errs defines the error taxonomy of the float-share engine and the
// stage tagging used by the orchestrator to classify failures.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrTickerNotFound      = errors.New("ticker not found")
	ErrDocumentUnavailable = errors.New("document unavailable")
	ErrSummarization       = errors.New("summarization failed")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInconsistentData    = errors.New("inconsistent data")
)

// TickerNotFound wraps ErrTickerNotFound with the offending ticker.
func TickerNotFound(ticker string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %s: %w", ErrTickerNotFound, ticker, cause)
	}
	return fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
}

// DocumentUnavailable wraps ErrDocumentUnavailable with the source location.
func DocumentUnavailable(source string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrDocumentUnavailable, source, cause)
}

// Summarization wraps ErrSummarization with the prompt that failed.
func Summarization(promptID string, cause error) error {
	return fmt.Errorf("%w (%s): %w", ErrSummarization, promptID, cause)
}

// InvalidInput wraps ErrInvalidInput.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// InconsistentData wraps ErrInconsistentData.
func InconsistentData(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInconsistentData, fmt.Sprintf(format, args...))
}

// Stage names the step of a ticker analysis that failed.
type Stage string

const (
	StageLookup      Stage = "lookup"
	StageDownload    Stage = "download"
	StageExtraction  Stage = "extraction"
	StageComputation Stage = "computation"
	StagePersistence Stage = "persistence"
	// StageSkipped marks tickers never started because the batch was stopped.
	StageSkipped Stage = "skipped"
)

// StageError tags a ticker failure with the stage it happened in.
type StageError struct {
	Ticker string
	Stage  Stage
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s stage: %v", e.Ticker, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AtStage wraps err as a StageError. A nil err stays nil.
func AtStage(ticker string, stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Ticker: ticker, Stage: stage, Err: err}
}

// StageOf returns the stage err was tagged with, or "" if untagged.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
