package models

import "time"

// OutcomeStatus is the final state of one ticker in a batch.
type OutcomeStatus string

const (
	StatusSucceeded OutcomeStatus = "succeeded"
	StatusFailed    OutcomeStatus = "failed"
	StatusSkipped   OutcomeStatus = "skipped"
)

// ErrorRecord is what a batch reports for a ticker that did not produce a result.
type ErrorRecord struct {
	Ticker  string `json:"ticker"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// TickerOutcome holds exactly one of Report or Error.
type TickerOutcome struct {
	Ticker string          `json:"ticker"`
	Status OutcomeStatus   `json:"status"`
	Report *AnalysisReport `json:"report,omitempty"`
	Error  *ErrorRecord    `json:"error,omitempty"`
}

// BatchTally counts outcomes. ByStage counts failures and skips by stage.
type BatchTally struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	ByStage   map[string]int `json:"by_stage,omitempty"`
}

// BatchResult is the full record of one batch run. Outcomes follow the input
// ticker order.
type BatchResult struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Stopped    bool            `json:"stopped"`
	Tally      BatchTally      `json:"tally"`
	Outcomes   []TickerOutcome `json:"outcomes"`
}
