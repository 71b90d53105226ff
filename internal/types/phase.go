package types

import "time"

type DayState string

const (
	StateSetup         DayState = "SETUP"
	StateEntryWindow   DayState = "ENTRY_WINDOW"
	StateMonitoring    DayState = "MONITORING"
	StateClosingWindow DayState = "CLOSING_WINDOW"
	StateAnalysis      DayState = "ANALYSIS"
	StateDone          DayState = "DONE"
	StateDisabled      DayState = "DISABLED"
)

type PhaseStatus string

const (
	PhaseOK       PhaseStatus = "OK"
	PhaseSkipped  PhaseStatus = "SKIPPED"
	PhaseFailed   PhaseStatus = "FAILED"
	PhaseDisabled PhaseStatus = "DISABLED"
)

type PhaseResult struct {
	Phase   DayState    `json:"phase"`
	Status  PhaseStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	At      time.Time   `json:"at"`
}

// RiskVerdict is the outcome of one risk evaluation.
type RiskVerdict struct {
	PnL           float64      `json:"pnl"`
	StopLoss      float64      `json:"stop_loss"`
	Target        float64      `json:"target"`
	Breached      bool         `json:"breached"`
	TargetReached bool         `json:"target_reached"`
	Liquidated    bool         `json:"liquidated"`
	Alerted       bool         `json:"alerted"`
	Runs          []RunSummary `json:"runs,omitempty"`
}
