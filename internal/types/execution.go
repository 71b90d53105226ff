package types

import "time"

// RunMode selects the partial-failure policy of a batch run.
type RunMode string

const (
	// ModeOpen keeps going after a failed leg; partial fills are acceptable.
	ModeOpen RunMode = "OPEN"
	// ModeClose stops at the first failed leg so nothing is left half-closed.
	ModeClose RunMode = "CLOSE"
)

type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

type ErrorKind string

const (
	ErrKindNone           ErrorKind = ""
	ErrKindAuthentication ErrorKind = "AUTHENTICATION"
	ErrKindOrderRejected  ErrorKind = "ORDER_REJECTED"
	ErrKindCancelled      ErrorKind = "CANCELLED"
	ErrKindUnknownBroker  ErrorKind = "UNKNOWN_BROKER"
)

// LegSpec describes one instrument placed in every batch of a run.
type LegSpec struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	Side      string `json:"side"`
	Product   string `json:"product"`
	OrderType string `json:"order_type"`
	LotSize   int    `json:"lot_size"`
}

type LegResult struct {
	Leg       string    `json:"leg"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Quantity  int       `json:"quantity"`
	Success   bool      `json:"success"`
	OrderID   string    `json:"order_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	RawError  string    `json:"raw_error,omitempty"`
}

type BatchResult struct {
	BatchNumber int         `json:"batch_number"`
	Lots        int         `json:"lots"`
	Legs        []LegResult `json:"legs"`
}

func (b BatchResult) Failed() bool {
	for _, l := range b.Legs {
		if !l.Success {
			return true
		}
	}
	return false
}

type LegStats struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

type RunSummary struct {
	RunKey           string              `json:"run_key"`
	Mode             RunMode             `json:"mode"`
	Status           RunStatus           `json:"status"`
	Success          bool                `json:"success"`
	Cancelled        bool                `json:"cancelled"`
	TotalLots        int                 `json:"total_lots"`
	TotalBatches     int                 `json:"total_batches"`
	BatchesCompleted int                 `json:"batches_completed"`
	Batches          []BatchResult       `json:"batches"`
	LegStats         map[string]LegStats `json:"leg_stats"`
	Message          string              `json:"message,omitempty"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       time.Time           `json:"finished_at"`
}

// Failures counts failed leg placements across all batches.
func (s RunSummary) Failures() int {
	n := 0
	for _, st := range s.LegStats {
		n += st.Failure
	}
	return n
}

// FilledLots is the smallest number of lots filled on any leg, the size of
// the position that is actually hedged across all legs.
func (s RunSummary) FilledLots() int {
	filled := make(map[string]int, len(s.LegStats))
	for leg := range s.LegStats {
		filled[leg] = 0
	}
	for _, b := range s.Batches {
		for _, l := range b.Legs {
			if l.Success {
				filled[l.Leg] += b.Lots
			}
		}
	}
	least := -1
	for _, n := range filled {
		if least < 0 || n < least {
			least = n
		}
	}
	if least < 0 {
		return 0
	}
	return least
}

// Filled reports whether at least one leg order was accepted.
func (s RunSummary) Filled() bool {
	for _, st := range s.LegStats {
		if st.Success > 0 {
			return true
		}
	}
	return false
}

type CurrentBatch struct {
	Number   int `json:"number"`
	Lots     int `json:"lots"`
	Quantity int `json:"quantity"`
}

// BatchProgress is the externally visible state of a running batch run.
type BatchProgress struct {
	RunKey           string       `json:"run_key"`
	Mode             RunMode      `json:"mode"`
	Status           RunStatus    `json:"status"`
	BatchesCompleted int          `json:"batches_completed"`
	TotalBatches     int          `json:"total_batches"`
	CurrentBatch     CurrentBatch `json:"current_batch"`
	IsCancelled      bool         `json:"is_cancelled"`
	IsComplete       bool         `json:"is_complete"`
	IsSuccess        bool         `json:"is_success"`
	LastLogMessage   string       `json:"last_log_message"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// RunRequest is one batch-execution job.
type RunRequest struct {
	RunKey          string        `json:"run_key"`
	Mode            RunMode       `json:"mode"`
	TotalLots       int           `json:"total_lots"`
	MaxLotsPerBatch int           `json:"max_lots_per_batch"`
	InterBatchDelay time.Duration `json:"inter_batch_delay"`
	// Legs share one lot size; batch quantity is reported from the first leg.
	Legs            []LegSpec     `json:"legs"`
	Tag             string        `json:"tag,omitempty"`
}
