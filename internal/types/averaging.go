package types

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

type Recommendation string

const (
	StrongAverage   Recommendation = "STRONG_AVERAGE"
	ModerateAverage Recommendation = "MODERATE_AVERAGE"
	WeakAverage     Recommendation = "WEAK_AVERAGE"
	NoAverage       Recommendation = "NO_AVERAGE"
)

// CheckResult is the outcome of one averaging check.
type CheckResult struct {
	Name     string `json:"name"`
	Critical bool   `json:"critical"`
	Passed   bool   `json:"passed"`
	Points   int    `json:"points"`
	Message  string `json:"message"`
}

type AveragingRecommendation struct {
	Symbol                  string         `json:"symbol"`
	Direction               Direction      `json:"direction"`
	EntryPrice              float64        `json:"entry_price"`
	CurrentPrice            float64        `json:"current_price"`
	Checks                  []CheckResult  `json:"checks"`
	Confidence              int            `json:"confidence"`
	Recommendation          Recommendation `json:"recommendation"`
	SuggestedAdditionalLots int            `json:"suggested_additional_lots"`
	Reason                  string         `json:"reason"`
}
