package flags

// Flag names shared by the scheduler, risk gate and ops API.
const (
	AutoTradingEnabled   = "autoTradingEnabled"
	OpenPositions        = "openPositions"
	IsDayTradable        = "isDayTradable"
	SetupReason          = "setupReason"
	DailyDelta           = "dailyDelta"
	IndiaVIX             = "indiaVix"
	MajorEventDay        = "majorEventDay"
	StopLossLimit        = "stopLossLimit"
	MinDailyProfitTarget = "minDailyProfitTarget"
	RiskAlertMateriality = "riskAlertMateriality"
	RiskLastAlertPnL     = "riskLastAlertPnl"
	RiskBreachActive     = "riskBreachActive"
	TargetNotified       = "targetNotified"
	ExpiryDate           = "expiryDate"
	ExpiryCode           = "expiryCode"
	EntryPremium         = "entryPremium"
	EntryLots            = "entryLots"
	CallSymbol           = "callSymbol"
	PutSymbol            = "putSymbol"
	LastRunKey           = "lastRunKey"
)

// Transient flags are cleared by the analysis phase at the end of each day.
var Transient = []string{
	IsDayTradable,
	SetupReason,
	RiskLastAlertPnL,
	RiskBreachActive,
	TargetNotified,
}
