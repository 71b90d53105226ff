package broker

import "errors"

// Sentinels every gateway implementation wraps its failures in, so callers
// can classify without knowing the brokerage.
var (
	// ErrAuth means the session could not be established or was revoked.
	ErrAuth = errors.New("broker authentication failed")
	// ErrRejected means the brokerage refused an order.
	ErrRejected = errors.New("order rejected by broker")
	// ErrUnknownInstrument means a symbol could not be resolved.
	ErrUnknownInstrument = errors.New("unknown instrument")
)
