package executor

import (
	"context"
	"errors"
	"fmt"

	"mcube-trader/internal/broker"
	"mcube-trader/internal/types"
)

// Error is returned by Execute only when a run cannot start at all.
type Error struct {
	Kind types.ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuthentication reports whether err aborted a run before any order.
func IsAuthentication(err error) bool {
	var xe *Error
	return errors.As(err, &xe) && xe.Kind == types.ErrKindAuthentication
}

// Classify maps a gateway error onto the execution error taxonomy.
func Classify(err error) types.ErrorKind {
	switch {
	case err == nil:
		return types.ErrKindNone
	case errors.Is(err, broker.ErrRejected):
		return types.ErrKindOrderRejected
	case errors.Is(err, broker.ErrAuth):
		return types.ErrKindAuthentication
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.ErrKindCancelled
	default:
		return types.ErrKindUnknownBroker
	}
}
