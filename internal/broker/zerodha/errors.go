package zerodha

import (
	"errors"
	"fmt"

	"mcube-trader/internal/broker"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// Kite error_type values.
const (
	tokenException      = "TokenException"
	permissionException = "PermissionException"
	orderException      = "OrderException"
	inputException      = "InputException"
	marginException     = "MarginException"
)

// wrapKiteError attaches the broker sentinel matching a Kite error type.
// Unknown failures keep their original message only.
func wrapKiteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ke kiteconnect.Error
	if errors.As(err, &ke) {
		switch ke.ErrorType {
		case tokenException, permissionException:
			return fmt.Errorf("%s: %s: %w", op, ke.Message, broker.ErrAuth)
		case orderException, inputException, marginException:
			return fmt.Errorf("%s: %s: %w", op, ke.Message, broker.ErrRejected)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
