package engine

import (
	"context"
	"errors"
	"fmt"
	"net"

	"arbot/internal/models"
)

var ErrCannotCreateFlow = errors.New("не удалось создать поток")

// CannotCreateFlowError wraps any failure that happened while an opening flow was being created.
type CannotCreateFlowError struct {
	Side   models.OrderSide
	Reason string
	Err    error
}

func (e *CannotCreateFlowError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", ErrCannotCreateFlow, e.Side, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CannotCreateFlowError) Is(target error) bool {
	return target == ErrCannotCreateFlow
}

func (e *CannotCreateFlowError) Unwrap() error {
	return e.Err
}

func cannotCreate(side models.OrderSide, reason string, err error) error {
	var already *CannotCreateFlowError
	if errors.As(err, &already) {
		return err
	}
	return &CannotCreateFlowError{Side: side, Reason: reason, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
