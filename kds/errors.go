package kds

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrTerminalOrder     = errors.New("order is in a terminal status")
	ErrCommandInFlight   = errors.New("another change for this order is awaiting confirmation")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidFilter     = errors.New("invalid filter mode")
)

// CommandError is returned when the remote confirmation of an optimistic
// change fails and the change has been rolled back.
type CommandError struct {
	OrderID uint
	Action  string
	Target  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("order %d: %s to %s failed: %v", e.OrderID, e.Action, e.Target, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
