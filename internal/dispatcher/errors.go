package dispatcher

import "errors"

var (
	// ErrStopped is returned for work offered after Stop.
	ErrStopped = errors.New("dispatcher: pool stopped")
	// ErrQueueFull is returned when the task queue has no free slot.
	ErrQueueFull = errors.New("dispatcher: queue full")
)
