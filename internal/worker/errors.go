package worker

import (
	"errors"
	"fmt"
)

// ErrPoolClosed is returned by Submit after Stop has been called.
var ErrPoolClosed = errors.New("worker pool closed")

// ErrQueueFull is the sentinel matched by errors.Is for a timed-out enqueue.
var ErrQueueFull = errors.New("worker queue full")

// QueueFullError carries the shard diagnostics for a timed-out enqueue.
type QueueFullError struct {
	Shard    int
	Length   int
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("worker shard %d queue full (%d/%d)", e.Shard, e.Length, e.Capacity)
}

// Is lets errors.Is(err, ErrQueueFull) match.
func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }
