package worker

import "context"

// Job is a unit of background work executed by a Pool.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a plain function to a Job.
type JobFunc func(ctx context.Context) error

// Run implements Job for JobFunc.
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }
