package scheduler

import "context"

// Job is a unit of work run by the worker pool.
type Job interface {
	// Execute runs the job. Implementations must honor ctx cancellation.
	Execute(ctx context.Context) error

	// OwnerID identifies whose data the job touches.
	OwnerID() int64

	// Description is used in logs and span attributes.
	Description() string
}

// Keyed jobs are deduplicated by the pool: while a job with the same key is
// queued or running, Submit rejects another one with ErrDuplicateJob.
type Keyed interface {
	Key() string
}
