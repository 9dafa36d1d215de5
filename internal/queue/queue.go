package queue

import (
	"context"

	"github.com/ambiware-labs/scribed/internal/protocol"
)

// Queue hands jobs from the upload side to the worker pool. Implementations
// must deliver each request to exactly one consumer.
type Queue interface {
	Enqueue(ctx context.Context, req protocol.JobRequest) error
	Dequeue(ctx context.Context) (protocol.JobRequest, error)
	Close() error
}
