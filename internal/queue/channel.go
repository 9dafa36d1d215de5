package queue

import (
	"context"

	"github.com/ambiware-labs/scribed/internal/protocol"
)

// ChannelQueue is the in-process queue used when no broker is configured.
type ChannelQueue struct {
	ch chan protocol.JobRequest
}

func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 128
	}
	return &ChannelQueue{ch: make(chan protocol.JobRequest, size)}
}

func (q *ChannelQueue) Enqueue(ctx context.Context, req protocol.JobRequest) error {
	select {
	case q.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ChannelQueue) Dequeue(ctx context.Context) (protocol.JobRequest, error) {
	select {
	case req := <-q.ch:
		return req, nil
	case <-ctx.Done():
		return protocol.JobRequest{}, ctx.Err()
	}
}

func (q *ChannelQueue) Close() error {
	return nil
}
