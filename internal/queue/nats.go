package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/ambiware-labs/scribed/internal/bus"
	"github.com/ambiware-labs/scribed/internal/protocol"
)

// NATSQueue distributes jobs over a NATS queue group so that exactly one
// worker across all subscribed processes receives each request.
type NATSQueue struct {
	client *bus.Client
	sub    *nats.Subscription
	msgs   chan *nats.Msg
	log    *slog.Logger
}

func NewNATSQueue(client *bus.Client, size int) (*NATSQueue, error) {
	if size <= 0 {
		size = 128
	}
	msgs := make(chan *nats.Msg, size)
	sub, err := client.Conn().ChanQueueSubscribe(protocol.SubjectJobEnqueue, protocol.QueueGroupWorkers, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe job queue: %w", err)
	}
	return &NATSQueue{
		client: client,
		sub:    sub,
		msgs:   msgs,
		log:    client.Logger().With(slog.String("component", "nats-queue")),
	}, nil
}

func (q *NATSQueue) Enqueue(_ context.Context, req protocol.JobRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal job request: %w", err)
	}
	if err := q.client.Conn().Publish(protocol.SubjectJobEnqueue, data); err != nil {
		return fmt.Errorf("publish job request: %w", err)
	}
	return nil
}

func (q *NATSQueue) Dequeue(ctx context.Context) (protocol.JobRequest, error) {
	for {
		select {
		case msg := <-q.msgs:
			var req protocol.JobRequest
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				q.log.Warn("discarding malformed job request", slog.String("error", err.Error()))
				continue
			}
			return req, nil
		case <-ctx.Done():
			return protocol.JobRequest{}, ctx.Err()
		}
	}
}

func (q *NATSQueue) Close() error {
	if q.sub != nil {
		return q.sub.Unsubscribe()
	}
	return nil
}
