package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ambiware-labs/scribed/internal/jobstore"
)

// ErrAttemptsExhausted is returned when a job does not reach a terminal state
// within the configured number of polls.
var ErrAttemptsExhausted = errors.New("job did not finish within polling budget")

// Source is where job state is read from. *jobstore.Store satisfies it.
type Source interface {
	GetJob(ctx context.Context, jobID string) (jobstore.Job, error)
}

// Poller waits for a job to finish by reading its durable record at a fixed
// interval, up to a bounded number of attempts.
type Poller struct {
	source   Source
	interval time.Duration
	attempts int
	log      *slog.Logger
}

func NewPoller(source Source, interval time.Duration, attempts int, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if attempts <= 0 {
		attempts = 60
	}
	return &Poller{
		source:   source,
		interval: interval,
		attempts: attempts,
		log:      log.With(slog.String("component", "status-poller")),
	}
}

// Wait polls until the job reaches completed or failed, the attempt budget
// runs out, or ctx is canceled. A failed job is returned with a nil error; the
// failure detail lives in the job record itself.
func (p *Poller) Wait(ctx context.Context, jobID string) (jobstore.Job, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; attempt <= p.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return jobstore.Job{}, ctx.Err()
		case <-timer.C:
		}

		job, err := p.source.GetJob(ctx, jobID)
		if err != nil {
			return jobstore.Job{}, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		if job.Status == jobstore.StatusCompleted || job.Status == jobstore.StatusFailed {
			return job, nil
		}

		p.log.Debug("job still running",
			slog.String("job_id", jobID),
			slog.String("status", string(job.Status)),
			slog.Int("progress", job.Progress),
			slog.Int("attempt", attempt))
		timer.Reset(p.interval)
	}

	return jobstore.Job{}, fmt.Errorf("%w: %s", ErrAttemptsExhausted, jobID)
}
