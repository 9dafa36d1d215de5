package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/ambiware-labs/scribed/internal/config"
	"github.com/ambiware-labs/scribed/internal/diarize"
	"github.com/ambiware-labs/scribed/internal/engine"
	"github.com/ambiware-labs/scribed/internal/jobstore"
	"github.com/ambiware-labs/scribed/internal/media"
	"github.com/ambiware-labs/scribed/internal/protocol"
	"github.com/ambiware-labs/scribed/internal/queue"
	"github.com/ambiware-labs/scribed/internal/transcript"
)

// Progress checkpoints written as a job moves through the pipeline. Chunk i
// of n lands at checkpointChunks + chunkProgressSpan*i/n, so the final chunk
// reaches 80 and the merge checkpoint closes the gap to 85.
const (
	checkpointEnqueued = 5
	checkpointClaimed  = 10
	checkpointChunks   = 15
	chunkProgressSpan  = 65
	checkpointMerged   = 85
)

// Segmenter splits one input file into chunk files inside workDir.
type Segmenter interface {
	Segment(ctx context.Context, inputPath, workDir string) ([]media.Chunk, error)
}

// EventPublisher emits terminal job events. *nats.Conn satisfies it.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// Deps carries the pool's collaborators. Annotator and Publisher are optional.
type Deps struct {
	Store     *jobstore.Store
	Queue     queue.Queue
	Segmenter Segmenter
	Engine    engine.Engine
	Annotator diarize.Annotator
	Publisher EventPublisher
	Logger    *slog.Logger
}

// Pool runs a fixed number of workers that pull jobs off the queue and drive
// each one through segmentation, per-chunk transcription, merge, and persist.
type Pool struct {
	cfg  config.WorkerConfig
	deps Deps
	log  *slog.Logger
	wg   sync.WaitGroup

	jobsCompleted     metric.Int64Counter
	jobsFailed        metric.Int64Counter
	chunksTranscribed metric.Int64Counter
}

func NewPool(cfg config.WorkerConfig, deps Deps) *Pool {
	p := &Pool{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With(slog.String("component", "worker")),
	}

	meter := otel.Meter("github.com/ambiware-labs/scribed/internal/worker")
	p.jobsCompleted, _ = meter.Int64Counter("scribed.jobs.completed",
		metric.WithDescription("Transcription jobs finished successfully"))
	p.jobsFailed, _ = meter.Int64Counter("scribed.jobs.failed",
		metric.WithDescription("Transcription jobs that ended in failure"))
	p.chunksTranscribed, _ = meter.Int64Counter("scribed.chunks.transcribed",
		metric.WithDescription("Audio chunks sent through the transcription engine"))

	return p
}

// Start launches the workers. They exit when ctx is canceled.
func (p *Pool) Start(ctx context.Context) {
	for i := 1; i <= p.cfg.Count; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	p.log.Info("worker pool started", slog.Int("workers", p.cfg.Count))
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Enqueue records a pending job and hands it to the queue. The durable row is
// written first so a poller can see the job before any worker picks it up.
func (p *Pool) Enqueue(ctx context.Context, req protocol.JobRequest) error {
	if err := p.deps.Store.CreateJob(ctx, req.JobID, req.ConversationID, checkpointEnqueued); err != nil {
		return fmt.Errorf("create job record: %w", err)
	}
	if err := p.deps.Queue.Enqueue(ctx, req); err != nil {
		msg := fmt.Sprintf("enqueue failed: %v", err)
		if markErr := p.deps.Store.MarkFailed(context.WithoutCancel(ctx), req.JobID, msg); markErr != nil {
			p.log.Error("failed to mark unqueued job as failed",
				slog.String("job_id", req.JobID), slog.String("error", markErr.Error()))
		}
		return fmt.Errorf("enqueue job: %w", err)
	}
	p.log.Info("job enqueued",
		slog.String("job_id", req.JobID),
		slog.String("conversation_id", req.ConversationID))
	return nil
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	log := p.log.With(slog.Int("worker_id", id))
	log.Debug("worker started")
	for {
		req, err := p.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Debug("worker stopping")
				return
			}
			log.Error("dequeue failed", slog.String("error", err.Error()))
			continue
		}
		p.process(ctx, log, req)
	}
}

func (p *Pool) process(parent context.Context, log *slog.Logger, req protocol.JobRequest) {
	timeout := time.Duration(p.cfg.JobTimeoutMS) * time.Millisecond
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log = log.With(slog.String("job_id", req.JobID))
	start := time.Now()

	if err := p.deps.Store.UpdateProgress(ctx, req.JobID, jobstore.StatusProcessing, checkpointClaimed, nil, nil); err != nil {
		p.fail(parent, log, req, timeout, "claim job", err)
		return
	}

	arena, err := media.NewArena()
	if err != nil {
		p.fail(parent, log, req, timeout, "allocate work dir", err)
		return
	}
	defer arena.Release()

	chunks, err := p.deps.Segmenter.Segment(ctx, req.AudioPath, arena.Dir())
	if err != nil {
		p.fail(parent, log, req, timeout, "segment audio", err)
		return
	}
	total := len(chunks)
	if err := p.deps.Store.UpdateProgress(ctx, req.JobID, jobstore.StatusProcessing, checkpointChunks, &total, nil); err != nil {
		p.fail(parent, log, req, timeout, "record chunk count", err)
		return
	}

	outputs := make([]transcript.ChunkOutput, 0, total)
	for _, chunk := range chunks {
		res, err := p.deps.Engine.Transcribe(ctx, chunk.Path)
		if err != nil {
			p.fail(parent, log, req, timeout, fmt.Sprintf("transcribe chunk %d/%d", chunk.Index, total), err)
			return
		}
		outputs = append(outputs, transcript.ChunkOutput{
			Index:    chunk.Index,
			Offset:   chunk.Offset,
			Segments: res.Segments,
			Text:     res.Text,
			Language: res.Language,
		})
		p.chunksTranscribed.Add(ctx, 1)

		idx := chunk.Index
		progress := checkpointChunks + chunkProgressSpan*idx/total
		if err := p.deps.Store.UpdateProgress(ctx, req.JobID, jobstore.StatusProcessing, progress, nil, &idx); err != nil {
			p.fail(parent, log, req, timeout, "record chunk progress", err)
			return
		}
	}

	tr := transcript.Merge(outputs, p.deps.Engine.Name())
	if err := p.deps.Store.UpdateProgress(ctx, req.JobID, jobstore.StatusProcessing, checkpointMerged, nil, nil); err != nil {
		p.fail(parent, log, req, timeout, "record merge", err)
		return
	}

	if p.deps.Annotator != nil {
		labeled, err := p.deps.Annotator.Annotate(ctx, req.AudioPath, tr.Segments)
		if err != nil {
			log.Warn("diarization failed, keeping unlabeled segments", slog.String("error", err.Error()))
		} else {
			tr.Segments = labeled
		}
	}

	transcriptID, err := p.deps.Store.CreateTranscriptWithSegments(ctx, req.ConversationID, tr)
	if err != nil {
		p.fail(parent, log, req, timeout, "persist transcript", err)
		return
	}
	if err := p.deps.Store.MarkCompleted(context.WithoutCancel(parent), req.JobID, transcriptID); err != nil {
		log.Error("failed to mark job completed", slog.String("error", err.Error()))
		return
	}

	p.jobsCompleted.Add(parent, 1)
	p.publish(protocol.SubjectJobCompleted, protocol.JobEvent{
		JobID:          req.JobID,
		ConversationID: req.ConversationID,
		TranscriptID:   &transcriptID,
		Options:        req.Options,
		Timestamp:      time.Now().UTC(),
	})
	log.Info("job completed",
		slog.Int("chunks", total),
		slog.Int("segments", len(tr.Segments)),
		slog.Duration("elapsed", time.Since(start)))
}

// fail writes the terminal failure. Progress stays wherever the last durable
// checkpoint left it; the poller reads the error verbatim.
func (p *Pool) fail(parent context.Context, log *slog.Logger, req protocol.JobRequest, timeout time.Duration, stage string, err error) {
	var msg string
	if errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("job timed out after %s", timeout)
	} else {
		msg = fmt.Sprintf("%s: %v", stage, err)
	}

	if markErr := p.deps.Store.MarkFailed(context.WithoutCancel(parent), req.JobID, msg); markErr != nil {
		log.Error("failed to mark job failed", slog.String("error", markErr.Error()))
	}

	p.jobsFailed.Add(parent, 1)
	p.publish(protocol.SubjectJobFailed, protocol.JobEvent{
		JobID:          req.JobID,
		ConversationID: req.ConversationID,
		Error:          msg,
		Options:        req.Options,
		Timestamp:      time.Now().UTC(),
	})
	log.Error("job failed", slog.String("stage", stage), slog.String("error", msg))
}

func (p *Pool) publish(subject string, event protocol.JobEvent) {
	if p.deps.Publisher == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to marshal job event", slog.String("error", err.Error()))
		return
	}
	if err := p.deps.Publisher.Publish(subject, data); err != nil {
		p.log.Warn("failed to publish job event",
			slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
