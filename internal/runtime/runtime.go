package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ambiware-labs/scribed/internal/bus"
	"github.com/ambiware-labs/scribed/internal/config"
	"github.com/ambiware-labs/scribed/internal/diarize"
	"github.com/ambiware-labs/scribed/internal/engine"
	"github.com/ambiware-labs/scribed/internal/jobstore"
	"github.com/ambiware-labs/scribed/internal/media"
	"github.com/ambiware-labs/scribed/internal/natsserver"
	"github.com/ambiware-labs/scribed/internal/queue"
	"github.com/ambiware-labs/scribed/internal/worker"
)

// Runtime owns the service lifecycle: telemetry, bus, job store, engine,
// worker pool, and the HTTP API. Start blocks until ctx is canceled.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	store       *jobstore.Store
	pool        *worker.Pool
	busClient   *bus.Client
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(busConfigForEmbedded(r.cfg), r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS server: %w", err)
	}
	defer embedded.Shutdown()

	if r.cfg.Bus.Enabled {
		client, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer client.Close()
		r.busClient = client
	}

	store, err := jobstore.Open(ctx, r.cfg.JobStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer store.Close()
	r.store = store

	eng, err := buildEngine(r.cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to build transcription engine: %w", err)
	}
	r.logger.Info("transcription engine ready",
		slog.String("mode", r.cfg.Engine.Mode),
		slog.String("engine", eng.Name()))

	var annotator diarize.Annotator
	if r.cfg.Diarization.Enabled {
		annotator, err = diarize.NewExecAnnotator(r.cfg.Diarization, r.logger)
		if err != nil {
			return fmt.Errorf("failed to build diarization annotator: %w", err)
		}
	}

	jobQueue, err := r.buildQueue()
	if err != nil {
		return fmt.Errorf("failed to build job queue: %w", err)
	}
	defer jobQueue.Close()

	deps := worker.Deps{
		Store:     store,
		Queue:     jobQueue,
		Segmenter: media.NewSegmenter(r.cfg.Media, r.logger),
		Engine:    eng,
		Annotator: annotator,
		Logger:    r.logger,
	}
	if r.busClient != nil {
		deps.Publisher = r.busClient.Conn()
	}
	r.pool = worker.NewPool(r.cfg.Worker, deps)
	r.pool.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("GET /metrics", metricHandler)
	}
	r.registerAPI(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.pool.Wait()
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildQueue() (queue.Queue, error) {
	if r.busClient != nil {
		return queue.NewNATSQueue(r.busClient, r.cfg.Worker.QueueSize)
	}
	return queue.NewChannelQueue(r.cfg.Worker.QueueSize), nil
}

func buildEngine(cfg config.EngineConfig) (engine.Engine, error) {
	switch cfg.Mode {
	case "exec":
		return engine.NewExecEngine(cfg)
	default:
		return engine.NewMockEngine(), nil
	}
}

// busConfigForEmbedded only requests an embedded server when the bus is in
// use at all.
func busConfigForEmbedded(cfg config.Config) config.BusConfig {
	bc := cfg.Bus
	bc.Embedded = cfg.Bus.Enabled && cfg.Bus.Embedded
	return bc
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !r.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	if r.cfg.Bus.Enabled && !r.busClient.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("bus disconnected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
