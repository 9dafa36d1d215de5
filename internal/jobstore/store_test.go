package jobstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ambiware-labs/scribed/internal/config"
	"github.com/ambiware-labs/scribed/internal/transcript"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.JobStoreConfig{Path: filepath.Join(t.TempDir(), "jobs.db")}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetJob(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.CreateJob(ctx, "job-1", "conv-1", 5); err != nil {
		t.Fatalf("create job: %v", err)
	}
	j, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if j.Status != StatusPending || j.Progress != 5 {
		t.Fatalf("unexpected job state: %+v", j)
	}
	if j.TotalChunks != nil || j.CurrentChunk != nil || j.Error != nil {
		t.Fatalf("expected nullable fields unset: %+v", j)
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.CreateJob(ctx, "job-1", "conv-1", 5); err != nil {
		t.Fatalf("create job: %v", err)
	}
	three := 3
	one := 1
	if err := s.UpdateProgress(ctx, "job-1", StatusProcessing, 37, &three, &one); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	// A stale lower value must not be able to move progress backwards.
	if err := s.UpdateProgress(ctx, "job-1", StatusProcessing, 10, nil, nil); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	j, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if j.Progress != 37 {
		t.Fatalf("expected progress 37, got %d", j.Progress)
	}
	if j.TotalChunks == nil || *j.TotalChunks != 3 {
		t.Fatalf("expected total chunks retained, got %+v", j.TotalChunks)
	}
}

func TestMarkFailedKeepsProgress(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.CreateJob(ctx, "job-1", "conv-1", 5); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.UpdateProgress(ctx, "job-1", StatusProcessing, 58, nil, nil); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if err := s.MarkFailed(ctx, "job-1", "whisper failed: exit status 1"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	j, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if j.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", j.Status)
	}
	if j.Progress != 58 {
		t.Fatalf("expected progress unchanged at 58, got %d", j.Progress)
	}
	if j.Error == nil || *j.Error != "whisper failed: exit status 1" {
		t.Fatalf("expected error string preserved, got %v", j.Error)
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.CreateJob(ctx, "job-1", "conv-1", 5); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.MarkCompleted(ctx, "job-1", 7); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if err := s.MarkFailed(ctx, "job-1", "too late"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := s.UpdateProgress(ctx, "job-1", StatusProcessing, 10, nil, nil); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	j, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if j.Status != StatusCompleted || j.Progress != 100 {
		t.Fatalf("terminal state rewritten: %+v", j)
	}
	if j.TranscriptID == nil || *j.TranscriptID != 7 {
		t.Fatalf("expected transcript id 7, got %v", j.TranscriptID)
	}
	if j.Error != nil {
		t.Fatalf("expected no error on completed job, got %v", j.Error)
	}
}

func TestCreateTranscriptWithSegments(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	conf := 0.93
	dur := 17.5
	tr := transcript.Transcript{
		Text:     "hello world fine thanks",
		Duration: &dur,
		Language: "en",
		Engine:   "whisper.cpp",
		Segments: []transcript.Segment{
			{Start: 0.5, End: 4.0, Text: "hello world", Confidence: &conf},
			{Start: 16.0, End: 17.5, Text: "fine thanks", Speaker: "SPEAKER_01"},
		},
	}

	id, err := s.CreateTranscriptWithSegments(ctx, "conv-1", tr)
	if err != nil {
		t.Fatalf("create transcript: %v", err)
	}

	got, err := s.GetTranscript(ctx, id)
	if err != nil {
		t.Fatalf("get transcript: %v", err)
	}
	if got.Text != tr.Text || got.Language != "en" || got.Engine != "whisper.cpp" {
		t.Fatalf("unexpected transcript: %+v", got)
	}
	if got.Duration == nil || *got.Duration != 17.5 {
		t.Fatalf("expected duration 17.5, got %v", got.Duration)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got.Segments))
	}
	if got.Segments[1].Speaker != "SPEAKER_01" {
		t.Fatalf("expected speaker label, got %+v", got.Segments[1])
	}
	if got.Segments[0].Confidence == nil || *got.Segments[0].Confidence != 0.93 {
		t.Fatalf("expected confidence, got %+v", got.Segments[0])
	}
}

func TestEmptyTranscriptPersists(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.CreateTranscriptWithSegments(ctx, "conv-1", transcript.Transcript{Engine: "mock"})
	if err != nil {
		t.Fatalf("create transcript: %v", err)
	}
	got, err := s.GetTranscript(ctx, id)
	if err != nil {
		t.Fatalf("get transcript: %v", err)
	}
	if got.Text != "" || got.Duration != nil || len(got.Segments) != 0 {
		t.Fatalf("expected empty transcript, got %+v", got)
	}
}

func TestCountSegmentsForConversation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	n, err := s.CountSegmentsForConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 segments before persist, got %d", n)
	}

	_, err = s.CreateTranscriptWithSegments(ctx, "conv-1", transcript.Transcript{
		Segments: []transcript.Segment{{Start: 0, End: 1, Text: "a"}, {Start: 1, End: 2, Text: "b"}},
	})
	if err != nil {
		t.Fatalf("create transcript: %v", err)
	}

	n, err = s.CountSegmentsForConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 segments, got %d", n)
	}
}
