package media

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ambiware-labs/scribed/internal/config"
)

// Segmenter splits an input audio file into mono, fixed-sample-rate WAV
// chunks with per-chunk timestamps reset to zero. Chunk i (1-based) starts at
// (i-1) * chunk_seconds in the source file.
type Segmenter struct {
	cfg config.MediaConfig
	log *slog.Logger
	run commandRunner
}

func NewSegmenter(cfg config.MediaConfig, log *slog.Logger) *Segmenter {
	return &Segmenter{
		cfg: cfg,
		log: log.With(slog.String("component", "segmenter")),
		run: osRunner{},
	}
}

// Segment decodes inputPath and writes ceil(duration/chunk_seconds) chunk
// files into workDir. The final chunk may be shorter than chunk_seconds.
func (s *Segmenter) Segment(ctx context.Context, inputPath, workDir string) ([]Chunk, error) {
	duration, err := s.probeDuration(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: zero duration", ErrBadInput)
	}

	pattern := filepath.Join(workDir, "chunk-%03d.wav")
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", inputPath,
		"-ac", "1",
		"-ar", strconv.Itoa(s.cfg.SampleRate),
		"-vn",
		"-f", "segment",
		"-segment_time", strconv.Itoa(s.cfg.ChunkSeconds),
		"-reset_timestamps", "1",
		pattern,
	}
	if out, err := s.run.CombinedOutput(ctx, s.cfg.FFmpegPath, args); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffmpeg segmentation: %v: %s", ErrBadInput, err, firstLine(out))
	}

	matches, err := filepath.Glob(filepath.Join(workDir, "chunk-*.wav"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no chunks produced", ErrBadInput)
	}

	chunks := make([]Chunk, 0, len(matches))
	for i, p := range matches {
		chunks = append(chunks, Chunk{
			Index:  i + 1,
			Offset: float64(i * s.cfg.ChunkSeconds),
			Path:   p,
		})
	}

	s.log.Debug("segmented input",
		slog.Float64("duration_sec", duration),
		slog.Int("chunks", len(chunks)))
	return chunks, nil
}

// probeDuration asks ffprobe for the container duration, falling back to the
// WAV header for .wav inputs when ffprobe is unavailable.
func (s *Segmenter) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	}
	out, err := s.run.CombinedOutput(ctx, s.cfg.FFprobePath, args)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if strings.EqualFold(filepath.Ext(inputPath), ".wav") {
			if d, wavErr := wavDuration(inputPath); wavErr == nil {
				return d, nil
			}
		}
		return 0, fmt.Errorf("%w: probe duration: %v: %s", ErrBadInput, err, firstLine(out))
	}

	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: probe duration: %v", ErrBadInput, err)
	}
	return d, nil
}

func firstLine(out []byte) string {
	text := strings.TrimSpace(string(out))
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return text
}

type osRunner struct{}

func (osRunner) CombinedOutput(ctx context.Context, name string, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
