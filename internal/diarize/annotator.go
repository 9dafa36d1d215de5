package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/ambiware-labs/scribed/internal/config"
	"github.com/ambiware-labs/scribed/internal/transcript"
)

// Turn is one speaker interval reported by the diarization tool.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Annotator labels merged transcript segments with speaker identities.
type Annotator interface {
	Annotate(ctx context.Context, audioPath string, segments []transcript.Segment) ([]transcript.Segment, error)
}

// ExecAnnotator shells out to an external diarization tool that prints a JSON
// array of speaker turns for the given audio file on stdout.
type ExecAnnotator struct {
	command string
	log     *slog.Logger
}

func NewExecAnnotator(cfg config.DiarizationConfig, log *slog.Logger) (*ExecAnnotator, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("diarization command is empty")
	}
	return &ExecAnnotator{
		command: cfg.Command,
		log:     log.With(slog.String("component", "diarize")),
	}, nil
}

func (a *ExecAnnotator) Annotate(ctx context.Context, audioPath string, segments []transcript.Segment) ([]transcript.Segment, error) {
	args, err := shellwords.Parse(a.command)
	if err != nil || len(args) == 0 {
		return segments, fmt.Errorf("parse diarization command %q: %w", a.command, err)
	}
	args = append(args, audioPath)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return segments, ctx.Err()
		}
		return segments, fmt.Errorf("diarization tool failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var turns []Turn
	if err := json.Unmarshal(stdout.Bytes(), &turns); err != nil {
		return segments, fmt.Errorf("parse diarization output: %w", err)
	}

	a.log.Debug("diarization complete",
		slog.Int("turns", len(turns)),
		slog.Int("segments", len(segments)))

	return alignSpeakers(segments, turns), nil
}

// alignSpeakers assigns each segment the speaker whose turn covers the
// segment's midpoint. Segments with no covering turn keep an empty speaker.
func alignSpeakers(segments []transcript.Segment, turns []Turn) []transcript.Segment {
	if len(turns) == 0 {
		return segments
	}
	out := make([]transcript.Segment, len(segments))
	copy(out, segments)
	for i := range out {
		mid := (out[i].Start + out[i].End) / 2
		for _, t := range turns {
			if t.Start <= mid && mid <= t.End {
				out[i].Speaker = t.Speaker
				break
			}
		}
	}
	return out
}
