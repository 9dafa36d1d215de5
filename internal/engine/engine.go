package engine

import (
	"context"
	"errors"

	"github.com/ambiware-labs/scribed/internal/transcript"
)

// ChunkResult captures recognizer output for a single audio chunk. Segment
// timestamps are chunk-relative; the merger applies the chunk offset.
type ChunkResult struct {
	Segments []transcript.Segment
	Text     string
	Language string
}

// Engine abstracts speech-to-text backends.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, chunkPath string) (ChunkResult, error)
}

var (
	// ErrInvocation indicates the external engine process itself failed:
	// non-zero exit, missing binary, or unreadable output file.
	ErrInvocation = errors.New("engine invocation failed")

	// ErrParse indicates the engine produced output that is not valid
	// structured data at all.
	ErrParse = errors.New("engine output unparseable")
)
