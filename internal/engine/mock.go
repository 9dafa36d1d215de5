package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ambiware-labs/scribed/internal/transcript"
)

// mockEngine returns a canned segment per chunk. Useful for development and
// pipeline tests without a real model.
type mockEngine struct{}

// NewMockEngine returns an Engine that fabricates one segment per chunk.
func NewMockEngine() Engine {
	return mockEngine{}
}

func (mockEngine) Name() string { return "mock" }

func (mockEngine) Transcribe(_ context.Context, chunkPath string) (ChunkResult, error) {
	text := fmt.Sprintf("mock transcription of %s", filepath.Base(chunkPath))
	return ChunkResult{
		Segments: []transcript.Segment{{Start: 0, End: 1, Text: text}},
		Text:     text,
		Language: "en",
	}, nil
}
