package media

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrBadInput indicates the source audio cannot be decoded: corrupt file,
// unsupported codec, or zero duration.
var ErrBadInput = errors.New("audio input unreadable")

// Chunk is a fixed-duration slice of the source audio. Offset is seconds from
// the start of the file; Index is 1-based and contiguous.
type Chunk struct {
	Index  int
	Offset float64
	Path   string
}

// Arena is per-job scoped temporary storage. It is created when a job starts
// and must be released when the job finishes, regardless of outcome.
type Arena struct {
	dir string
}

func NewArena() (*Arena, error) {
	dir, err := os.MkdirTemp("", "scribed-job-*")
	if err != nil {
		return nil, fmt.Errorf("create job work dir: %w", err)
	}
	return &Arena{dir: dir}, nil
}

func (a *Arena) Dir() string { return a.dir }

// Release removes the arena and everything in it.
func (a *Arena) Release() {
	if a == nil || a.dir == "" {
		return
	}
	_ = os.RemoveAll(a.dir)
	a.dir = ""
}

// commandRunner abstracts subprocess execution so segmentation logic can be
// tested without ffmpeg installed.
type commandRunner interface {
	CombinedOutput(ctx context.Context, name string, args []string) ([]byte, error)
}
