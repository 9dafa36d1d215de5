package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/ambiware-labs/scribed/internal/config"
)

// execEngine invokes a whisper.cpp style CLI per chunk. The CLI is expected
// to write a JSON result next to the requested output base when given
// -oj -of <base>.
type execEngine struct {
	cmd []string
	cfg config.EngineConfig
}

// NewExecEngine builds an Engine around the configured command line.
func NewExecEngine(cfg config.EngineConfig) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	return &execEngine{cmd: args, cfg: cfg}, nil
}

func (e *execEngine) Name() string {
	if strings.TrimSpace(e.cfg.Name) != "" {
		return e.cfg.Name
	}
	return filepath.Base(e.cmd[0])
}

func (e *execEngine) Transcribe(ctx context.Context, chunkPath string) (ChunkResult, error) {
	outBase := strings.TrimSuffix(chunkPath, filepath.Ext(chunkPath))

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "-f", chunkPath, "-oj", "-of", outBase)
	if e.cfg.ModelPath != "" {
		args = append(args, "-m", e.cfg.ModelPath)
	}
	if e.cfg.Language != "" {
		args = append(args, "-l", e.cfg.Language)
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stderr bytes.Buffer
	command.Stdout = &bytes.Buffer{}
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return ChunkResult{}, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return ChunkResult{}, fmt.Errorf("%w: %v: %s", ErrInvocation, err, msg)
		}
		return ChunkResult{}, fmt.Errorf("%w: %v", ErrInvocation, err)
	}

	jsonPath := outBase + ".json"
	b, err := os.ReadFile(jsonPath)
	if err != nil {
		return ChunkResult{}, fmt.Errorf("%w: read engine output: %v", ErrInvocation, err)
	}
	defer os.Remove(jsonPath)

	return parseOutput(b)
}
