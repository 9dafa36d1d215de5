package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ambiware-labs/scribed/internal/config"
)

func skipWithoutShellTools(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test relies on unix true/false binaries")
	}
}

func TestExecEngineReadsOutputFile(t *testing.T) {
	skipWithoutShellTools(t)

	dir := t.TempDir()
	chunk := filepath.Join(dir, "chunk-001.wav")
	require.NoError(t, os.WriteFile(chunk, []byte("riff"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chunk-001.json"), []byte(`{
		"language": "en",
		"transcription": [{"text": "done", "offsets": {"from": 0, "to": 900}}]
	}`), 0o644))

	eng, err := NewExecEngine(config.EngineConfig{Mode: "exec", Command: "true", Name: "stub"})
	require.NoError(t, err)

	out, err := eng.Transcribe(context.Background(), chunk)
	require.NoError(t, err)
	require.Equal(t, "done", out.Text)
	require.Equal(t, "en", out.Language)
	require.Len(t, out.Segments, 1)
}

func TestExecEngineInvocationFailure(t *testing.T) {
	skipWithoutShellTools(t)

	eng, err := NewExecEngine(config.EngineConfig{Mode: "exec", Command: "false"})
	require.NoError(t, err)

	_, err = eng.Transcribe(context.Background(), filepath.Join(t.TempDir(), "chunk-001.wav"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvocation))
}

func TestExecEngineMissingOutput(t *testing.T) {
	skipWithoutShellTools(t)

	eng, err := NewExecEngine(config.EngineConfig{Mode: "exec", Command: "true"})
	require.NoError(t, err)

	_, err = eng.Transcribe(context.Background(), filepath.Join(t.TempDir(), "chunk-001.wav"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvocation))
}

func TestNewExecEngineRejectsEmptyCommand(t *testing.T) {
	t.Parallel()

	_, err := NewExecEngine(config.EngineConfig{Mode: "exec", Command: ""})
	require.Error(t, err)
}
