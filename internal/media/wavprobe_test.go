package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

func writeSilenceWav(t *testing.T, path string, seconds, sampleRate int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   make([]int, seconds*sampleRate),
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestWavDuration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "silence.wav")
	writeSilenceWav(t, path, 2, 16000)

	d, err := wavDuration(path)
	require.NoError(t, err)
	require.InDelta(t, 2.0, d, 0.01)
}

func TestWavDurationRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav"), 0o644))

	_, err := wavDuration(path)
	require.Error(t, err)
}
