package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOutputMillisecondOffsets(t *testing.T) {
	t.Parallel()

	out, err := parseOutput([]byte(`{
		"segments": [
			{"text": "hello", "offsets": {"from": 1000, "to": 2500}}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, out.Segments, 1)
	require.Equal(t, 1.0, out.Segments[0].Start)
	require.Equal(t, 2.5, out.Segments[0].End)
}

func TestParseOutputSecondsFields(t *testing.T) {
	t.Parallel()

	out, err := parseOutput([]byte(`{
		"segments": [
			{"text": "hi", "start": 0.42, "end": 3.14}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, out.Segments, 1)
	require.Equal(t, 0.42, out.Segments[0].Start)
	require.Equal(t, 3.14, out.Segments[0].End)
}

func TestParseOutputFrameIndices(t *testing.T) {
	t.Parallel()

	out, err := parseOutput([]byte(`{
		"transcription": [
			{"text": "frames", "t0": 150, "t1": 300}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, out.Segments, 1)
	require.InDelta(t, 1.5, out.Segments[0].Start, 1e-9)
	require.InDelta(t, 3.0, out.Segments[0].End, 1e-9)
}

func TestParseOutputClockTimestamps(t *testing.T) {
	t.Parallel()

	out, err := parseOutput([]byte(`{
		"transcription": [
			{"text": "clock", "timestamps": {"from": "00:01:02.500", "to": "00:01:05"}},
			{"text": "typo", "timestanps": {"from": "00:00:01.5", "to": "00:00:02.123456"}}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, out.Segments, 2)
	require.Equal(t, 62.5, out.Segments[0].Start)
	require.Equal(t, 65.0, out.Segments[0].End)
	require.Equal(t, 1.5, out.Segments[1].Start)
	require.Equal(t, 2.123, out.Segments[1].End)
}

func TestParseOutputShapePriority(t *testing.T) {
	t.Parallel()

	// Offsets win over seconds fields when a record carries both.
	out, err := parseOutput([]byte(`{
		"segments": [
			{"text": "both", "start": 9.0, "end": 10.0, "offsets": {"from": 1000, "to": 2000}}
		]
	}`))
	require.NoError(t, err)
	require.Equal(t, 1.0, out.Segments[0].Start)
	require.Equal(t, 2.0, out.Segments[0].End)
}

func TestParseOutputDropsBlankText(t *testing.T) {
	t.Parallel()

	out, err := parseOutput([]byte(`{
		"segments": [
			{"text": "   ", "offsets": {"from": 0, "to": 1000}},
			{"text": "kept", "offsets": {"from": 1000, "to": 2000}}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, out.Segments, 1)
	require.Equal(t, "kept", out.Segments[0].Text)
	require.Equal(t, "kept", out.Text)
}

func TestParseOutputSkipsUnrecognizedRecords(t *testing.T) {
	t.Parallel()

	out, err := parseOutput([]byte(`{
		"segments": [
			{"text": "no timing at all"},
			{"text": "bad clock", "timestamps": {"from": "nope", "to": "also nope"}}
		]
	}`))
	require.NoError(t, err)
	require.Empty(t, out.Segments)
}

func TestParseOutputLanguageFallback(t *testing.T) {
	t.Parallel()

	out, err := parseOutput([]byte(`{"result": {"language": "de"}, "segments": []}`))
	require.NoError(t, err)
	require.Equal(t, "de", out.Language)
}

func TestParseOutputEngineTextPreferred(t *testing.T) {
	t.Parallel()

	out, err := parseOutput([]byte(`{
		"text": "engine level text",
		"segments": [{"text": "segment text", "start": 0, "end": 1}]
	}`))
	require.NoError(t, err)
	require.Equal(t, "engine level text", out.Text)
}

func TestParseOutputInvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := parseOutput([]byte("this is not json"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrParse))
}

func TestParseClockTimestamp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want float64
	}{
		{"00:00:00", 0},
		{"00:00:01.5", 1.5},
		{"00:01:00.050", 60.05},
		{"01:02:03.123", 3723.123},
		{"00:00:02.123456", 2.123},
	}
	for _, tc := range cases {
		got, err := parseClockTimestamp(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := parseClockTimestamp("12:34")
	require.Error(t, err)
}
