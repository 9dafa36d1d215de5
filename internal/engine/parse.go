package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ambiware-labs/scribed/internal/transcript"
)

// Engine output varies by build and backend. The JSON document may carry
// segments under "segments" or "transcription", and each record carries its
// timestamps in one of several shapes handled by segTimesSeconds.
type engineJSON struct {
	Text          string        `json:"text"`
	Language      string        `json:"language"`
	Result        *engineResult `json:"result"`
	Segments      []rawSegment  `json:"segments"`
	Transcription []rawSegment  `json:"transcription"`
}

type engineResult struct {
	Language string `json:"language"`
}

type rawSegment struct {
	Text string `json:"text"`

	Start *float64 `json:"start"`
	End   *float64 `json:"end"`

	T0 *int `json:"t0"`
	T1 *int `json:"t1"`

	Offsets    *rawOffsets    `json:"offsets"`
	Timestamps *rawTimestamps `json:"timestamps"`
	// Some whisper.cpp builds ship with a typo:
	TimeStanps *rawTimestamps `json:"timestanps"`

	Confidence *float64 `json:"confidence"`
}

type rawOffsets struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

type rawTimestamps struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// parseOutput normalizes an engine JSON document into chunk-relative
// segments. Records with no usable timestamps or with blank text are skipped;
// only a document that is not valid JSON is an error.
func parseOutput(b []byte) (ChunkResult, error) {
	var doc engineJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return ChunkResult{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	lang := strings.TrimSpace(doc.Language)
	if lang == "" && doc.Result != nil {
		lang = strings.TrimSpace(doc.Result.Language)
	}

	raw := doc.Segments
	if len(raw) == 0 {
		raw = doc.Transcription
	}

	segs := make([]transcript.Segment, 0, len(raw))
	var parts []string
	for _, r := range raw {
		start, end, ok := segTimesSeconds(r)
		if !ok {
			continue
		}
		txt := strings.TrimSpace(r.Text)
		if txt == "" {
			continue
		}
		segs = append(segs, transcript.Segment{
			Start:      start,
			End:        end,
			Text:       txt,
			Confidence: r.Confidence,
		})
		parts = append(parts, txt)
	}

	text := strings.TrimSpace(doc.Text)
	if text == "" {
		text = strings.Join(parts, " ")
	}

	return ChunkResult{Segments: segs, Text: text, Language: lang}, nil
}

// segTimesSeconds tries the known timestamp shapes in fixed priority order
// and returns the first usable start/end pair in seconds. Every strategy is
// total: unrecognized shapes fall through rather than failing the chunk.
func segTimesSeconds(s rawSegment) (start float64, end float64, ok bool) {
	if s.Offsets != nil && s.Offsets.From != nil && s.Offsets.To != nil {
		return float64(*s.Offsets.From) / 1000.0, float64(*s.Offsets.To) / 1000.0, true
	}
	if s.Start != nil && s.End != nil {
		return *s.Start, *s.End, true
	}
	if s.T0 != nil && s.T1 != nil {
		// whisper.cpp frame indices are 10ms units.
		return float64(*s.T0) * 0.01, float64(*s.T1) * 0.01, true
	}
	ts := s.Timestamps
	if ts == nil {
		ts = s.TimeStanps
	}
	if ts != nil && ts.From != "" && ts.To != "" {
		a, errA := parseClockTimestamp(ts.From)
		b, errB := parseClockTimestamp(ts.To)
		if errA == nil && errB == nil {
			return a, b, true
		}
	}
	return 0, 0, false
}

// parseClockTimestamp converts "HH:MM:SS" or "HH:MM:SS.mmm" to seconds. The
// fractional part is normalized to millisecond precision.
func parseClockTimestamp(v string) (float64, error) {
	v = strings.TrimSpace(v)
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad timestamp: %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	secPart := parts[2]
	s, frac := secPart, "0"
	if strings.Contains(secPart, ".") {
		split := strings.SplitN(secPart, ".", 2)
		s, frac = split[0], split[1]
	}
	sec, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	ms := 0
	if frac != "" {
		if len(frac) > 3 {
			frac = frac[:3]
		}
		for len(frac) < 3 {
			frac += "0"
		}
		ms, err = strconv.Atoi(frac)
		if err != nil {
			return 0, err
		}
	}
	return float64(h*3600+m*60+sec) + float64(ms)/1000.0, nil
}
