package transcript

import (
	"sort"
	"strings"
)

// ChunkOutput carries one chunk's recognizer output together with the chunk's
// offset from the start of the source file.
type ChunkOutput struct {
	Index    int // 1-based
	Offset   float64
	Segments []Segment
	Text     string
	Language string
}

// Merge rewrites chunk-relative segment timestamps into file-relative ones
// and assembles the full transcript. The chunk offset is applied here and
// nowhere else. Inputs may arrive in any order; output segments are sorted by
// chunk index and then stably by start time.
func Merge(outputs []ChunkOutput, engine string) Transcript {
	ordered := append([]ChunkOutput(nil), outputs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	var all []Segment
	var parts []string
	var language string

	for _, out := range ordered {
		for _, s := range out.Segments {
			s.Start += out.Offset
			s.End += out.Offset
			all = append(all, s)
		}
		if txt := strings.TrimSpace(out.Text); txt != "" {
			parts = append(parts, txt)
		}
		if language == "" && strings.TrimSpace(out.Language) != "" {
			language = strings.TrimSpace(out.Language)
		}
	}

	// Sequential chunk processing already yields start-ascending order, but a
	// parallelized backend must not be able to break the invariant.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Start < all[j].Start
	})

	text := strings.Join(parts, " ")
	if text == "" {
		derived := make([]string, 0, len(all))
		for _, s := range all {
			derived = append(derived, s.Text)
		}
		text = strings.Join(derived, " ")
	}

	var duration *float64
	if len(all) > 0 {
		maxEnd := all[0].End
		for _, s := range all {
			if s.End > maxEnd {
				maxEnd = s.End
			}
		}
		duration = &maxEnd
	}

	return Transcript{
		Text:     text,
		Segments: all,
		Duration: duration,
		Language: language,
		Engine:   engine,
	}
}
