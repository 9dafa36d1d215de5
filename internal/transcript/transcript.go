package transcript

// Segment is a timestamped span of transcribed text. Before merging, Start
// and End are relative to the chunk the segment came from; after merging they
// are relative to the start of the source file.
type Segment struct {
	Start      float64
	End        float64
	Text       string
	Speaker    string
	Confidence *float64
}

// Transcript is the merged result for one job.
type Transcript struct {
	Text     string
	Segments []Segment
	Duration *float64
	Language string
	Engine   string
}
