package protocol

import "time"

// JobOptions carries per-job flags for downstream collaborators. The
// summarization work itself happens outside this service; the flags travel
// with the completion event.
type JobOptions struct {
	Summarize   bool `json:"summarize"`
	ActionItems bool `json:"action_items"`
}

// JobRequest enqueues one transcription job.
type JobRequest struct {
	JobID          string     `json:"job_id"`
	ConversationID string     `json:"conversation_id"`
	AudioPath      string     `json:"audio_path"`
	Options        JobOptions `json:"options"`
}

// JobEvent is broadcast on the bus when a job reaches a terminal state.
type JobEvent struct {
	JobID          string     `json:"job_id"`
	ConversationID string     `json:"conversation_id"`
	TranscriptID   *int64     `json:"transcript_id,omitempty"`
	Error          string     `json:"error,omitempty"`
	Options        JobOptions `json:"options"`
	Timestamp      time.Time  `json:"timestamp"`
}

const (
	SubjectJobEnqueue   = "jobs.transcribe"
	QueueGroupWorkers   = "scribed-workers"
	SubjectJobCompleted = "transcripts.completed"
	SubjectJobFailed    = "transcripts.failed"
)
