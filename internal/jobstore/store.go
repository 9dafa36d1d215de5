package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ambiware-labs/scribed/internal/config"
	"github.com/ambiware-labs/scribed/internal/transcript"
)

// Status is the job state machine: pending -> processing -> completed|failed.
// Terminal states are final.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrJobNotFound is returned by lookups for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// Job is the durable record for one transcription job. It is the single
// source of truth read by pollers; only the worker handling the job writes it.
type Job struct {
	ID             string
	ConversationID string
	Status         Status
	Progress       int
	TotalChunks    *int
	CurrentChunk   *int
	Error          *string
	TranscriptID   *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store wraps the SQLite-backed job and transcript tables.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store, creating the schema if needed.
func Open(ctx context.Context, cfg config.JobStoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    progress INTEGER NOT NULL DEFAULT 0,
    total_chunks INTEGER,
    current_chunk INTEGER,
    error TEXT,
    transcript_id INTEGER,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_conversation ON jobs(conversation_id, created_at);
CREATE TABLE IF NOT EXISTS transcripts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    text TEXT NOT NULL,
    duration REAL,
    language TEXT,
    engine TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS transcript_segments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    transcript_id INTEGER NOT NULL,
    start_time REAL NOT NULL,
    end_time REAL NOT NULL,
    text TEXT NOT NULL,
    speaker_label TEXT,
    confidence REAL,
    FOREIGN KEY(transcript_id) REFERENCES transcripts(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_segments_transcript ON transcript_segments(transcript_id, start_time);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts a pending job row.
func (s *Store) CreateJob(ctx context.Context, jobID, conversationID string, progress int) error {
	now := s.clock().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, conversation_id, status, progress, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		jobID, conversationID, StatusPending, progress, now, now)
	return err
}

// GetJob loads a job row.
func (s *Store) GetJob(ctx context.Context, jobID string) (Job, error) {
	var j Job
	var status string
	var total, current, transcriptID sql.NullInt64
	var jobErr sql.NullString
	var created, updated string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, status, progress, total_chunks, current_chunk, error, transcript_id, created_at, updated_at
		 FROM jobs WHERE id = ?`, jobID).Scan(
		&j.ID, &j.ConversationID, &status, &j.Progress, &total, &current, &jobErr, &transcriptID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, err
	}

	j.Status = Status(status)
	if total.Valid {
		v := int(total.Int64)
		j.TotalChunks = &v
	}
	if current.Valid {
		v := int(current.Int64)
		j.CurrentChunk = &v
	}
	if jobErr.Valid {
		j.Error = &jobErr.String
	}
	if transcriptID.Valid {
		j.TranscriptID = &transcriptID.Int64
	}
	j.CreatedAt = parseStoredTime(created)
	j.UpdatedAt = parseStoredTime(updated)
	return j, nil
}

// UpdateProgress durably records a non-terminal transition. Progress never
// goes backwards and terminal rows are never rewritten, so a poller observes
// a monotonically non-decreasing sequence.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, status Status, progress int, totalChunks, currentChunk *int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs
		 SET status = ?,
		     progress = MAX(progress, ?),
		     total_chunks = COALESCE(?, total_chunks),
		     current_chunk = COALESCE(?, current_chunk),
		     updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		status, progress, nullableInt(totalChunks), nullableInt(currentChunk),
		s.clock().UTC(), jobID, StatusCompleted, StatusFailed)
	return err
}

// MarkFailed transitions a job to failed, leaving progress at its last
// durably written value.
func (s *Store) MarkFailed(ctx context.Context, jobID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		StatusFailed, message, s.clock().UTC(), jobID, StatusCompleted, StatusFailed)
	return err
}

// MarkCompleted transitions a job to completed with its result reference.
func (s *Store) MarkCompleted(ctx context.Context, jobID string, transcriptID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = 100, transcript_id = ?, error = NULL, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		StatusCompleted, transcriptID, s.clock().UTC(), jobID, StatusCompleted, StatusFailed)
	return err
}

// CreateTranscriptWithSegments commits the transcript row and all its segment
// rows in one transaction. Either everything is visible or nothing is.
func (s *Store) CreateTranscriptWithSegments(ctx context.Context, conversationID string, tr transcript.Transcript) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO transcripts(conversation_id, text, duration, language, engine, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		conversationID, tr.Text, nullableFloat(tr.Duration), nullableNonEmpty(tr.Language), nullableNonEmpty(tr.Engine), s.clock().UTC())
	if err != nil {
		return 0, err
	}
	transcriptID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if len(tr.Segments) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO transcript_segments(transcript_id, start_time, end_time, text, speaker_label, confidence)
			 VALUES(?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()

		for _, seg := range tr.Segments {
			if _, err := stmt.ExecContext(ctx, transcriptID, seg.Start, seg.End, seg.Text,
				nullableNonEmpty(seg.Speaker), nullableFloat(seg.Confidence)); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return transcriptID, nil
}

// GetTranscript loads a transcript and its ordered segments.
func (s *Store) GetTranscript(ctx context.Context, transcriptID int64) (transcript.Transcript, error) {
	var tr transcript.Transcript
	var duration sql.NullFloat64
	var language, engine sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT text, duration, language, engine FROM transcripts WHERE id = ?`,
		transcriptID).Scan(&tr.Text, &duration, &language, &engine)
	if err != nil {
		return transcript.Transcript{}, err
	}
	if duration.Valid {
		tr.Duration = &duration.Float64
	}
	tr.Language = language.String
	tr.Engine = engine.String

	segs, err := s.listSegments(ctx, transcriptID)
	if err != nil {
		return transcript.Transcript{}, err
	}
	tr.Segments = segs
	return tr, nil
}

func (s *Store) listSegments(ctx context.Context, transcriptID int64) ([]transcript.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_time, end_time, text, speaker_label, confidence
		 FROM transcript_segments WHERE transcript_id = ? ORDER BY start_time ASC, id ASC`,
		transcriptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []transcript.Segment
	for rows.Next() {
		var seg transcript.Segment
		var speaker sql.NullString
		var conf sql.NullFloat64
		if err := rows.Scan(&seg.Start, &seg.End, &seg.Text, &speaker, &conf); err != nil {
			return nil, err
		}
		seg.Speaker = speaker.String
		if conf.Valid {
			seg.Confidence = &conf.Float64
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// CountSegmentsForConversation reports how many segment rows exist across all
// of a conversation's transcripts.
func (s *Store) CountSegmentsForConversation(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcript_segments
		 WHERE transcript_id IN (SELECT id FROM transcripts WHERE conversation_id = ?)`,
		conversationID).Scan(&n)
	return n, err
}

func parseStoredTime(v string) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return ts
	}
	if ts, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", v); err == nil {
		return ts
	}
	return time.Time{}
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableNonEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
