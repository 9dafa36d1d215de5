package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ambiware-labs/scribed/internal/jobstore"
	"github.com/ambiware-labs/scribed/internal/protocol"
)

const maxUploadBytes = 2 << 30

type enqueueRequest struct {
	ConversationID string              `json:"conversation_id"`
	AudioPath      string              `json:"audio_path"`
	Options        protocol.JobOptions `json:"options"`
}

type jobResponse struct {
	JobID          string  `json:"job_id"`
	ConversationID string  `json:"conversation_id"`
	Status         string  `json:"status"`
	Progress       int     `json:"progress"`
	TotalChunks    *int    `json:"total_chunks,omitempty"`
	CurrentChunk   *int    `json:"current_chunk,omitempty"`
	Error          *string `json:"error,omitempty"`
	TranscriptID   *int64  `json:"transcript_id,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type segmentResponse struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Speaker    string   `json:"speaker,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type transcriptResponse struct {
	TranscriptID int64             `json:"transcript_id"`
	Text         string            `json:"text"`
	Duration     *float64          `json:"duration,omitempty"`
	Language     string            `json:"language,omitempty"`
	Engine       string            `json:"engine,omitempty"`
	Segments     []segmentResponse `json:"segments"`
}

func (r *Runtime) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/jobs", r.handleEnqueueJob)
	mux.HandleFunc("GET /api/jobs/{id}", r.handleGetJob)
	mux.HandleFunc("GET /api/transcripts/{id}", r.handleGetTranscript)
}

// handleEnqueueJob accepts either a JSON body referencing audio already on
// disk, or a multipart upload with the audio itself.
func (r *Runtime) handleEnqueueJob(w http.ResponseWriter, req *http.Request) {
	var enq enqueueRequest

	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		path, opts, convID, err := r.acceptUpload(req)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		enq = enqueueRequest{ConversationID: convID, AudioPath: path, Options: opts}
	} else {
		if err := json.NewDecoder(req.Body).Decode(&enq); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if strings.TrimSpace(enq.AudioPath) == "" {
		writeJSONError(w, http.StatusBadRequest, "audio_path is required")
		return
	}
	if _, err := os.Stat(enq.AudioPath); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("audio file not accessible: %v", err))
		return
	}
	if enq.ConversationID == "" {
		enq.ConversationID = uuid.NewString()
	}

	jobReq := protocol.JobRequest{
		JobID:          uuid.NewString(),
		ConversationID: enq.ConversationID,
		AudioPath:      enq.AudioPath,
		Options:        enq.Options,
	}
	if err := r.pool.Enqueue(req.Context(), jobReq); err != nil {
		r.logger.Error("enqueue failed",
			slog.String("job_id", jobReq.JobID),
			slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	job, err := r.store.GetJob(req.Context(), jobReq.JobID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (r *Runtime) acceptUpload(req *http.Request) (string, protocol.JobOptions, string, error) {
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", protocol.JobOptions{}, "", fmt.Errorf("parse upload: %w", err)
	}
	file, header, err := req.FormFile("audio")
	if err != nil {
		return "", protocol.JobOptions{}, "", errors.New("missing audio file field")
	}
	defer file.Close()

	uploadDir := filepath.Join(filepath.Dir(r.cfg.JobStore.Path), "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", protocol.JobOptions{}, "", fmt.Errorf("create upload dir: %w", err)
	}

	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".bin"
	}
	path := filepath.Join(uploadDir, uuid.NewString()+ext)
	dst, err := os.Create(path)
	if err != nil {
		return "", protocol.JobOptions{}, "", fmt.Errorf("store upload: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", protocol.JobOptions{}, "", fmt.Errorf("store upload: %w", err)
	}

	opts := protocol.JobOptions{
		Summarize:   parseBool(req.FormValue("summarize")),
		ActionItems: parseBool(req.FormValue("action_items")),
	}
	return path, opts, req.FormValue("conversation_id"), nil
}

func (r *Runtime) handleGetJob(w http.ResponseWriter, req *http.Request) {
	job, err := r.store.GetJob(req.Context(), req.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			writeJSONError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (r *Runtime) handleGetTranscript(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid transcript id")
		return
	}
	tr, err := r.store.GetTranscript(req.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "transcript not found")
		return
	}

	resp := transcriptResponse{
		TranscriptID: id,
		Text:         tr.Text,
		Duration:     tr.Duration,
		Language:     tr.Language,
		Engine:       tr.Engine,
		Segments:     make([]segmentResponse, 0, len(tr.Segments)),
	}
	for _, seg := range tr.Segments {
		resp.Segments = append(resp.Segments, segmentResponse{
			Start:      seg.Start,
			End:        seg.End,
			Text:       seg.Text,
			Speaker:    seg.Speaker,
			Confidence: seg.Confidence,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toJobResponse(job jobstore.Job) jobResponse {
	return jobResponse{
		JobID:          job.ID,
		ConversationID: job.ConversationID,
		Status:         string(job.Status),
		Progress:       job.Progress,
		TotalChunks:    job.TotalChunks,
		CurrentChunk:   job.CurrentChunk,
		Error:          job.Error,
		TranscriptID:   job.TranscriptID,
		CreatedAt:      job.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:      job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
