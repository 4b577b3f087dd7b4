package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/vietvoice/vvtts/internal/queue"
	"github.com/vietvoice/vvtts/internal/samples"
	"github.com/vietvoice/vvtts/pkg/tts"
)

// decodeRequest reads and validates a submission body. On failure it writes
// the 422 response and returns ok=false.
func decodeRequest(w http.ResponseWriter, r *http.Request) (*TTSRequest, bool) {
	var req TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error())
		return nil, false
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}
	return &req, true
}

// handleSynthesize is the synchronous path: enqueue, then block (on this
// request's own goroutine only) until the worker's result appears or the
// job timeout elapses. Completed audio is charged to the credential.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	keyInfo, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	job := req.job(uuid.NewString(), s.jobTimeout)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		slog.Error("enqueue failed", "job_id", job.JobID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "Queue unavailable")
		return
	}
	s.metrics.RecordEnqueue(ctx, string(job.Quality), "sync")

	// Post-enqueue snapshot; reported back to the client as its position.
	position, err := s.queue.QueueSize(ctx, job.Quality)
	if err != nil {
		position = 0
	}

	result, err := s.queue.WaitForResult(ctx, job.JobID, job.TimeoutDuration(), 0)
	if err != nil {
		slog.Error("result wait failed", "job_id", job.JobID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "Queue unavailable")
		return
	}
	if result == nil {
		writeError(w, http.StatusRequestTimeout, "Synthesis timeout - try again later")
		return
	}
	if result.Status == tts.StatusError {
		detail := result.Error
		if detail == "" {
			detail = "Synthesis failed"
		}
		writeError(w, http.StatusInternalServerError, detail)
		return
	}

	audioBytes, err := base64.StdEncoding.DecodeString(result.Audio)
	if err != nil {
		slog.Error("result audio is not valid base64", "job_id", job.JobID, "err", err)
		writeError(w, http.StatusInternalServerError, "Corrupt result audio")
		return
	}

	if keyInfo != nil {
		if err := s.keys.IncrementUsage(ctx, keyInfo.KeyID, result.AudioDuration); err != nil {
			slog.Warn("usage increment failed", "key_id", keyInfo.KeyID, "err", err)
		}
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Job-Id", job.JobID)
	w.Header().Set("X-Generation-Time", formatSeconds(result.GenerationTime))
	w.Header().Set("X-Audio-Duration", formatSeconds(result.AudioDuration))
	w.Header().Set("X-Queue-Position", strconv.FormatInt(position, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(audioBytes)
}

// asyncResponse is the body returned by /synthesize/async.
type asyncResponse struct {
	JobID         string        `json:"job_id"`
	Status        tts.JobStatus `json:"status"`
	QueuePosition int64         `json:"queue_position"`
	EstimatedWait *float64      `json:"estimated_wait"`
}

// handleSynthesizeAsync enqueues and returns immediately with a poll
// identifier. Authenticated callers are charged one request here and are
// never charged audio seconds on this path — the download endpoint does not
// touch the credential. That asymmetry is inherited behaviour, kept as-is.
func (s *Server) handleSynthesizeAsync(w http.ResponseWriter, r *http.Request) {
	keyInfo, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	job := req.job(uuid.NewString(), s.jobTimeout)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		slog.Error("enqueue failed", "job_id", job.JobID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "Queue unavailable")
		return
	}
	s.metrics.RecordEnqueue(ctx, string(job.Quality), "async")

	position, err := s.queue.QueueSize(ctx, job.Quality)
	if err != nil {
		position = 0
	}

	var estimatedWait *float64
	if workers, err := s.queue.ActiveWorkers(ctx); err == nil && len(workers) > 0 {
		wait := float64(position) / float64(len(workers)) * avgGenerationSeconds
		estimatedWait = &wait
	}

	if keyInfo != nil {
		if err := s.keys.IncrementUsage(ctx, keyInfo.KeyID, 0); err != nil {
			slog.Warn("usage increment failed", "key_id", keyInfo.KeyID, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, asyncResponse{
		JobID:         job.JobID,
		Status:        tts.StatusPending,
		QueuePosition: position,
		EstimatedWait: estimatedWait,
	})
}

// jobStatusResponse is the body returned by GET /job/{id}.
type jobStatusResponse struct {
	JobID          string        `json:"job_id"`
	Status         tts.JobStatus `json:"status"`
	QueuePosition  *int          `json:"queue_position,omitempty"`
	AudioURL       string        `json:"audio_url,omitempty"`
	GenerationTime *float64      `json:"generation_time,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// handleJobStatus reports a job's lifecycle state, with the queue position
// while pending, the download URL once completed, or the worker's error.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	ctx := r.Context()
	jobID := r.PathValue("id")

	status, err := s.queue.GetStatus(ctx, jobID)
	if errors.Is(err, queue.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Queue unavailable")
		return
	}

	resp := jobStatusResponse{JobID: jobID, Status: status}

	switch status {
	case tts.StatusPending:
		// The status key does not record the quality class, so check both
		// queues; a job sits in exactly one.
		for _, q := range tts.Qualities {
			pos, err := s.queue.QueuePosition(ctx, jobID, q)
			if err == nil && pos >= 0 {
				resp.QueuePosition = &pos
				break
			}
		}
	case tts.StatusCompleted:
		if result, err := s.queue.GetResult(ctx, jobID); err == nil {
			resp.AudioURL = fmt.Sprintf("/job/%s/audio", jobID)
			resp.GenerationTime = &result.GenerationTime
		}
	case tts.StatusError:
		if result, err := s.queue.GetResult(ctx, jobID); err == nil {
			resp.Error = result.Error
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleJobAudio serves the stored audio of a completed job as a download.
func (s *Server) handleJobAudio(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	jobID := r.PathValue("id")

	result, err := s.queue.GetResult(r.Context(), jobID)
	if errors.Is(err, queue.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found or expired")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Queue unavailable")
		return
	}
	if result.Status != tts.StatusCompleted {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Job status is %s, not completed", result.Status))
		return
	}

	audioBytes, err := base64.StdEncoding.DecodeString(result.Audio)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Corrupt result audio")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.wav", jobID))
	w.Header().Set("X-Generation-Time", formatSeconds(result.GenerationTime))
	w.WriteHeader(http.StatusOK)
	w.Write(audioBytes)
}

// healthResponse is the body returned by GET /health.
type healthResponse struct {
	Status     string                `json:"status"`
	QueueSize  int64                 `json:"queue_size"`
	QueueSizes map[tts.Quality]int64 `json:"queue_sizes"`
	Workers    healthWorkers         `json:"workers"`
	Metrics    map[string]int64      `json:"metrics,omitempty"`
}

type healthWorkers struct {
	Active    int                      `json:"active"`
	IDs       []string                 `json:"ids"`
	ByQuality map[tts.Quality][]string `json:"by_quality"`
}

// handleHealth aggregates broker liveness, queue depths, worker membership,
// and the shared metrics counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.queue.Ping(ctx); err != nil {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:     "unhealthy",
			QueueSizes: map[tts.Quality]int64{},
			Workers:    healthWorkers{IDs: []string{}, ByQuality: map[tts.Quality][]string{}},
		})
		return
	}

	total, err := s.queue.TotalQueueSize(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Queue unavailable")
		return
	}
	sizes, err := s.queue.QueueSizes(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Queue unavailable")
		return
	}
	workers, err := s.queue.ActiveWorkers(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Queue unavailable")
		return
	}
	byQuality, err := s.queue.WorkersByQuality(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Queue unavailable")
		return
	}
	metrics, err := s.queue.Metrics(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Queue unavailable")
		return
	}
	if len(metrics) == 0 {
		metrics = nil
	}
	if workers == nil {
		workers = []string{}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "healthy",
		QueueSize:  total,
		QueueSizes: sizes,
		Workers: healthWorkers{
			Active:    len(workers),
			IDs:       workers,
			ByQuality: byQuality,
		},
		Metrics: metrics,
	})
}

// voicesResponse enumerates the closed voice-attribute sets.
type voicesResponse struct {
	Gender  []tts.Gender  `json:"gender"`
	Area    []tts.Area    `json:"area"`
	Emotion []tts.Emotion `json:"emotion"`
	Group   []string      `json:"group"`
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, voicesResponse{
		Gender:  tts.Genders,
		Area:    tts.Areas,
		Emotion: tts.Emotions,
		Group:   tts.Groups,
	})
}

// sampleCreateRequest is the body of POST /voice-samples.
type sampleCreateRequest struct {
	Audio         string `json:"audio"`
	ReferenceText string `json:"reference_text"`
	Name          string `json:"name,omitempty"`
}

func (s *Server) handleSampleCreate(w http.ResponseWriter, r *http.Request) {
	var req sampleCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error())
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid audio data: "+err.Error())
		return
	}

	sample, err := s.samples.Create(raw, req.ReferenceText, req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid audio data: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (s *Server) handleSampleList(w http.ResponseWriter, _ *http.Request) {
	list, err := s.samples.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sample catalog unavailable")
		return
	}
	if list == nil {
		list = []samples.Sample{}
	}
	writeJSON(w, http.StatusOK, map[string][]samples.Sample{"samples": list})
}

func (s *Server) handleSampleAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	audioBytes, referenceText, err := s.samples.Audio(id)
	if errors.Is(err, samples.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Voice sample not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sample catalog unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"audio":          base64.StdEncoding.EncodeToString(audioBytes),
		"reference_text": referenceText,
	})
}

func (s *Server) handleSampleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.samples.Delete(id)
	if errors.Is(err, samples.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Voice sample not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sample catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// handleRoot serves the API banner.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "VietVoice TTS API",
		"version": APIVersion,
		"health":  "/health",
		"metrics": "/metrics",
	})
}

// formatSeconds renders a seconds value for response headers.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
