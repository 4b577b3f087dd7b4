// Package worker implements the long-lived synthesis consumer: it binds one
// [tts.Engine] to one quality queue, heartbeats its liveness into the
// broker, and turns dequeued jobs into stored results. A worker never talks
// HTTP; its only interfaces are the queue service and the engine.
package worker

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietvoice/vvtts/internal/observe"
	"github.com/vietvoice/vvtts/internal/queue"
	"github.com/vietvoice/vvtts/pkg/audio"
	"github.com/vietvoice/vvtts/pkg/tts"
)

// dequeueTimeout is the blocking-pop window per loop iteration. Short enough
// that shutdown and heartbeats stay responsive, long enough to keep the
// broker round-trip rate low on an idle queue.
const dequeueTimeout = 5 * time.Second

// Error codes stored alongside a failed result.
const (
	errCodeSynthesis = "SYNTHESIS_FAILED"
	errCodeReference = "INVALID_REFERENCE_AUDIO"
)

// Config carries the worker's identity and scheduling settings.
type Config struct {
	// WorkerID identifies this process in the liveness registry.
	WorkerID string

	// Quality selects the single queue this worker consumes.
	Quality tts.Quality

	// HeartbeatInterval is the liveness re-registration period.
	HeartbeatInterval time.Duration
}

// Worker consumes one quality queue and drives a synthesis engine. A Worker
// is single-threaded by design: the engine holds a loaded model and
// processes strictly one job at a time.
type Worker struct {
	queue   *queue.Service
	engine  tts.Engine
	metrics *observe.Metrics
	cfg     Config

	log *slog.Logger
}

// New assembles a Worker. The engine is owned by the worker from here on
// and is closed when [Worker.Run] returns.
func New(q *queue.Service, engine tts.Engine, metrics *observe.Metrics, cfg Config) *Worker {
	return &Worker{
		queue:   q,
		engine:  engine,
		metrics: metrics,
		cfg:     cfg,
		log:     slog.With("worker_id", cfg.WorkerID, "quality", cfg.Quality),
	}
}

// Run is the worker's main loop: register, then dequeue and process until
// ctx is cancelled. Registration is refreshed every heartbeat interval so
// the liveness key never lapses while the worker is healthy. An in-flight
// job is always finished and its result stored before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	defer w.engine.Close()

	if err := w.queue.Ping(ctx); err != nil {
		return fmt.Errorf("worker: broker unreachable: %w", err)
	}
	if err := w.queue.RegisterWorker(ctx, w.cfg.WorkerID, w.cfg.Quality); err != nil {
		return fmt.Errorf("worker: register: %w", err)
	}
	w.log.Info("worker registered")

	defer func() {
		// ctx is already cancelled on the shutdown path; give the
		// unregister its own deadline so the key does not linger for a
		// full TTL.
		unregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.queue.UnregisterWorker(unregCtx, w.cfg.WorkerID); err != nil {
			w.log.Warn("unregister failed", "err", err)
		} else {
			w.log.Info("worker unregistered")
		}
	}()

	lastHeartbeat := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if time.Since(lastHeartbeat) >= w.cfg.HeartbeatInterval {
			if err := w.queue.RegisterWorker(ctx, w.cfg.WorkerID, w.cfg.Quality); err != nil {
				w.log.Warn("heartbeat failed", "err", err)
			}
			lastHeartbeat = time.Now()
		}

		job, err := w.queue.Dequeue(ctx, w.cfg.Quality, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Error("dequeue failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		// Shutdown cancellation applies to the dequeue wait only; a job
		// already picked up runs to a stored terminal result.
		w.Process(context.WithoutCancel(ctx), job)
	}
}

// Process runs one job end to end: mark processing, synthesize, store the
// terminal result. Failures are stored as error results, never dropped, so
// a waiting producer always gets an answer.
func (w *Worker) Process(ctx context.Context, job *tts.Job) {
	log := w.log.With("job_id", job.JobID)
	log.Info("job started", "text_len", len(job.Text))

	if err := w.queue.SetStatus(ctx, job.JobID, tts.StatusProcessing); err != nil {
		log.Warn("set processing status failed", "err", err)
	}

	input, err := w.prepareInput(job)
	if err != nil {
		log.Error("reference audio rejected", "err", err)
		w.fail(ctx, job, err.Error(), errCodeReference, 0)
		return
	}

	start := time.Now()
	audioBytes, duration, err := w.engine.Synthesize(ctx, input)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		log.Error("synthesis failed", "err", err, "generation_time", elapsed)
		w.fail(ctx, job, err.Error(), errCodeSynthesis, elapsed)
		return
	}

	result := tts.Result{
		Status:         tts.StatusCompleted,
		Audio:          base64.StdEncoding.EncodeToString(audioBytes),
		GenerationTime: elapsed,
		AudioDuration:  duration,
		CompletedAt:    tts.Now(),
	}
	if err := w.queue.StoreResult(ctx, job.JobID, result); err != nil {
		log.Error("store result failed", "err", err)
		return
	}
	if err := w.queue.IncrementMetric(ctx, "jobs_completed", 1); err != nil {
		log.Warn("metric increment failed", "err", err)
	}
	w.metrics.RecordSynthesis(ctx, string(job.Quality), string(tts.StatusCompleted), elapsed)
	log.Info("job completed", "generation_time", elapsed, "audio_duration", duration)
}

// prepareInput builds the engine input from a job. The cloning reference is
// decoded and silence-trimmed only when both the audio and its transcript
// are present; audio without a transcript is ignored.
func (w *Worker) prepareInput(job *tts.Job) (tts.SynthesisInput, error) {
	input := tts.SynthesisInput{
		Text:          job.Text,
		Gender:        job.Gender,
		Area:          job.Area,
		Emotion:       job.Emotion,
		Speed:         job.Speed,
		ReferenceText: job.ReferenceText,
	}
	if job.ReferenceAudio == "" || job.ReferenceText == "" {
		return input, nil
	}

	raw, err := base64.StdEncoding.DecodeString(job.ReferenceAudio)
	if err != nil {
		return input, fmt.Errorf("decode reference audio: %w", err)
	}
	trimmed, err := audio.TrimSilence(raw, audio.DefaultSilenceThresholdDB)
	if err != nil {
		return input, fmt.Errorf("trim reference audio: %w", err)
	}
	if job.TrimAudioTo != nil {
		trimmed, err = audio.Clip(trimmed, *job.TrimAudioTo)
		if err != nil {
			return input, fmt.Errorf("clip reference audio: %w", err)
		}
	}
	input.ReferenceAudio = trimmed
	return input, nil
}

// fail stores an error result for the job and bumps the failure counters.
func (w *Worker) fail(ctx context.Context, job *tts.Job, message, code string, elapsed float64) {
	result := tts.Result{
		Status:         tts.StatusError,
		Error:          message,
		ErrorCode:      code,
		GenerationTime: elapsed,
		CompletedAt:    tts.Now(),
	}
	if err := w.queue.StoreResult(ctx, job.JobID, result); err != nil {
		w.log.Error("store error result failed", "job_id", job.JobID, "err", err)
	}
	if err := w.queue.IncrementMetric(ctx, "jobs_failed", 1); err != nil {
		w.log.Warn("metric increment failed", "err", err)
	}
	w.metrics.RecordSynthesis(ctx, string(job.Quality), string(tts.StatusError), elapsed)
}
