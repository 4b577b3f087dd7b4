// Package queue implements the enqueue/dequeue contract between the gateway
// and the synthesis workers. All state lives in the broker under a fixed key
// layout; the service itself is stateless logic and safe for concurrent use.
//
// Key layout:
//
//	jobs:high, jobs:fast   FIFO lists, one per quality class
//	status:{id}            job status string, TTL 300 s
//	result:{id}            terminal result JSON, TTL 300 s
//	worker:{id}            registration JSON, TTL 60 s (heartbeat)
//	metrics                hash of monotonic counters
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vietvoice/vvtts/pkg/broker"
	"github.com/vietvoice/vvtts/pkg/tts"
)

const (
	queueHighKey = "jobs:high"
	queueFastKey = "jobs:fast"
	statusPrefix = "status:"
	resultPrefix = "result:"
	workerPrefix = "worker:"
	metricsKey   = "metrics"
)

const (
	// ResultTTL bounds the lifetime of status and result keys. The broker's
	// expiry is the only garbage collector for finished jobs.
	ResultTTL = 300 * time.Second

	// WorkerTTL is the heartbeat TTL; a worker whose key lapses is
	// presumed dead and drops out of health counts.
	WorkerTTL = 60 * time.Second

	// DefaultPollInterval is the result-rendezvous sampling interval.
	DefaultPollInterval = 100 * time.Millisecond
)

// ErrNotFound is returned when a job's status or result key is missing or
// has expired.
var ErrNotFound = errors.New("queue: job not found")

// WorkerRegistration is the value stored at worker:{id}.
type WorkerRegistration struct {
	Timestamp float64     `json:"timestamp"`
	Quality   tts.Quality `json:"quality"`
}

// Service exposes the job-dispatch operations on top of a [broker.Broker].
type Service struct {
	broker broker.Broker
}

// New returns a Service backed by b.
func New(b broker.Broker) *Service {
	return &Service{broker: b}
}

// queueKey maps a quality class to its list key. Unknown classes map to the
// high-quality queue, mirroring the producer-side default.
func queueKey(q tts.Quality) string {
	if q == tts.QualityFast {
		return queueFastKey
	}
	return queueHighKey
}

// Enqueue pushes job onto its quality queue and marks it pending. The job's
// queue is derived from job.Quality, so the queue a job waits on always
// matches the class it declares.
func (s *Service) Enqueue(ctx context.Context, job tts.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.JobID, err)
	}
	if err := s.broker.Push(ctx, queueKey(job.Quality), string(data)); err != nil {
		return fmt.Errorf("queue: enqueue job %s: %w", job.JobID, err)
	}
	if err := s.broker.Set(ctx, statusPrefix+job.JobID, string(tts.StatusPending), ResultTTL); err != nil {
		return fmt.Errorf("queue: set pending status for %s: %w", job.JobID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the oldest job of the given quality.
// Returns (nil, nil) when the timeout elapses with the queue still empty.
func (s *Service) Dequeue(ctx context.Context, quality tts.Quality, timeout time.Duration) (*tts.Job, error) {
	data, err := s.broker.BlockingPop(ctx, queueKey(quality), timeout)
	if errors.Is(err, broker.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue %s: %w", quality, err)
	}
	var job tts.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("queue: decode job: %w", err)
	}
	return &job, nil
}

// SetStatus writes the job's status, refreshing the TTL so a long-running
// job's keys do not expire mid-flight.
func (s *Service) SetStatus(ctx context.Context, jobID string, status tts.JobStatus) error {
	if err := s.broker.Set(ctx, statusPrefix+jobID, string(status), ResultTTL); err != nil {
		return fmt.Errorf("queue: set status for %s: %w", jobID, err)
	}
	return nil
}

// GetStatus returns the job's status, or ErrNotFound for an unknown or
// expired id.
func (s *Service) GetStatus(ctx context.Context, jobID string) (tts.JobStatus, error) {
	val, err := s.broker.Get(ctx, statusPrefix+jobID)
	if errors.Is(err, broker.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("queue: get status for %s: %w", jobID, err)
	}
	return tts.JobStatus(val), nil
}

// StoreResult writes the terminal result and mirrors its status to the
// status key, both with a fresh TTL.
func (s *Service) StoreResult(ctx context.Context, jobID string, result tts.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("queue: marshal result for %s: %w", jobID, err)
	}
	if err := s.broker.Set(ctx, resultPrefix+jobID, string(data), ResultTTL); err != nil {
		return fmt.Errorf("queue: store result for %s: %w", jobID, err)
	}
	status := result.Status
	if status == "" {
		status = tts.StatusCompleted
	}
	return s.SetStatus(ctx, jobID, status)
}

// GetResult returns the stored result, or ErrNotFound if none exists.
func (s *Service) GetResult(ctx context.Context, jobID string) (*tts.Result, error) {
	data, err := s.broker.Get(ctx, resultPrefix+jobID)
	if errors.Is(err, broker.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("queue: get result for %s: %w", jobID, err)
	}
	var result tts.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("queue: decode result for %s: %w", jobID, err)
	}
	return &result, nil
}

// WaitForResult is the producer side of the rendezvous: it samples the
// result key every poll interval until a result appears or the timeout
// elapses. Returns (nil, nil) on timeout — the job may still complete later
// and remain retrievable until its TTL expires. A timeout of zero returns
// immediately. Cancelling ctx ends the wait early.
func (s *Service) WaitForResult(ctx context.Context, jobID string, timeout, poll time.Duration) (*tts.Result, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		result, err := s.GetResult(ctx, jobID)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		wait := poll
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, nil
}

// QueueSize returns the number of jobs waiting in the given quality queue.
func (s *Service) QueueSize(ctx context.Context, quality tts.Quality) (int64, error) {
	return s.broker.ListLen(ctx, queueKey(quality))
}

// TotalQueueSize returns the number of jobs waiting across all queues.
func (s *Service) TotalQueueSize(ctx context.Context) (int64, error) {
	var total int64
	for _, q := range tts.Qualities {
		n, err := s.broker.ListLen(ctx, queueKey(q))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// QueueSizes returns the per-class queue sizes.
func (s *Service) QueueSizes(ctx context.Context) (map[tts.Quality]int64, error) {
	sizes := make(map[tts.Quality]int64, len(tts.Qualities))
	for _, q := range tts.Qualities {
		n, err := s.broker.ListLen(ctx, queueKey(q))
		if err != nil {
			return nil, err
		}
		sizes[q] = n
	}
	return sizes, nil
}

// QueuePosition returns the job's zero-based FIFO position in its quality
// queue (0 = next to be consumed), or -1 if the job is no longer queued.
// Producers push to the list head and consumers pop the tail, so the
// position counts from the tail.
func (s *Service) QueuePosition(ctx context.Context, jobID string, quality tts.Quality) (int, error) {
	vals, err := s.broker.ListRange(ctx, queueKey(quality), 0, -1)
	if err != nil {
		return -1, fmt.Errorf("queue: scan %s queue: %w", quality, err)
	}
	for i := len(vals) - 1; i >= 0; i-- {
		var job tts.Job
		if err := json.Unmarshal([]byte(vals[i]), &job); err != nil {
			continue
		}
		if job.JobID == jobID {
			return len(vals) - 1 - i, nil
		}
	}
	return -1, nil
}

// RegisterWorker writes (or refreshes) the worker's liveness key with its
// quality class. Expiry of the key removes the worker from health counts
// but never affects jobs it already holds.
func (s *Service) RegisterWorker(ctx context.Context, workerID string, quality tts.Quality) error {
	data, err := json.Marshal(WorkerRegistration{
		Timestamp: tts.Now(),
		Quality:   quality,
	})
	if err != nil {
		return fmt.Errorf("queue: marshal registration for %s: %w", workerID, err)
	}
	if err := s.broker.Set(ctx, workerPrefix+workerID, string(data), WorkerTTL); err != nil {
		return fmt.Errorf("queue: register worker %s: %w", workerID, err)
	}
	return nil
}

// UnregisterWorker removes the worker's liveness key.
func (s *Service) UnregisterWorker(ctx context.Context, workerID string) error {
	if err := s.broker.Delete(ctx, workerPrefix+workerID); err != nil {
		return fmt.Errorf("queue: unregister worker %s: %w", workerID, err)
	}
	return nil
}

// ActiveWorkers returns the ids of all workers with a live heartbeat.
func (s *Service) ActiveWorkers(ctx context.Context) ([]string, error) {
	keys, err := s.broker.ScanPrefix(ctx, workerPrefix)
	if err != nil {
		return nil, fmt.Errorf("queue: scan workers: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len(workerPrefix):])
	}
	return ids, nil
}

// WorkersByQuality groups live workers by their declared quality class.
// Registrations that cannot be decoded count toward the high class so a
// malformed value never hides a live worker.
func (s *Service) WorkersByQuality(ctx context.Context) (map[tts.Quality][]string, error) {
	keys, err := s.broker.ScanPrefix(ctx, workerPrefix)
	if err != nil {
		return nil, fmt.Errorf("queue: scan workers: %w", err)
	}

	groups := map[tts.Quality][]string{
		tts.QualityHigh: {},
		tts.QualityFast: {},
	}
	for _, k := range keys {
		id := k[len(workerPrefix):]
		val, err := s.broker.Get(ctx, k)
		if err != nil {
			// Key expired between scan and read.
			continue
		}
		var reg WorkerRegistration
		quality := tts.QualityHigh
		if err := json.Unmarshal([]byte(val), &reg); err == nil && reg.Quality.IsValid() {
			quality = reg.Quality
		}
		groups[quality] = append(groups[quality], id)
	}
	return groups, nil
}

// IncrementMetric atomically adds delta to a named counter in the metrics hash.
func (s *Service) IncrementMetric(ctx context.Context, name string, delta int64) error {
	if err := s.broker.HashIncrBy(ctx, metricsKey, name, delta); err != nil {
		return fmt.Errorf("queue: increment metric %s: %w", name, err)
	}
	return nil
}

// Metrics returns all counters from the metrics hash.
func (s *Service) Metrics(ctx context.Context) (map[string]int64, error) {
	raw, err := s.broker.HashGetAll(ctx, metricsKey)
	if err != nil {
		return nil, fmt.Errorf("queue: read metrics: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Ping reports whether the broker is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.broker.Ping(ctx)
}
