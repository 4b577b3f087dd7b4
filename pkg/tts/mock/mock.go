// Package mock provides a test double for the tts.Engine interface.
//
// Use Engine to return controlled audio from Synthesize and to verify the
// inputs a worker hands to the synthesis backend.
//
// Example:
//
//	e := &mock.Engine{
//	    Audio:    []byte("RIFF..."),
//	    Duration: 1.5,
//	}
//	w := worker.New(broker, e, worker.Config{...})
package mock

import (
	"context"
	"sync"

	"github.com/vietvoice/vvtts/pkg/tts"
)

// Compile-time interface assertion.
var _ tts.Engine = (*Engine)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Input is the synthesis input passed to Synthesize.
	Input tts.SynthesisInput
}

// Engine is a mock implementation of tts.Engine.
type Engine struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is returned from Synthesize when Err is nil.
	Audio []byte

	// Duration is the audio duration in seconds returned from Synthesize.
	Duration float64

	// Err, if non-nil, is returned from Synthesize.
	Err error

	// SynthesizeFn, if non-nil, is invoked instead of the static responses
	// above. Calls are still recorded.
	SynthesizeFn func(ctx context.Context, in tts.SynthesisInput) ([]byte, float64, error)

	// --- Recorded calls ---

	calls  []SynthesizeCall
	closed bool
}

// Synthesize records the call and returns the configured response.
func (e *Engine) Synthesize(ctx context.Context, in tts.SynthesisInput) ([]byte, float64, error) {
	e.mu.Lock()
	e.calls = append(e.calls, SynthesizeCall{Ctx: ctx, Input: in})
	fn := e.SynthesizeFn
	audio, duration, err := e.Audio, e.Duration, e.Err
	e.mu.Unlock()

	if fn != nil {
		return fn(ctx, in)
	}
	return audio, duration, err
}

// Close records that the engine was closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Calls returns a copy of all recorded Synthesize invocations.
func (e *Engine) Calls() []SynthesizeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SynthesizeCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
