package tts

import "context"

// NFE step presets per quality class. A worker's quality selects the preset
// unless an explicit override is configured.
const (
	NFEStepsHigh = 32
	NFEStepsFast = 16
)

// NFESteps returns the refinement-step preset for q. Unknown qualities fall
// back to the high preset.
func NFESteps(q Quality) int {
	if q == QualityFast {
		return NFEStepsFast
	}
	return NFEStepsHigh
}

// SynthesisInput is the engine-facing view of a job: validated text and
// attributes plus an optional preprocessed (decoded, silence-trimmed)
// reference for voice cloning.
type SynthesisInput struct {
	Text    string
	Gender  Gender
	Area    Area
	Emotion Emotion
	Speed   float64

	// ReferenceAudio is canonical WAV bytes, or nil when no cloning
	// reference was supplied.
	ReferenceAudio []byte
	ReferenceText  string
}

// Engine is the synthesis backend a worker drives. Implementations are
// expected to be expensive to construct (model load) and are owned
// exclusively by a single worker process; Synthesize is called strictly
// serially and blocks for the duration of generation.
type Engine interface {
	// Synthesize produces WAV audio for the input and returns the audio
	// bytes together with the audio duration in seconds.
	Synthesize(ctx context.Context, in SynthesisInput) (audio []byte, duration float64, err error)

	// Close releases the loaded model.
	Close() error
}
