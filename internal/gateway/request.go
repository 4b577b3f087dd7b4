package gateway

import (
	"fmt"
	"unicode/utf8"

	"github.com/vietvoice/vvtts/pkg/tts"
)

// Text length bounds for a synthesis request, in characters.
const (
	minTextLen = 1
	maxTextLen = 5000
)

// Speed bounds for a synthesis request.
const (
	minSpeed = 0.5
	maxSpeed = 2.0
)

// TTSRequest is the submission body shared by /synthesize and
// /synthesize/async. Optional fields left empty fall back to engine
// defaults; Speed and Quality get their documented defaults in
// [TTSRequest.Validate].
type TTSRequest struct {
	Text    string      `json:"text"`
	Gender  tts.Gender  `json:"gender,omitempty"`
	Area    tts.Area    `json:"area,omitempty"`
	Emotion tts.Emotion `json:"emotion,omitempty"`
	Speed   float64     `json:"speed,omitempty"`
	Quality tts.Quality `json:"quality,omitempty"`

	// ReferenceAudio is base64-encoded audio for voice cloning.
	ReferenceAudio string   `json:"reference_audio,omitempty"`
	ReferenceText  string   `json:"reference_text,omitempty"`
	TrimAudioTo    *float64 `json:"trim_audio_to,omitempty"`
}

// Validate applies defaults and checks every field against its documented
// range. Returns the first violation found.
func (r *TTSRequest) Validate() error {
	if n := utf8.RuneCountInString(r.Text); n < minTextLen || n > maxTextLen {
		return fmt.Errorf("text length must be between %d and %d characters", minTextLen, maxTextLen)
	}
	if r.Gender != "" && !r.Gender.IsValid() {
		return fmt.Errorf("gender %q is invalid; valid values: male, female", r.Gender)
	}
	if r.Area != "" && !r.Area.IsValid() {
		return fmt.Errorf("area %q is invalid; valid values: northern, southern, central", r.Area)
	}
	if r.Emotion != "" && !r.Emotion.IsValid() {
		return fmt.Errorf("emotion %q is invalid; valid values: neutral, serious, monotone, sad, surprised, happy, angry", r.Emotion)
	}
	if r.Speed == 0 {
		r.Speed = 1.0
	}
	if r.Speed < minSpeed || r.Speed > maxSpeed {
		return fmt.Errorf("speed %.2f is out of range [%.1f, %.1f]", r.Speed, minSpeed, maxSpeed)
	}
	if r.Quality == "" {
		r.Quality = tts.QualityHigh
	}
	if !r.Quality.IsValid() {
		return fmt.Errorf("quality %q is invalid; valid values: high, fast", r.Quality)
	}
	if r.TrimAudioTo != nil && (*r.TrimAudioTo < 1 || *r.TrimAudioTo > 60) {
		return fmt.Errorf("trim_audio_to %.2f is out of range [1, 60]", *r.TrimAudioTo)
	}
	return nil
}

// job materialises the validated request into an immutable queue job.
func (r *TTSRequest) job(jobID string, timeout float64) tts.Job {
	return tts.Job{
		JobID:          jobID,
		Text:           r.Text,
		Gender:         r.Gender,
		Area:           r.Area,
		Emotion:        r.Emotion,
		Speed:          r.Speed,
		Quality:        r.Quality,
		ReferenceAudio: r.ReferenceAudio,
		ReferenceText:  r.ReferenceText,
		TrimAudioTo:    r.TrimAudioTo,
		CreatedAt:      tts.Now(),
		Timeout:        timeout,
	}
}
