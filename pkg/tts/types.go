// Package tts defines the job, result, and voice-attribute types shared by
// the gateway and the synthesis workers, plus the [Engine] interface the
// workers drive. Jobs are immutable once enqueued; their lifecycle is
// tracked through [JobStatus] keys in the broker, never by mutating the job.
package tts

import "time"

// JobStatus is the lifecycle state of a synthesis job. The only legal order
// is pending → processing → completed|error; there are no back-transitions.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// IsValid reports whether s is a recognised job status.
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Quality selects both the queue a job is pushed onto and the engine's
// internal refinement cost.
type Quality string

const (
	// QualityHigh runs the engine at 32 refinement steps.
	QualityHigh Quality = "high"

	// QualityFast runs the engine at 16 refinement steps.
	QualityFast Quality = "fast"
)

// IsValid reports whether q is a recognised quality class.
func (q Quality) IsValid() bool {
	return q == QualityHigh || q == QualityFast
}

// Qualities lists all quality classes in display order.
var Qualities = []Quality{QualityHigh, QualityFast}

// Gender is the voice gender attribute.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// IsValid reports whether g is a recognised gender. The empty value is not
// valid; optional fields are checked only when set.
func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale
}

// Area is the regional accent attribute.
type Area string

const (
	AreaNorthern Area = "northern"
	AreaSouthern Area = "southern"
	AreaCentral  Area = "central"
)

// IsValid reports whether a is a recognised area.
func (a Area) IsValid() bool {
	switch a {
	case AreaNorthern, AreaSouthern, AreaCentral:
		return true
	}
	return false
}

// Emotion is the speaking emotion attribute.
type Emotion string

const (
	EmotionNeutral   Emotion = "neutral"
	EmotionSerious   Emotion = "serious"
	EmotionMonotone  Emotion = "monotone"
	EmotionSad       Emotion = "sad"
	EmotionSurprised Emotion = "surprised"
	EmotionHappy     Emotion = "happy"
	EmotionAngry     Emotion = "angry"
)

// IsValid reports whether e is a recognised emotion.
func (e Emotion) IsValid() bool {
	switch e {
	case EmotionNeutral, EmotionSerious, EmotionMonotone,
		EmotionSad, EmotionSurprised, EmotionHappy, EmotionAngry:
		return true
	}
	return false
}

// Voice option catalogues, in display order. The gateway's /voices endpoint
// serves these verbatim.
var (
	Genders  = []Gender{GenderMale, GenderFemale}
	Areas    = []Area{AreaNorthern, AreaSouthern, AreaCentral}
	Emotions = []Emotion{
		EmotionNeutral, EmotionSerious, EmotionMonotone,
		EmotionSad, EmotionSurprised, EmotionHappy, EmotionAngry,
	}

	// Groups is the display grouping of voice presets.
	Groups = []string{"story", "news", "audiobook", "interview", "review"}
)

// Job is a synthesis request as carried on the broker queue. It is written
// once by the gateway and never mutated afterwards; workers treat it as
// read-only. Timestamps are Unix seconds with fractional precision so the
// wire format round-trips with other consumers of the queue.
type Job struct {
	JobID string `json:"job_id"`
	Text  string `json:"text"`

	// Optional voice attributes. Empty means engine default.
	Gender  Gender  `json:"gender,omitempty"`
	Area    Area    `json:"area,omitempty"`
	Emotion Emotion `json:"emotion,omitempty"`

	Speed   float64 `json:"speed"`
	Quality Quality `json:"quality"`

	// Voice cloning reference. ReferenceAudio is base64-encoded raw audio;
	// the worker decodes, silence-trims, and optionally caps it at
	// TrimAudioTo seconds before handing it to the engine.
	ReferenceAudio string   `json:"reference_audio,omitempty"`
	ReferenceText  string   `json:"reference_text,omitempty"`
	TrimAudioTo    *float64 `json:"trim_audio_to,omitempty"`

	CreatedAt float64 `json:"created_at"`

	// Timeout bounds the synchronous producer's wait in seconds. It does
	// not bound worker execution.
	Timeout float64 `json:"timeout"`
}

// TimeoutDuration returns the producer wait bound as a [time.Duration].
func (j Job) TimeoutDuration() time.Duration {
	return time.Duration(j.Timeout * float64(time.Second))
}

// Result is the terminal outcome of a job as stored at result:{job_id}.
// Audio is present iff Status is completed; Error and ErrorCode are present
// iff Status is error.
type Result struct {
	Status JobStatus `json:"status"`

	// Audio is the base64-encoded WAV output.
	Audio string `json:"audio,omitempty"`

	GenerationTime float64 `json:"generation_time,omitempty"`
	AudioDuration  float64 `json:"audio_duration,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	CompletedAt float64 `json:"completed_at"`
}

// Now returns the current time as Unix seconds with fractional precision,
// the timestamp representation used throughout the broker state.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
