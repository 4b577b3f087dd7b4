// Package remote provides a [tts.Engine] backed by a VietVoice inference
// server reached over its REST API. The heavy model lives in the inference
// process; this engine is a thin, serially-called HTTP client.
//
// Synthesis is performed via POST /synthesize with a JSON body and returns
// WAV audio. Voice cloning references are sent inline, base64-encoded.
//
// Typical usage:
//
//	eng, err := remote.New("http://localhost:5002",
//	    remote.WithNFESteps(32),
//	    remote.WithTimeout(2*time.Minute),
//	)
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietvoice/vvtts/pkg/audio"
	"github.com/vietvoice/vvtts/pkg/tts"
)

// Compile-time interface assertion.
var _ tts.Engine = (*Engine)(nil)

const (
	defaultTimeout     = 5 * time.Minute
	synthesizeEndpoint = "/synthesize"
	healthEndpoint     = "/health"
)

// Option is a functional option for configuring a remote Engine.
type Option func(*Engine)

// WithTimeout sets the per-request HTTP timeout for calls to the inference
// server. Defaults to 5 min, sized for cold model starts on long texts.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.httpClient.Timeout = d
	}
}

// WithNFESteps sets the refinement-step count sent with every request.
// Zero (the default) lets the server pick its own preset.
func WithNFESteps(steps int) Option {
	return func(e *Engine) {
		e.nfeSteps = steps
	}
}

// WithHTTPClient replaces the underlying HTTP client. Mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.httpClient = c
	}
}

// Engine implements [tts.Engine] against a VietVoice inference server.
// Safe for concurrent use, though workers call it serially.
type Engine struct {
	serverURL  string
	httpClient *http.Client
	nfeSteps   int
}

// New creates an Engine targeting the inference server at serverURL
// (e.g. "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, errors.New("remote: serverURL must not be empty")
	}
	e := &Engine{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// synthesizeRequest is the JSON body sent to POST /synthesize.
type synthesizeRequest struct {
	Text           string  `json:"text"`
	Gender         string  `json:"gender,omitempty"`
	Area           string  `json:"area,omitempty"`
	Emotion        string  `json:"emotion,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	NFESteps       int     `json:"nfe_steps,omitempty"`
	ReferenceAudio string  `json:"reference_audio,omitempty"`
	ReferenceText  string  `json:"reference_text,omitempty"`
}

// errorResponse is the JSON body returned by the server on failure.
type errorResponse struct {
	Detail string `json:"detail"`
}

// Synthesize performs one POST /synthesize call and returns the WAV bytes
// with the duration computed from the WAV header.
func (e *Engine) Synthesize(ctx context.Context, in tts.SynthesisInput) ([]byte, float64, error) {
	body := synthesizeRequest{
		Text:          in.Text,
		Gender:        string(in.Gender),
		Area:          string(in.Area),
		Emotion:       string(in.Emotion),
		Speed:         in.Speed,
		NFESteps:      e.nfeSteps,
		ReferenceText: in.ReferenceText,
	}
	if len(in.ReferenceAudio) > 0 {
		body.ReferenceAudio = base64.StdEncoding.EncodeToString(in.ReferenceAudio)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("remote: marshal synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+synthesizeEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("remote: create synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("remote: POST %s: %w", synthesizeEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Detail != "" {
			return nil, 0, fmt.Errorf("remote: POST %s returned status %d: %s", synthesizeEndpoint, resp.StatusCode, errResp.Detail)
		}
		return nil, 0, fmt.Errorf("remote: POST %s returned status %d", synthesizeEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("remote: read WAV response: %w", err)
	}

	info, err := audio.Parse(wav)
	if err != nil {
		return nil, 0, fmt.Errorf("remote: invalid WAV response: %w", err)
	}
	return wav, info.Duration(), nil
}

// Ping checks the inference server's health endpoint. Used once at worker
// startup so a misconfigured ENGINE_URL fails fast instead of failing the
// first job.
func (e *Engine) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.serverURL+healthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("remote: create health request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote: GET %s: %w", healthEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote: GET %s returned status %d", healthEndpoint, resp.StatusCode)
	}
	return nil
}

// Close releases the engine's idle connections.
func (e *Engine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}
