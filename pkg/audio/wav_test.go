package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

// pcmTone returns frames of constant-amplitude mono 16-bit samples.
func pcmTone(frames int, amplitude int16) []byte {
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(amplitude))
	}
	return out
}

func TestParseRoundTrip(t *testing.T) {
	pcm := pcmTone(16000, 1000) // 1 s at 16 kHz mono
	wav := Encode(pcm, 16000, 1, 16)

	info, err := Parse(wav)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if info.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want %d", info.SampleRate, 16000)
	}
	if info.Channels != 1 {
		t.Errorf("Channels = %d, want %d", info.Channels, 1)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("BitsPerSample = %d, want %d", info.BitsPerSample, 16)
	}
	if info.DataOffset != 44 {
		t.Errorf("DataOffset = %d, want %d", info.DataOffset, 44)
	}
	if info.DataLen != len(pcm) {
		t.Errorf("DataLen = %d, want %d", info.DataLen, len(pcm))
	}
	if got := info.Duration(); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Duration() = %f, want %f", got, 1.0)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		wav  []byte
	}{
		{"too short", []byte("RIFF")},
		{"missing RIFF", append([]byte("JUNK"), make([]byte, 40)...)},
		{"missing data chunk", Encode(nil, 16000, 1, 16)[:28]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.wav); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}
}

func TestParseSkipsExtraChunks(t *testing.T) {
	// A LIST chunk between fmt and data must be walked over, not choked on.
	pcm := pcmTone(160, 1000)
	wav := Encode(pcm, 16000, 1, 16)

	list := make([]byte, 8+4)
	copy(list, "LIST")
	binary.LittleEndian.PutUint32(list[4:8], 4)

	withList := append([]byte{}, wav[:36]...)
	withList = append(withList, list...)
	withList = append(withList, wav[36:]...)

	info, err := Parse(withList)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if info.DataLen != len(pcm) {
		t.Errorf("DataLen = %d, want %d", info.DataLen, len(pcm))
	}
}

func TestTrimSilence(t *testing.T) {
	const rate = 16000
	silence := pcmTone(rate/10, 0)    // 100 ms of zeros
	voiced := pcmTone(rate/10, 10000) // 100 ms well above -40 dBFS

	var pcm []byte
	pcm = append(pcm, silence...)
	pcm = append(pcm, voiced...)
	pcm = append(pcm, silence...)
	wav := Encode(pcm, rate, 1, 16)

	trimmed, err := TrimSilence(wav, DefaultSilenceThresholdDB)
	if err != nil {
		t.Fatalf("TrimSilence() error = %v", err)
	}
	info, err := Parse(trimmed)
	if err != nil {
		t.Fatalf("Parse(trimmed) error = %v", err)
	}
	if info.DataLen != len(voiced) {
		t.Errorf("trimmed DataLen = %d, want %d", info.DataLen, len(voiced))
	}
}

func TestTrimSilenceAllSilent(t *testing.T) {
	wav := Encode(pcmTone(16000, 0), 16000, 1, 16)

	trimmed, err := TrimSilence(wav, DefaultSilenceThresholdDB)
	if err != nil {
		t.Fatalf("TrimSilence() error = %v", err)
	}
	info, err := Parse(trimmed)
	if err != nil {
		t.Fatalf("Parse(trimmed) error = %v", err)
	}
	if info.DataLen != 0 {
		t.Errorf("trimmed DataLen = %d, want 0", info.DataLen)
	}
}

func TestTrimSilenceRejectsNon16Bit(t *testing.T) {
	wav := Encode(make([]byte, 100), 16000, 1, 8)
	if _, err := TrimSilence(wav, DefaultSilenceThresholdDB); err == nil {
		t.Error("TrimSilence() error = nil, want error for 8-bit audio")
	}
}

func TestClip(t *testing.T) {
	const rate = 16000
	wav := Encode(pcmTone(2*rate, 1000), rate, 1, 16) // 2 s

	clipped, err := Clip(wav, 0.5)
	if err != nil {
		t.Fatalf("Clip() error = %v", err)
	}
	info, err := Parse(clipped)
	if err != nil {
		t.Fatalf("Parse(clipped) error = %v", err)
	}
	if got := info.Duration(); math.Abs(got-0.5) > 1e-3 {
		t.Errorf("clipped Duration() = %f, want %f", got, 0.5)
	}
}

func TestClipWithinLimit(t *testing.T) {
	wav := Encode(pcmTone(8000, 1000), 16000, 1, 16) // 0.5 s

	clipped, err := Clip(wav, 10)
	if err != nil {
		t.Fatalf("Clip() error = %v", err)
	}
	if len(clipped) != len(wav) {
		t.Errorf("Clip() changed length %d -> %d, want unchanged", len(wav), len(clipped))
	}
}
