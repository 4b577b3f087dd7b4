// Package audio provides the small amount of WAV handling the dispatch
// layer needs: RIFF container parsing, PCM re-encoding, and the leading /
// trailing silence trim applied to voice-cloning reference audio before it
// reaches the synthesis engine.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// DefaultSilenceThresholdDB is the dBFS level below which a window of audio
// counts as silence for [TrimSilence].
const DefaultSilenceThresholdDB = -40.0

// silenceWindow is the analysis window used when scanning for silence.
const silenceWindow = 10 // milliseconds

// Info holds the format metadata extracted from a RIFF/WAVE header.
type Info struct {
	DataOffset    int // byte offset of the first PCM sample
	DataLen       int // length of the data chunk in bytes
	SampleRate    int // samples per second (e.g., 22050, 44100, 48000)
	Channels      int // 1 = mono, 2 = stereo
	BitsPerSample int // sample width, typically 16
}

// Duration returns the audio duration in seconds described by the header.
func (i Info) Duration() float64 {
	bytesPerSecond := i.SampleRate * i.Channels * i.BitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return float64(i.DataLen) / float64(bytesPerSecond)
}

// Parse scans the RIFF/WAVE container in wav and returns the data location
// and audio format from the "fmt " sub-chunk. Walking the chunks is more
// robust than hardcoding a fixed 44-byte offset because the fmt chunk size
// may vary.
func Parse(wav []byte) (Info, error) {
	if len(wav) < 12 {
		return Info{}, errors.New("audio: WAV data too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return Info{}, errors.New("audio: missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return Info{}, errors.New("audio: missing WAVE identifier")
	}

	var info Info
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return Info{}, errors.New("audio: data chunk precedes fmt chunk")
			}
			info.DataOffset = offset + 8
			info.DataLen = chunkSize
			if info.DataOffset+info.DataLen > len(wav) {
				info.DataLen = len(wav) - info.DataOffset
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Info{}, errors.New("audio: missing data chunk")
}

// Encode wraps raw PCM in a canonical 44-byte RIFF/WAVE header.
func Encode(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	out := make([]byte, 44+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}

// TrimSilence removes leading and trailing silence from 16-bit PCM WAV
// audio and returns a re-encoded WAV. Silence is any 10 ms window whose RMS
// level falls below thresholdDB (dBFS, e.g. -40). Audio that is entirely
// silent trims to an empty data chunk rather than erroring.
func TrimSilence(wav []byte, thresholdDB float64) ([]byte, error) {
	info, err := Parse(wav)
	if err != nil {
		return nil, err
	}
	if info.BitsPerSample != 16 {
		return nil, fmt.Errorf("audio: trim requires 16-bit PCM, got %d-bit", info.BitsPerSample)
	}

	pcm := wav[info.DataOffset : info.DataOffset+info.DataLen]
	frameBytes := info.Channels * 2
	windowFrames := info.SampleRate * silenceWindow / 1000
	if windowFrames == 0 {
		windowFrames = 1
	}
	windowBytes := windowFrames * frameBytes
	totalFrames := len(pcm) / frameBytes

	start := 0
	for start+windowBytes <= len(pcm) {
		if windowDBFS(pcm[start:start+windowBytes]) >= thresholdDB {
			break
		}
		start += windowBytes
	}

	end := totalFrames * frameBytes
	for end-windowBytes >= start {
		if windowDBFS(pcm[end-windowBytes:end]) >= thresholdDB {
			break
		}
		end -= windowBytes
	}
	if end < start {
		end = start
	}

	return Encode(pcm[start:end], info.SampleRate, info.Channels, info.BitsPerSample), nil
}

// Clip truncates 16-bit PCM WAV audio to at most maxSeconds and returns a
// re-encoded WAV. Audio already within the limit is returned unchanged.
func Clip(wav []byte, maxSeconds float64) ([]byte, error) {
	info, err := Parse(wav)
	if err != nil {
		return nil, err
	}
	if info.Duration() <= maxSeconds {
		return wav, nil
	}

	frameBytes := info.Channels * info.BitsPerSample / 8
	keepFrames := int(maxSeconds * float64(info.SampleRate))
	keepBytes := keepFrames * frameBytes
	if keepBytes > info.DataLen {
		keepBytes = info.DataLen
	}

	pcm := wav[info.DataOffset : info.DataOffset+keepBytes]
	return Encode(pcm, info.SampleRate, info.Channels, info.BitsPerSample), nil
}

// windowDBFS computes the RMS level of a window of little-endian int16
// samples relative to full scale.
func windowDBFS(window []byte) float64 {
	n := len(window) / 2
	if n == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(window[i*2 : i*2+2])))
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/32768)
}
