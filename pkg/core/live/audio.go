package live

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// DecodeError reports a malformed inbound audio payload.
type DecodeError struct {
	Reason string
	Bytes  int
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Bytes > 0 {
		return fmt.Sprintf("decode audio: %s (%d bytes)", e.Reason, e.Bytes)
	}
	return "decode audio: " + e.Reason
}

// Buffer is a decoded, playable block of mono float PCM.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || len(b.Samples) == 0 {
		return 0
	}
	channels := b.Channels
	if channels <= 0 {
		channels = 1
	}
	frames := len(b.Samples) / channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// Resample converts samples between sample rates using linear interpolation.
// The output has round(len(samples) * toRate / fromRate) samples.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate <= 0 || toRate <= 0 {
		return nil
	}
	if fromRate == toRate {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	if len(samples) == 0 {
		return []float32{}
	}

	ratio := float64(fromRate) / float64(toRate)
	n := int(math.Round(float64(len(samples)) * float64(toRate) / float64(fromRate)))
	out := make([]float32, n)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}
	return out
}

// EncodeForTransport clamps float samples to [-1, 1], converts them to 16-bit
// little-endian PCM and returns the base64 text. Empty input yields "".
func EncodeForTransport(samples []float32) string {
	if len(samples) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(Float32ToPCM16(samples))
}

// DecodeInboundAudio decodes base64 16-bit little-endian PCM into a Buffer at
// the given sample rate and channel count.
func DecodeInboundAudio(chunk string, sampleRate, channels int) (Buffer, error) {
	raw, err := DecodeBase64(chunk)
	if err != nil {
		return Buffer{}, &DecodeError{Reason: "invalid base64"}
	}
	if len(raw)%2 != 0 {
		return Buffer{}, &DecodeError{Reason: "odd byte length", Bytes: len(raw)}
	}
	if channels <= 0 {
		channels = 1
	}
	return Buffer{
		Samples:    PCM16ToFloat32(raw),
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

// DecodeBase64 decodes standard base64, tolerating missing padding.
func DecodeBase64(s string) ([]byte, error) {
	if out, err := base64.StdEncoding.DecodeString(s); err == nil {
		return out, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// Float32ToPCM16 packs float samples as clamped 16-bit little-endian PCM.
// NaN samples become silence.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if math.IsNaN(float64(s)) {
			s = 0
		}
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCM16ToFloat32 unpacks 16-bit little-endian PCM into floats in [-1, 1).
// A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// Float32LEToFloat32 unpacks raw little-endian float32 samples.
func Float32LEToFloat32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// RMS computes the root-mean-square amplitude of float samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
