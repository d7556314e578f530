package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

// Container identifies a supported audio encapsulation.
type Container string

const (
	ContainerUnknown Container = ""
	ContainerWAV     Container = "wav"
	ContainerMP3     Container = "mp3"
)

const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

var errEmptyAudio = errors.New("no audio frames")

// Sniff inspects the leading bytes of raw and reports its container.
func Sniff(raw []byte) Container {
	switch {
	case len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE":
		return ContainerWAV
	case len(raw) >= 3 && string(raw[0:3]) == "ID3":
		return ContainerMP3
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1]&0xE0 == 0xE0:
		return ContainerMP3
	default:
		return ContainerUnknown
	}
}

// Decode converts raw into mono samples at the source sample rate. Failures
// are tagged with services.ErrDecode.
func Decode(raw []byte) ([]float32, int, error) {
	var (
		samples []float32
		rate    int
		err     error
	)
	switch container := Sniff(raw); container {
	case ContainerWAV:
		samples, rate, err = decodeWAV(raw)
	case ContainerMP3:
		samples, rate, err = decodeMP3(raw)
	default:
		return nil, 0, services.Wrap(services.ErrDecode, "audio", "decode", "unsupported audio container", nil)
	}
	if err != nil {
		return nil, 0, services.Wrap(services.ErrDecode, "audio", "decode", "", err)
	}
	if len(samples) == 0 {
		return nil, 0, services.Wrap(services.ErrDecode, "audio", "decode", "", errEmptyAudio)
	}
	if rate <= 0 {
		return nil, 0, services.Wrap(services.ErrDecode, "audio", "decode", fmt.Sprintf("invalid sample rate %d", rate), nil)
	}
	return samples, rate, nil
}

func decodeWAV(raw []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, 0, fmt.Errorf("wav header: %w", err)
		}
		return nil, 0, errors.New("invalid wav file")
	}

	format := dec.WavAudioFormat
	if format == wavFormatExtensible {
		sub, ok := extensibleSubFormat(raw)
		if !ok {
			return nil, 0, errors.New("extensible wav without sub-format")
		}
		format = sub
	}
	if format != wavFormatPCM && format != wavFormatIEEEFloat {
		return nil, 0, fmt.Errorf("wav encoding %d not supported", format)
	}
	if format == wavFormatIEEEFloat && dec.BitDepth != 32 {
		return nil, 0, fmt.Errorf("%d-bit float wav not supported", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read pcm: %w", err)
	}
	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, 0, errors.New("wav reports zero channels")
	}

	bitDepth := int(dec.BitDepth)
	convert := pcmScaler(bitDepth)
	if format == wavFormatIEEEFloat {
		convert = func(v int) float32 { return math.Float32frombits(uint32(int32(v))) }
	}

	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += convert(buf.Data[base+c])
		}
		out[i] = sum / float32(channels)
	}
	return out, buf.Format.SampleRate, nil
}

// extensibleSubFormat walks the RIFF chunks to the fmt chunk and returns the
// format code leading the sub-format GUID of a WAVE_FORMAT_EXTENSIBLE header.
func extensibleSubFormat(raw []byte) (uint16, bool) {
	for off := 12; off+8 <= len(raw); {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(raw) {
			return 0, false
		}
		if id == "fmt " {
			if size < 40 || binary.LittleEndian.Uint16(raw[body:]) != wavFormatExtensible {
				return 0, false
			}
			return binary.LittleEndian.Uint16(raw[body+24:]), true
		}
		off = body + size + size%2
	}
	return 0, false
}

// pcmScaler maps integer PCM values to [-1, 1]. 8-bit WAV is unsigned.
func pcmScaler(bitDepth int) func(int) float32 {
	if bitDepth == 8 {
		return func(v int) float32 { return (float32(v) - 128) / 128 }
	}
	scale := float32(math.Pow(2, float64(bitDepth-1)))
	return func(v int) float32 { return float32(v) / scale }
}

// decodeMP3 reads the whole stream. go-mp3 always yields 16-bit little-endian
// stereo, so each frame is 4 bytes.
func decodeMP3(raw []byte) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 stream: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 frames: %w", err)
	}

	const bytesPerFrame = 4
	frames := len(pcm) / bytesPerFrame
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		off := i * bytesPerFrame
		left := int16(uint16(pcm[off]) | uint16(pcm[off+1])<<8)
		right := int16(uint16(pcm[off+2]) | uint16(pcm[off+3])<<8)
		out[i] = (float32(left) + float32(right)) / 2 / 32768
	}
	return out, dec.SampleRate(), nil
}
