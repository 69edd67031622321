package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	TargetSampleRate = 16000
	TargetChannels   = 1
	BitsPerSample    = 16
)

var (
	ErrNoAudioTrack     = errors.New("no audio track")
	ErrUnsupportedCodec = errors.New("unsupported codec")
	ErrIO               = errors.New("audio io error")
)

// FrameReader yields interleaved PCM16 samples and returns io.EOF once exhausted.
type FrameReader interface {
	ReadFrames(buf []int16) (int, error)
	Close() error
}

// Decoder opens a local media file and exposes its first audio track.
type Decoder interface {
	Open(path string) (*DecodedTrack, error)
}

type DecodedTrack struct {
	SampleRate int
	Channels   int
	Container  string
	Codec      string
	frames     FrameReader
}

func NewDecodedTrack(sampleRate, channels int, container, codec string, frames FrameReader) (*DecodedTrack, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %s track reports sample rate %d", ErrUnsupportedCodec, codec, sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %s track reports %d channels", ErrUnsupportedCodec, codec, channels)
	}
	if frames == nil {
		return nil, fmt.Errorf("%w: %s track has no frame reader", ErrUnsupportedCodec, codec)
	}
	return &DecodedTrack{
		SampleRate: sampleRate,
		Channels:   channels,
		Container:  container,
		Codec:      codec,
		frames:     frames,
	}, nil
}

func (t *DecodedTrack) ReadFrames(buf []int16) (int, error) {
	return t.frames.ReadFrames(buf)
}

// ReadAll drains the track. A trailing partial frame is dropped.
func (t *DecodedTrack) ReadAll() ([]int16, error) {
	chunk := make([]int16, 4096*t.Channels)
	var out []int16
	for {
		n, err := t.frames.ReadFrames(chunk)
		out = append(out, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if rem := len(out) % t.Channels; rem != 0 {
		out = out[:len(out)-rem]
	}
	return out, nil
}

func (t *DecodedTrack) Close() error {
	return t.frames.Close()
}

type NormalizedAudio struct {
	Samples    []int16
	SampleRate int
}

func (a NormalizedAudio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(a.Samples)) * time.Second / time.Duration(a.SampleRate)
}

func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}
