package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	WAVHeaderSize = 44
	wavFmtSize    = 16
	wavFormatPCM  = 1
)

type WAVHeader struct {
	ChunkSize     uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

func newWAVHeader(sampleRate int, dataSize uint32) WAVHeader {
	blockAlign := uint16(TargetChannels * BitsPerSample / 8)
	return WAVHeader{
		ChunkSize:     36 + dataSize,
		AudioFormat:   wavFormatPCM,
		Channels:      TargetChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: BitsPerSample,
		DataSize:      dataSize,
	}
}

func (h WAVHeader) Bytes() []byte {
	b := make([]byte, WAVHeaderSize)
	copy(b[0:4], "RIFF")
	binary.LittleEndian.PutUint32(b[4:8], h.ChunkSize)
	copy(b[8:12], "WAVE")
	copy(b[12:16], "fmt ")
	binary.LittleEndian.PutUint32(b[16:20], wavFmtSize)
	binary.LittleEndian.PutUint16(b[20:22], h.AudioFormat)
	binary.LittleEndian.PutUint16(b[22:24], h.Channels)
	binary.LittleEndian.PutUint32(b[24:28], h.SampleRate)
	binary.LittleEndian.PutUint32(b[28:32], h.ByteRate)
	binary.LittleEndian.PutUint16(b[32:34], h.BlockAlign)
	binary.LittleEndian.PutUint16(b[34:36], h.BitsPerSample)
	copy(b[36:40], "data")
	binary.LittleEndian.PutUint32(b[40:44], h.DataSize)
	return b
}

func (h WAVHeader) Validate() error {
	if h.AudioFormat != wavFormatPCM {
		return fmt.Errorf("%w: wav format tag %d is not PCM", ErrIO, h.AudioFormat)
	}
	if h.Channels != TargetChannels || h.BitsPerSample != BitsPerSample {
		return fmt.Errorf("%w: wav is %d ch / %d bit, want mono PCM16", ErrIO, h.Channels, h.BitsPerSample)
	}
	if h.SampleRate == 0 {
		return fmt.Errorf("%w: wav sample rate is zero", ErrIO)
	}
	if h.BlockAlign != h.Channels*h.BitsPerSample/8 || h.ByteRate != h.SampleRate*uint32(h.BlockAlign) {
		return fmt.Errorf("%w: wav byte rate %d / block align %d inconsistent", ErrIO, h.ByteRate, h.BlockAlign)
	}
	if h.ChunkSize != 36+h.DataSize {
		return fmt.Errorf("%w: wav chunk size %d does not match data size %d", ErrIO, h.ChunkSize, h.DataSize)
	}
	return nil
}

// WAVWriter streams PCM16 mono samples after a placeholder header and
// rewrites the header with the real sizes on Close.
type WAVWriter struct {
	ws         io.WriteSeeker
	sampleRate int
	dataSize   uint32
	closed     bool
}

// NewWAVWriter fails with ErrIO when w cannot seek, since the header could not be backfilled.
func NewWAVWriter(w io.Writer, sampleRate int) (*WAVWriter, error) {
	ws, ok := w.(io.WriteSeeker)
	if !ok {
		return nil, fmt.Errorf("%w: wav sink is not seekable", ErrIO)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid wav sample rate %d", ErrIO, sampleRate)
	}
	if _, err := ws.Write(newWAVHeader(sampleRate, 0).Bytes()); err != nil {
		return nil, fmt.Errorf("%w: write wav header placeholder: %v", ErrIO, err)
	}
	return &WAVWriter{ws: ws, sampleRate: sampleRate}, nil
}

func (w *WAVWriter) WriteSamples(samples []int16) error {
	if w.closed {
		return fmt.Errorf("%w: wav writer closed", ErrIO)
	}
	if len(samples) == 0 {
		return nil
	}
	size := uint64(w.dataSize) + uint64(len(samples))*2
	if size > 0xFFFFFFFF-36 {
		return fmt.Errorf("%w: wav payload exceeds 4 GiB", ErrIO)
	}
	if _, err := w.ws.Write(SamplesToBytes(samples)); err != nil {
		return fmt.Errorf("%w: write wav samples: %v", ErrIO, err)
	}
	w.dataSize = uint32(size)
	return nil
}

// Close backfills the header. The writer does not close the underlying sink.
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := w.ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to wav header: %v", ErrIO, err)
	}
	if _, err := w.ws.Write(newWAVHeader(w.sampleRate, w.dataSize).Bytes()); err != nil {
		return fmt.Errorf("%w: backfill wav header: %v", ErrIO, err)
	}
	if _, err := w.ws.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("%w: seek to wav end: %v", ErrIO, err)
	}
	return nil
}

func EncodeFile(path string, a NormalizedAudio) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create wav: %v", ErrIO, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close wav: %v", ErrIO, cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	w, err := NewWAVWriter(f, a.SampleRate)
	if err != nil {
		return err
	}
	if err := w.WriteSamples(a.Samples); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadWAVHeader(r io.Reader) (WAVHeader, error) {
	b := make([]byte, WAVHeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return WAVHeader{}, fmt.Errorf("%w: read wav header: %v", ErrIO, err)
	}
	if !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return WAVHeader{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrIO)
	}
	if !bytes.Equal(b[12:16], []byte("fmt ")) || binary.LittleEndian.Uint32(b[16:20]) != wavFmtSize {
		return WAVHeader{}, fmt.Errorf("%w: unexpected wav fmt chunk", ErrIO)
	}
	if !bytes.Equal(b[36:40], []byte("data")) {
		return WAVHeader{}, fmt.Errorf("%w: wav data chunk not at offset 36", ErrIO)
	}
	h := WAVHeader{
		ChunkSize:     binary.LittleEndian.Uint32(b[4:8]),
		AudioFormat:   binary.LittleEndian.Uint16(b[20:22]),
		Channels:      binary.LittleEndian.Uint16(b[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(b[24:28]),
		ByteRate:      binary.LittleEndian.Uint32(b[28:32]),
		BlockAlign:    binary.LittleEndian.Uint16(b[32:34]),
		BitsPerSample: binary.LittleEndian.Uint16(b[34:36]),
		DataSize:      binary.LittleEndian.Uint32(b[40:44]),
	}
	if err := h.Validate(); err != nil {
		return WAVHeader{}, err
	}
	return h, nil
}

func ReadWAVFile(path string) (NormalizedAudio, error) {
	f, err := os.Open(path)
	if err != nil {
		return NormalizedAudio{}, fmt.Errorf("%w: open wav: %v", ErrIO, err)
	}
	defer f.Close()

	h, err := ReadWAVHeader(f)
	if err != nil {
		return NormalizedAudio{}, err
	}
	payload, err := io.ReadAll(f)
	if err != nil {
		return NormalizedAudio{}, fmt.Errorf("%w: read wav payload: %v", ErrIO, err)
	}
	if uint32(len(payload)) != h.DataSize {
		return NormalizedAudio{}, fmt.Errorf("%w: wav declares %d data bytes, found %d", ErrIO, h.DataSize, len(payload))
	}
	return NormalizedAudio{Samples: BytesToSamples(payload), SampleRate: int(h.SampleRate)}, nil
}
