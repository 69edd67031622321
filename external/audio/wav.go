package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/foxseedlab/localscribe/internal/audio"
)

const (
	wavFormatPCM        = 0x0001
	wavFormatIEEEFloat  = 0x0003
	wavFormatExtensible = 0xFFFE
	wavFramesPerPacket  = 4096
)

type wavFormat struct {
	formatTag     uint16
	channels      int
	sampleRate    int
	blockAlign    int
	bitsPerSample int
}

func (f wavFormat) codecName() string {
	if f.formatTag == wavFormatIEEEFloat {
		return fmt.Sprintf("float%d", f.bitsPerSample)
	}
	return fmt.Sprintf("pcm_s%d", f.bitsPerSample)
}

func openWAV(f *os.File) (*audio.DecodedTrack, error) {
	size, err := fileSize(f)
	if err != nil {
		return nil, err
	}
	sr := io.NewSectionReader(f, 0, size)

	riff := make([]byte, 12)
	if _, err := io.ReadFull(sr, riff); err != nil {
		return nil, fmt.Errorf("%w: short wav header: %v", audio.ErrNoAudioTrack, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", audio.ErrUnsupportedCodec)
	}

	var format *wavFormat
	offset := int64(12)
	for offset+8 <= size {
		hdr := make([]byte, 8)
		if _, err := sr.ReadAt(hdr, offset); err != nil {
			return nil, fmt.Errorf("%w: read wav chunk header: %v", audio.ErrIO, err)
		}
		id := string(hdr[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		body := offset + 8

		switch id {
		case "fmt ":
			buf := make([]byte, min(chunkSize, 40))
			if _, err := sr.ReadAt(buf, body); err != nil {
				return nil, fmt.Errorf("%w: read wav fmt chunk: %v", audio.ErrIO, err)
			}
			parsed, err := parseWAVFormat(buf)
			if err != nil {
				return nil, err
			}
			format = &parsed
		case "data":
			if format == nil {
				return nil, fmt.Errorf("%w: wav data chunk precedes fmt chunk", audio.ErrUnsupportedCodec)
			}
			// streaming writers leave 0 or 0xFFFFFFFF here
			if body+chunkSize > size || (chunkSize == 0 && !chunkFollows(sr, body, size)) {
				chunkSize = size - body
			}
			return newWAVTrack(f, *format, io.NewSectionReader(f, body, chunkSize))
		}
		offset = body + chunkSize + chunkSize%2
	}
	if format == nil {
		return nil, fmt.Errorf("%w: wav has no fmt chunk", audio.ErrNoAudioTrack)
	}
	return nil, fmt.Errorf("%w: wav has no data chunk", audio.ErrNoAudioTrack)
}

func chunkFollows(r io.ReaderAt, off, size int64) bool {
	if off+8 > size {
		return false
	}
	hdr := make([]byte, 8)
	if _, err := r.ReadAt(hdr, off); err != nil {
		return false
	}
	for _, c := range hdr[0:4] {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return off+8+int64(binary.LittleEndian.Uint32(hdr[4:8])) <= size
}

func parseWAVFormat(b []byte) (wavFormat, error) {
	if len(b) < 16 {
		return wavFormat{}, fmt.Errorf("%w: wav fmt chunk is %d bytes", audio.ErrUnsupportedCodec, len(b))
	}
	f := wavFormat{
		formatTag:     binary.LittleEndian.Uint16(b[0:2]),
		channels:      int(binary.LittleEndian.Uint16(b[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(b[4:8])),
		blockAlign:    int(binary.LittleEndian.Uint16(b[12:14])),
		bitsPerSample: int(binary.LittleEndian.Uint16(b[14:16])),
	}
	if f.formatTag == wavFormatExtensible {
		if len(b) < 26 {
			return wavFormat{}, fmt.Errorf("%w: truncated WAVE_FORMAT_EXTENSIBLE", audio.ErrUnsupportedCodec)
		}
		// the sub-format GUID starts with the real format tag
		f.formatTag = binary.LittleEndian.Uint16(b[24:26])
	}

	switch {
	case f.formatTag == wavFormatPCM && (f.bitsPerSample == 8 || f.bitsPerSample == 16 || f.bitsPerSample == 24 || f.bitsPerSample == 32):
	case f.formatTag == wavFormatIEEEFloat && (f.bitsPerSample == 32 || f.bitsPerSample == 64):
	default:
		return wavFormat{}, fmt.Errorf("%w: wav format tag 0x%04x with %d bits", audio.ErrUnsupportedCodec, f.formatTag, f.bitsPerSample)
	}
	if f.channels <= 0 || f.sampleRate <= 0 {
		return wavFormat{}, fmt.Errorf("%w: wav reports %d channels at %d Hz", audio.ErrUnsupportedCodec, f.channels, f.sampleRate)
	}
	if want := f.channels * f.bitsPerSample / 8; f.blockAlign != want {
		f.blockAlign = want
	}
	return f, nil
}

func newWAVTrack(f *os.File, format wavFormat, data io.Reader) (*audio.DecodedTrack, error) {
	src := &chunkSource{r: data, size: wavFramesPerPacket * format.blockAlign, align: format.blockAlign}
	c := newSlotCodec(defaultInputSlots, func(pkt []byte) ([]int16, error) {
		return wavToPCM16(pkt, format), nil
	})
	return audio.NewDecodedTrack(format.sampleRate, format.channels, ContainerWAV, format.codecName(), newCodecPump[[]byte](src, c, f))
}

type chunkSource struct {
	r     io.Reader
	size  int
	align int
}

func (s *chunkSource) NextPacket() ([]byte, error) {
	buf := make([]byte, s.size)
	n, err := io.ReadFull(s.r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	if s.align > 1 {
		n -= n % s.align
	}
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func wavToPCM16(b []byte, f wavFormat) []int16 {
	width := f.bitsPerSample / 8
	out := make([]int16, len(b)/width)
	for i := range out {
		s := b[i*width : (i+1)*width]
		switch {
		case f.formatTag == wavFormatIEEEFloat && width == 4:
			out[i] = floatToPCM16(float64(math.Float32frombits(binary.LittleEndian.Uint32(s))))
		case f.formatTag == wavFormatIEEEFloat:
			out[i] = floatToPCM16(math.Float64frombits(binary.LittleEndian.Uint64(s)))
		case width == 1:
			out[i] = int16(int(s[0])-128) << 8
		default:
			// keep the most significant 16 bits
			out[i] = int16(uint16(s[width-2]) | uint16(s[width-1])<<8)
		}
	}
	return out
}

func floatToPCM16(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	scaled := math.Round(v * math.MaxInt16)
	if scaled > math.MaxInt16 {
		return math.MaxInt16
	}
	if scaled < math.MinInt16 {
		return math.MinInt16
	}
	return int16(scaled)
}

func fileSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", audio.ErrIO, f.Name(), err)
	}
	return info.Size(), nil
}
