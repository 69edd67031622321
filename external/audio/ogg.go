package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/foxseedlab/localscribe/internal/audio"
)

const (
	oggHeaderContinued = 0x01
	oggHeaderBOS       = 0x02
	oggPageHeaderSize  = 27
	opusHeaderPackets  = 2
	opusSampleRate     = 48000
)

type oggPacket struct {
	serial uint32
	data   []byte
	bos    bool
}

// oggReader reassembles packets from Ogg pages, keeping one partial packet per logical stream.
// Page CRCs are not verified.
type oggReader struct {
	r       *bufio.Reader
	partial map[uint32][]byte
	ready   []oggPacket
}

func newOggReader(r io.Reader) *oggReader {
	return &oggReader{r: bufio.NewReader(r), partial: make(map[uint32][]byte)}
}

func (o *oggReader) nextPacket() (oggPacket, error) {
	for len(o.ready) == 0 {
		if err := o.readPage(); err != nil {
			return oggPacket{}, err
		}
	}
	p := o.ready[0]
	o.ready = o.ready[1:]
	return p, nil
}

func (o *oggReader) readPage() error {
	hdr := make([]byte, oggPageHeaderSize)
	if _, err := io.ReadFull(o.r, hdr); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	if string(hdr[0:4]) != "OggS" {
		return fmt.Errorf("%w: lost ogg page sync", audio.ErrIO)
	}
	headerType := hdr[5]
	serial := binary.LittleEndian.Uint32(hdr[14:18])
	lacing := make([]byte, hdr[26])
	if _, err := io.ReadFull(o.r, lacing); err != nil {
		return fmt.Errorf("%w: truncated ogg lacing table: %v", audio.ErrIO, err)
	}
	bodySize := 0
	for _, l := range lacing {
		bodySize += int(l)
	}
	body := make([]byte, bodySize)
	if _, err := io.ReadFull(o.r, body); err != nil {
		return fmt.Errorf("%w: truncated ogg page body: %v", audio.ErrIO, err)
	}

	data := o.partial[serial]
	if headerType&oggHeaderContinued == 0 {
		data = nil
	}
	first := true
	off := 0
	for _, l := range lacing {
		data = append(data, body[off:off+int(l)]...)
		off += int(l)
		if l < 255 {
			o.ready = append(o.ready, oggPacket{serial: serial, data: data, bos: first && headerType&oggHeaderBOS != 0})
			data = nil
			first = false
		}
	}
	if len(data) > 0 {
		o.partial[serial] = data
	} else {
		delete(o.partial, serial)
	}
	return nil
}

type oggStream struct {
	serial uint32
	codec  string
	audio  bool
	head   []byte
}

func identifyOggStream(p oggPacket) oggStream {
	s := oggStream{serial: p.serial, head: p.data}
	d := p.data
	switch {
	case bytes.HasPrefix(d, []byte("OpusHead")):
		s.codec, s.audio = "opus", true
	case bytes.HasPrefix(d, []byte("\x01vorbis")):
		s.codec, s.audio = "vorbis", true
	case bytes.HasPrefix(d, []byte("Speex   ")):
		s.codec, s.audio = "speex", true
	case bytes.HasPrefix(d, []byte("\x7fFLAC")):
		s.codec, s.audio = "flac", true
	case bytes.HasPrefix(d, []byte("\x80theora")):
		s.codec = "theora"
	case bytes.HasPrefix(d, []byte("fishead")):
		s.codec = "skeleton"
	default:
		s.codec = "unknown"
	}
	return s
}

func listOggStreams(r io.Reader) ([]oggStream, error) {
	or := newOggReader(r)
	var streams []oggStream
	for {
		p, err := or.nextPacket()
		if errors.Is(err, io.EOF) {
			return streams, nil
		}
		if err != nil {
			return nil, err
		}
		if !p.bos {
			// BOS pages are grouped at the start of a physical stream
			return streams, nil
		}
		streams = append(streams, identifyOggStream(p))
	}
}

type opusHead struct {
	channels int
	preSkip  int
	mapping  byte
}

func parseOpusHead(b []byte) (opusHead, error) {
	if len(b) < 19 || !bytes.HasPrefix(b, []byte("OpusHead")) {
		return opusHead{}, fmt.Errorf("%w: malformed OpusHead", audio.ErrUnsupportedCodec)
	}
	if b[8]>>4 != 0 {
		return opusHead{}, fmt.Errorf("%w: OpusHead version %d", audio.ErrUnsupportedCodec, b[8])
	}
	h := opusHead{
		channels: int(b[9]),
		preSkip:  int(binary.LittleEndian.Uint16(b[10:12])),
		mapping:  b[18],
	}
	if h.channels < 1 || h.channels > 2 {
		return opusHead{}, fmt.Errorf("%w: %d-channel opus needs multistream decoding", audio.ErrUnsupportedCodec, h.channels)
	}
	return h, nil
}

func openOgg(f *os.File) (*audio.DecodedTrack, error) {
	streams, err := listOggStreams(f)
	if err != nil {
		return nil, err
	}
	var selected *oggStream
	for i := range streams {
		if streams[i].audio {
			selected = &streams[i]
			break
		}
	}
	if selected == nil {
		return nil, fmt.Errorf("%w: ogg file carries %d non-audio streams", audio.ErrNoAudioTrack, len(streams))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: rewind ogg: %v", audio.ErrIO, err)
	}

	switch selected.codec {
	case "opus":
		head, err := parseOpusHead(selected.head)
		if err != nil {
			return nil, err
		}
		c, err := newOpusCodec(head.channels, head.preSkip)
		if err != nil {
			return nil, err
		}
		src := &oggStreamSource{r: newOggReader(f), serial: selected.serial, skip: opusHeaderPackets}
		return audio.NewDecodedTrack(opusSampleRate, head.channels, ContainerOgg, "opus", newCodecPump[[]byte](src, c, f))
	case "vorbis":
		id, err := parseVorbisIdent(selected.head)
		if err != nil {
			return nil, err
		}
		src := &oggStreamSource{r: newOggReader(f), serial: selected.serial}
		return audio.NewDecodedTrack(id.sampleRate, id.channels, ContainerOgg, "vorbis", newCodecPump[[]byte](src, newVorbisCodec(), f))
	}
	return nil, fmt.Errorf("%w: %s in ogg", audio.ErrUnsupportedCodec, selected.codec)
}

type oggStreamSource struct {
	r      *oggReader
	serial uint32
	skip   int
}

func (s *oggStreamSource) NextPacket() ([]byte, error) {
	for {
		p, err := s.r.nextPacket()
		if err != nil {
			return nil, err
		}
		if p.serial != s.serial {
			continue
		}
		if s.skip > 0 {
			s.skip--
			continue
		}
		if len(p.data) == 0 {
			continue
		}
		return p.data, nil
	}
}
