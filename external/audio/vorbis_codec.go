package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/foxseedlab/localscribe/internal/audio"
	"github.com/jfreymuth/vorbis"
)

type vorbisIdent struct {
	channels   int
	sampleRate int
}

func parseVorbisIdent(b []byte) (vorbisIdent, error) {
	if len(b) < 30 || !bytes.HasPrefix(b, []byte("\x01vorbis")) {
		return vorbisIdent{}, fmt.Errorf("%w: malformed vorbis identification header", audio.ErrUnsupportedCodec)
	}
	if v := binary.LittleEndian.Uint32(b[7:11]); v != 0 {
		return vorbisIdent{}, fmt.Errorf("%w: vorbis version %d", audio.ErrUnsupportedCodec, v)
	}
	id := vorbisIdent{
		channels:   int(b[11]),
		sampleRate: int(binary.LittleEndian.Uint32(b[12:16])),
	}
	if id.channels < 1 || id.sampleRate <= 0 {
		return vorbisIdent{}, fmt.Errorf("%w: vorbis stream with %d channels at %d Hz", audio.ErrUnsupportedCodec, id.channels, id.sampleRate)
	}
	return id, nil
}

// newVorbisCodec expects the three header packets first, then audio packets.
func newVorbisCodec() codec[[]byte] {
	var dec vorbis.Decoder
	decode := func(pkt []byte) ([]int16, error) {
		if !dec.HeadersRead() {
			if err := dec.ReadHeader(pkt); err != nil {
				return nil, fmt.Errorf("%w: vorbis header: %v", audio.ErrUnsupportedCodec, err)
			}
			return nil, nil
		}
		samples, err := dec.Decode(pkt)
		if err != nil {
			return nil, fmt.Errorf("vorbis decode: %w", err)
		}
		out := make([]int16, len(samples))
		for i, v := range samples {
			out[i] = floatToPCM16(float64(v))
		}
		return out, nil
	}
	return newSlotCodec(defaultInputSlots, decode)
}
