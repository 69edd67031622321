package audio

import (
	"fmt"
	"os"

	"github.com/foxseedlab/localscribe/internal/audio"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

func openFLAC(f *os.File) (*audio.DecodedTrack, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("%w: flac: %v", audio.ErrUnsupportedCodec, err)
	}
	info := stream.Info
	channels := int(info.NChannels)
	bits := int(info.BitsPerSample)
	if bits <= 0 || bits > 32 {
		return nil, fmt.Errorf("%w: flac with %d bits per sample", audio.ErrUnsupportedCodec, bits)
	}
	c := newSlotCodec(defaultInputSlots, func(fr *frame.Frame) ([]int16, error) {
		return interleaveFLAC(fr, channels, bits)
	})
	// stream.Close also closes f
	return audio.NewDecodedTrack(int(info.SampleRate), channels, ContainerFLAC, "flac", newCodecPump[*frame.Frame](flacSource{stream}, c, stream))
}

type flacSource struct {
	stream *flac.Stream
}

func (s flacSource) NextPacket() (*frame.Frame, error) {
	return s.stream.ParseNext()
}

func interleaveFLAC(fr *frame.Frame, channels, bits int) ([]int16, error) {
	if len(fr.Subframes) != channels {
		return nil, fmt.Errorf("flac frame has %d subframes, stream declares %d channels", len(fr.Subframes), channels)
	}
	n := int(fr.BlockSize)
	out := make([]int16, n*channels)
	for ch, sub := range fr.Subframes {
		if len(sub.Samples) < n {
			return nil, fmt.Errorf("flac subframe %d has %d samples, want %d", ch, len(sub.Samples), n)
		}
		for i := 0; i < n; i++ {
			out[i*channels+ch] = narrowToPCM16(sub.Samples[i], bits)
		}
	}
	return out, nil
}

func narrowToPCM16(s int32, bits int) int16 {
	switch {
	case bits > 16:
		return int16(s >> (bits - 16))
	case bits < 16:
		return int16(s << (16 - bits))
	default:
		return int16(s)
	}
}
