//go:build !noopus

package audio

import (
	"fmt"

	"github.com/foxseedlab/localscribe/internal/audio"
	"github.com/hraban/opus"
)

// 120 ms at 48 kHz, the longest opus packet duration
const maxOpusFrameSamples = 5760

func newOpusCodec(channels, preSkip int) (codec[[]byte], error) {
	dec, err := opus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("%w: opus decoder: %v", audio.ErrUnsupportedCodec, err)
	}
	skip := preSkip * channels
	pcm := make([]int16, maxOpusFrameSamples*channels)
	decode := func(pkt []byte) ([]int16, error) {
		n, err := dec.Decode(pkt, pcm)
		if err != nil {
			return nil, fmt.Errorf("opus decode: %w", err)
		}
		total := n * channels
		frame := pcm[:total]
		if skip > 0 {
			drop := min(skip, total)
			skip -= drop
			frame = frame[drop:]
		}
		out := make([]int16, len(frame))
		copy(out, frame)
		return out, nil
	}
	return newSlotCodec(defaultInputSlots, decode), nil
}
