package audio

import (
	"fmt"
	"os"

	"github.com/foxseedlab/localscribe/internal/audio"
	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always emits interleaved stereo PCM16LE.
const (
	mp3Channels      = 2
	mp3PacketSamples = 1152 * 4
)

func openMP3(f *os.File) (*audio.DecodedTrack, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", audio.ErrUnsupportedCodec, err)
	}
	src := &chunkSource{r: dec, size: mp3PacketSamples * mp3Channels * 2, align: mp3Channels * 2}
	c := newSlotCodec(defaultInputSlots, func(pkt []byte) ([]int16, error) {
		return audio.BytesToSamples(pkt), nil
	})
	return audio.NewDecodedTrack(dec.SampleRate(), mp3Channels, ContainerMP3, "mp3", newCodecPump[[]byte](src, c, f))
}
