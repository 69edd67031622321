//go:build noopus

package audio

import (
	"fmt"

	"github.com/foxseedlab/localscribe/internal/audio"
)

func newOpusCodec(_, _ int) (codec[[]byte], error) {
	return nil, fmt.Errorf("%w: opus support disabled in this build (noopus tag)", audio.ErrUnsupportedCodec)
}
