package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/foxseedlab/localscribe/internal/audio"
)

// ContainerDecoder opens local media files and decodes their first audio track to PCM16.
type ContainerDecoder struct{}

func NewContainerDecoder() audio.Decoder {
	return &ContainerDecoder{}
}

func (d *ContainerDecoder) Open(path string) (*audio.DecodedTrack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", audio.ErrIO, path, err)
	}

	head := make([]byte, sniffLen)
	n, err := f.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("%w: read %s: %v", audio.ErrIO, path, err)
	}
	if n == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s is empty", audio.ErrNoAudioTrack, path)
	}

	container := sniffContainer(head[:n], path)
	var track *audio.DecodedTrack
	switch container {
	case ContainerWAV:
		track, err = openWAV(f)
	case ContainerOgg:
		track, err = openOgg(f)
	case ContainerMP3:
		track, err = openMP3(f)
	case ContainerFLAC:
		track, err = openFLAC(f)
	case ContainerMP4:
		track, err = openMP4(f)
	case ContainerADTS:
		err = fmt.Errorf("%w: raw ADTS AAC", audio.ErrUnsupportedCodec)
	default:
		err = fmt.Errorf("%w: unrecognized container", audio.ErrUnsupportedCodec)
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	slog.Debug("audio track opened",
		"path", path,
		"container", track.Container,
		"codec", track.Codec,
		"sample_rate", track.SampleRate,
		"channels", track.Channels,
	)
	return track, nil
}
