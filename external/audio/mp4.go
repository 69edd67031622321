package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/foxseedlab/localscribe/internal/audio"
)

type mp4Box struct {
	kind   string
	offset int64
	size   int64
	header int64
}

func (b mp4Box) body() (int64, int64) {
	return b.offset + b.header, b.size - b.header
}

func readMP4Boxes(r io.ReaderAt, start, length int64) ([]mp4Box, error) {
	var boxes []mp4Box
	end := start + length
	off := start
	for off+8 <= end {
		hdr := make([]byte, 16)
		n, err := r.ReadAt(hdr, off)
		if n < 8 {
			return nil, fmt.Errorf("%w: read mp4 box at %d: %v", audio.ErrIO, off, err)
		}
		size := int64(binary.BigEndian.Uint32(hdr[0:4]))
		box := mp4Box{kind: string(hdr[4:8]), offset: off, header: 8}
		switch size {
		case 0:
			size = end - off
		case 1:
			if n < 16 {
				return nil, fmt.Errorf("%w: truncated 64-bit mp4 box size", audio.ErrIO)
			}
			size = int64(binary.BigEndian.Uint64(hdr[8:16]))
			box.header = 16
		}
		if size < box.header || off+size > end {
			return nil, fmt.Errorf("%w: mp4 box %q has invalid size %d", audio.ErrIO, box.kind, size)
		}
		box.size = size
		boxes = append(boxes, box)
		off += size
	}
	return boxes, nil
}

func findMP4Box(r io.ReaderAt, parent mp4Box, path ...string) (mp4Box, bool, error) {
	cur := parent
	for _, kind := range path {
		start, length := cur.body()
		children, err := readMP4Boxes(r, start, length)
		if err != nil {
			return mp4Box{}, false, err
		}
		found := false
		for _, c := range children {
			if c.kind == kind {
				cur, found = c, true
				break
			}
		}
		if !found {
			return mp4Box{}, false, nil
		}
	}
	return cur, true, nil
}

func findMP4SoundEntry(r io.ReaderAt, size int64) (string, error) {
	root := mp4Box{kind: "root", offset: 0, size: size}
	moov, ok, err := findMP4Box(r, root, "moov")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: mp4 has no moov box", audio.ErrNoAudioTrack)
	}
	start, length := moov.body()
	traks, err := readMP4Boxes(r, start, length)
	if err != nil {
		return "", err
	}
	for _, trak := range traks {
		if trak.kind != "trak" {
			continue
		}
		hdlr, ok, err := findMP4Box(r, trak, "mdia", "hdlr")
		if err != nil || !ok {
			continue
		}
		handler := make([]byte, 4)
		hs, _ := hdlr.body()
		// full box header (4) + pre_defined (4), then handler_type
		if _, err := r.ReadAt(handler, hs+8); err != nil {
			continue
		}
		if string(handler) != "soun" {
			continue
		}
		stsd, ok, err := findMP4Box(r, trak, "mdia", "minf", "stbl", "stsd")
		if err != nil {
			return "", err
		}
		if !ok {
			return "unknown", nil
		}
		ss, sl := stsd.body()
		// full box header (4) + entry_count (4), then the first sample entry box
		entries, err := readMP4Boxes(r, ss+8, sl-8)
		if err != nil || len(entries) == 0 {
			return "unknown", nil
		}
		return strings.TrimSpace(entries[0].kind), nil
	}
	return "", fmt.Errorf("%w: mp4 has no sound track", audio.ErrNoAudioTrack)
}

// openMP4 locates the first sound track. No MP4 audio codec is decoded in-process.
func openMP4(f *os.File) (*audio.DecodedTrack, error) {
	size, err := fileSize(f)
	if err != nil {
		return nil, err
	}
	entry, err := findMP4SoundEntry(f, size)
	if err != nil {
		if errors.Is(err, audio.ErrIO) {
			return nil, fmt.Errorf("%w: %v", audio.ErrNoAudioTrack, err)
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s audio in mp4", audio.ErrUnsupportedCodec, entry)
}
