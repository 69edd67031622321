package audio

import (
	"bytes"
	"path/filepath"
	"strings"
)

const (
	ContainerWAV     = "wav"
	ContainerOgg     = "ogg"
	ContainerMP3     = "mp3"
	ContainerFLAC    = "flac"
	ContainerMP4     = "mp4"
	ContainerADTS    = "aac"
	ContainerUnknown = ""
)

const sniffLen = 12

// sniffContainer identifies a container from its leading bytes, falling back to the file extension.
func sniffContainer(head []byte, path string) string {
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return ContainerWAV
	case bytes.HasPrefix(head, []byte("OggS")):
		return ContainerOgg
	case bytes.HasPrefix(head, []byte("fLaC")):
		return ContainerFLAC
	case bytes.HasPrefix(head, []byte("ID3")):
		return ContainerMP3
	case len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")):
		return ContainerMP4
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		// layer bits 00 mark ADTS AAC rather than MPEG audio
		if head[1]&0x06 == 0 {
			return ContainerADTS
		}
		return ContainerMP3
	}
	return containerFromExtension(path)
}

func containerFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return ContainerWAV
	case ".ogg", ".oga", ".opus":
		return ContainerOgg
	case ".flac":
		return ContainerFLAC
	case ".mp3":
		return ContainerMP3
	case ".m4a", ".mp4", ".3gp", ".mov":
		return ContainerMP4
	case ".aac":
		return ContainerADTS
	}
	return ContainerUnknown
}
