package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/foxseedlab/localscribe/internal/audio"
)

func buildWAV(formatTag uint16, channels, rate, bits int, data []byte, extraChunks ...[]byte) []byte {
	var b bytes.Buffer
	fmtChunk := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtChunk[0:2], formatTag)
	binary.LittleEndian.PutUint16(fmtChunk[2:4], uint16(channels))
	binary.LittleEndian.PutUint32(fmtChunk[4:8], uint32(rate))
	binary.LittleEndian.PutUint32(fmtChunk[8:12], uint32(rate*channels*bits/8))
	binary.LittleEndian.PutUint16(fmtChunk[12:14], uint16(channels*bits/8))
	binary.LittleEndian.PutUint16(fmtChunk[14:16], uint16(bits))

	var body bytes.Buffer
	body.WriteString("WAVE")
	for _, c := range extraChunks {
		body.Write(c)
	}
	writeChunk(&body, "fmt ", fmtChunk)
	writeChunk(&body, "data", data)

	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(body.Len()))
	b.Write(body.Bytes())
	return b.Bytes()
}

func writeChunk(b *bytes.Buffer, id string, data []byte) {
	b.WriteString(id)
	_ = binary.Write(b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)
	if len(data)%2 == 1 {
		b.WriteByte(0)
	}
}

func mustWriteFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func readAllTrack(t *testing.T, path string) (*audio.DecodedTrack, []int16) {
	t.Helper()
	track, err := NewContainerDecoder().Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer track.Close()
	samples, err := track.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return track, samples
}

func TestOpen_WAVStereo16(t *testing.T) {
	const frames = 10000
	data := make([]byte, 0, frames*4)
	for i := 0; i < frames; i++ {
		data = binary.LittleEndian.AppendUint16(data, uint16(int16(i)))
		data = binary.LittleEndian.AppendUint16(data, uint16(int16(-i)))
	}
	// a LIST chunk before fmt must be skipped
	list := []byte("LIST\x05\x00\x00\x00INFOx\x00")
	path := mustWriteFile(t, "stereo.wav", buildWAV(wavFormatPCM, 2, 44100, 16, data, list))

	track, samples := readAllTrack(t, path)
	if track.SampleRate != 44100 || track.Channels != 2 || track.Container != ContainerWAV {
		t.Fatalf("unexpected track: %+v", track)
	}
	if len(samples) != frames*2 {
		t.Fatalf("expected %d samples, got %d", frames*2, len(samples))
	}
	if samples[2*777] != 777 || samples[2*777+1] != -777 {
		t.Fatalf("frame 777 decoded as %d/%d", samples[2*777], samples[2*777+1])
	}
}

func wavWithRawDataChunk(dataSize uint32, payload []byte, trailing []byte) []byte {
	fmtChunk := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtChunk[0:2], wavFormatPCM)
	binary.LittleEndian.PutUint16(fmtChunk[2:4], 1)
	binary.LittleEndian.PutUint32(fmtChunk[4:8], 16000)
	binary.LittleEndian.PutUint32(fmtChunk[8:12], 32000)
	binary.LittleEndian.PutUint16(fmtChunk[12:14], 2)
	binary.LittleEndian.PutUint16(fmtChunk[14:16], 16)

	var body bytes.Buffer
	body.WriteString("WAVE")
	writeChunk(&body, "fmt ", fmtChunk)
	body.WriteString("data")
	_ = binary.Write(&body, binary.LittleEndian, dataSize)
	body.Write(payload)
	body.Write(trailing)

	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(body.Len()))
	b.Write(body.Bytes())
	return b.Bytes()
}

func TestOpen_WAVEmptyDataChunkBeforeTrailingChunk(t *testing.T) {
	var list bytes.Buffer
	writeChunk(&list, "LIST", []byte("INFOISFT\x04\x00\x00\x00test"))
	path := mustWriteFile(t, "empty.wav", wavWithRawDataChunk(0, nil, list.Bytes()))

	_, samples := readAllTrack(t, path)
	if len(samples) != 0 {
		t.Fatalf("expected no samples from an empty data chunk, got %v", samples)
	}
}

func TestOpen_WAVUnsizedDataChunkRunsToEndOfFile(t *testing.T) {
	payload := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00}
	for _, size := range []uint32{0, 0xFFFFFFFF} {
		path := mustWriteFile(t, "streamed.wav", wavWithRawDataChunk(size, payload, nil))
		_, samples := readAllTrack(t, path)
		if len(samples) != 3 || samples[2] != 3 {
			t.Fatalf("size %#x: expected 3 samples, got %v", size, samples)
		}
	}
}

func TestOpen_WAV24BitNarrowed(t *testing.T) {
	// 0x123456 keeps its top 16 bits
	data := []byte{0x56, 0x34, 0x12, 0x00, 0x00, 0x80}
	path := mustWriteFile(t, "deep.wav", buildWAV(wavFormatPCM, 1, 48000, 24, data))
	_, samples := readAllTrack(t, path)
	if len(samples) != 2 || samples[0] != 0x1234 || samples[1] != math.MinInt16 {
		t.Fatalf("unexpected samples %v", samples)
	}
}

func TestOpen_WAVFloat32(t *testing.T) {
	var data []byte
	for _, v := range []float32{0, 0.5, -1, 2} {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
	}
	path := mustWriteFile(t, "float.wav", buildWAV(wavFormatIEEEFloat, 1, 16000, 32, data))
	track, samples := readAllTrack(t, path)
	want := []int16{0, 16384, -32767, 32767}
	if track.Codec != "float32" {
		t.Fatalf("expected float32 codec, got %q", track.Codec)
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i], samples[i])
		}
	}
}

func TestOpen_WAV8BitUnsigned(t *testing.T) {
	path := mustWriteFile(t, "byte.wav", buildWAV(wavFormatPCM, 1, 8000, 8, []byte{128, 255, 0}))
	_, samples := readAllTrack(t, path)
	want := []int16{0, 127 << 8, -32768}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i], samples[i])
		}
	}
}

func TestOpen_WAVCompressedFormatUnsupported(t *testing.T) {
	// 0x0011 is IMA ADPCM
	path := mustWriteFile(t, "adpcm.wav", buildWAV(0x0011, 1, 8000, 4, []byte{1, 2, 3, 4}))
	if _, err := NewContainerDecoder().Open(path); !errors.Is(err, audio.ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec, got %v", err)
	}
}

func TestOpen_WAVWithoutDataChunk(t *testing.T) {
	content := buildWAV(wavFormatPCM, 1, 8000, 16, nil)
	// cut the trailing empty data chunk
	content = content[:len(content)-8]
	binary.LittleEndian.PutUint32(content[4:8], uint32(len(content)-8))
	path := mustWriteFile(t, "nodata.wav", content)
	if _, err := NewContainerDecoder().Open(path); !errors.Is(err, audio.ErrNoAudioTrack) {
		t.Fatalf("expected ErrNoAudioTrack, got %v", err)
	}
}

func oggPage(headerType byte, serial uint32, seq uint32, packet []byte) []byte {
	var b bytes.Buffer
	b.WriteString("OggS")
	b.WriteByte(0)
	b.WriteByte(headerType)
	b.Write(make([]byte, 8))
	_ = binary.Write(&b, binary.LittleEndian, serial)
	_ = binary.Write(&b, binary.LittleEndian, seq)
	b.Write(make([]byte, 4))
	var lacing []byte
	n := len(packet)
	for n >= 255 {
		lacing = append(lacing, 255)
		n -= 255
	}
	lacing = append(lacing, byte(n))
	b.WriteByte(byte(len(lacing)))
	b.Write(lacing)
	b.Write(packet)
	return b.Bytes()
}

func TestOpen_OggWithOnlyVideoStream(t *testing.T) {
	content := oggPage(oggHeaderBOS, 7, 0, []byte("\x80theora-header"))
	content = append(content, oggPage(0, 7, 1, []byte("frame"))...)
	path := mustWriteFile(t, "video.ogg", content)
	if _, err := NewContainerDecoder().Open(path); !errors.Is(err, audio.ErrNoAudioTrack) {
		t.Fatalf("expected ErrNoAudioTrack, got %v", err)
	}
}

func vorbisIdentHeader(channels byte, rate uint32) []byte {
	b := []byte("\x01vorbis")
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = append(b, channels)
	b = binary.LittleEndian.AppendUint32(b, rate)
	b = append(b, make([]byte, 12)...)
	// blocksizes 2^8 and 2^11, then the framing bit
	return append(b, 0xB8, 0x01)
}

func TestOpen_OggVorbisDecodesThroughVorbisCodec(t *testing.T) {
	content := oggPage(oggHeaderBOS, 1, 0, []byte("\x80theora-header"))
	content = append(content, oggPage(oggHeaderBOS, 2, 0, vorbisIdentHeader(2, 22050))...)
	comment := append([]byte("\x03vorbis"), 0, 0, 0, 0, 0, 0, 0, 0, 1)
	content = append(content, oggPage(0, 2, 1, comment)...)
	// one codebook whose sync pattern is wrong
	setup := append([]byte("\x05vorbis"), 0x00, 'X', 'Y', 'Z', 0, 0, 0, 0, 0, 0, 0, 0)
	content = append(content, oggPage(0, 2, 2, setup)...)
	path := mustWriteFile(t, "music.ogg", content)

	track, err := NewContainerDecoder().Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer track.Close()
	if track.Codec != "vorbis" || track.SampleRate != 22050 || track.Channels != 2 {
		t.Fatalf("unexpected track %s %d Hz %d ch", track.Codec, track.SampleRate, track.Channels)
	}
	if _, err := track.ReadAll(); !errors.Is(err, audio.ErrUnsupportedCodec) {
		t.Fatalf("expected broken setup header to be rejected, got %v", err)
	}
}

func TestParseVorbisIdent(t *testing.T) {
	id, err := parseVorbisIdent(vorbisIdentHeader(1, 44100))
	if err != nil {
		t.Fatalf("parseVorbisIdent: %v", err)
	}
	if id.channels != 1 || id.sampleRate != 44100 {
		t.Fatalf("unexpected ident %+v", id)
	}
	if _, err := parseVorbisIdent(vorbisIdentHeader(0, 44100)); !errors.Is(err, audio.ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec for 0 channels, got %v", err)
	}
}

func TestOpen_OggSpeexUnsupported(t *testing.T) {
	content := oggPage(oggHeaderBOS, 4, 0, []byte("Speex   1.2"))
	content = append(content, oggPage(0, 4, 1, []byte("audio"))...)
	path := mustWriteFile(t, "voice.spx", content)
	if _, err := NewContainerDecoder().Open(path); !errors.Is(err, audio.ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec, got %v", err)
	}
}

func TestOggReader_ReassemblesPacketAcrossPages(t *testing.T) {
	long := bytes.Repeat([]byte{0xAB}, 300)
	// first page carries 255 bytes with a continuing lacing value
	var first bytes.Buffer
	first.WriteString("OggS")
	first.WriteByte(0)
	first.WriteByte(oggHeaderBOS)
	first.Write(make([]byte, 8))
	_ = binary.Write(&first, binary.LittleEndian, uint32(3))
	_ = binary.Write(&first, binary.LittleEndian, uint32(0))
	first.Write(make([]byte, 4))
	first.WriteByte(1)
	first.WriteByte(255)
	first.Write(long[:255])

	content := append(first.Bytes(), oggPage(oggHeaderContinued, 3, 1, long[255:])...)
	r := newOggReader(bytes.NewReader(content))
	p, err := r.nextPacket()
	if err != nil {
		t.Fatalf("nextPacket: %v", err)
	}
	if !bytes.Equal(p.data, long) {
		t.Fatalf("expected %d reassembled bytes, got %d", len(long), len(p.data))
	}
}

func TestParseOpusHead(t *testing.T) {
	head := []byte("OpusHead")
	head = append(head, 1, 2)
	head = binary.LittleEndian.AppendUint16(head, 312)
	head = binary.LittleEndian.AppendUint32(head, 44100)
	head = append(head, 0, 0, 0)
	h, err := parseOpusHead(head)
	if err != nil {
		t.Fatalf("parseOpusHead: %v", err)
	}
	if h.channels != 2 || h.preSkip != 312 {
		t.Fatalf("unexpected head: %+v", h)
	}

	head[9] = 6
	if _, err := parseOpusHead(head); !errors.Is(err, audio.ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec for 6 channels, got %v", err)
	}
}

func mp4Atom(kind string, children ...[]byte) []byte {
	body := bytes.Join(children, nil)
	out := binary.BigEndian.AppendUint32(nil, uint32(8+len(body)))
	out = append(out, kind...)
	return append(out, body...)
}

func mp4Track(handler, entry string) []byte {
	hdlr := mp4Atom("hdlr", make([]byte, 8), []byte(handler), make([]byte, 12))
	stsd := mp4Atom("stsd", make([]byte, 4), []byte{0, 0, 0, 1}, mp4Atom(entry, make([]byte, 28)))
	return mp4Atom("trak", mp4Atom("mdia", hdlr, mp4Atom("minf", mp4Atom("stbl", stsd))))
}

func TestOpen_MP4SoundTrackUnsupported(t *testing.T) {
	ftyp := mp4Atom("ftyp", []byte("M4A "), make([]byte, 4))
	moov := mp4Atom("moov", mp4Track("vide", "avc1"), mp4Track("soun", "mp4a"))
	path := mustWriteFile(t, "voice.m4a", append(ftyp, moov...))

	_, err := NewContainerDecoder().Open(path)
	if !errors.Is(err, audio.ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec, got %v", err)
	}
	if !bytes.Contains([]byte(err.Error()), []byte("mp4a")) {
		t.Fatalf("expected sample entry in error, got %v", err)
	}
}

func TestOpen_MP4WithoutSoundTrack(t *testing.T) {
	ftyp := mp4Atom("ftyp", []byte("isom"), make([]byte, 4))
	moov := mp4Atom("moov", mp4Track("vide", "avc1"))
	path := mustWriteFile(t, "clip.mp4", append(ftyp, moov...))
	if _, err := NewContainerDecoder().Open(path); !errors.Is(err, audio.ErrNoAudioTrack) {
		t.Fatalf("expected ErrNoAudioTrack, got %v", err)
	}
}

func TestOpen_UnknownContainer(t *testing.T) {
	path := mustWriteFile(t, "notes.txt", []byte("definitely not audio"))
	if _, err := NewContainerDecoder().Open(path); !errors.Is(err, audio.ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec, got %v", err)
	}
}

func TestOpen_EmptyFile(t *testing.T) {
	path := mustWriteFile(t, "empty.wav", nil)
	if _, err := NewContainerDecoder().Open(path); !errors.Is(err, audio.ErrNoAudioTrack) {
		t.Fatalf("expected ErrNoAudioTrack, got %v", err)
	}
}

func TestSniffContainer(t *testing.T) {
	cases := []struct {
		head []byte
		path string
		want string
	}{
		{[]byte("RIFF\x00\x00\x00\x00WAVE"), "x.bin", ContainerWAV},
		{[]byte("OggS\x00\x02"), "x", ContainerOgg},
		{[]byte("fLaC\x00"), "x", ContainerFLAC},
		{[]byte("ID3\x04"), "x", ContainerMP3},
		{[]byte{0xFF, 0xFB, 0x90}, "x", ContainerMP3},
		{[]byte{0xFF, 0xF1, 0x50}, "x", ContainerADTS},
		{[]byte("\x00\x00\x00\x20ftypM4A "), "x", ContainerMP4},
		{[]byte("garbage"), "voice.OPUS", ContainerOgg},
		{[]byte("garbage"), "voice", ContainerUnknown},
	}
	for _, c := range cases {
		if got := sniffContainer(c.head, c.path); got != c.want {
			t.Fatalf("sniff %q (%s): expected %q, got %q", c.head, c.path, c.want, got)
		}
	}
}
