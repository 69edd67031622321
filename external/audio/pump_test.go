package audio

import (
	"errors"
	"io"
	"testing"
)

type slicePackets struct {
	packets [][]int16
}

func (s *slicePackets) NextPacket() ([]int16, error) {
	if len(s.packets) == 0 {
		return nil, io.EOF
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, nil
}

// holdingCodec keeps every packet until end of stream, then releases them one Dequeue at a time.
type holdingCodec struct {
	held [][]int16
	eos  bool
}

func (c *holdingCodec) Queue(p []int16) (bool, error) {
	c.held = append(c.held, p)
	return true, nil
}

func (c *holdingCodec) QueueEndOfStream() error {
	c.eos = true
	return nil
}

func (c *holdingCodec) Dequeue() ([]int16, bool, error) {
	if !c.eos {
		return nil, false, nil
	}
	if len(c.held) == 0 {
		return nil, c.eos, nil
	}
	p := c.held[0]
	c.held = c.held[1:]
	return p, false, nil
}

type closeCounter struct {
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestCodecPump_DrainsOutputBufferedUntilEndOfInput(t *testing.T) {
	src := &slicePackets{packets: [][]int16{{1, 2}, {3, 4}, {5, 6}}}
	closer := &closeCounter{}
	pump := newCodecPump[[]int16](src, &holdingCodec{}, closer)

	var got []int16
	buf := make([]int16, 1)
	for {
		n, err := pump.ReadFrames(buf)
		got = append(got, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrames: %v", err)
		}
	}
	want := []int16{1, 2, 3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if err := pump.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = pump.Close()
	if closer.closed != 1 {
		t.Fatalf("expected closer to run once, ran %d times", closer.closed)
	}
}

func TestCodecPump_RespectsInputSlots(t *testing.T) {
	packets := make([][]int16, 10)
	for i := range packets {
		packets[i] = []int16{int16(i)}
	}
	c := newSlotCodec(2, func(p []int16) ([]int16, error) { return p, nil })
	pump := newCodecPump[[]int16](&slicePackets{packets: packets}, c)

	buf := make([]int16, 64)
	n, err := pump.ReadFrames(buf)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if n != 10 {
		t.Fatalf("expected 10 samples, got %d", n)
	}
	for i := 0; i < n; i++ {
		if buf[i] != int16(i) {
			t.Fatalf("sample %d out of order: %d", i, buf[i])
		}
	}
	if _, err := pump.ReadFrames(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

type stuckCodec struct{}

func (stuckCodec) Queue([]int16) (bool, error)     { return false, nil }
func (stuckCodec) QueueEndOfStream() error         { return nil }
func (stuckCodec) Dequeue() ([]int16, bool, error) { return nil, false, nil }

func TestCodecPump_StalledCodecFails(t *testing.T) {
	pump := newCodecPump[[]int16](&slicePackets{packets: [][]int16{{1}}}, stuckCodec{})
	if _, err := pump.ReadFrames(make([]int16, 4)); err == nil {
		t.Fatal("expected stall error")
	}
}

func TestCodecPump_DecodeErrorPropagates(t *testing.T) {
	boom := errors.New("bad packet")
	c := newSlotCodec(1, func([]int16) ([]int16, error) { return nil, boom })
	pump := newCodecPump[[]int16](&slicePackets{packets: [][]int16{{1}}}, c)
	if _, err := pump.ReadFrames(make([]int16, 4)); !errors.Is(err, boom) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
