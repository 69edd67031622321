package audio

import (
	"errors"
	"fmt"
	"io"
)

const (
	defaultInputSlots = 4
	maxIdleSteps      = 64
)

type packetSource[P any] interface {
	NextPacket() (P, error)
}

// codec accepts packets while it has free input slots and hands back decoded PCM16.
// Dequeue returns flushed=true once every packet queued before QueueEndOfStream has been drained.
type codec[P any] interface {
	Queue(packet P) (accepted bool, err error)
	QueueEndOfStream() error
	Dequeue() (pcm []int16, flushed bool, err error)
}

// codecPump finishes only after the source hit EOF and the codec flushed.
type codecPump[P any] struct {
	src     packetSource[P]
	codec   codec[P]
	closers []io.Closer

	pending    P
	hasPending bool
	inputDone  bool
	outputDone bool
	idleSteps  int
	out        []int16
	closed     bool
}

func newCodecPump[P any](src packetSource[P], c codec[P], closers ...io.Closer) *codecPump[P] {
	return &codecPump[P]{src: src, codec: c, closers: closers}
}

func (p *codecPump[P]) ReadFrames(buf []int16) (int, error) {
	if p.closed {
		return 0, errors.New("decoder closed")
	}
	n := 0
	for n < len(buf) {
		if len(p.out) > 0 {
			c := copy(buf[n:], p.out)
			p.out = p.out[c:]
			n += c
			continue
		}
		if p.inputDone && p.outputDone {
			break
		}
		if err := p.step(); err != nil {
			return n, err
		}
	}
	if n == 0 && p.finished() {
		return 0, io.EOF
	}
	return n, nil
}

func (p *codecPump[P]) finished() bool {
	return p.inputDone && p.outputDone && len(p.out) == 0
}

func (p *codecPump[P]) step() error {
	progressed := false

	if !p.inputDone {
		fed, err := p.feed()
		if err != nil {
			return err
		}
		progressed = fed
	}

	if !p.outputDone {
		pcm, flushed, err := p.codec.Dequeue()
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if len(pcm) > 0 {
			p.out = append(p.out, pcm...)
			progressed = true
		}
		if flushed {
			if !p.inputDone {
				return errors.New("codec reported flush before end of input")
			}
			p.outputDone = true
			progressed = true
		}
	}

	if progressed {
		p.idleSteps = 0
		return nil
	}
	p.idleSteps++
	if p.idleSteps > maxIdleSteps {
		return errors.New("codec stalled: no input accepted and no output produced")
	}
	return nil
}

func (p *codecPump[P]) feed() (bool, error) {
	fed := false
	for {
		if !p.hasPending {
			pkt, err := p.src.NextPacket()
			if errors.Is(err, io.EOF) {
				if err := p.codec.QueueEndOfStream(); err != nil {
					return fed, fmt.Errorf("signal end of stream: %w", err)
				}
				p.inputDone = true
				return true, nil
			}
			if err != nil {
				return fed, fmt.Errorf("read packet: %w", err)
			}
			p.pending, p.hasPending = pkt, true
		}
		ok, err := p.codec.Queue(p.pending)
		if err != nil {
			return fed, fmt.Errorf("queue packet: %w", err)
		}
		if !ok {
			return fed, nil
		}
		var zero P
		p.pending, p.hasPending = zero, false
		fed = true
	}
}

func (p *codecPump[P]) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type packetQueue[P any] struct {
	packets []P
	limit   int
}

func (q *packetQueue[P]) push(p P) bool {
	if len(q.packets) >= q.limit {
		return false
	}
	q.packets = append(q.packets, p)
	return true
}

func (q *packetQueue[P]) pop() (P, bool) {
	if len(q.packets) == 0 {
		var zero P
		return zero, false
	}
	p := q.packets[0]
	q.packets = q.packets[1:]
	return p, true
}

type slotCodec[P any] struct {
	queue    packetQueue[P]
	eos      bool
	decodeFn func(P) ([]int16, error)
}

func newSlotCodec[P any](slots int, decodeFn func(P) ([]int16, error)) *slotCodec[P] {
	if slots <= 0 {
		slots = defaultInputSlots
	}
	return &slotCodec[P]{queue: packetQueue[P]{limit: slots}, decodeFn: decodeFn}
}

func (c *slotCodec[P]) Queue(packet P) (bool, error) {
	if c.eos {
		return false, errors.New("packet queued after end of stream")
	}
	return c.queue.push(packet), nil
}

func (c *slotCodec[P]) QueueEndOfStream() error {
	c.eos = true
	return nil
}

func (c *slotCodec[P]) Dequeue() ([]int16, bool, error) {
	pkt, ok := c.queue.pop()
	if !ok {
		return nil, c.eos, nil
	}
	pcm, err := c.decodeFn(pkt)
	if err != nil {
		return nil, false, err
	}
	return pcm, false, nil
}
