package driver

import (
	"fmt"

	"github.com/camctl/gigecam/internal/pvapi"
)

// defaultFrameBuffers is the number of transfer descriptors rotated through
// the vendor capture queue when the instance does not configure one.
const defaultFrameBuffers = 2

// transferSlot binds one vendor transfer descriptor to the canonical image
// buffer it streams into. Ownership of the image moves pool -> vendor queue
// -> decoder -> pool; a slot queued with the vendor always has a non-nil
// image sized to the maximum possible frame.
type transferSlot struct {
	frame *pvapi.Frame
	image *Image
}

// framePool owns the fixed set of transfer slots for one camera session.
// Not locked itself: all access happens under the driver's session lock.
type framePool struct {
	slots  []*transferSlot
	images *imagePool
}

func newFramePool(n int, images *imagePool) *framePool {
	if n <= 0 {
		n = defaultFrameBuffers
	}
	p := &framePool{images: images, slots: make([]*transferSlot, n)}
	for i := range p.slots {
		p.slots[i] = &transferSlot{frame: &pvapi.Frame{}}
	}
	return p
}

func (p *framePool) size() int { return len(p.slots) }

// slotFor maps a completed vendor frame back to its slot.
func (p *framePool) slotFor(f *pvapi.Frame) *transferSlot {
	for _, s := range p.slots {
		if s.frame == f {
			return s
		}
	}
	return nil
}

// bind points the slot's transfer buffer at a freshly allocated image of
// size bytes. Any previously bound image must have been taken or released
// by the caller first.
func (p *framePool) bind(s *transferSlot, size int) {
	img := p.images.alloc(size)
	s.image = img
	s.frame.Buffer = img.Data
}

// take transfers ownership of the slot's bound image to the caller.
func (p *framePool) take(s *transferSlot) *Image {
	img := s.image
	s.image = nil
	return img
}

// armAll binds every slot at size bytes and queues it with the vendor.
func (p *framePool) armAll(h pvapi.Handle, size int, cb pvapi.FrameCallback) error {
	for i, s := range p.slots {
		p.bind(s, size)
		if err := h.CaptureQueueFrame(s.frame, cb); err != nil {
			return fmt.Errorf("queue frame %d: %w", i, err)
		}
	}
	return nil
}

// releaseAll drops every slot's bound image buffer, e.g. on disconnect.
func (p *framePool) releaseAll() {
	for _, s := range p.slots {
		if s.image != nil {
			s.image.Release()
			s.image = nil
		}
		s.frame.Buffer = nil
	}
}
