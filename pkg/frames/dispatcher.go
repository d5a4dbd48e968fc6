package frames

import (
	"errors"
	"log/slog"
	"sync"
)

// Handler receives decoded frames in transport arrival order.
type Handler func(Frame)

type subscription struct {
	id      int
	handler Handler
}

// Dispatcher decodes raw payloads and fans them out to subscribers.
//
// Dispatch order is strictly the arrival order on the transport; the
// dispatcher performs no reordering or buffering of its own. Unknown and
// malformed frames are dropped with a warning, never surfaced as errors.
type Dispatcher struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers a handler and returns an unsubscribe func.
// Handlers are invoked in subscription order.
func (d *Dispatcher) Subscribe(h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.subs = append(d.subs, subscription{id: id, handler: h})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, sub := range d.subs {
			if sub.id == id {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

// Dispatch decodes raw and delivers the frame to every subscriber.
// It returns the decoded frame for callers that need to peek at it.
func (d *Dispatcher) Dispatch(raw []byte) Frame {
	frame, err := Decode(raw)
	if err != nil {
		var unknown *UnknownTypeError
		if errors.As(err, &unknown) {
			slog.Warn("Ignoring unknown frame", "type", unknown.Type)
		} else {
			slog.Warn("Dropping malformed frame", "error", err)
		}
		return nil
	}

	d.mu.Lock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()

	for _, sub := range subs {
		sub.handler(frame)
	}
	return frame
}
