package events

import (
	"context"
	"sort"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
)

// sink is anything the hub can hand an event to: a local endpoint or a
// remote websocket peer.
type sink interface {
	deliver(Event) bool
}

// Hub routes events between the windows that joined it.
type Hub struct {
	mu    sync.RWMutex
	sinks map[label.Label]sink
}

func NewHub() *Hub {
	return &Hub{sinks: make(map[label.Label]sink)}
}

// Join attaches an in-process window. Joining an occupied label replaces
// the previous occupant.
func (h *Hub) Join(l label.Label) *Endpoint {
	e := &Endpoint{dispatcher: newDispatcher(l), hub: h}
	h.attach(l, e)
	return e
}

func (h *Hub) attach(l label.Label, s sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.sinks[l].(*Endpoint); ok && prev != s {
		prev.dispatcher.close()
	}
	h.sinks[l] = s
	logger.WithComponent("events").Debug().Str("window", string(l)).Msg("Window joined")
}

func (h *Hub) detach(l label.Label, s sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sinks[l] == s {
		delete(h.sinks, l)
		logger.WithComponent("events").Debug().Str("window", string(l)).Msg("Window left")
	}
}

// Labels lists the windows currently attached.
func (h *Hub) Labels() []label.Label {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]label.Label, 0, len(h.sinks))
	for l := range h.sinks {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether a window with label l is attached.
func (h *Hub) Has(l label.Label) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sinks[l]
	return ok
}

func (h *Hub) route(ev Event) {
	ev.Payload = nil

	h.mu.RLock()
	targets := make([]sink, 0, len(h.sinks))
	for l, s := range h.sinks {
		if ev.Target != "" {
			if l == ev.Target {
				targets = append(targets, s)
			}
			continue
		}
		if l != ev.Source {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.deliver(ev)
	}
}

// Flush waits for every local endpoint to drain its queue. Handlers that
// emit further events are covered by repeating the pass.
func (h *Hub) Flush() {
	for range 3 {
		h.mu.RLock()
		eps := make([]*Endpoint, 0, len(h.sinks))
		for _, s := range h.sinks {
			if e, ok := s.(*Endpoint); ok {
				eps = append(eps, e)
			}
		}
		h.mu.RUnlock()
		for _, e := range eps {
			e.flush()
		}
	}
}

// Endpoint is an in-process window attached to a Hub.
type Endpoint struct {
	*dispatcher
	hub *Hub
}

func (e *Endpoint) Label() label.Label { return e.label }

func (e *Endpoint) Emit(_ context.Context, name Name, target label.Label) error {
	if e.closed() {
		return ErrClosed
	}
	e.hub.route(Event{Name: name, Source: e.label, Target: target})
	return nil
}

func (e *Endpoint) Listen(name Name, h Handler) func() {
	return e.listen(name, h)
}

// Flush blocks until events already queued for this window are handled.
func (e *Endpoint) Flush() { e.flush() }

// Close detaches the window and stops its dispatch goroutine.
func (e *Endpoint) Close() error {
	e.hub.detach(e.label, e)
	e.close()
	return nil
}
