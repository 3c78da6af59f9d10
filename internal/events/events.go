// Package events carries content-free signals between windows. Receivers
// never read a payload: every event means "re-read your state from storage".
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/label"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
)

// Name is a cross-window channel name.
type Name string

const (
	SettingsChanged      Name = "pulsecore://settings-changed"
	PreferencesChanged   Name = "pulsecore://prefs-sync"
	RequestTrayOwnership Name = "pulsecore://request-tray-ownership"
)

// ErrClosed is returned when emitting on a closed bus.
var ErrClosed = errors.New("events: bus closed")

// Event is the wire shape. Payload is always null.
type Event struct {
	Name    Name        `json:"name"`
	Source  label.Label `json:"source"`
	Target  label.Label `json:"target,omitempty"`
	Payload any         `json:"payload"`
}

// Handler receives events on the owning window's dispatch goroutine.
type Handler func(Event)

// Bus is one window's view of the event channel.
type Bus interface {
	// Label is the window this bus belongs to.
	Label() label.Label
	// Emit sends name to target, or to every other window when target is empty.
	Emit(ctx context.Context, name Name, target label.Label) error
	// Listen registers h for name. The returned func unregisters it.
	Listen(name Name, h Handler) func()
}

const queueSize = 64

type envelope struct {
	ev      Event
	barrier chan struct{}
}

// dispatcher serializes delivery of incoming events to one window's
// handlers. Full queues drop events; receivers re-resolve from storage so a
// lost signal is recovered by the next one.
type dispatcher struct {
	label    label.Label
	queue    chan envelope
	done     chan struct{}
	closeMu  sync.Once
	mu       sync.Mutex
	handlers map[Name]map[int]Handler
	nextID   int
}

func newDispatcher(l label.Label) *dispatcher {
	d := &dispatcher{
		label:    l,
		queue:    make(chan envelope, queueSize),
		done:     make(chan struct{}),
		handlers: make(map[Name]map[int]Handler),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case env := <-d.queue:
			if env.barrier != nil {
				close(env.barrier)
				continue
			}
			d.dispatch(env.ev)
		}
	}
}

func (d *dispatcher) dispatch(ev Event) {
	d.mu.Lock()
	hs := make([]Handler, 0, len(d.handlers[ev.Name]))
	for _, h := range d.handlers[ev.Name] {
		hs = append(hs, h)
	}
	d.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

func (d *dispatcher) deliver(ev Event) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.queue <- envelope{ev: ev}:
		return true
	default:
		logger.WithWindow("events", string(d.label)).Warn().
			Str("event", string(ev.Name)).
			Msg("Event queue full, dropping signal")
		return false
	}
}

func (d *dispatcher) listen(name Name, h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	if d.handlers[name] == nil {
		d.handlers[name] = make(map[int]Handler)
	}
	d.handlers[name][id] = h
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers[name], id)
	}
}

// flush blocks until every event queued before the call has been handled.
func (d *dispatcher) flush() {
	b := make(chan struct{})
	select {
	case d.queue <- envelope{barrier: b}:
	case <-d.done:
		return
	}
	select {
	case <-b:
	case <-d.done:
	}
}

func (d *dispatcher) close() {
	d.closeMu.Do(func() { close(d.done) })
}

func (d *dispatcher) closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}
