// Package x11 answers the display questions of the window host from a live
// X server: the monitor layout through RandR and whether the active window
// is fullscreen through EWMH properties.
package x11

import (
	"context"
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/pulsecore/internal/host"
	"github.com/bryanchriswhite/pulsecore/internal/host/simhost"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
)

// Probe queries an X server.
type Probe struct {
	conn     *xgb.Conn
	root     xproto.Window
	screen   *xproto.ScreenInfo
	hasRandR bool

	mu    sync.Mutex
	atoms map[string]xproto.Atom
}

// NewProbe connects to the X server named by $DISPLAY.
func NewProbe() (*Probe, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	p := &Probe{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		atoms:  make(map[string]xproto.Atom),
	}
	if err := randr.Init(conn); err != nil {
		logger.WithComponent("x11").Warn().Err(err).Msg("RandR unavailable, using the root window as the only monitor")
	} else {
		p.hasRandR = true
	}
	return p, nil
}

// Close closes the X connection.
func (p *Probe) Close() error {
	p.conn.Close()
	return nil
}

type output struct {
	id      randr.Output
	monitor host.Monitor
}

func (p *Probe) outputs() ([]output, error) {
	if !p.hasRandR {
		return []output{{monitor: host.Monitor{
			Name:        "screen",
			Size:        host.Size{Width: int(p.screen.WidthInPixels), Height: int(p.screen.HeightInPixels)},
			ScaleFactor: 1,
		}}}, nil
	}

	res, err := randr.GetScreenResourcesCurrent(p.conn, p.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}
	log := logger.WithComponent("x11")
	out := make([]output, 0, len(res.Outputs))
	for _, id := range res.Outputs {
		info, err := randr.GetOutputInfo(p.conn, id, res.ConfigTimestamp).Reply()
		if err != nil {
			log.Debug().Uint32("output", uint32(id)).Err(err).Msg("Failed to get output info")
			continue
		}
		if info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
			continue
		}
		crtc, err := randr.GetCrtcInfo(p.conn, info.Crtc, res.ConfigTimestamp).Reply()
		if err != nil || crtc.Width == 0 || crtc.Height == 0 {
			continue
		}
		out = append(out, output{
			id: id,
			monitor: host.Monitor{
				Name:        string(info.Name),
				Position:    host.Position{X: int(crtc.X), Y: int(crtc.Y)},
				Size:        host.Size{Width: int(crtc.Width), Height: int(crtc.Height)},
				ScaleFactor: 1,
			},
		})
	}
	return out, nil
}

// Monitors lists connected outputs that are driving a CRTC.
func (p *Probe) Monitors(_ context.Context) ([]host.Monitor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	outs, err := p.outputs()
	if err != nil {
		return nil, err
	}
	monitors := make([]host.Monitor, len(outs))
	for i, o := range outs {
		monitors[i] = o.monitor
	}
	return monitors, nil
}

// PrimaryMonitor returns the RandR primary output, or the first monitor
// when none is marked primary.
func (p *Probe) PrimaryMonitor(_ context.Context) (host.Monitor, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	outs, err := p.outputs()
	if err != nil || len(outs) == 0 {
		return host.Monitor{}, false, err
	}
	if p.hasRandR {
		if prim, err := randr.GetOutputPrimary(p.conn, p.root).Reply(); err == nil {
			for _, o := range outs {
				if o.id == prim.Output {
					return o.monitor, true, nil
				}
			}
		}
	}
	return outs[0].monitor, true, nil
}

// IsFullscreenActive reports whether the window named by _NET_ACTIVE_WINDOW
// carries _NET_WM_STATE_FULLSCREEN.
func (p *Probe) IsFullscreenActive(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	activeAtom, err := p.atom("_NET_ACTIVE_WINDOW")
	if err != nil {
		return false, err
	}
	reply, err := xproto.GetProperty(p.conn, false, p.root, activeAtom, xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return false, fmt.Errorf("failed to get _NET_ACTIVE_WINDOW: %w", err)
	}
	if len(reply.Value) < 4 {
		return false, nil
	}
	win := xproto.Window(card32(reply.Value, 0))
	if win == 0 || win == p.root {
		return false, nil
	}

	stateAtom, err := p.atom("_NET_WM_STATE")
	if err != nil {
		return false, err
	}
	fullscreenAtom, err := p.atom("_NET_WM_STATE_FULLSCREEN")
	if err != nil {
		return false, err
	}
	state, err := xproto.GetProperty(p.conn, false, win, stateAtom, xproto.AtomAtom, 0, (1<<32)-1).Reply()
	if err != nil {
		return false, fmt.Errorf("failed to get _NET_WM_STATE: %w", err)
	}
	for i := 0; i+4 <= len(state.Value); i += 4 {
		if xproto.Atom(card32(state.Value, i)) == fullscreenAtom {
			return true, nil
		}
	}
	return false, nil
}

// atom interns name once. The caller must hold p.mu.
func (p *Probe) atom(name string) (xproto.Atom, error) {
	if a, ok := p.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(p.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to intern %s: %w", name, err)
	}
	p.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func card32(b []byte, i int) uint32 {
	return uint32(b[i]) | uint32(b[i+1])<<8 | uint32(b[i+2])<<16 | uint32(b[i+3])<<24
}

// Host keeps window records in memory and answers monitor and fullscreen
// queries from the X server.
type Host struct {
	*simhost.Host
	probe *Probe
}

// NewHost wraps probe. The in-memory side is seeded with the current
// monitor layout so centered windows land on a real screen.
func NewHost(ctx context.Context, probe *Probe) *Host {
	sim := simhost.New()
	if monitors, err := probe.Monitors(ctx); err == nil {
		if prim, ok, _ := probe.PrimaryMonitor(ctx); ok {
			monitors = primaryFirst(monitors, prim)
		}
		sim.SetMonitors(monitors...)
	}
	return &Host{Host: sim, probe: probe}
}

func primaryFirst(monitors []host.Monitor, prim host.Monitor) []host.Monitor {
	out := make([]host.Monitor, 0, len(monitors))
	out = append(out, prim)
	for _, m := range monitors {
		if m != prim {
			out = append(out, m)
		}
	}
	return out
}

func (h *Host) Monitors(ctx context.Context) ([]host.Monitor, error) {
	return h.probe.Monitors(ctx)
}

func (h *Host) PrimaryMonitor(ctx context.Context) (host.Monitor, bool, error) {
	return h.probe.PrimaryMonitor(ctx)
}

func (h *Host) IsFullscreenActive(ctx context.Context) (bool, error) {
	return h.probe.IsFullscreenActive(ctx)
}

// Close closes the X connection.
func (h *Host) Close() error { return h.probe.Close() }

var _ host.WindowHost = (*Host)(nil)
