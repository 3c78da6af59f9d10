package window

import (
	"math"

	"github.com/bryanchriswhite/pulsecore/internal/host"
)

// Visible margins kept on screen when a window is larger than its monitor
// on an axis, so the user can always grab it.
const (
	VisibleMarginX = 120
	VisibleMarginY = 32
)

// minOverlapFloor caps the overlap a monitor needs to count as "hosting"
// a window: min(20% of the window area, this).
const minOverlapFloor = 320 * 80

// Rect is an axis-aligned screen rectangle.
type Rect struct {
	Left, Top, Right, Bottom int
}

// MonitorRect returns the bounds of m.
func MonitorRect(m host.Monitor) Rect {
	return Rect{
		Left:   m.Position.X,
		Top:    m.Position.Y,
		Right:  m.Position.X + m.Size.Width,
		Bottom: m.Position.Y + m.Size.Height,
	}
}

// WindowRect returns the bounds of a window at p with outer size s.
func WindowRect(p host.Position, s host.Size) Rect {
	return Rect{Left: p.X, Top: p.Y, Right: p.X + s.Width, Bottom: p.Y + s.Height}
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

func (r Rect) center() (float64, float64) {
	return float64(r.Left+r.Right) / 2, float64(r.Top+r.Bottom) / 2
}

// Intersection returns the overlapping area of a and b.
func Intersection(a, b Rect) int {
	w := min(a.Right, b.Right) - max(a.Left, b.Left)
	h := min(a.Bottom, b.Bottom) - max(a.Top, b.Top)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// FrameInsets splits window chrome between the top and bottom edge.
type FrameInsets struct {
	Top, Bottom int
}

// VerticalFrameInsets derives the insets from outer and inner height.
func VerticalFrameInsets(outerHeight, innerHeight int) FrameInsets {
	frame := max(0, outerHeight-innerHeight)
	top := frame / 2
	return FrameInsets{Top: top, Bottom: frame - top}
}

// MonitorRects converts a monitor list.
func MonitorRects(monitors []host.Monitor) []Rect {
	out := make([]Rect, len(monitors))
	for i, m := range monitors {
		out[i] = MonitorRect(m)
	}
	return out
}

// PickMonitor chooses the monitor a window at p with size s belongs to.
// The monitor with the largest overlap wins if that overlap is large
// enough; otherwise the monitor whose center is nearest the window's
// center. monitors must not be empty.
func PickMonitor(p host.Position, s host.Size, monitors []Rect) Rect {
	win := WindowRect(p, s)
	best, bestArea := 0, -1
	for i, m := range monitors {
		if a := Intersection(win, m); a > bestArea {
			best, bestArea = i, a
		}
	}
	threshold := math.Min(float64(s.Width*s.Height)*0.2, minOverlapFloor)
	if float64(bestArea) >= threshold {
		return monitors[best]
	}

	cx, cy := win.center()
	nearest, nearestDist := 0, math.Inf(1)
	for i, m := range monitors {
		mx, my := m.center()
		if d := (mx-cx)*(mx-cx) + (my-cy)*(my-cy); d < nearestDist {
			nearest, nearestDist = i, d
		}
	}
	return monitors[nearest]
}

// clampAxis keeps a span of length size starting at pos inside
// [start, start+total]. A span longer than the range may hang off either
// edge but keeps margin pixels visible.
func clampAxis(pos, size, start, total, margin int) int {
	end := start + total
	if size <= total {
		return clampInt(pos, start, end-size)
	}
	return clampInt(pos, start-size+margin, end-margin)
}

func clampInt(v, lo, hi int) int {
	return min(hi, max(lo, v))
}

// ClampPosition moves a window at p with outer size s onto monitor m. The
// vertical range is widened by the frame insets so invisible chrome may
// leave the screen.
func ClampPosition(p host.Position, s host.Size, m Rect, insets FrameInsets) host.Position {
	return host.Position{
		X: clampAxis(p.X, s.Width, m.Left, m.Width(), VisibleMarginX),
		Y: clampAxis(p.Y, s.Height, m.Top-insets.Top, m.Height()+insets.Top+insets.Bottom, VisibleMarginY),
	}
}

// ClampY keeps a window of the given outer height vertically inside m. A
// window whose visible part is at least as tall as the monitor is pinned
// to the top.
func ClampY(y, outerHeight int, m Rect, insets FrameInsets) int {
	visible := max(1, outerHeight-insets.Top-insets.Bottom)
	minY := m.Top - insets.Top
	maxY := m.Bottom - outerHeight + insets.Bottom
	if visible >= m.Height() {
		return minY
	}
	return clampInt(y, minY, maxY)
}
