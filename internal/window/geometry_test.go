package window

import (
	"testing"

	"github.com/bryanchriswhite/pulsecore/internal/host"
)

var (
	primary = host.Monitor{Name: "DP-1", Size: host.Size{Width: 1920, Height: 1080}, ScaleFactor: 1}
	right   = host.Monitor{Name: "HDMI-1", Position: host.Position{X: 1920}, Size: host.Size{Width: 1280, Height: 1024}, ScaleFactor: 1}
	left    = host.Monitor{Name: "DP-2", Position: host.Position{X: -1280}, Size: host.Size{Width: 1280, Height: 1024}, ScaleFactor: 1}
)

func TestVerticalFrameInsets(t *testing.T) {
	cases := []struct {
		outer, inner int
		want         FrameInsets
	}{
		{40, 40, FrameInsets{}},
		{50, 40, FrameInsets{Top: 5, Bottom: 5}},
		{47, 40, FrameInsets{Top: 3, Bottom: 4}},
		{30, 40, FrameInsets{}},
	}
	for _, c := range cases {
		if got := VerticalFrameInsets(c.outer, c.inner); got != c.want {
			t.Errorf("VerticalFrameInsets(%d, %d) = %+v, want %+v", c.outer, c.inner, got, c.want)
		}
	}
}

func TestPickMonitor(t *testing.T) {
	rects := MonitorRects([]host.Monitor{primary, right})
	size := host.Size{Width: 520, Height: 40}

	cases := []struct {
		name string
		pos  host.Position
		want Rect
	}{
		{"inside primary", host.Position{X: 100, Y: 100}, rects[0]},
		{"mostly right", host.Position{X: 1800, Y: 100}, rects[1]},
		{"straddling favours larger overlap", host.Position{X: 1500, Y: 100}, rects[0]},
		{"off below right", host.Position{X: 2500, Y: 3000}, rects[1]},
		{"off far left", host.Position{X: -5000, Y: 100}, rects[0]},
	}
	for _, c := range cases {
		if got := PickMonitor(c.pos, size, rects); got != c.want {
			t.Errorf("%s: got %+v, want %+v", c.name, got, c.want)
		}
	}
}

func TestPickMonitorNeedsEnoughOverlap(t *testing.T) {
	rects := MonitorRects([]host.Monitor{primary, right})
	// 10x10 overlap with the primary, well under 20% of 520x40, but the
	// center is nearest the right monitor.
	pos := host.Position{X: 1910, Y: 1070}
	if got := PickMonitor(pos, host.Size{Width: 520, Height: 40}, rects); got != rects[1] {
		t.Fatalf("got %+v", got)
	}
}

func TestClampPosition(t *testing.T) {
	m := MonitorRect(primary)
	cases := []struct {
		name   string
		pos    host.Position
		size   host.Size
		insets FrameInsets
		want   host.Position
	}{
		{"inside", host.Position{X: 10, Y: 10}, host.Size{Width: 520, Height: 40}, FrameInsets{}, host.Position{X: 10, Y: 10}},
		{"past right", host.Position{X: 1900, Y: 10}, host.Size{Width: 520, Height: 40}, FrameInsets{}, host.Position{X: 1400, Y: 10}},
		{"above", host.Position{X: 10, Y: -300}, host.Size{Width: 520, Height: 40}, FrameInsets{}, host.Position{X: 10, Y: 0}},
		{"chrome may leave", host.Position{X: 10, Y: -300}, host.Size{Width: 520, Height: 50}, FrameInsets{Top: 5, Bottom: 5}, host.Position{X: 10, Y: -5}},
		{"wider than monitor keeps margin", host.Position{X: 2000, Y: 10}, host.Size{Width: 2500, Height: 40}, FrameInsets{}, host.Position{X: 1920 - VisibleMarginX, Y: 10}},
		{"wider than monitor hangs left", host.Position{X: -4000, Y: 10}, host.Size{Width: 2500, Height: 40}, FrameInsets{}, host.Position{X: -2500 + VisibleMarginX, Y: 10}},
		{"taller than monitor", host.Position{X: 0, Y: 2000}, host.Size{Width: 100, Height: 1200}, FrameInsets{}, host.Position{X: 0, Y: 1080 - VisibleMarginY}},
	}
	for _, c := range cases {
		if got := ClampPosition(c.pos, c.size, m, c.insets); got != c.want {
			t.Errorf("%s: got %+v, want %+v", c.name, got, c.want)
		}
	}
}

func TestClampY(t *testing.T) {
	m := MonitorRect(primary)
	cases := []struct {
		name   string
		y      int
		outer  int
		insets FrameInsets
		want   int
	}{
		{"inside", 500, 40, FrameInsets{}, 500},
		{"below", 1200, 40, FrameInsets{}, 1040},
		{"above", -10, 40, FrameInsets{}, 0},
		{"chrome", 1200, 50, FrameInsets{Top: 5, Bottom: 5}, 1035},
		{"taller pins to top", 300, 1200, FrameInsets{}, 0},
	}
	for _, c := range cases {
		if got := ClampY(c.y, c.outer, m, c.insets); got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, got, c.want)
		}
	}
}

func TestDragAllowed(t *testing.T) {
	cases := []struct {
		p    Pointer
		want bool
	}{
		{Pointer{Button: 0, Path: []string{"span", "div", "body"}}, true},
		{Pointer{Button: 0}, true},
		{Pointer{Button: 2, Path: []string{"div"}}, false},
		{Pointer{Button: 0, Path: []string{"span", "BUTTON", "div"}}, false},
		{Pointer{Button: 0, Path: []string{"input"}}, false},
		{Pointer{Button: 0, Path: []string{"svg", "a", "div"}}, false},
		{Pointer{Button: 0, Path: []string{"label", "div"}}, true},
	}
	for _, c := range cases {
		if got := DragAllowed(c.p); got != c.want {
			t.Errorf("DragAllowed(%+v) = %v, want %v", c.p, got, c.want)
		}
	}
}
