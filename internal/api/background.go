package api

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/appearance"
	"github.com/bryanchriswhite/pulsecore/internal/imagestore"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
)

// liveBackground holds a display URL for the applied background image,
// swapping its reference whenever the preferences point at another image.
type liveBackground struct {
	prefs  *prefs.Store
	images *imagestore.Store
	unsub  func()

	mu     sync.Mutex
	image  string
	handle imagestore.Handle
	closed bool
}

func newLiveBackground(p *prefs.Store, images *imagestore.Store) *liveBackground {
	b := &liveBackground{prefs: p, images: images}
	b.track(p.Get())
	b.unsub = p.Subscribe(b.track)
	return b
}

func (b *liveBackground) track(o prefs.Overlay) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || o.BackgroundImage == b.image {
		return
	}
	prev := b.handle
	b.image = o.BackgroundImage
	b.handle = imagestore.Handle{}
	if o.BackgroundImage != "" {
		b.handle = b.images.Acquire(context.Background(), o.BackgroundImage)
	}
	b.images.Release(prev.Ref)
}

// style returns the applied background's display style.
func (b *liveBackground) style() appearance.Style {
	o := b.prefs.Get()
	b.track(o)
	b.mu.Lock()
	url := b.handle.URL
	b.mu.Unlock()
	return appearance.BackgroundStyle(url, o.BackgroundEffect, o.BackgroundBlurPx, o.BackgroundGlassStrength, o.BackgroundOpacity)
}

func (b *liveBackground) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.unsub != nil {
		b.unsub()
	}
	b.images.Release(b.handle.Ref)
	b.handle = imagestore.Handle{}
}
