package window

import (
	"context"
	"math"

	"github.com/bryanchriswhite/pulsecore/internal/host"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/schema"
)

// ParsePosition reads a saved {x, y} record. Both coordinates must be
// finite numbers; they are rounded to whole pixels.
func ParsePosition(obj schema.Object) (host.Position, bool) {
	var x, y float64
	if !obj.Number("x", &x) || !obj.Number("y", &y) {
		return host.Position{}, false
	}
	return host.Position{X: int(math.Round(x)), Y: int(math.Round(y))}, true
}

// LoadPosition reads the position saved under key.
func LoadPosition(ctx context.Context, store *kv.KV, key string) (host.Position, bool) {
	raw, ok := store.Raw(ctx, key)
	if !ok {
		return host.Position{}, false
	}
	obj, err := schema.Parse(raw)
	if err != nil {
		return host.Position{}, false
	}
	return ParsePosition(obj)
}
