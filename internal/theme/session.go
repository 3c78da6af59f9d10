package theme

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/appearance"
	"github.com/bryanchriswhite/pulsecore/internal/imagestore"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// FallbackAspect is used when the overlay box is unknown.
	FallbackAspect = 1.6
	// MinCropEdge is the smallest crop width or height in canvas pixels.
	MinCropEdge = 40
	// InitialCropFraction of the fitted image the crop starts at.
	InitialCropFraction = 0.8

	MaxOutputWidth  = 1400
	MaxOutputHeight = 900
	JPEGQuality     = 85

	scrimAlpha = 0.45
)

var (
	ErrSessionClosed    = errors.New("theme: background dialog is closed")
	ErrUnsupportedImage = errors.New("theme: not an image")
)

// Phase of the background dialog.
type Phase int

const (
	Closed Phase = iota
	Open
	Loaded
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Loaded:
		return "loaded"
	default:
		return "closed"
	}
}

// DragMode of an active pointer interaction.
type DragMode int

const (
	DragIdle DragMode = iota
	DragMove
	DragResize
)

// Rect is a rectangle in canvas pixels.
type Rect struct {
	X, Y, W, H float64
}

// Fit places the loaded image on the canvas.
type Fit struct {
	Scale            float64
	OffsetX, OffsetY float64
	DrawW, DrawH     float64
	CanvasW, CanvasH int
}

type dragState struct {
	mode             DragMode
	startX, startY   float64
	originX, originY float64
}

// Session is the background dialog: load an image, crop it at the
// overlay's aspect ratio, tune the effect, and apply or save the result.
// All transient state is discarded on Close.
type Session struct {
	prefs  *prefs.Store
	themes *Manager
	images *imagestore.Store

	mu       sync.Mutex
	phase    Phase
	aspect   float64
	img      image.Image
	fit      Fit
	crop     Rect
	drag     dragState
	effect   appearance.Effect
	blurPx   int
	strength int
}

func NewSession(p *prefs.Store, themes *Manager, images *imagestore.Store) *Session {
	return &Session{prefs: p, themes: themes, images: images}
}

// Open starts a session. overlayW and overlayH are the live overlay box;
// zero values fall back to a 1.6 aspect ratio. Effect parameters are seeded
// from the current background, or from dialog defaults when there is none.
func (s *Session) Open(overlayW, overlayH float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.phase = Open
	s.aspect = FallbackAspect
	if overlayW > 0 && overlayH > 0 {
		s.aspect = overlayW / overlayH
	}

	cur := s.prefs.Get()
	if cur.BackgroundImage != "" {
		bg := cur.Background()
		s.effect, s.blurPx, s.strength = bg.Effect, bg.BlurPx, bg.GlassStrength
	} else {
		s.effect = appearance.Gaussian
		s.blurPx = appearance.DefaultDialogBlurPx
		s.strength = appearance.DefaultGlassStrength
	}
}

// Close ends the session without touching global state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.phase = Closed
	s.img = nil
	s.fit = Fit{}
	s.crop = Rect{}
	s.drag = dragState{}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Aspect is the locked crop aspect ratio.
func (s *Session) Aspect() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aspect
}

// SetEffect switches the effect. Liquid glass raises blur to its floor.
func (s *Session) SetEffect(e appearance.Effect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effect = appearance.ParseEffect(string(e))
	if s.effect == appearance.LiquidGlass && s.blurPx < appearance.MinLiquidGlassBlurPx {
		s.blurPx = appearance.MinLiquidGlassBlurPx
	}
}

func (s *Session) SetBlurPx(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blurPx = appearance.ClampBlurPx(v)
}

func (s *Session) SetGlassStrength(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strength = appearance.ClampGlassStrength(v)
}

// Params returns the effect parameters being edited.
func (s *Session) Params() (appearance.Effect, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effect, s.blurPx, s.strength
}

// Load decodes an image file into the session and fits it onto a canvas of
// canvasW x canvasH pixels. Only image MIME types are accepted.
func (s *Session) Load(r io.Reader, mime string, canvasW, canvasH int) error {
	if !strings.HasPrefix(mime, "image/") {
		return fmt.Errorf("%w: %s", ErrUnsupportedImage, mime)
	}
	img, format, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Closed {
		return ErrSessionClosed
	}
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}
	s.img = img
	s.phase = Loaded
	s.drag = dragState{}

	cw, ch := max(1, canvasW), max(1, canvasH)
	iw, ih := float64(b.Dx()), float64(b.Dy())
	scale := math.Min(float64(cw)/iw, float64(ch)/ih)
	s.fit = Fit{
		Scale:   scale,
		DrawW:   iw * scale,
		DrawH:   ih * scale,
		CanvasW: cw,
		CanvasH: ch,
	}
	s.fit.OffsetX = (float64(cw) - s.fit.DrawW) / 2
	s.fit.OffsetY = (float64(ch) - s.fit.DrawH) / 2
	s.resetCropLocked()

	logger.WithComponent("theme").Debug().
		Str("format", format).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Float64("scale", scale).
		Msg("Background image loaded")
	return nil
}

// resetCropLocked centers a crop covering 80% of the fitted image.
func (s *Session) resetCropLocked() {
	w := s.fit.DrawW * InitialCropFraction
	h := w / s.aspect
	if h > s.fit.DrawH*InitialCropFraction {
		h = s.fit.DrawH * InitialCropFraction
		w = h * s.aspect
	}
	w = math.Max(MinCropEdge, w)
	w = math.Min(w, math.Min(s.fit.DrawW, s.fit.DrawH*s.aspect))
	h = w / s.aspect
	s.crop = Rect{
		X: s.fit.OffsetX + (s.fit.DrawW-w)/2,
		Y: s.fit.OffsetY + (s.fit.DrawH-h)/2,
		W: w,
		H: h,
	}
}

// Crop returns the crop rectangle in canvas pixels.
func (s *Session) Crop() Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crop
}

// Fit returns the image placement.
func (s *Session) Fit() Fit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fit
}

// DragMode returns the active drag mode.
func (s *Session) DragMode() DragMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drag.mode
}

// PointerDown starts a move inside the crop or a resize outside it.
func (s *Session) PointerDown(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Loaded {
		return
	}
	inside := x >= s.crop.X && x <= s.crop.X+s.crop.W && y >= s.crop.Y && y <= s.crop.Y+s.crop.H
	s.drag = dragState{
		mode:    DragResize,
		startX:  x,
		startY:  y,
		originX: s.crop.X,
		originY: s.crop.Y,
	}
	if inside {
		s.drag.mode = DragMove
	}
}

// PointerMove updates the crop for the active drag.
func (s *Session) PointerMove(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.fit
	switch s.drag.mode {
	case DragMove:
		s.crop.X = clamp(s.drag.originX+(x-s.drag.startX), f.OffsetX, f.OffsetX+f.DrawW-s.crop.W)
		s.crop.Y = clamp(s.drag.originY+(y-s.drag.startY), f.OffsetY, f.OffsetY+f.DrawH-s.crop.H)
	case DragResize:
		dx, dy := x-s.drag.startX, y-s.drag.startY
		w := math.Max(MinCropEdge, math.Abs(dx))
		// The box may never outgrow the fitted image at the locked ratio.
		w = math.Min(w, math.Min(f.DrawW, f.DrawH*s.aspect))
		h := w / s.aspect

		nx, ny := s.drag.startX, s.drag.startY
		if dx < 0 {
			nx -= w
		}
		if dy < 0 {
			ny -= h
		}
		s.crop = Rect{
			X: clamp(nx, f.OffsetX, f.OffsetX+f.DrawW-w),
			Y: clamp(ny, f.OffsetY, f.OffsetY+f.DrawH-h),
			W: w,
			H: h,
		}
	}
}

// PointerUp ends any drag, moved or not.
func (s *Session) PointerUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drag = dragState{}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// Render draws the live preview: the filtered image fitted on the canvas,
// the gloss layer for liquid glass, a scrim outside the crop and the crop
// border. It returns nil until an image is loaded.
func (s *Session) Render() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Loaded {
		return nil
	}
	f := s.fit
	canvas := image.NewRGBA(image.Rect(0, 0, f.CanvasW, f.CanvasH))

	drawRect := image.Rect(
		int(math.Round(f.OffsetX)), int(math.Round(f.OffsetY)),
		int(math.Round(f.OffsetX+f.DrawW)), int(math.Round(f.OffsetY+f.DrawH)),
	)
	if !drawRect.Empty() {
		scaled := image.NewNRGBA(image.Rect(0, 0, drawRect.Dx(), drawRect.Dy()))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), s.img, s.img.Bounds(), draw.Src, nil)
		params := appearance.Derive(s.effect, appearance.ClampPreviewBlurPx(float64(s.blurPx)), s.strength)
		filtered := appearance.ApplyFilter(scaled, params)
		draw.Draw(canvas, drawRect, filtered, image.Point{}, draw.Over)
		if params.Gloss {
			appearance.DrawGloss(canvas, drawRect, s.strength)
		}
	}

	cropRect := image.Rect(
		int(math.Round(s.crop.X)), int(math.Round(s.crop.Y)),
		int(math.Round(s.crop.X+s.crop.W)), int(math.Round(s.crop.Y+s.crop.H)),
	)
	drawScrim(canvas, cropRect)
	drawBorder(canvas, cropRect, color.NRGBA{R: 0, G: 242, B: 255, A: 230})
	return canvas
}

// drawScrim darkens everything outside hole.
func drawScrim(dst *image.RGBA, hole image.Rectangle) {
	scrim := image.NewUniform(color.NRGBA{A: uint8(math.Round(scrimAlpha * 255))})
	b := dst.Bounds()
	hole = hole.Intersect(b)
	bands := []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, hole.Min.Y),
		image.Rect(b.Min.X, hole.Max.Y, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, hole.Min.Y, hole.Min.X, hole.Max.Y),
		image.Rect(hole.Max.X, hole.Min.Y, b.Max.X, hole.Max.Y),
	}
	if hole.Empty() {
		bands = []image.Rectangle{b}
	}
	for _, r := range bands {
		if !r.Empty() {
			draw.Draw(dst, r, scrim, image.Point{}, draw.Over)
		}
	}
}

// drawBorder strokes a one pixel outline of r.
func drawBorder(dst *image.RGBA, r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1),
		image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y),
		image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Over)
	}
}

// Finalize crops the source image, downsamples it to fit 1400x900 (never
// upsampling) and encodes it as a quality 85 JPEG data URL. It reports
// false when no image is loaded.
func (s *Session) Finalize() (string, bool) {
	s.mu.Lock()
	img, f, crop := s.img, s.fit, s.crop
	loaded := s.phase == Loaded
	s.mu.Unlock()
	if !loaded || img == nil || f.Scale <= 0 {
		return "", false
	}

	b := img.Bounds()
	iw, ih := float64(b.Dx()), float64(b.Dy())
	cx := clamp((crop.X-f.OffsetX)/f.Scale, 0, iw-1)
	cy := clamp((crop.Y-f.OffsetY)/f.Scale, 0, ih-1)
	cw := clamp(crop.W/f.Scale, 1, iw-cx)
	chh := clamp(crop.H/f.Scale, 1, ih-cy)

	outW := max(1, int(math.Round(cw)))
	outH := max(1, int(math.Round(chh)))
	scale := math.Min(1, math.Min(MaxOutputWidth/float64(outW), MaxOutputHeight/float64(outH)))
	if scale < 1 {
		outW = max(1, int(math.Round(float64(outW)*scale)))
		outH = max(1, int(math.Round(float64(outH)*scale)))
	}

	src := image.Rect(
		b.Min.X+int(math.Round(cx)), b.Min.Y+int(math.Round(cy)),
		b.Min.X+int(math.Round(cx+cw)), b.Min.Y+int(math.Round(cy+chh)),
	).Intersect(b)
	if src.Empty() {
		return "", false
	}

	out := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.CatmullRom.Scale(out, out.Bounds(), img, src, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		logger.WithComponent("theme").Error().Err(err).Msg("Failed to encode cropped background")
		return "", false
	}
	return imagestore.EncodeDataURL("image/jpeg", buf.Bytes()), true
}

// background finalizes the crop into a stored token with the edited
// parameters.
func (s *Session) background(ctx context.Context) (prefs.Background, bool) {
	dataURL, ok := s.Finalize()
	if !ok {
		return prefs.Background{}, false
	}
	effect, blur, strength := s.Params()
	return prefs.Background{
		Image:         s.images.Normalize(ctx, dataURL),
		BlurPx:        appearance.ClampBlurPx(float64(blur)),
		Effect:        effect,
		GlassStrength: appearance.ClampGlassStrength(float64(strength)),
	}, true
}

// Apply makes the crop the live background and closes the session.
func (s *Session) Apply(ctx context.Context) bool {
	bg, ok := s.background(ctx)
	if !ok {
		return false
	}
	s.prefs.Update(ctx, func(p *prefs.Overlay) { p.SetBackground(bg) })
	s.Close()
	return true
}

// ApplyAndSave applies the crop and saves it as an auto-named theme. It is
// inert when every theme slot is taken.
func (s *Session) ApplyAndSave(ctx context.Context) (Theme, bool) {
	if !s.themes.CanSave() {
		return Theme{}, false
	}
	bg, ok := s.background(ctx)
	if !ok {
		return Theme{}, false
	}
	s.prefs.Update(ctx, func(p *prefs.Overlay) { p.SetBackground(bg) })
	s.Close()

	t, err := s.themes.Save(ctx, s.themes.NextAutoName(), bg)
	if err != nil {
		return Theme{}, false
	}
	return t, true
}

// StageTheme finalizes the crop and hands it to the name prompt.
func (s *Session) StageTheme(ctx context.Context) bool {
	bg, ok := s.background(ctx)
	if !ok {
		return false
	}
	s.themes.BeginSave(bg)
	return true
}
