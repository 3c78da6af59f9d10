package theme

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/bryanchriswhite/pulsecore/internal/appearance"
	"github.com/bryanchriswhite/pulsecore/internal/imagestore"
	"github.com/bryanchriswhite/pulsecore/internal/kv"
	"github.com/bryanchriswhite/pulsecore/internal/logger"
	"github.com/bryanchriswhite/pulsecore/internal/prefs"
	"github.com/google/uuid"
)

// EditRequest is the input of an edit. Numbers are raw user input.
type EditRequest struct {
	Name          string
	BlurPx        float64
	Effect        appearance.Effect
	GlassStrength float64
}

// Manager owns the theme list and keeps the live background in step with
// it: deleting or editing the applied theme updates the preferences too.
type Manager struct {
	kv     *kv.KV
	prefs  *prefs.Store
	images *imagestore.Store
	newID  func() string

	mu            sync.Mutex
	themes        []Theme
	pendingDelete *Theme
	pendingSave   *prefs.Background
}

func NewManager(store *kv.KV, p *prefs.Store, images *imagestore.Store) *Manager {
	return &Manager{
		kv:     store,
		prefs:  p,
		images: images,
		newID:  uuid.NewString,
	}
}

// Load reads the stored theme list.
func (m *Manager) Load(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if raw, ok := m.kv.Raw(ctx, kv.KeyOverlayThemes); ok {
		m.themes = ParseThemes(raw)
	}
	logger.WithComponent("theme").Debug().Int("count", len(m.themes)).Msg("Themes loaded")
}

// List returns a copy of the themes in slot order.
func (m *Manager) List() []Theme {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.themes)
}

// CanSave reports whether a slot is free.
func (m *Manager) CanSave() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.themes) < MaxThemes
}

// NextAutoName is the name ApplyAndSave would give a new theme.
func (m *Manager) NextAutoName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return AutoName(len(m.themes) + 1)
}

func (m *Manager) persistLocked(ctx context.Context) {
	m.kv.Set(ctx, kv.KeyOverlayThemes, m.themes)
}

// Save appends a theme. It is inert, returning ErrSlotsFull, when every
// slot is taken.
func (m *Manager) Save(ctx context.Context, name string, bg prefs.Background) (Theme, error) {
	name, err := ValidateName(name)
	if err != nil {
		return Theme{}, err
	}
	if bg.Image == "" {
		return Theme{}, ErrNoImage
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.themes) >= MaxThemes {
		return Theme{}, ErrSlotsFull
	}
	t := Theme{
		ID:            m.newID(),
		Name:          name,
		Image:         m.images.Normalize(ctx, bg.Image),
		BlurPx:        appearance.ClampBlurPx(float64(bg.BlurPx)),
		Effect:        appearance.ParseEffect(string(bg.Effect)),
		GlassStrength: appearance.ClampGlassStrength(float64(bg.GlassStrength)),
	}
	next := append(slices.Clone(m.themes), t)
	m.themes = next[:min(len(next), MaxThemes)]
	m.persistLocked(ctx)
	logger.WithComponent("theme").Info().Str("id", t.ID).Str("name", t.Name).Msg("Theme saved")
	return t, nil
}

// BeginSave stages bg for a name prompt.
func (m *Manager) BeginSave(bg prefs.Background) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingSave = &bg
}

// ConfirmSave saves the staged background under name. An invalid name
// keeps the stage so the prompt can be retried.
func (m *Manager) ConfirmSave(ctx context.Context, name string) (Theme, error) {
	m.mu.Lock()
	pending := m.pendingSave
	m.mu.Unlock()
	if pending == nil || pending.Image == "" {
		return Theme{}, ErrNothingStaged
	}
	if _, err := ValidateName(name); err != nil {
		return Theme{}, err
	}
	t, err := m.Save(ctx, name, *pending)
	m.CancelSave()
	return t, err
}

// CancelSave drops the staged background.
func (m *Manager) CancelSave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingSave = nil
}

// RequestDelete stages theme id for deletion.
func (m *Manager) RequestDelete(id string) (Theme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return Theme{}, fmt.Errorf("%w: %s", ErrUnknownTheme, id)
	}
	t := m.themes[i]
	m.pendingDelete = &t
	return t, nil
}

// PendingDelete returns the theme awaiting confirmation, if any.
func (m *Manager) PendingDelete() (Theme, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingDelete == nil {
		return Theme{}, false
	}
	return *m.pendingDelete, true
}

// CancelDelete drops the staged deletion.
func (m *Manager) CancelDelete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingDelete = nil
}

// ConfirmDelete removes the staged theme. If it was the applied
// background, the background is cleared as well.
func (m *Manager) ConfirmDelete(ctx context.Context) error {
	m.mu.Lock()
	target := m.pendingDelete
	m.pendingDelete = nil
	if target == nil {
		m.mu.Unlock()
		return ErrNothingStaged
	}
	wasApplied := m.isAppliedLocked(*target)
	m.themes = slices.DeleteFunc(slices.Clone(m.themes), func(t Theme) bool { return t.ID == target.ID })
	m.persistLocked(ctx)
	m.mu.Unlock()

	if wasApplied {
		m.prefs.Update(ctx, func(p *prefs.Overlay) { p.ClearBackground() })
	}
	m.releaseImage(ctx, target.Image)
	logger.WithComponent("theme").Info().Str("id", target.ID).Bool("applied", wasApplied).Msg("Theme deleted")
	return nil
}

// Edit renames and re-tunes theme id. Blur must be within the dialog range
// [0, 24] and strength within [0, 100]. If the theme was applied, the live
// background follows.
func (m *Manager) Edit(ctx context.Context, id string, req EditRequest) (Theme, error) {
	name, err := ValidateName(req.Name)
	if err != nil {
		return Theme{}, err
	}
	if !inRange(req.BlurPx, 0, appearance.MaxPreviewBlurPx) || !inRange(req.GlassStrength, 0, appearance.MaxGlassStrength) {
		return Theme{}, ErrInvalidParams
	}

	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		return Theme{}, fmt.Errorf("%w: %s", ErrUnknownTheme, id)
	}
	wasApplied := m.isAppliedLocked(m.themes[i])
	next := slices.Clone(m.themes)
	t := next[i]
	t.Name = name
	t.BlurPx = appearance.ClampPreviewBlurPx(req.BlurPx)
	t.Effect = appearance.ParseEffect(string(req.Effect))
	t.GlassStrength = appearance.ClampGlassStrength(req.GlassStrength)
	next[i] = t
	m.themes = next
	m.persistLocked(ctx)
	m.mu.Unlock()

	if wasApplied {
		m.prefs.Update(ctx, func(p *prefs.Overlay) {
			p.BackgroundBlurPx = t.BlurPx
			p.BackgroundEffect = t.Effect
			p.BackgroundGlassStrength = t.GlassStrength
		})
	}
	return t, nil
}

// Apply makes theme id the live background.
func (m *Manager) Apply(ctx context.Context, id string) error {
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTheme, id)
	}
	bg := m.themes[i].Background()
	m.mu.Unlock()

	m.prefs.Update(ctx, func(p *prefs.Overlay) { p.SetBackground(bg) })
	return nil
}

// IsApplied reports whether t matches the live background on image, blur,
// effect and strength.
func (m *Manager) IsApplied(t Theme) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isAppliedLocked(t)
}

func (m *Manager) isAppliedLocked(t Theme) bool {
	return m.prefs.Get().Background() == t.Background()
}

// Replace swaps in a whole theme list, as an import does. Images are
// promoted into the image store and the list is cut to MaxThemes.
func (m *Manager) Replace(ctx context.Context, themes []Theme) {
	next := make([]Theme, 0, min(len(themes), MaxThemes))
	for _, t := range themes {
		if len(next) == MaxThemes {
			break
		}
		t.Image = m.images.Normalize(ctx, t.Image)
		next = append(next, t)
	}

	m.mu.Lock()
	m.themes = next
	m.persistLocked(ctx)
	m.mu.Unlock()
}

func (m *Manager) indexLocked(id string) int {
	return slices.IndexFunc(m.themes, func(t Theme) bool { return t.ID == id })
}

// releaseImage deletes an image row once neither a theme nor the live
// background refers to it.
func (m *Manager) releaseImage(ctx context.Context, ref string) {
	if !imagestore.IsRef(ref) {
		return
	}
	if m.prefs.Get().BackgroundImage == ref {
		return
	}
	m.mu.Lock()
	shared := slices.ContainsFunc(m.themes, func(t Theme) bool { return t.Image == ref })
	m.mu.Unlock()
	if !shared {
		m.images.Delete(ctx, ref)
	}
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
