package imagestore

import (
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BlobPathPrefix is where Blobs serves its transient display URLs.
const BlobPathPrefix = "/blob/"

// URLMinter turns decoded image bytes into a short-lived display URL.
type URLMinter interface {
	Create(mime string, data []byte) string
	Revoke(url string)
}

type blob struct {
	mime string
	data []byte
}

// Blobs is an in-memory URLMinter whose URLs are served by its own handler.
type Blobs struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

func NewBlobs() *Blobs {
	return &Blobs{blobs: make(map[string]blob)}
}

func (b *Blobs) Create(mime string, data []byte) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.blobs[id] = blob{mime: mime, data: data}
	b.mu.Unlock()
	return BlobPathPrefix + id
}

func (b *Blobs) Revoke(url string) {
	id := strings.TrimPrefix(url, BlobPathPrefix)
	b.mu.Lock()
	delete(b.blobs, id)
	b.mu.Unlock()
}

// Len reports how many URLs are live.
func (b *Blobs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}

// ServeHTTP serves GET /blob/{id}.
func (b *Blobs) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, BlobPathPrefix)
	b.mu.RLock()
	bl, ok := b.blobs[id]
	b.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", bl.mime)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(bl.data)
}
