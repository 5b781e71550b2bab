package artifacts

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	store *Store
}

func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// Serve streams a stored artifact by filename.
func (h *Handlers) Serve(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" {
		http.NotFound(w, r)
		return
	}

	content, err := h.store.Get(filename)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	contentType := http.DetectContentType(content)
	if strings.HasSuffix(filename, ".png") {
		contentType = "image/png"
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}
