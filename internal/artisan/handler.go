package artisan

import (
	"context"
	"net/http"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/httpjson"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/settings"
)

// SettingsLoader provides the default aspect ratio and style
type SettingsLoader interface {
	Load(ctx context.Context) (settings.Settings, error)
}

// Handler exposes the generator over HTTP
type Handler struct {
	gen      *Generator
	settings SettingsLoader
}

func NewHandler(gen *Generator, s SettingsLoader) *Handler {
	return &Handler{gen: gen, settings: s}
}

// Generate serves POST /api/artisan/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var sel Selection
	if err := httpjson.Decode(r, &sel); err != nil {
		httpjson.Error(w, err)
		return
	}

	s, err := h.settings.Load(r.Context())
	if err != nil {
		httpjson.Error(w, err)
		return
	}

	req, err := Assemble(sel, Defaults{AspectRatio: s.DefaultAspectRatio, Style: s.DefaultStyle})
	if err != nil {
		httpjson.Error(w, err)
		return
	}

	result, err := h.gen.Generate(r.Context(), req)
	if err != nil {
		httpjson.Error(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, result)
}
