package server

import (
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/examrender/internal/assets"
	"github.com/ziadkadry99/examrender/internal/engine"
)

//go:embed index.html
var indexHTML []byte

type renderRequest struct {
	Content string `json:"content"`
}

type renderResponse struct {
	HTML     string `json:"html"`
	Fallback bool   `json:"fallback,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		// chi matched against the escaped path.
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
	}
	full, err := s.images.Path(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", assets.MediaType(name))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusOK, renderResponse{})
		return
	}

	out, err := s.renderer.Render(r.Context(), req.Content)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, renderResponse{HTML: out})
	case errors.Is(err, engine.ErrEngineFailure):
		writeJSON(w, http.StatusOK, renderResponse{HTML: out, Fallback: true})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
