package handler

import (
	"net/http"
	"path/filepath"
)

// Pages serves the dashboard's static HTML. Access control happens in the
// gatekeeper, so every page here is served as-is.
type Pages struct {
	dir string
}

// NewPages serves files from dir
func NewPages(dir string) *Pages {
	return &Pages{dir: dir}
}

// Serve returns a handler for one page file
func (p *Pages) Serve(name string) http.HandlerFunc {
	path := filepath.Join(p.dir, name)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, path)
	}
}

// Assets serves /static/*
func (p *Pages) Assets() http.Handler {
	return http.StripPrefix("/static/", http.FileServer(http.Dir(p.dir)))
}
