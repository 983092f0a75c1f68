// Package server handles HTTP requests, the websocket map bridge, and
// middleware.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const etagCap = 64

// HandleStory serves the story metadata consumed by the frontend: title,
// attribution, slides, and styling rule.
func (s *ServerContext) HandleStory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	payload := struct {
		Title       string      `json:"title"`
		Attribution string      `json:"attribution,omitempty"`
		Slides      interface{} `json:"slides"`
		Styles      interface{} `json:"styles"`
	}{
		Title:       s.Story.Title,
		Attribution: s.Story.Attribution,
		Slides:      s.Story.Slides,
		Styles:      s.Styles,
	}

	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(payload)
}

// HandleFavicon serves the site favicon.
func (s *ServerContext) HandleFavicon(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/favicon.ico" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(s.Favicon)
}

// HandleIndex serves the main HTML application.
func (s *ServerContext) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && strings.Contains(r.URL.Path, ".") {
		http.NotFound(w, r)
		return
	}

	etag := fmt.Sprintf(`"%x"`, len(s.IndexHTML))

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(s.IndexHTML)
}

// HandleData serves per-slide GeoJSON, addressed by /data/<slide-id>.geojson.
// Slide aliases resolve to the canonical identifier.
func (s *ServerContext) HandleData(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || !strings.HasSuffix(parts[1], ".geojson") {
		http.NotFound(w, r)
		return
	}

	requested := strings.TrimSuffix(parts[1], ".geojson")
	id, ok := s.SlideResolver[requested]
	if !ok {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.Story.DataDir, id+".geojson")
	if !s.serveFile(w, r, path, "application/geo+json") {
		http.NotFound(w, r)
	}
}

// HandleTile serves basemap tiles at /tiles/{z}/{x}/{y}.webp, falling back to
// a cached transparent tile for anything outside the pyramid.
func (s *ServerContext) HandleTile(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	// parts: tiles, z, x, y.webp
	if len(parts) != 4 {
		http.NotFound(w, r)
		return
	}

	z, x, y := parts[1], parts[2], parts[3]

	// numeric path elements only to prevent path probing
	if !isTileSegment(z) || !isTileSegment(x) || !isTileSegment(strings.TrimSuffix(y, ".webp")) {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.BasemapDir, z, x, y)
	if s.serveFile(w, r, path, "image/webp") {
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(s.TransparentTile)
}

func isTileSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// serveFile tries to serve a file from disk with ETag generation.
// It returns true if the file was found and served (or 304).
func (s *ServerContext) serveFile(w http.ResponseWriter, r *http.Request, path string, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	// check If-None-Match (client sent ETag)
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	http.ServeFile(w, r, path)
	return true
}
