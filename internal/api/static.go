package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yegors/airfield-ops/pkg/logger"
)

// StaticFileHandler serves the ops screens. Paths that match no file fall
// back to index.html so client side routes survive a reload.
type StaticFileHandler struct {
	root   string
	logger *logger.Logger
}

// NewStaticFileHandler creates a new static file handler
func NewStaticFileHandler(dir string, log *logger.Logger) *StaticFileHandler {
	root, err := filepath.Abs(dir)
	if err != nil {
		root = filepath.Clean(dir)
	}
	return &StaticFileHandler{
		root:   root,
		logger: log.Named("static-handler"),
	}
}

// ServeHTTP serves a file below the root directory
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(filepath.Clean("/"+r.URL.Path), "/")
	if strings.HasPrefix(rel, "api/") {
		WriteError(w, http.StatusNotFound, "no such endpoint")
		return
	}

	full := filepath.Join(h.root, rel)
	if full != h.root && !strings.HasPrefix(full, h.root+string(filepath.Separator)) {
		h.logger.Warn("Rejected path outside static root", logger.String("path", r.URL.Path))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(full)
	switch {
	case err == nil && info.IsDir():
		full = filepath.Join(full, "index.html")
	case os.IsNotExist(err):
		full = filepath.Join(h.root, "index.html")
	case err != nil:
		h.logger.Error("Failed to stat static file", logger.Error(err), logger.String("path", full))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if _, err := os.Stat(full); err != nil {
		http.NotFound(w, r)
		return
	}

	// Screens are redeployed in place, so never let browsers cache them
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	http.ServeFile(w, r, full)
}
