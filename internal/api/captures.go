package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/interval.report/internal/httputil"
	"github.com/banshee-data/interval.report/internal/monitoring"
	"github.com/banshee-data/interval.report/internal/security"
)

type captureFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.captureDir == "" {
		httputil.ServiceUnavailable(w, "raw capture disabled")
		return
	}

	// A capture directory that was configured but never written to is an
	// empty listing, not an error.
	files := []captureFile{}
	if s.fs.Exists(s.captureDir) {
		entries, err := s.fs.ReadDir(s.captureDir)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to list captures: %v", err))
			return
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			files = append(files, captureFile{
				Name:     entry.Name(),
				Size:     info.Size(),
				Modified: info.ModTime(),
			})
		}
	}
	httputil.WriteJSONOK(w, files)
}

func (s *Server) downloadCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.captureDir == "" {
		httputil.ServiceUnavailable(w, "raw capture disabled")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/captures/")
	if name == "" || strings.Contains(name, "/") {
		httputil.BadRequest(w, "Invalid capture file name")
		return
	}

	path := filepath.Join(s.captureDir, name)
	if err := security.ValidatePathWithinDirectory(path, s.captureDir); err != nil {
		httputil.BadRequest(w, "Invalid capture file name")
		return
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("Capture file %s not found", name))
		return
	}
	f, err := s.fs.Open(path)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to open capture file: %v", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if _, err := io.Copy(w, f); err != nil {
		monitoring.Logf("[api] capture download aborted: %v", err)
	}
}
