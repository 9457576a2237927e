package registry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
)

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.route)
	return mux
}

// route dispatches the two request shapes an install issues: metadata
// lookups ("/name", "/@org/name", "/@org%2fname") and tarball fetches
// ("/name/-/name-1.0.0.tgz").
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeNotFound(w)
		return
	}

	rawPath := strings.TrimPrefix(r.URL.EscapedPath(), "/")
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		writeNotFound(w)
		return
	}

	if name, file, found := strings.Cut(path, "/-/"); found {
		s.serveTarball(w, r, name, file)
		return
	}
	s.serveMetadata(w, r, path)
}

func (s *Server) serveMetadata(w http.ResponseWriter, r *http.Request, name string) {
	versions := s.snap.Versions(name)
	if len(versions) == 0 {
		slog.Debug("Metadata miss", slog.String("package", name))
		writeNotFound(w)
		return
	}

	baseURL := "http://" + r.Host
	doc := buildPackument(baseURL, name, versions)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		slog.Error("Encode packument",
			slog.String("package", name),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) serveTarball(w http.ResponseWriter, r *http.Request, name, file string) {
	version, ok := versionFromTarballName(name, file)
	if !ok {
		writeNotFound(w)
		return
	}

	tarball, ok := s.snap.Lookup(name, version)
	if !ok {
		slog.Debug("Tarball miss",
			slog.String("package", name),
			slog.String("version", version),
		)
		writeNotFound(w)
		return
	}

	f, err := os.Open(tarball)
	if err != nil {
		slog.Error("Open snapshot artifact",
			slog.String("tarball", tarball),
			slog.String("error", err.Error()),
		)
		http.Error(w, `{"error":"Internal error"}`, http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, `{"error":"Internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, file, info.ModTime(), f)
}

// versionFromTarballName recovers the version from "<base>-<version>.tgz".
func versionFromTarballName(name, file string) (string, bool) {
	base := tarballBase(name) + "-"
	if !strings.HasPrefix(file, base) || !strings.HasSuffix(file, ".tgz") {
		return "", false
	}
	version := strings.TrimSuffix(strings.TrimPrefix(file, base), ".tgz")
	if version == "" {
		return "", false
	}
	return version, true
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":"Not found"}`))
}
