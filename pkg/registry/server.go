// Package registry serves a resolved snapshot to an unmodified package
// manager client over the upstream registry's HTTP protocol.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/npmsnap/npmsnap/pkg/snapshot"
)

// Server binds an ephemeral localhost port, reports it through a port file,
// and answers metadata and tarball requests from an immutable snapshot.
// Handlers take no locks: the snapshot never changes after Start.
type Server struct {
	snap     snapshot.Snapshot
	portFile string

	listener net.Listener
	server   *http.Server
}

func New(snap snapshot.Snapshot, portFile string) *Server {
	return &Server{
		snap:     snap,
		portFile: portFile,
	}
}

// Start binds 127.0.0.1:0, writes the bound port to the port file and begins
// serving on a background goroutine. The port file only appears once the
// listener is live; its existence is the startup signal a waiting client
// polls for.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("bind registry listener: %w", err)
	}
	s.listener = ln
	s.server = &http.Server{Handler: s.handler()}

	if err := s.writePortFile(); err != nil {
		ln.Close()
		return fmt.Errorf("write port file: %w", err)
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("Registry server stopped", slog.String("error", err.Error()))
		}
	}()

	slog.Info("Registry serving",
		slog.Int("port", s.Port()),
		slog.String("port_file", s.portFile),
	)
	return nil
}

// Port returns the bound port. Valid only after Start.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Shutdown finishes in-flight responses and tears the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	defer os.Remove(s.portFile)
	return s.server.Shutdown(ctx)
}

// writePortFile publishes the bound port via write-then-rename so a polling
// client never observes a partially written number.
func (s *Server) writePortFile() error {
	if err := os.MkdirAll(filepath.Dir(s.portFile), os.ModePerm); err != nil {
		return fmt.Errorf("create port file directory: %w", err)
	}

	tmp := s.portFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(s.Port())), 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.portFile); err != nil {
		return fmt.Errorf("rename port file: %w", err)
	}
	return nil
}
