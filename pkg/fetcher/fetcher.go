// Package fetcher turns closure members into verified, content-addressed
// tarball artifacts ready to be served by the registry.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/npmsnap/npmsnap/pkg/filesys"
	"github.com/npmsnap/npmsnap/pkg/integrity"
	"github.com/npmsnap/npmsnap/pkg/lockfile"
)

const defaultParallelism = 8

// ArtifactEntry is one verified, repackaged artifact.
type ArtifactEntry struct {
	Name        string
	Version     string
	URL         string
	Algorithm   string
	Digest      string
	TarballPath string
	// TreeHash is the digest of the normalized package tree; repackaging
	// the same content must reproduce it.
	TreeHash string
}

type Fetcher struct {
	client      *http.Client
	cacheDir    string
	parallelism int

	// resolveGroup de-duplicates concurrent work on the same identity key
	// when several lock files reference the identical artifact.
	resolveGroup sync.Map
}

type Option func(*Fetcher)

func WithClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

func WithCacheDir(dir string) Option {
	return func(f *Fetcher) {
		f.cacheDir = dir
	}
}

func WithParallelism(n int) Option {
	return func(f *Fetcher) {
		f.parallelism = n
	}
}

func New(options ...Option) (*Fetcher, error) {
	f := &Fetcher{
		client:      &http.Client{Timeout: 5 * time.Minute},
		parallelism: defaultParallelism,
	}
	for _, o := range options {
		o(f)
	}

	if f.cacheDir == "" {
		cacheDir, err := filesys.GetArtifactsCacheDir()
		if err != nil {
			return nil, fmt.Errorf("get artifacts cache dir: %w", err)
		}
		f.cacheDir = cacheDir
	} else if err := os.MkdirAll(f.cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("create artifacts cache dir: %w", err)
	}
	return f, nil
}

// Resolve fetches, verifies and repackages every closure member carrying a
// resolved URL. Members without one are skipped silently. All integrity
// strings are parsed up front, so an unknown algorithm aborts before any
// network traffic instead of leaving a partially resolved set behind.
func (f *Fetcher) Resolve(ctx context.Context, members []*lockfile.Node) ([]ArtifactEntry, error) {
	type job struct {
		node   *lockfile.Node
		digest integrity.Digest
	}

	var jobs []job
	for _, node := range members {
		if node.Resolved == "" {
			slog.Debug("Skipping dependency without resolved URL",
				slog.String("package", node.Name),
				slog.String("version", node.Version),
			)
			continue
		}
		digest, err := integrity.Parse(node.Integrity)
		if err != nil {
			return nil, fmt.Errorf("package %s@%s: %w", node.Name, node.Version, err)
		}
		jobs = append(jobs, job{node: node, digest: digest})
	}

	entries := make([]ArtifactEntry, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallelism)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			entry, err := f.resolveOne(gctx, j.node, j.digest)
			if err != nil {
				return fmt.Errorf("resolve %s@%s: %w", j.node.Name, j.node.Version, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (f *Fetcher) resolveOne(ctx context.Context, node *lockfile.Node, digest integrity.Digest) (ArtifactEntry, error) {
	key := filesys.CacheKey(node.Name, node.Version, node.Integrity)
	target := filepath.Join(f.cacheDir, key+".tgz")
	hashFile := filepath.Join(f.cacheDir, key+".hash")

	mu, _ := f.resolveGroup.LoadOrStore(key, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	entry := ArtifactEntry{
		Name:        node.Name,
		Version:     node.Version,
		URL:         node.Resolved,
		Algorithm:   digest.Algorithm,
		Digest:      digest.String(),
		TarballPath: target,
	}

	if _, err := os.Stat(target); err == nil {
		// The tree hash is recorded alongside the tarball; a cache entry
		// missing it predates this fetcher and is resolved from scratch.
		if hash, err := os.ReadFile(hashFile); err == nil {
			entry.TreeHash = string(hash)
			slog.Debug("Artifact cache hit",
				slog.String("package", node.Name),
				slog.String("version", node.Version),
			)
			return entry, nil
		}
	}

	data, err := f.fetch(ctx, node.Resolved)
	if err != nil {
		return ArtifactEntry{}, fmt.Errorf("fetch %s: %w", node.Resolved, err)
	}

	if err := digest.Verify(data); err != nil {
		return ArtifactEntry{}, fmt.Errorf("verify %s: %w", node.Resolved, err)
	}

	tmpDir, err := os.MkdirTemp(f.cacheDir, ".npmsnap-")
	if err != nil {
		return ArtifactEntry{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	fetched := filepath.Join(tmpDir, "fetched.tgz")
	if err := os.WriteFile(fetched, data, 0644); err != nil {
		return ArtifactEntry{}, fmt.Errorf("write fetched tarball: %w", err)
	}

	repacked := filepath.Join(tmpDir, "repacked.tgz")
	treeHash, err := Repack(fetched, repacked)
	if err != nil {
		return ArtifactEntry{}, fmt.Errorf("repack: %w", err)
	}
	entry.TreeHash = treeHash

	if err := os.WriteFile(hashFile, []byte(treeHash), 0644); err != nil {
		return ArtifactEntry{}, fmt.Errorf("record tree hash: %w", err)
	}
	if err := filesys.ReplaceWithMove(repacked, target); err != nil {
		return ArtifactEntry{}, fmt.Errorf("move artifact into cache: %w", err)
	}

	slog.Info("Resolved artifact",
		slog.String("package", node.Name),
		slog.String("version", node.Version),
		slog.String("tarball", target),
	)
	return entry, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
