package fetcher

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/npmsnap/npmsnap/pkg/filesys"
	"github.com/npmsnap/npmsnap/pkg/lockfile"
)

type tarEntry struct {
	name string
	mode int64
	body string
}

func buildTarball(t *testing.T, entries []tarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     e.name,
			Mode:     e.mode,
			Size:     int64(len(e.body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func sha512Integrity(data []byte) string {
	sum := sha512.Sum512(data)
	return "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
}

func upstreamFixture(t *testing.T) ([]byte, string) {
	t.Helper()
	tb := buildTarball(t, []tarEntry{
		{name: "package/package.json", mode: 0644, body: `{
  "name": "demo",
  "version": "1.0.0",
  "scripts": { "test": "jest", "build": "tsc -p ." },
  "bin": { "demo": "bin/cli.js" }
}`},
		{name: "package/index.js", mode: 0644, body: "module.exports = 42;\n"},
		{name: "package/bin/cli.js", mode: 0755, body: "#!/usr/local/bin/node\nconsole.log('hi');\n"},
	})
	return tb, sha512Integrity(tb)
}

func newUpstream(t *testing.T, tarballs map[string][]byte, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		data, ok := tarballs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f, err := New(WithCacheDir(t.TempDir()), WithParallelism(4))
	require.NoError(t, err)
	return f
}

func Test_Resolve(t *testing.T) {
	tb, integrityStr := upstreamFixture(t)
	upstream := newUpstream(t, map[string][]byte{"/demo-1.0.0.tgz": tb}, nil)

	f := testFetcher(t)
	entries, err := f.Resolve(context.Background(), []*lockfile.Node{{
		Name:      "demo",
		Version:   "1.0.0",
		Integrity: integrityStr,
		Resolved:  upstream.URL + "/demo-1.0.0.tgz",
	}})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	require.Equal(t, "demo", entry.Name)
	require.Equal(t, "sha512", entry.Algorithm)
	require.FileExists(t, entry.TarballPath)

	// Unpack the normalized artifact and check the rewrites took.
	unpacked := t.TempDir()
	require.NoError(t, filesys.SecureUntarGz(entry.TarballPath, unpacked))

	cli, err := os.ReadFile(filepath.Join(unpacked, "package", "bin", "cli.js"))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(cli, []byte("#!/usr/bin/env node\n")))

	pkgJSON, err := os.ReadFile(filepath.Join(unpacked, "package", "package.json"))
	require.NoError(t, err)
	require.Contains(t, string(pkgJSON), `"test": "npx --no-install jest"`)
	require.Contains(t, string(pkgJSON), `"build": "npx --no-install tsc -p ."`)
}

func Test_Resolve_SkipWithoutURL(t *testing.T) {
	tb, integrityStr := upstreamFixture(t)
	upstream := newUpstream(t, map[string][]byte{"/demo-1.0.0.tgz": tb}, nil)

	f := testFetcher(t)
	entries, err := f.Resolve(context.Background(), []*lockfile.Node{
		{Name: "workspace-pkg", Version: "0.0.1"},
		{Name: "demo", Version: "1.0.0", Integrity: integrityStr, Resolved: upstream.URL + "/demo-1.0.0.tgz"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "demo", entries[0].Name)
}

func Test_Resolve_UnknownAlgorithmAborts(t *testing.T) {
	tb, integrityStr := upstreamFixture(t)
	var hits atomic.Int64
	upstream := newUpstream(t, map[string][]byte{"/demo-1.0.0.tgz": tb}, &hits)

	f := testFetcher(t)
	_, err := f.Resolve(context.Background(), []*lockfile.Node{
		{Name: "demo", Version: "1.0.0", Integrity: integrityStr, Resolved: upstream.URL + "/demo-1.0.0.tgz"},
		{Name: "evil", Version: "1.0.0", Integrity: "sha256-AAAA", Resolved: upstream.URL + "/evil-1.0.0.tgz"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "evil@1.0.0")
	// The abort happens before any fetch; nothing was partially resolved.
	require.Zero(t, hits.Load())
}

func Test_Resolve_DigestMismatch(t *testing.T) {
	tb, _ := upstreamFixture(t)
	upstream := newUpstream(t, map[string][]byte{"/demo-1.0.0.tgz": tb}, nil)

	f := testFetcher(t)
	_, err := f.Resolve(context.Background(), []*lockfile.Node{{
		Name:      "demo",
		Version:   "1.0.0",
		Integrity: sha512Integrity([]byte("different content")),
		Resolved:  upstream.URL + "/demo-1.0.0.tgz",
	}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match")
}

func Test_Resolve_CacheHit(t *testing.T) {
	tb, integrityStr := upstreamFixture(t)
	var hits atomic.Int64
	upstream := newUpstream(t, map[string][]byte{"/demo-1.0.0.tgz": tb}, &hits)

	f := testFetcher(t)
	node := &lockfile.Node{
		Name:      "demo",
		Version:   "1.0.0",
		Integrity: integrityStr,
		Resolved:  upstream.URL + "/demo-1.0.0.tgz",
	}

	first, err := f.Resolve(context.Background(), []*lockfile.Node{node})
	require.NoError(t, err)
	second, err := f.Resolve(context.Background(), []*lockfile.Node{node})
	require.NoError(t, err)
	require.Equal(t, int64(1), hits.Load())

	// A cached artifact carries the same fields as a fresh one, tree
	// hash included.
	require.NotEmpty(t, first[0].TreeHash)
	require.Equal(t, first[0], second[0])
}

func Test_Resolve_DuplicateIdentity(t *testing.T) {
	tb, integrityStr := upstreamFixture(t)
	var hits atomic.Int64
	upstream := newUpstream(t, map[string][]byte{"/demo-1.0.0.tgz": tb}, &hits)

	f := testFetcher(t)
	node := &lockfile.Node{
		Name:      "demo",
		Version:   "1.0.0",
		Integrity: integrityStr,
		Resolved:  upstream.URL + "/demo-1.0.0.tgz",
	}

	// Two lock files naming the identical artifact produce one fetch.
	entries, err := f.Resolve(context.Background(), []*lockfile.Node{node, node})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(1), hits.Load())
	require.Equal(t, entries[0], entries[1])
}
