package resolvecmd

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/npmsnap/npmsnap/pkg/snapshot"
)

func buildPackageTarball(t *testing.T, name, version string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	body := fmt.Sprintf(`{"name":%q,"version":%q}`, name, version)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "package/package.json",
		Mode:     0644,
		Size:     int64(len(body)),
		Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func integrityOf(data []byte) string {
	sum := sha512.Sum512(data)
	return "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
}

func Test_Resolve_EndToEnd(t *testing.T) {
	tarballs := map[string][]byte{}
	for _, pkg := range []struct{ name, version string }{
		{"left", "1.0.0"},
		{"right", "1.0.0"},
		{"shared", "2.0.0"},
	} {
		path := fmt.Sprintf("/%s/-/%s-%s.tgz", pkg.name, pkg.name, pkg.version)
		tarballs[path] = buildPackageTarball(t, pkg.name, pkg.version)
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := tarballs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	defer upstream.Close()

	sharedIntegrity := integrityOf(tarballs["/shared/-/shared-2.0.0.tgz"])
	lockDoc := fmt.Sprintf(`{
	  "name": "app",
	  "version": "1.0.0",
	  "lockfileVersion": 3,
	  "packages": {
	    "": { "version": "1.0.0", "dependencies": { "left": "^1.0.0", "right": "^1.0.0" } },
	    "node_modules/left": {
	      "version": "1.0.0",
	      "resolved": "%[1]s/left/-/left-1.0.0.tgz",
	      "integrity": %[2]q,
	      "dependencies": { "shared": "^2.0.0" }
	    },
	    "node_modules/right": {
	      "version": "1.0.0",
	      "resolved": "%[1]s/right/-/right-1.0.0.tgz",
	      "integrity": %[3]q,
	      "dependencies": { "shared": "^2.0.0" }
	    },
	    "node_modules/shared": {
	      "version": "2.0.0",
	      "resolved": "%[1]s/shared/-/shared-2.0.0.tgz",
	      "integrity": %[4]q
	    }
	  }
	}`,
		upstream.URL,
		integrityOf(tarballs["/left/-/left-1.0.0.tgz"]),
		integrityOf(tarballs["/right/-/right-1.0.0.tgz"]),
		sharedIntegrity,
	)

	dir := t.TempDir()
	lockPath := filepath.Join(dir, "package-lock.json")
	require.NoError(t, os.WriteFile(lockPath, []byte(lockDoc), 0644))

	snapshotPath := filepath.Join(dir, "snapshot.json")
	require.NoError(t, resolve(context.Background(), []string{lockPath}, resolveOptions{
		snapshotPath: snapshotPath,
		outDir:       filepath.Join(dir, "artifacts"),
	}))

	snap, err := snapshot.Load(snapshotPath)
	require.NoError(t, err)

	// left, right and the shared diamond member exactly once each.
	require.Len(t, snap, 3)
	for _, pkg := range []struct{ name, version string }{
		{"left", "1.0.0"},
		{"right", "1.0.0"},
		{"shared", "2.0.0"},
	} {
		tarball, ok := snap.Lookup(pkg.name, pkg.version)
		require.True(t, ok, pkg.name)
		require.FileExists(t, tarball)
	}
	require.Len(t, snap.Versions("shared"), 1)
}

func Test_Resolve_NoLockFiles(t *testing.T) {
	dir := t.TempDir()
	err := resolve(context.Background(), []string{filepath.Join(dir, "package-lock.json")}, resolveOptions{
		snapshotPath: filepath.Join(dir, "snapshot.json"),
		outDir:       dir,
	})
	require.Error(t, err)
}
