package fetcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cp "github.com/otiai10/copy"
	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/npmsnap/npmsnap/pkg/archiver/tgzwriter"
	"github.com/npmsnap/npmsnap/pkg/filesys"
)

// Tarball layout the package manager client expects on unpack.
const packagePrefix = "package"

// Prefix making package.json scripts resolve their commands against the
// local node_modules/.bin instead of a global installation.
const launcherPrefix = "npx --no-install "

// Repack normalizes the fetched tarball at src into dst: contents are moved
// under a single top-level "package/" directory, interpreter lines are
// rewritten to survive outside their original build environment, and the
// scripts section of package.json is routed through a path-aware launcher.
// The step is idempotent; the returned tree hash is stable across re-runs
// on already-normalized content.
func Repack(src string, dst string) (string, error) {
	workDir, err := os.MkdirTemp(filepath.Dir(dst), ".repack-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	extractDir := filepath.Join(workDir, "extract")
	if err := filesys.SecureUntarGz(src, extractDir); err != nil {
		return "", fmt.Errorf("extract tarball: %w", err)
	}

	pkgRoot, err := resolvePackageRoot(extractDir)
	if err != nil {
		return "", err
	}

	normRoot := filepath.Join(workDir, packagePrefix)
	if err := cp.Copy(pkgRoot, normRoot, cp.Options{PermissionControl: cp.PerservePermission}); err != nil {
		return "", fmt.Errorf("copy package tree: %w", err)
	}

	if err := patchShebangs(normRoot); err != nil {
		return "", fmt.Errorf("patch shebangs: %w", err)
	}
	if err := rewriteScripts(normRoot); err != nil {
		return "", fmt.Errorf("rewrite scripts: %w", err)
	}

	treeHash, err := filesys.ComputeDirectoryHash(normRoot)
	if err != nil {
		return "", fmt.Errorf("compute tree hash: %w", err)
	}

	wr := tgzwriter.New()
	closer, err := wr.Init(dst)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	if err := wr.WriteDirectory(normRoot, packagePrefix, nil); err != nil {
		closer.Close()
		return "", fmt.Errorf("write archive: %w", err)
	}
	if err := closer.Close(); err != nil {
		return "", fmt.Errorf("finalize archive: %w", err)
	}

	return treeHash, nil
}

// resolvePackageRoot locates the package contents inside an extracted
// tarball. Registry tarballs use a single top-level directory (usually
// "package"); some publishers put files at the archive root directly.
func resolvePackageRoot(extractDir string) (string, error) {
	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return "", fmt.Errorf("read extract dir: %w", err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("empty tarball")
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(extractDir, entries[0].Name()), nil
	}
	return extractDir, nil
}

// rewriteScripts prefixes every package.json script with the launcher,
// preserving document key order. Already-prefixed scripts are left alone.
func rewriteScripts(pkgRoot string) error {
	pkgJSON := filepath.Join(pkgRoot, "package.json")
	raw, err := os.ReadFile(pkgJSON)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read package.json: %w", err)
	}

	if !gjson.GetBytes(raw, "scripts").Exists() {
		return nil
	}

	doc := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("decode package.json: %w", err)
	}

	scriptsRaw, ok := doc.Get("scripts")
	if !ok {
		return nil
	}
	scripts := orderedmap.New[string, string]()
	if err := json.Unmarshal(scriptsRaw, scripts); err != nil {
		return fmt.Errorf("decode scripts: %w", err)
	}

	changed := false
	for pair := scripts.Oldest(); pair != nil; pair = pair.Next() {
		if strings.HasPrefix(pair.Value, launcherPrefix) {
			continue
		}
		scripts.Set(pair.Key, launcherPrefix+pair.Value)
		changed = true
	}
	if !changed {
		return nil
	}

	patched, err := json.Marshal(scripts)
	if err != nil {
		return fmt.Errorf("encode scripts: %w", err)
	}
	doc.Set("scripts", patched)

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode package.json: %w", err)
	}
	out = append(out, '\n')

	if err := os.WriteFile(pkgJSON, out, 0644); err != nil {
		return fmt.Errorf("write package.json: %w", err)
	}
	return nil
}
