// Package snapshot holds the flattened name/version to tarball mapping that
// the registry server answers from.
package snapshot

import (
	"fmt"
	"log/slog"

	"github.com/npmsnap/npmsnap/pkg/fetcher"
	"github.com/npmsnap/npmsnap/pkg/filesys"
)

// Snapshot maps package name to version to tarball location. Computed once
// per build and immutable afterwards.
type Snapshot map[string]map[string]string

func New() Snapshot {
	return Snapshot{}
}

// Add records the artifacts of one resolved closure, overwriting earlier
// entries on (name, version) collision. Callers fold closures in input
// order, making the merge right-biased.
func (s Snapshot) Add(entries []fetcher.ArtifactEntry) {
	for _, entry := range entries {
		versions, ok := s[entry.Name]
		if !ok {
			versions = map[string]string{}
			s[entry.Name] = versions
		}
		if prev, ok := versions[entry.Version]; ok && prev != entry.TarballPath {
			slog.Warn("Overwriting snapshot entry",
				slog.String("package", entry.Name),
				slog.String("version", entry.Version),
				slog.String("previous", prev),
				slog.String("replacement", entry.TarballPath),
			)
		}
		versions[entry.Version] = entry.TarballPath
	}
}

// Merge folds other into s with right bias: other's entries win.
func (s Snapshot) Merge(other Snapshot) {
	for name, versions := range other {
		target, ok := s[name]
		if !ok {
			target = map[string]string{}
			s[name] = target
		}
		for version, tarball := range versions {
			if prev, ok := target[version]; ok && prev != tarball {
				slog.Warn("Overwriting snapshot entry",
					slog.String("package", name),
					slog.String("version", version),
					slog.String("previous", prev),
					slog.String("replacement", tarball),
				)
			}
			target[version] = tarball
		}
	}
}

// Lookup returns the tarball location for name@version.
func (s Snapshot) Lookup(name, version string) (string, bool) {
	versions, ok := s[name]
	if !ok {
		return "", false
	}
	tarball, ok := versions[version]
	return tarball, ok
}

// Versions returns the version to tarball map for name, or nil.
func (s Snapshot) Versions(name string) map[string]string {
	return s[name]
}

// Save serializes the snapshot to path as a durable JSON document.
func (s Snapshot) Save(path string) error {
	if err := filesys.WriteJSON(path, s); err != nil {
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	return nil
}

// Load reads a snapshot produced by Save. Failures are fatal for callers:
// a server must not start serving from a half-read snapshot.
func Load(path string) (Snapshot, error) {
	s := New()
	if err := filesys.ReadJSON(path, &s); err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return s, nil
}
