package registry

import (
	"fmt"
	"net/url"

	"github.com/blang/semver/v4"
)

// Packument is the per-package metadata document the install client asks for
// before picking a version. Only the fields an install operation exercises
// are produced.
type Packument struct {
	ID       string                    `json:"_id"`
	Name     string                    `json:"name"`
	DistTags map[string]string         `json:"dist-tags"`
	Versions map[string]PackumentEntry `json:"versions"`
}

type PackumentEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Dist    Dist   `json:"dist"`
}

type Dist struct {
	Tarball string `json:"tarball"`
}

// buildPackument assembles metadata for name from the snapshot's version
// map, pointing every tarball URL back at this server.
func buildPackument(baseURL, name string, versions map[string]string) Packument {
	doc := Packument{
		ID:       name,
		Name:     name,
		DistTags: map[string]string{},
		Versions: map[string]PackumentEntry{},
	}

	var latest string
	var latestParsed semver.Version
	haveParsed := false

	for version := range versions {
		doc.Versions[version] = PackumentEntry{
			Name:    name,
			Version: version,
			Dist: Dist{
				Tarball: fmt.Sprintf("%s/%s/-/%s-%s.tgz",
					baseURL, url.PathEscape(name), tarballBase(name), version),
			},
		}

		parsed, err := semver.Parse(version)
		switch {
		case err == nil && (!haveParsed || parsed.GT(latestParsed)):
			latest = version
			latestParsed = parsed
			haveParsed = true
		case err != nil && !haveParsed && version > latest:
			// Fall back to lexicographic order for non-semver versions.
			latest = version
		}
	}

	if latest != "" {
		doc.DistTags["latest"] = latest
	}
	return doc
}

// tarballBase is the filename stem npm uses for a package's tarballs: the
// name without its scope qualifier.
func tarballBase(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}
