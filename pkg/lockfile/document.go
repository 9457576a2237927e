package lockfile

// Wire types for npm package-lock.json. Version 1 documents carry a nested
// "dependencies" tree; versions 2 and 3 carry a flat "packages" map keyed by
// node_modules path (version 2 writes both for backwards compatibility).

type document struct {
	Name            string                `json:"name"`
	Version         string                `json:"version"`
	LockfileVersion int                   `json:"lockfileVersion"`
	Requires        bool                  `json:"requires"`
	Packages        map[string]pkgEntry   `json:"packages"`
	Dependencies    map[string]dependency `json:"dependencies"`
}

// dependency is a v1 nested tree entry. The map key is the package name.
type dependency struct {
	Version      string                `json:"version"`
	Resolved     string                `json:"resolved"`
	Integrity    string                `json:"integrity"`
	Dev          bool                  `json:"dev"`
	Requires     map[string]string     `json:"requires"`
	Dependencies map[string]dependency `json:"dependencies"`
}

// pkgEntry is a v2/v3 flat map entry. The map key is the installation path
// ("" for the root package, "node_modules/a/node_modules/@org/b" for a
// nested scoped dependency).
type pkgEntry struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Resolved             string            `json:"resolved"`
	Integrity            string            `json:"integrity"`
	Link                 bool              `json:"link"`
	Dev                  bool              `json:"dev"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
}
