package lockfile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

type parseConfig struct {
	name    string
	version string
}

type Option func(*parseConfig)

// WithName overrides the top-level package name from the document.
func WithName(name string) Option {
	return func(cfg *parseConfig) {
		cfg.name = name
	}
}

// WithVersion overrides the top-level package version from the document.
func WithVersion(version string) Option {
	return func(cfg *parseConfig) {
		cfg.version = version
	}
}

// Parse loads a package-lock.json document and returns the synthetic root
// node of its dependency tree. A missing file is reported as-is so the
// caller can decide whether absence is fatal.
func Parse(path string, options ...Option) (*Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}

	root, err := ParseBytes(raw, options...)
	if err != nil {
		return nil, fmt.Errorf("parse lock file %s: %w", path, err)
	}
	return root, nil
}

// ParseBytes parses an in-memory lock document.
func ParseBytes(raw []byte, options ...Option) (*Node, error) {
	cfg := &parseConfig{}
	for _, o := range options {
		o(cfg)
	}

	if err := validate(raw); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode lock document: %w", err)
	}

	root := newNode(rootName(&doc, cfg), rootVersion(&doc, cfg), "", "")

	// v2 documents carry both maps; the packages map is authoritative.
	if gjson.GetBytes(raw, "packages").Exists() {
		buildFromPackages(&doc, root)
	} else {
		buildFromDependencies(doc.Dependencies, root)
	}

	slog.Debug("Parsed lock document",
		slog.String("name", root.Name),
		slog.String("version", root.Version),
		slog.Int("lockfile_version", doc.LockfileVersion),
	)
	return root, nil
}

func validate(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(lockSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("validate lock document: %w", err)
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("malformed lock document: %s", strings.Join(details, "; "))
	}
	return nil
}

func rootName(doc *document, cfg *parseConfig) string {
	if cfg.name != "" {
		return cfg.name
	}
	if doc.Name != "" {
		return doc.Name
	}
	if e, ok := doc.Packages[""]; ok && e.Name != "" {
		return e.Name
	}
	return DefaultName
}

func rootVersion(doc *document, cfg *parseConfig) string {
	if cfg.version != "" {
		return cfg.version
	}
	if doc.Version != "" {
		return doc.Version
	}
	if e, ok := doc.Packages[""]; ok && e.Version != "" {
		return e.Version
	}
	return DefaultVersion
}

// buildFromDependencies converts a v1 nested dependencies tree. Each nested
// level already contains the fully resolved subtree, so edges follow the
// nesting directly.
func buildFromDependencies(deps map[string]dependency, parent *Node) {
	for name, dep := range deps {
		node := newNode(name, dep.Version, dep.Integrity, dep.Resolved)
		parent.Dependencies[name] = node
		buildFromDependencies(dep.Dependencies, node)
	}
}

const nodeModulesSeg = "node_modules/"

// buildFromPackages converts a v2/v3 flat packages map into a tree by
// replaying npm's resolution walk: a dependency of the entry at path P
// resolves to the deepest P-prefixed node_modules entry carrying its name.
func buildFromPackages(doc *document, root *Node) {
	nodes := map[string]*Node{}
	for path, e := range doc.Packages {
		if path == "" {
			continue
		}
		name := e.Name
		if name == "" {
			name = nameFromLockPath(path)
		}
		resolved := e.Resolved
		if e.Link {
			// Workspace links have no fetchable artifact.
			resolved = ""
		}
		nodes[path] = newNode(name, e.Version, e.Integrity, resolved)
	}

	for path, e := range doc.Packages {
		node := root
		if path != "" {
			node = nodes[path]
		}
		for _, depName := range entryDependencyNames(e) {
			if target := resolveDep(path, depName, nodes); target != nil {
				node.Dependencies[depName] = target
			}
		}
	}
}

// entryDependencyNames collects every edge kind npm materializes in the
// installed tree: dev dependencies are installed by default, and peer
// dependencies that the lock pinned resolve like regular ones. Names
// without a matching installation are filtered out by resolveDep.
func entryDependencyNames(e pkgEntry) []string {
	names := make([]string, 0,
		len(e.Dependencies)+len(e.DevDependencies)+len(e.OptionalDependencies)+len(e.PeerDependencies))
	for name := range e.Dependencies {
		names = append(names, name)
	}
	for name := range e.DevDependencies {
		names = append(names, name)
	}
	for name := range e.OptionalDependencies {
		names = append(names, name)
	}
	for name := range e.PeerDependencies {
		names = append(names, name)
	}
	return names
}

// resolveDep walks up the node_modules hierarchy from fromPath looking for
// the nearest installation of name. Returns nil when the dependency is not
// materialized in the lock file (e.g. an unmet optional dependency).
func resolveDep(fromPath, name string, nodes map[string]*Node) *Node {
	prefix := fromPath
	for {
		candidate := nodeModulesSeg + name
		if prefix != "" {
			candidate = prefix + "/" + candidate
		}
		if n, ok := nodes[candidate]; ok {
			return n
		}
		if prefix == "" {
			return nil
		}
		idx := strings.LastIndex(prefix, "/"+nodeModulesSeg)
		if idx < 0 {
			prefix = ""
		} else {
			prefix = prefix[:idx]
		}
	}
}

// nameFromLockPath extracts a package name (scope included) from an
// installation path like "node_modules/a/node_modules/@org/b".
func nameFromLockPath(path string) string {
	idx := strings.LastIndex(path, nodeModulesSeg)
	if idx < 0 {
		return path
	}
	return path[idx+len(nodeModulesSeg):]
}
