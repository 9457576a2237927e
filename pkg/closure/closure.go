// Package closure computes the set of dependency instances transitively
// reachable from a lock document root.
package closure

import (
	"log/slog"

	"github.com/npmsnap/npmsnap/pkg/lockfile"
)

// Compute walks the dependency graph from root and returns every reachable
// node except the root itself, de-duplicated by identity key. Diamonds are
// expanded once and cycles terminate; result order is unspecified.
func Compute(root *lockfile.Node) []*lockfile.Node {
	visited := map[string]struct{}{
		root.Key(): {},
	}
	queue := []*lockfile.Node{root}

	var members []*lockfile.Node
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, dep := range node.Dependencies {
			if _, ok := visited[dep.Key()]; ok {
				continue
			}
			visited[dep.Key()] = struct{}{}
			members = append(members, dep)
			queue = append(queue, dep)
		}
	}

	slog.Debug("Computed dependency closure",
		slog.String("root", root.Key()),
		slog.Int("members", len(members)),
	)
	return members
}
