package lockfile

const (
	// DefaultName is used when neither the lock document nor the caller
	// provides a top-level package name.
	DefaultName = "unknown"
	// DefaultVersion is used when the top-level version is absent.
	DefaultVersion = "0.0.0"

	noIntegrity = "no-integrity"
)

// Node is one resolved entry of a lock document. Dependencies point at other
// nodes in the same document; the graph may contain diamonds and cycles, so
// consumers must walk it with an explicit visited set.
type Node struct {
	Name      string
	Version   string
	Integrity string
	Resolved  string

	Dependencies map[string]*Node
}

// Key is the identity used for de-duplication and cycle breaking. Two
// structurally distinct entries with the same key are the same closure member.
func (n *Node) Key() string {
	integrity := n.Integrity
	if integrity == "" {
		integrity = noIntegrity
	}
	return n.Name + "@" + n.Version + "?" + integrity
}

func newNode(name, version, integrity, resolved string) *Node {
	return &Node{
		Name:         name,
		Version:      version,
		Integrity:    integrity,
		Resolved:     resolved,
		Dependencies: map[string]*Node{},
	}
}
