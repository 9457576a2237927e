package command

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the optional YAML description of a multi-lock-file build. Lock
// files are listed in merge order: on a name/version collision the entry
// from the later file wins, so the order is significant.
type Manifest struct {
	LockFiles []string `yaml:"lockfiles"`
	Output    string   `yaml:"output"`
	Snapshot  string   `yaml:"snapshot"`
	Hooks     Hooks    `yaml:"hooks"`
}

// Hooks is the ordered pre/post command list the build orchestrator wraps
// around the install step. The core only records and validates it.
type Hooks struct {
	Pre  []string `yaml:"pre"`
	Post []string `yaml:"post"`
}

func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if len(m.LockFiles) == 0 {
		return nil, fmt.Errorf("manifest %s lists no lock files", path)
	}
	return &m, nil
}
