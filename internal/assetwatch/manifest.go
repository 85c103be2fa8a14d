// Package assetwatch watches the shader-manifest directory for changes and
// drives hot reload: a changed file marks every graph node whose manifest
// entry names it as Dirty and publishes a ShaderReloaded event onto the bus
// (spec.md section 4.8). It is the resolution of Open Question 1 in
// DESIGN.md — STATIC vs DYNAMIC command-buffer recording stays a per-node
// RecordPolicy the frame scheduler reads, so this package's only job is
// deciding *which* nodes go dirty, not how they re-record.
package assetwatch

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Manifest is the on-disk shader manifest: one entry per logical shader
// program, naming the graph nodes that consume it. Grounded on the
// teacher's tmpShaderConfig (engine/assets/loaders/shader.go), trimmed to
// the fields this module's hot-reload path actually needs — pipeline
// construction state (cull mode, attributes, uniforms) lives in
// internal/shaderbundle, not here.
type Manifest struct {
	Programs []ProgramEntry `toml:"program"`
}

// ProgramEntry maps one shader program's source files to the graph node
// names that must go Dirty when any of those files change.
type ProgramEntry struct {
	Name  string   `toml:"name"`
	Files []string `toml:"files"`
	Nodes []string `toml:"nodes"`
}

// LoadManifest parses a shader manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("assetwatch: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("assetwatch: parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate rejects a manifest with a program entry missing a name, or with
// duplicate program names — mirrors the teacher's shader-config duplicate
// check, narrowed to what this manifest actually carries.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Programs))
	for _, p := range m.Programs {
		if p.Name == "" {
			return fmt.Errorf("assetwatch: manifest: program entry with no name")
		}
		if seen[p.Name] {
			return fmt.Errorf("assetwatch: manifest: duplicate program name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// nodesForFile returns the set of graph node names any program entry binds
// to the given file, deduplicated.
func (m *Manifest) nodesForFile(file string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range m.Programs {
		for _, f := range p.Files {
			if f != file {
				continue
			}
			for _, n := range p.Nodes {
				if !seen[n] {
					seen[n] = true
					out = append(out, n)
				}
			}
			break
		}
	}
	return out
}

// programForFile returns the program entry owning file, if any.
func (m *Manifest) programForFile(file string) (ProgramEntry, bool) {
	for _, p := range m.Programs {
		for _, f := range p.Files {
			if f == file {
				return p, true
			}
		}
	}
	return ProgramEntry{}, false
}
