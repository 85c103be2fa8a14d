package assetwatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/vixen/internal/eventbus"
)

type fakeNode struct{ dirty bool }

func (n *fakeNode) MarkDirty() { n.dirty = true }

type fakeGraph struct{ nodes map[string]*fakeNode }

func (g *fakeGraph) Node(name string) (Dirtyable, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

func TestManifestNodesForFile(t *testing.T) {
	m := &Manifest{Programs: []ProgramEntry{
		{Name: "raymarch", Files: []string{"raymarch.comp.spv"}, Nodes: []string{"RayMarch", "Composite"}},
		{Name: "blit", Files: []string{"blit.frag.spv"}, Nodes: []string{"Composite"}},
	}}
	got := m.nodesForFile("raymarch.comp.spv")
	want := []string{"RayMarch", "Composite"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if got := m.nodesForFile("unknown.spv"); got != nil {
		t.Fatalf("expected nil for unknown file, got %v", got)
	}
}

func TestManifestValidateRejectsDuplicateProgram(t *testing.T) {
	m := &Manifest{Programs: []ProgramEntry{{Name: "a"}, {Name: "a"}}}
	if err := m.Validate(); err == nil {
		t.Fatalf("expected error for duplicate program name")
	}
}

func TestManifestValidateRejectsUnnamedProgram(t *testing.T) {
	m := &Manifest{Programs: []ProgramEntry{{Files: []string{"x.spv"}}}}
	if err := m.Validate(); err == nil {
		t.Fatalf("expected error for unnamed program")
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shaders.toml")
	content := `
[[program]]
name = "raymarch"
files = ["raymarch.comp.spv"]
nodes = ["RayMarch"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m.Programs) != 1 || m.Programs[0].Name != "raymarch" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
}

func TestHandleChangeMarksDirtyAndPublishes(t *testing.T) {
	bus := eventbus.New(0)
	w := &Watcher{bus: bus}
	w.SetManifest(&Manifest{Programs: []ProgramEntry{
		{Name: "raymarch", Files: []string{"raymarch.comp.spv"}, Nodes: []string{"RayMarch"}},
	}})
	g := &fakeGraph{nodes: map[string]*fakeNode{"RayMarch": {}}}
	w.SetGraph(g)

	w.handleChange("raymarch.comp.spv")

	if !g.nodes["RayMarch"].dirty {
		t.Fatalf("expected RayMarch node to be marked dirty")
	}
	if bus.Pending(eventbus.TopicShaderReloaded) != 1 {
		t.Fatalf("expected one ShaderReloaded event queued")
	}
	if bus.Pending(eventbus.TopicNodeDirty) != 1 {
		t.Fatalf("expected one NodeDirty event queued")
	}
}

func TestHandleChangeIgnoresUnknownFile(t *testing.T) {
	bus := eventbus.New(0)
	w := &Watcher{bus: bus}
	w.SetManifest(&Manifest{})
	w.handleChange("unrelated.txt")
	if bus.Pending(eventbus.TopicShaderReloaded) != 0 {
		t.Fatalf("expected no event for an unmapped file")
	}
}
