package assetwatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/vixen/internal/corelog"
	"github.com/spaghettifunk/vixen/internal/eventbus"
)

// Graph is the subset of *graph.Graph this package depends on. Kept as an
// interface so tests can drive the dirty-marking logic without a real
// graph or GPU device.
type Graph interface {
	Node(name string) (Dirtyable, bool)
}

// Dirtyable is the subset of *graph.Instance the watcher needs.
type Dirtyable interface {
	MarkDirty()
}

// Watcher watches a directory tree for shader file changes, consults a
// Manifest to find the graph nodes bound to the changed file, marks them
// Dirty, and publishes TopicShaderReloaded/TopicNodeDirty events onto the
// bus. Grounded on the teacher's AssetManager.start/watchRecursive
// (engine/assets/assets.go), narrowed to the shader-reload path — this
// module carries no asset-type registry or loader dispatch, since loading
// compiled shader bytes is internal/nodes's ShaderSource, not this
// package's concern.
type Watcher struct {
	fs  *fsnotify.Watcher
	bus *eventbus.Bus

	mu       sync.RWMutex
	manifest *Manifest
	graph    Graph

	done chan struct{}
}

// New constructs a Watcher bound to bus for event delivery. Call
// SetGraph once the graph it should mark dirty exists, and Watch to begin
// scanning root.
func New(bus *eventbus.Bus) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("assetwatch: new watcher: %w", err)
	}
	return &Watcher{fs: fs, bus: bus, done: make(chan struct{})}, nil
}

// SetManifest replaces the manifest the watcher consults to resolve a
// changed file to graph node names.
func (w *Watcher) SetManifest(m *Manifest) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.manifest = m
}

// SetGraph binds the graph whose nodes get marked dirty on a reload.
func (w *Watcher) SetGraph(g Graph) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.graph = g
}

// Watch recursively adds root and every subdirectory beneath it to the
// watch list — mirrors the teacher's watchRecursive, trimmed of its
// unwatch branch since this module never needs to stop watching a live
// directory.
func (w *Watcher) Watch(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
}

// Run blocks, dispatching fsnotify events until Close is called. Intended
// to run on its own goroutine, the way the teacher's AssetManager.start
// does.
func (w *Watcher) Run() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.handleChange(ev.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			corelog.Error("assetwatch: %v", err)
		case <-w.done:
			w.fs.Close()
			return
		}
	}
}

// Close stops Run and releases the underlying fsnotify watcher.
func (w *Watcher) Close() {
	close(w.done)
}

func (w *Watcher) handleChange(path string) {
	w.mu.RLock()
	manifest, g := w.manifest, w.graph
	w.mu.RUnlock()
	if manifest == nil {
		return
	}

	file := relativeFile(path)
	program, ok := manifest.programForFile(file)
	if !ok {
		return
	}
	nodes := manifest.nodesForFile(file)

	if g != nil {
		for _, name := range nodes {
			if n, ok := g.Node(name); ok {
				n.MarkDirty()
			} else {
				corelog.Warn("assetwatch: reload of %q names unknown node %q", program.Name, name)
			}
		}
	}

	if w.bus != nil {
		w.bus.Publish(eventbus.Event{Topic: eventbus.TopicShaderReloaded, Data: program.Name})
		for _, name := range nodes {
			w.bus.Publish(eventbus.Event{Topic: eventbus.TopicNodeDirty, Data: name})
		}
	}
}

// relativeFile converts path to forward slashes and strips a leading "./".
// It does not strip the watched root or make an absolute path relative, so
// a manifest entry matches only a path written the way fsnotify reports it.
func relativeFile(path string) string {
	return strings.TrimPrefix(filepath.ToSlash(path), "./")
}
