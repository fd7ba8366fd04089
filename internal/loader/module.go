package loader

import (
	"github.com/portending/ScriptFlow/internal/glob"
	"github.com/portending/ScriptFlow/internal/rewriter"
)

// Kind is the kind of a module.
type Kind = rewriter.Kind

// RawModule is a module source as read from a provider.
type RawModule struct {
	Path   string
	Source string
	Kind   Kind
}

// Module is a transformed module.
type Module struct {
	Path               string
	Kind               Kind
	Code               string
	StaticDependencies []string
	Contexts           []glob.Request
	// Dependencies maps the specifiers of the module to the resolved module paths.
	Dependencies map[string]string
	// Err is set when the transform failed, the code throws it.
	Err error
}

// MissingDependency is a dependency that could not be resolved while building a graph.
type MissingDependency struct {
	From      string
	Specifier string
	Resolved  string
}

// Graph is the set of the modules reachable from an entry, in insertion order.
type Graph struct {
	Entry   string
	Missing []MissingDependency
	// Cycles lists the import cycles found, each one starts and ends with the same path.
	Cycles [][]string

	modules    map[string]*Module
	order      []string
	inProgress map[string]bool
}

func newGraph(entry string) *Graph {
	return &Graph{
		Entry:      entry,
		modules:    map[string]*Module{},
		inProgress: map[string]bool{},
	}
}

func (g *Graph) add(m *Module) {
	if _, ok := g.modules[m.Path]; !ok {
		g.order = append(g.order, m.Path)
	}
	g.modules[m.Path] = m
}

// Get returns the module of the path.
func (g *Graph) Get(path string) (*Module, bool) {
	m, ok := g.modules[path]
	return m, ok
}

// Has reports whether the graph contains the path.
func (g *Graph) Has(path string) bool {
	_, ok := g.modules[path]
	return ok
}

// Len returns the number of modules.
func (g *Graph) Len() int {
	return len(g.order)
}

// Paths returns the module paths in insertion order.
func (g *Graph) Paths() []string {
	return g.order
}

// Modules returns the modules in insertion order.
func (g *Graph) Modules() []*Module {
	modules := make([]*Module, len(g.order))
	for i, p := range g.order {
		modules[i] = g.modules[p]
	}
	return modules
}
