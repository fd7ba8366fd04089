package loader

import (
	"errors"

	"github.com/ije/gox/log"
	"github.com/portending/ScriptFlow/internal/glob"
	"github.com/portending/ScriptFlow/internal/resolver"
	"github.com/portending/ScriptFlow/internal/rewriter"
)

// GraphOption configures BuildGraph.
type GraphOption func(b *graphBuilder)

// WithRewriter sets the rewriter used to transform the modules.
func WithRewriter(r *rewriter.Rewriter) GraphOption {
	return func(b *graphBuilder) {
		b.rewriter = r
	}
}

// WithLogger sets the logger of the build.
func WithLogger(logger *log.Logger) GraphOption {
	return func(b *graphBuilder) {
		b.logger = logger
	}
}

type fileRecord struct {
	content string
	ok      bool
}

type graphBuilder struct {
	provider FileProvider
	rewriter *rewriter.Rewriter
	logger   *log.Logger
	graph    *Graph
	files    map[string]fileRecord
	known    []string
	listed   bool
	stack    []string
	err      error
}

// BuildGraph loads the entry module and all modules reachable from it.
// Every raw source is read at most once per build.
func BuildGraph(entry string, provider FileProvider, opts ...GraphOption) (*Graph, error) {
	b := &graphBuilder{
		provider: provider,
		rewriter: &rewriter.Rewriter{},
		files:    map[string]fileRecord{},
	}
	for _, opt := range opts {
		opt(b)
	}
	entry = resolver.Normalize(entry)
	path, ok := resolver.TryResolveExisting(entry, b.exists)
	if b.err != nil {
		return nil, b.err
	}
	if !ok {
		return nil, &NotFoundError{Specifier: entry, Resolved: entry}
	}
	b.graph = newGraph(path)
	b.visit(path)
	if b.err != nil {
		return nil, b.err
	}
	return b.graph, nil
}

// exists reads the file once and remembers the result, a fetch error stops the build.
func (b *graphBuilder) exists(path string) bool {
	if b.err != nil {
		return false
	}
	if rec, ok := b.files[path]; ok {
		return rec.ok
	}
	content, ok, err := b.provider.GetFile(path)
	if err != nil {
		b.err = &FetchError{Path: path, Err: err}
		return false
	}
	b.files[path] = fileRecord{content, ok}
	return ok
}

func (b *graphBuilder) knownFiles() []string {
	if !b.listed {
		b.listed = true
		if l, ok := b.provider.(Lister); ok {
			files, err := l.ListFiles()
			if err != nil {
				if b.logger != nil {
					b.logger.Warnf("list files: %v", err)
				}
			} else {
				for i, f := range files {
					files[i] = resolver.Normalize(f)
				}
				b.known = files
			}
		}
	}
	return b.known
}

func (b *graphBuilder) visit(path string) {
	if b.err != nil {
		return
	}
	if b.graph.Has(path) {
		if b.graph.inProgress[path] {
			b.recordCycle(path)
		}
		return
	}

	module := b.transform(path)
	b.graph.add(module)
	b.graph.inProgress[path] = true
	b.stack = append(b.stack, path)
	defer func() {
		b.stack = b.stack[:len(b.stack)-1]
		delete(b.graph.inProgress, path)
	}()

	for _, specifier := range module.StaticDependencies {
		resolved := resolver.Resolve(path, specifier)
		dep, ok := resolver.TryResolveExisting(resolved, b.exists)
		if b.err != nil {
			return
		}
		if !ok {
			b.graph.Missing = append(b.graph.Missing, MissingDependency{From: path, Specifier: specifier, Resolved: resolved})
			if b.logger != nil {
				b.logger.Warnf("module %q of %q not found", specifier, path)
			}
			continue
		}
		module.Dependencies[specifier] = dep
		b.visit(dep)
	}

	for _, req := range module.Contexts {
		known := b.knownFiles()
		if len(known) == 0 {
			break
		}
		for _, p := range glob.Build(req.BaseDir, req.Recursive, req.Pattern, known).Paths() {
			if b.exists(p) {
				b.visit(p)
			}
		}
	}
}

func (b *graphBuilder) transform(path string) *Module {
	rec := b.files[path]
	kind := rewriter.KindOf(path)
	module := &Module{Path: path, Kind: kind, Dependencies: map[string]string{}}
	ret, err := b.rewriter.Transform(path, rec.content)
	if err != nil {
		module.Err = &TransformError{Path: path, Err: err}
		module.Code = ThrowCode(module.Err)
		if b.logger != nil {
			b.logger.Warn(module.Err)
		}
		return module
	}
	module.Code = ret.Code
	module.StaticDependencies = ret.StaticDependencies
	module.Contexts = ret.Contexts
	return module
}

func (b *graphBuilder) recordCycle(path string) {
	for i := len(b.stack) - 1; i >= 0; i-- {
		if b.stack[i] == path {
			cycle := make([]string, 0, len(b.stack)-i+1)
			cycle = append(cycle, b.stack[i:]...)
			cycle = append(cycle, path)
			b.graph.Cycles = append(b.graph.Cycles, cycle)
			return
		}
	}
}

// ThrowCode returns module code that throws the error when executed.
func ThrowCode(err error) string {
	msg := err.Error()
	var te *TransformError
	if errors.As(err, &te) {
		msg = "Failed to transform " + te.Path + ": " + te.Err.Error()
	}
	return "throw new Error(" + quote(msg) + ");"
}
