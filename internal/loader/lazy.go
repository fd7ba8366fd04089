package loader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/ije/gox/log"
	"github.com/portending/ScriptFlow/internal/glob"
	"github.com/portending/ScriptFlow/internal/resolver"
	"github.com/portending/ScriptFlow/internal/rewriter"
	"github.com/portending/ScriptFlow/internal/sandbox"
	"golang.org/x/sync/errgroup"
)

// LoaderState holds the modules of one execution context: the module cache,
// the loads in flight and the files fetched so far.
type LoaderState struct {
	lock     sync.Mutex
	modules  map[string]*goja.Object
	inflight map[string]*loadTask
	files    map[string]*fileEntry
	known    []string
	listed   bool
}

// NewLoaderState creates an empty state.
func NewLoaderState() *LoaderState {
	return &LoaderState{
		modules:  map[string]*goja.Object{},
		inflight: map[string]*loadTask{},
		files:    map[string]*fileEntry{},
	}
}

// Loaded returns the paths of the executed modules.
func (st *LoaderState) Loaded() []string {
	st.lock.Lock()
	defer st.lock.Unlock()
	paths := make([]string, 0, len(st.modules))
	for p := range st.modules {
		paths = append(paths, p)
	}
	return paths
}

// Evict removes the module and its source, the next require loads it again.
// The file list is read again by the next `require.context` call.
func (st *LoaderState) Evict(path string) {
	st.lock.Lock()
	defer st.lock.Unlock()
	delete(st.modules, path)
	delete(st.files, path)
	st.known = nil
	st.listed = false
}

type fileEntry struct {
	done    chan struct{}
	content string
	ok      bool
	err     error
}

type loadTask struct {
	path string
	// module is created before the dependencies are loaded, a cycle gets its partial exports
	module  *goja.Object
	deps    map[string]string
	waiting map[string]*loadTask
	done    chan struct{}
	err     error
}

// waitsFor reports whether the task is, directly or transitively, waiting on the target.
// Must be called with the state lock held.
func (t *loadTask) waitsFor(target *loadTask, seen map[*loadTask]bool) bool {
	for _, w := range t.waiting {
		if w == target {
			return true
		}
		if !seen[w] {
			seen[w] = true
			if w.waitsFor(target, seen) {
				return true
			}
		}
	}
	return false
}

// LoaderOptions configures a lazy loader.
type LoaderOptions struct {
	Rewriter *rewriter.Rewriter
	Logger   *log.Logger
	// State is shared by loaders of the same execution context, a new one is created if nil.
	State *LoaderState
}

// Loader loads modules on demand, fetching each source once and executing each module
// once in the sandbox.
type Loader struct {
	provider AsyncProvider
	sandbox  *sandbox.Sandbox
	state    *LoaderState
	rewriter *rewriter.Rewriter
	logger   *log.Logger
}

// NewLoader creates a lazy loader.
func NewLoader(provider AsyncProvider, sb *sandbox.Sandbox, opts LoaderOptions) *Loader {
	l := &Loader{
		provider: provider,
		sandbox:  sb,
		state:    opts.State,
		rewriter: opts.Rewriter,
		logger:   opts.Logger,
	}
	if l.state == nil {
		l.state = NewLoaderState()
	}
	if l.rewriter == nil {
		l.rewriter = &rewriter.Rewriter{}
	}
	return l
}

// State returns the loader state.
func (l *Loader) State() *LoaderState {
	return l.state
}

// Require resolves the specifier against the `from` module, loads the module and its
// dependencies and returns the module exports. Concurrent requires of the same module
// share one load.
func (l *Loader) Require(ctx context.Context, specifier string, from string) (goja.Value, error) {
	resolved := resolver.Resolve(from, specifier)
	if !resolver.IsRelative(specifier) {
		resolved = resolver.Normalize(resolved)
	}
	path, err := l.resolve(ctx, resolved)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, &NotFoundError{Specifier: specifier, Resolved: resolved}
	}
	module, err := l.load(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	var exports goja.Value
	err = l.sandbox.Do(ctx, func(rt *goja.Runtime) error {
		exports = module.Get("exports")
		return nil
	})
	return exports, err
}

// resolve returns the first existing candidate of the path, or "" if none exists.
func (l *Loader) resolve(ctx context.Context, path string) (string, error) {
	for _, c := range resolver.Candidates(path) {
		e, err := l.fetchFile(ctx, c)
		if err != nil {
			return "", err
		}
		if e.ok {
			return c, nil
		}
	}
	return "", nil
}

// fetchFile reads the file at most once, concurrent callers wait for the first fetch.
// A failed fetch is forgotten so that it can be retried.
func (l *Loader) fetchFile(ctx context.Context, path string) (*fileEntry, error) {
	st := l.state
	st.lock.Lock()
	e, ok := st.files[path]
	if !ok {
		e = &fileEntry{done: make(chan struct{})}
		st.files[path] = e
		st.lock.Unlock()

		content, exists, err := l.provider.FetchFile(ctx, path)
		if err != nil {
			e.err = &FetchError{Path: path, Err: err}
			st.lock.Lock()
			if st.files[path] == e {
				delete(st.files, path)
			}
			st.lock.Unlock()
		} else {
			e.content, e.ok = content, exists
		}
		close(e.done)
	} else {
		st.lock.Unlock()
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e, nil
}

func (l *Loader) knownFiles() []string {
	lister, ok := l.provider.(Lister)
	if !ok {
		return nil
	}
	st := l.state
	st.lock.Lock()
	if st.listed {
		defer st.lock.Unlock()
		return st.known
	}
	st.lock.Unlock()

	files, err := lister.ListFiles()
	if err != nil {
		if l.logger != nil {
			l.logger.Warnf("list files: %v", err)
		}
		return nil
	}
	for i, f := range files {
		files[i] = resolver.Normalize(f)
	}

	st.lock.Lock()
	defer st.lock.Unlock()
	st.known = files
	st.listed = true
	return files
}

// load returns the module of the path, loading it if needed. parent is the task
// requiring the module, nil for top level requires.
func (l *Loader) load(ctx context.Context, path string, parent *loadTask) (*goja.Object, error) {
	st := l.state
	st.lock.Lock()
	if module, ok := st.modules[path]; ok {
		st.lock.Unlock()
		return module, nil
	}

	if t, ok := st.inflight[path]; ok {
		if parent != nil && (t == parent || t.waitsFor(parent, map[*loadTask]bool{})) {
			st.lock.Unlock()
			if l.logger != nil {
				l.logger.Debugf("import cycle: %s -> %s", parent.path, path)
			}
			return t.module, nil
		}
		if parent != nil {
			parent.waiting[path] = t
		}
		st.lock.Unlock()

		defer l.stopWaiting(parent, path)
		select {
		case <-t.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if t.err != nil {
			return nil, t.err
		}
		return t.module, nil
	}

	t := &loadTask{
		path:    path,
		deps:    map[string]string{},
		waiting: map[string]*loadTask{},
		done:    make(chan struct{}),
	}
	st.inflight[path] = t
	if parent != nil {
		parent.waiting[path] = t
	}
	st.lock.Unlock()

	start := time.Now()
	err := l.run(ctx, t)

	st.lock.Lock()
	delete(st.inflight, path)
	if parent != nil {
		delete(parent.waiting, path)
	}
	if err == nil {
		st.modules[path] = t.module
	} else {
		t.err = err
		delete(st.modules, path)
		delete(st.files, path)
	}
	st.lock.Unlock()
	close(t.done)

	if err != nil {
		if l.logger != nil {
			l.logger.Errorf("load %s: %v", path, err)
		}
		return nil, err
	}
	if l.logger != nil {
		l.logger.Debugf("load %s done in %v", path, time.Since(start))
	}
	return t.module, nil
}

func (l *Loader) stopWaiting(parent *loadTask, path string) {
	if parent == nil {
		return
	}
	l.state.lock.Lock()
	delete(parent.waiting, path)
	l.state.lock.Unlock()
}

// run fetches, transforms and executes the module of the task.
func (l *Loader) run(ctx context.Context, t *loadTask) error {
	e, err := l.fetchFile(ctx, t.path)
	if err != nil {
		return err
	}
	if !e.ok {
		return &NotFoundError{Specifier: t.path, Resolved: t.path}
	}
	ret, err := l.rewriter.Transform(t.path, e.content)
	if err != nil {
		return &TransformError{Path: t.path, Err: err}
	}

	err = l.sandbox.Do(ctx, func(rt *goja.Runtime) error {
		module := rt.NewObject()
		module.Set("exports", rt.NewObject())
		t.module = module
		return nil
	})
	if err != nil {
		return err
	}

	var depsLock sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, specifier := range ret.StaticDependencies {
		specifier := specifier
		g.Go(func() error {
			resolved := resolver.Resolve(t.path, specifier)
			path, err := l.resolve(gctx, resolved)
			if err != nil {
				return err
			}
			if path == "" {
				return &NotFoundError{Specifier: specifier, Resolved: resolved}
			}
			depsLock.Lock()
			t.deps[specifier] = path
			depsLock.Unlock()
			_, err = l.load(gctx, path, t)
			return err
		})
	}
	if len(ret.Contexts) > 0 {
		known := l.knownFiles()
		for _, req := range ret.Contexts {
			for _, path := range glob.Build(req.BaseDir, req.Recursive, req.Pattern, known).Paths() {
				path := path
				g.Go(func() error {
					_, err := l.load(gctx, path, t)
					return err
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return l.execute(ctx, t, ret.Code)
}

func (l *Loader) execute(ctx context.Context, t *loadTask, code string) error {
	r := l.rewriter
	err := l.sandbox.Do(ctx, func(rt *goja.Runtime) error {
		wrapper := "(function (module, exports, require, " + r.ModuleVar + ", " + r.RequireFunc + ", " + r.ContextFunc + ", " + r.StyleFunc + ") {\n" + code + "\n})"
		fn, err := rt.RunScript(t.path, wrapper)
		if err != nil {
			return err
		}
		call, ok := goja.AssertFunction(fn)
		if !ok {
			return errors.New("module wrapper is not a function")
		}
		require := rt.ToValue(l.requireFunc(rt, t))
		_, err = call(
			goja.Undefined(),
			t.module,
			t.module.Get("exports"),
			require,
			rt.ToValue(t.path),
			require,
			rt.ToValue(l.contextFunc(rt, t)),
			rt.ToValue(injectStyle),
		)
		return err
	})
	if err != nil {
		var ex *sandbox.Exception
		if errors.As(err, &ex) {
			return &ExecError{Path: t.path, Message: ex.Error(), Stack: ex.Stack}
		}
		return err
	}
	return nil
}

// lookup returns the module of an executed or cyclic dependency.
func (l *Loader) lookup(path string) *goja.Object {
	st := l.state
	st.lock.Lock()
	defer st.lock.Unlock()
	if module, ok := st.modules[path]; ok {
		return module
	}
	if t, ok := st.inflight[path]; ok {
		return t.module
	}
	return nil
}

// requireFunc returns the synchronous require of the module code, it only returns
// dependencies loaded before the module executes.
func (l *Loader) requireFunc(rt *goja.Runtime, t *loadTask) func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		var module *goja.Object
		if path, ok := t.deps[specifier]; ok {
			module = l.lookup(path)
		}
		resolved := resolver.Resolve(t.path, specifier)
		candidates := resolver.Candidates(resolved)
		if module == nil {
			for _, c := range candidates {
				if module = l.lookup(c); module != nil {
					break
				}
			}
		}
		if module == nil {
			panic(rt.NewGoError(&DependencyError{Specifier: specifier, Path: t.path, Candidates: candidates}))
		}
		return module.Get("exports")
	}
}

// contextFunc returns the `require.context` implementation of the module code.
func (l *Loader) contextFunc(rt *goja.Runtime, t *loadTask) func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		baseDir := glob.ResolveBaseDir(t.path, call.Argument(0).String())
		recursive := call.Argument(1).ToBoolean()
		pattern := glob.DefaultPattern
		if arg := call.Argument(2); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			pattern = arg.String()
		}
		c := glob.Build(baseDir, recursive, pattern, l.knownFiles())
		exists := func(path string) bool {
			return l.lookup(path) != nil
		}

		fn := rt.ToValue(func(call goja.FunctionCall) goja.Value {
			request := call.Argument(0).String()
			path := c.Resolve(request, exists)
			module := l.lookup(path)
			if module == nil {
				panic(rt.NewGoError(&DependencyError{Specifier: request, Path: t.path, Candidates: resolver.Candidates(path)}))
			}
			return module.Get("exports")
		}).(*goja.Object)

		keys := c.Keys()
		fn.Set("keys", func(goja.FunctionCall) goja.Value {
			items := make([]any, len(keys))
			for i, k := range keys {
				items[i] = k
			}
			return rt.NewArray(items...)
		})
		fn.Set("resolve", func(call goja.FunctionCall) goja.Value {
			return rt.ToValue(c.Resolve(call.Argument(0).String(), exists))
		})
		fn.Set("id", baseDir)
		return fn
	}
}

// injectStyle is a no-op, there is no document to inject css modules into.
func injectStyle(goja.FunctionCall) goja.Value {
	return goja.Undefined()
}
