package rewriter

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/portending/ScriptFlow/internal/glob"
)

// ErrInvalidJSON is returned when a `.json` module can not be parsed.
var ErrInvalidJSON = errors.New("invalid json module")

// Kind is the kind of a module, derived from the path extension.
type Kind string

const (
	KindJS    Kind = "js"
	KindJSON  Kind = "json"
	KindCSS   Kind = "css"
	KindOther Kind = "other"
)

// KindOf returns the module kind of the path.
func KindOf(modulePath string) Kind {
	switch strings.ToLower(path.Ext(modulePath)) {
	case ".js", ".mjs", ".cjs":
		return KindJS
	case ".json":
		return KindJSON
	case ".css":
		return KindCSS
	default:
		return KindOther
	}
}

// Result is the output of a transform.
type Result struct {
	Code string
	// StaticDependencies lists the specifiers the module requires, deduplicated, in source order.
	StaticDependencies []string
	// Contexts lists the `require.context` calls of the module with the base dir resolved.
	Contexts []glob.Request
}

// Rewriter rewrites ES module syntax into calls of a CommonJS like module runtime.
type Rewriter struct {
	// RequireFunc is the name of the runtime require function, `__SF_require` by default.
	RequireFunc string
	// ContextFunc is the name of the runtime `require.context` function, `__SF_createContext` by default.
	ContextFunc string
	// StyleFunc is the name of the runtime function injecting css modules, `__SF_injectStyle` by default.
	StyleFunc string
	// ModuleVar is the name of the variable holding the current module path, `__currentModule` by default.
	ModuleVar string

	once      sync.Once
	depCallRe *regexp.Regexp
	ctxCallRe *regexp.Regexp
}

var defaultRewriter = &Rewriter{}

// Transform rewrites the module source with the default runtime names.
func Transform(modulePath string, source string) (*Result, error) {
	return defaultRewriter.Transform(modulePath, source)
}

func (r *Rewriter) init() {
	r.once.Do(func() {
		if r.RequireFunc == "" {
			r.RequireFunc = "__SF_require"
		}
		if r.ContextFunc == "" {
			r.ContextFunc = "__SF_createContext"
		}
		if r.StyleFunc == "" {
			r.StyleFunc = "__SF_injectStyle"
		}
		if r.ModuleVar == "" {
			r.ModuleVar = "__currentModule"
		}
		r.depCallRe = regexp.MustCompile(`(?:^|[^\w$.])` + regexp.QuoteMeta(r.RequireFunc) + `\(\s*("(?:[^"\\\r\n]|\\.)*")`)
		r.ctxCallRe = regexp.MustCompile(regexp.QuoteMeta(r.ContextFunc) + `\(\s*("(?:[^"\\\r\n]|\\.)*")\s*,\s*(true|false)\s*,\s*` + patternArg + `\s*,\s*` + regexp.QuoteMeta(r.ModuleVar) + `\s*\)`)
	})
}

// Transform rewrites the module source. JS sources are rewritten, JSON, CSS and any
// other text become modules exporting their content.
func (r *Rewriter) Transform(modulePath string, source string) (*Result, error) {
	r.init()
	switch KindOf(modulePath) {
	case KindJSON:
		var v any
		if err := json.Unmarshal([]byte(source), &v); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidJSON, modulePath, err)
		}
		return &Result{Code: "module.exports = JSON.parse(" + quote(source) + ");"}, nil
	case KindCSS:
		return &Result{Code: "module.exports = " + quote(source) + ";\n" + r.StyleFunc + "(module.exports, " + quote(modulePath) + ");"}, nil
	case KindOther:
		return &Result{Code: "module.exports = " + quote(source) + ";"}, nil
	}
	code := r.rewrite(StripComments(source))
	return &Result{
		Code:               code,
		StaticDependencies: r.scanDependencies(code),
		Contexts:           r.scanContexts(modulePath, code),
	}, nil
}

// quote returns the source as a JavaScript string literal.
func quote(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		// unreachable for strings
		return `""`
	}
	return string(data)
}

// unquote decodes a string literal produced by quote.
func unquote(s string) (string, bool) {
	var v string
	if json.Unmarshal([]byte(s), &v) != nil {
		return "", false
	}
	return v, true
}

func (r *Rewriter) scanDependencies(code string) []string {
	var deps []string
	seen := map[string]struct{}{}
	for _, m := range r.depCallRe.FindAllStringSubmatch(code, -1) {
		specifier, ok := unquote(m[1])
		if !ok {
			continue
		}
		if _, ok := seen[specifier]; !ok {
			seen[specifier] = struct{}{}
			deps = append(deps, specifier)
		}
	}
	return deps
}

func (r *Rewriter) scanContexts(modulePath string, code string) []glob.Request {
	var contexts []glob.Request
	for _, m := range r.ctxCallRe.FindAllStringSubmatch(code, -1) {
		dir, ok := unquote(m[1])
		if !ok {
			continue
		}
		contexts = append(contexts, glob.Request{
			BaseDir:   glob.ResolveBaseDir(modulePath, dir),
			Recursive: m[2] == "true",
			Pattern:   strings.TrimSpace(m[3]),
		})
	}
	return contexts
}
