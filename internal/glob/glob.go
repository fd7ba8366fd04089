package glob

import (
	"errors"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/portending/ScriptFlow/internal/resolver"
)

// DefaultPattern is used when a `require.context` call omits the pattern argument.
const DefaultPattern = `/\.js$/`

// Request describes a `require.context(dir, recursive, pattern)` call.
type Request struct {
	BaseDir   string
	Recursive bool
	Pattern   string
}

// Context is the result of a `require.context` call over a set of known module paths.
type Context struct {
	Request
	matched []string
}

// ResolveBaseDir resolves the directory argument of a `require.context` call made by
// the module at `from`. Relative directories are resolved against the module directory.
func ResolveBaseDir(from string, dir string) string {
	if resolver.IsRelative(dir) || dir == "." || dir == ".." {
		return resolver.Normalize(resolver.Resolve(from, strings.TrimSuffix(dir, "/")+"/"))
	}
	return resolver.Normalize(dir)
}

// Build creates a context that matches the known paths against the request.
func Build(baseDir string, recursive bool, pattern string, known []string) *Context {
	ctx := &Context{Request: Request{BaseDir: resolver.Normalize(baseDir), Recursive: recursive, Pattern: pattern}}
	re, err := CompilePattern(pattern)
	for _, p := range known {
		if !ctx.inScope(p) {
			continue
		}
		if re != nil && err == nil {
			ok, e := re.MatchString(p)
			if e == nil && !ok {
				continue
			}
		}
		ctx.matched = append(ctx.matched, p)
	}
	sort.Strings(ctx.matched)
	return ctx
}

func (ctx *Context) prefix() string {
	if ctx.BaseDir == "" {
		return ""
	}
	return ctx.BaseDir + "/"
}

func (ctx *Context) inScope(p string) bool {
	prefix := ctx.prefix()
	if !strings.HasPrefix(p, prefix) || p == prefix {
		return false
	}
	if ctx.Recursive {
		return true
	}
	return !strings.Contains(p[len(prefix):], "/")
}

// Paths returns the full module paths matched by the context.
func (ctx *Context) Paths() []string {
	return ctx.matched
}

// Keys returns the matched paths relative to the base directory, e.g. `./sub/b.js`.
func (ctx *Context) Keys() []string {
	keys := make([]string, len(ctx.matched))
	prefix := ctx.prefix()
	for i, p := range ctx.matched {
		keys[i] = "./" + strings.TrimPrefix(p, prefix)
	}
	return keys
}

// Resolve resolves the request against the base directory without loading it.
// If no candidate exists the resolved path is returned as is.
func (ctx *Context) Resolve(request string, exists func(path string) bool) string {
	resolved := resolver.Resolve(ctx.prefix()+"index.js", request)
	if exists != nil {
		if p, ok := resolver.TryResolveExisting(resolved, exists); ok {
			return p
		}
	}
	return resolved
}

// Match reports whether the path is in the context.
func (ctx *Context) Match(p string) bool {
	i := sort.SearchStrings(ctx.matched, p)
	return i < len(ctx.matched) && ctx.matched[i] == p
}

// CompilePattern compiles a JavaScript regular expression literal like `/\.js$/i`.
// An empty pattern returns a nil regexp and no error.
func CompilePattern(pattern string) (*regexp2.Regexp, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil
	}
	if !strings.HasPrefix(pattern, "/") {
		return nil, errors.New("pattern is not a regular expression literal")
	}
	end := strings.LastIndexByte(pattern, '/')
	if end <= 0 {
		return nil, errors.New("unterminated regular expression literal")
	}
	source, flags := pattern[1:end], pattern[end+1:]
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			// dotall is not supported in ECMAScript mode of regexp2
			opts = (opts &^ regexp2.ECMAScript) | regexp2.Singleline
		case 'g', 'y', 'u', 'd':
			// no effect on a single test
		default:
			return nil, errors.New("invalid regular expression flag: " + string(f))
		}
	}
	return regexp2.Compile(source, opts)
}
