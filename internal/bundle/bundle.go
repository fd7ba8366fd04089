package bundle

import (
	"crypto/sha1"
	_ "embed"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/portending/ScriptFlow/internal/loader"
)

//go:embed runtime.js
var runtimeJS string

// Options configures the bundle assembly.
type Options struct {
	// ID identifies the script in the idempotency guard, derived from the name and entry if empty.
	ID   string
	Name string
	// Verbose logs the load and reports errors with type, message and stack.
	Verbose bool
	Minify  bool
	// Prelude are scripts executed in the global scope before the guard, e.g. `@require` urls.
	Prelude []Script
	// Styles are css sheets injected before the entry runs.
	Styles []string
}

// Script is a prelude script.
type Script struct {
	URL  string
	Code string
}

// Assemble assembles the modules of the graph into a self-contained script that runs
// the entry module once per page. The shim may be nil, then no capability is granted.
func Assemble(entry string, graph *loader.Graph, shim *Shim, opts Options) (string, error) {
	if graph == nil {
		return "", errors.New("missing module graph")
	}
	if entry == "" {
		entry = graph.Entry
	}
	if !graph.Has(entry) {
		return "", &loader.NotFoundError{Specifier: entry, Resolved: entry}
	}
	if shim == nil {
		shim = NewShim([]string{GrantNone}, nil)
	}
	id := opts.ID
	if id == "" {
		id = ScriptID(opts.Name, entry)
	}
	guard := "globalThis[" + quote("__SF_SCRIPT_"+id+"_RUNNING") + "]"

	var b strings.Builder
	for _, s := range opts.Prelude {
		if s.URL != "" {
			b.WriteString("// @require " + s.URL + "\n")
		}
		b.WriteString(s.Code)
		b.WriteString("\n;\n")
	}
	b.WriteString("(function () {\n")
	b.WriteString("if (" + guard + ") return;\n")
	b.WriteString(guard + " = true;\n")
	b.WriteString("try {\n")
	b.WriteString(shim.Script())
	b.WriteString(runtimeJS)
	for _, m := range graph.Modules() {
		b.WriteString("__SF_modules[" + quote(m.Path) + "] = function (module, exports, require, __currentModule) {\n")
		b.WriteString(m.Code)
		b.WriteString("\n};\n")
	}
	for i, css := range opts.Styles {
		b.WriteString("__SF_injectStyle(" + quote(css) + ", " + quote("style-"+strconv.Itoa(i)) + ");\n")
	}
	if opts.Verbose {
		b.WriteString("console.log(" + quote("ScriptFlow multi-file script loaded: "+displayName(opts.Name)) + ");\n")
	}
	b.WriteString("__SF_require(" + quote(entry) + ", \"\");\n")
	if opts.Verbose {
		b.WriteString("console.log(\"Script executed successfully\");\n")
	}
	b.WriteString("} catch (e) {\n")
	if opts.Verbose {
		b.WriteString("console.error(\"ScriptFlow User Script Error\");\n")
		b.WriteString("console.error(" + quote("Script Name: "+displayName(opts.Name)) + ");\n")
		b.WriteString("console.error(\"Error Type:\", (e && e.name) || \"Error\");\n")
		b.WriteString("console.error(\"Message:\", (e && e.message) || String(e));\n")
		b.WriteString("console.error(\"Stack:\", (e && e.stack) || \"No stack trace\");\n")
	} else {
		b.WriteString("console.error(\"[ScriptFlow] User script error:\", (e && e.message) || String(e));\n")
	}
	b.WriteString("}\n")
	b.WriteString("})();\n")

	code := b.String()
	if opts.Minify {
		return Minify(code)
	}
	return code, nil
}

// ScriptID returns a stable id of the script.
func ScriptID(name string, entry string) string {
	sum := sha1.Sum([]byte(name + "\n" + entry))
	return hex.EncodeToString(sum[:])[:12]
}

func displayName(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}

// quote returns s as a JavaScript string literal.
func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
