package rewriter

import (
	"regexp"
	"strings"

	"github.com/portending/ScriptFlow/internal/glob"
)

const (
	ident = `([A-Za-z0-9_$]+)`
	// a quoted specifier, the two groups hold the double or single quoted text
	specifier = `(?:"([^'"]+)"|'([^'"]+)')`
	// the pattern argument of `require.context`, a regexp literal or any other expression
	patternArg = `(/(?:\\.|[^/\\\r\n])+/[a-z]*|[^)]+?)`
)

var (
	regRequireContext = regexp.MustCompile(`\brequire\.context\s*\(\s*` + specifier + `\s*,\s*(true|false)\s*(?:,\s*` + patternArg + `)?\s*\)`)
	regRequire        = regexp.MustCompile(`\brequire\s*\(\s*` + specifier + `\s*\)`)

	regImportNamespace        = regexp.MustCompile(`\bimport\s+\*\s*as\s+` + ident + `\s+from\s*` + specifier + `;?`)
	regImportDefault          = regexp.MustCompile(`\bimport\s+` + ident + `\s+from\s*` + specifier + `;?`)
	regImportDefaultNamespace = regexp.MustCompile(`\bimport\s+` + ident + `\s*,\s*\*\s*as\s+` + ident + `\s+from\s*` + specifier + `;?`)
	regImportDefaultNamed     = regexp.MustCompile(`\bimport\s+` + ident + `\s*,\s*\{([^}]*)\}\s*from\s*` + specifier + `;?`)
	regImportNamed            = regexp.MustCompile(`\bimport\s*\{([^}]*)\}\s*from\s*` + specifier + `;?`)
	regImportSideEffect       = regexp.MustCompile(`\bimport\s*` + specifier + `;?`)

	regExportDefaultFunction  = regexp.MustCompile(`\bexport\s+default\s+(async\s+)?function(\s*\*\s*|\s+)` + ident + `\s*\(`)
	regExportDefaultClass     = regexp.MustCompile(`\bexport\s+default\s+class\s+` + ident)
	regExportDefaultAnonymous = regexp.MustCompile(`\bexport\s+default\s+(async\s+)?(function|class)(\s*\*)?(\s*\()`)
	regExportDefault          = regexp.MustCompile(`\bexport\s+default\s+`)
	regExportFunction         = regexp.MustCompile(`\bexport\s+(async\s+)?function(\s*\*\s*|\s+)` + ident + `\s*\(`)
	regExportClass            = regexp.MustCompile(`\bexport\s+class\s+` + ident)
	regExportVar              = regexp.MustCompile(`\bexport\s+(const|let|var)\s+` + ident + `\s*=`)
	regExportFrom             = regexp.MustCompile(`\bexport\s*\{([^}]*)\}\s*from\s*` + specifier + `;?`)
	regExportList             = regexp.MustCompile(`\bexport\s*\{([^}]*)\}\s*;?`)
	regExportStarAs           = regexp.MustCompile(`\bexport\s*\*\s*as\s+` + ident + `\s+from\s*` + specifier + `;?`)
	regExportStar             = regexp.MustCompile(`\bexport\s*\*\s*from\s*` + specifier + `;?`)
	regExportKeyword          = regexp.MustCompile(`\bexport\s+`)

	regAsBinding = regexp.MustCompile(`^(.+?)\s+as\s+(.+)$`)
)

// binding is an `a as b` pair of an import or export list.
type binding struct {
	name  string
	alias string
}

func parseBindings(list string) []binding {
	var bindings []binding
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if m := regAsBinding.FindStringSubmatch(part); m != nil {
			bindings = append(bindings, binding{strings.TrimSpace(m[1]), strings.TrimSpace(m[2])})
		} else {
			bindings = append(bindings, binding{part, part})
		}
	}
	return bindings
}

// replaceAll replaces every match of re in src with the result of repl, which receives
// the submatches of the match. Unmatched groups are empty strings.
func replaceAll(re *regexp.Regexp, src string, repl func(m []string) string) string {
	locs := re.FindAllStringSubmatchIndex(src, -1)
	if len(locs) == 0 {
		return src
	}
	var buf strings.Builder
	buf.Grow(len(src))
	last := 0
	for _, loc := range locs {
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = src[loc[2*i]:loc[2*i+1]]
			}
		}
		buf.WriteString(src[last:loc[0]])
		buf.WriteString(repl(m))
		last = loc[1]
	}
	buf.WriteString(src[last:])
	return buf.String()
}

// either returns the non-empty one of the two specifier groups.
func either(double string, single string) string {
	if double != "" {
		return double
	}
	return single
}

func functionHead(async string, star string, name string) string {
	head := "function "
	if strings.Contains(star, "*") {
		head = "function* "
	}
	if async != "" {
		head = "async " + head
	}
	return head + name + "("
}

// rewrite applies the rewrite rules to a comment free JS source.
func (r *Rewriter) rewrite(src string) string {
	var assignments []string
	out := src

	req := func(specifier string) string {
		return r.RequireFunc + "(" + quote(specifier) + ", " + r.ModuleVar + ")"
	}

	out = replaceAll(regRequireContext, out, func(m []string) string {
		pattern := strings.TrimSpace(m[4])
		if pattern == "" {
			pattern = glob.DefaultPattern
		}
		return r.ContextFunc + "(" + quote(either(m[1], m[2])) + ", " + m[3] + ", " + pattern + ", " + r.ModuleVar + ")"
	})
	out = replaceAll(regRequire, out, func(m []string) string {
		return req(either(m[1], m[2]))
	})

	// imports
	out = replaceAll(regImportNamespace, out, func(m []string) string {
		return "const " + m[1] + " = " + req(either(m[2], m[3])) + ";"
	})
	out = replaceAll(regImportDefault, out, func(m []string) string {
		call := req(either(m[2], m[3]))
		return "const " + m[1] + " = (" + call + " || {}).default || " + call + ";"
	})
	out = replaceAll(regImportDefaultNamespace, out, func(m []string) string {
		ns := m[2]
		return "const " + ns + " = " + req(either(m[3], m[4])) + ";\nconst " + m[1] + " = (" + ns + " || {}).default || " + ns + ";"
	})
	out = replaceAll(regImportDefaultNamed, out, func(m []string) string {
		call := req(either(m[3], m[4]))
		stmt := "const " + m[1] + " = (" + call + " || {}).default || " + call + ";"
		if named := destructure(m[2], call); named != "" {
			stmt += "\n" + named
		}
		return stmt
	})
	out = replaceAll(regImportNamed, out, func(m []string) string {
		call := req(either(m[2], m[3]))
		if named := destructure(m[1], call); named != "" {
			return named
		}
		return call + ";"
	})
	out = replaceAll(regImportSideEffect, out, func(m []string) string {
		return req(either(m[1], m[2])) + ";"
	})

	// default exports
	out = replaceAll(regExportDefaultFunction, out, func(m []string) string {
		assignments = append(assignments, "module.exports.default = "+m[3]+";")
		return functionHead(m[1], m[2], m[3])
	})
	out = replaceAll(regExportDefaultClass, out, func(m []string) string {
		if m[1] == "extends" {
			// anonymous class with a heritage clause
			return "module.exports.default = class extends"
		}
		assignments = append(assignments, "module.exports.default = "+m[1]+";")
		return "class " + m[1]
	})
	out = replaceAll(regExportDefaultAnonymous, out, func(m []string) string {
		return "module.exports.default = " + m[1] + m[2] + m[3] + m[4]
	})
	out = regExportDefault.ReplaceAllLiteralString(out, "module.exports.default = ")

	// named declarations
	out = replaceAll(regExportFunction, out, func(m []string) string {
		assignments = append(assignments, "module.exports."+m[3]+" = "+m[3]+";")
		return functionHead(m[1], m[2], m[3])
	})
	out = replaceAll(regExportClass, out, func(m []string) string {
		assignments = append(assignments, "module.exports."+m[1]+" = "+m[1]+";")
		return "class " + m[1]
	})
	out = replaceAll(regExportVar, out, func(m []string) string {
		assignments = append(assignments, "module.exports."+m[2]+" = "+m[2]+";")
		return m[1] + " " + m[2] + " ="
	})

	// export lists
	out = replaceAll(regExportFrom, out, func(m []string) string {
		call := req(either(m[2], m[3]))
		bindings := parseBindings(m[1])
		if len(bindings) == 0 {
			return call + ";"
		}
		lines := make([]string, len(bindings))
		for i, b := range bindings {
			lines[i] = "module.exports." + b.alias + " = (" + call + " || {})." + b.name + ";"
		}
		return strings.Join(lines, "\n")
	})
	out = replaceAll(regExportList, out, func(m []string) string {
		for _, b := range parseBindings(m[1]) {
			assignments = append(assignments, "module.exports."+b.alias+" = typeof "+b.name+" !== 'undefined' ? "+b.name+" : undefined;")
		}
		return ""
	})
	out = replaceAll(regExportStarAs, out, func(m []string) string {
		return "module.exports." + m[1] + " = " + req(either(m[2], m[3])) + ";"
	})
	out = replaceAll(regExportStar, out, func(m []string) string {
		return "(function (m) { for (const k in m) if (k !== 'default') module.exports[k] = m[k]; })(" + req(either(m[1], m[2])) + ");"
	})

	out = regExportKeyword.ReplaceAllLiteralString(out, "")

	if len(assignments) > 0 {
		out += "\n\n" + strings.Join(assignments, "\n") + "\n"
	}
	return out
}

// destructure returns one `const b = (call || {}).a;` statement per binding of an import list.
func destructure(list string, call string) string {
	bindings := parseBindings(list)
	if len(bindings) == 0 {
		return ""
	}
	stmts := make([]string, len(bindings))
	for i, b := range bindings {
		prop := "." + b.name
		if strings.HasPrefix(b.name, `"`) || strings.HasPrefix(b.name, "'") {
			// string import name, e.g. `import { "a-b" as ab }`
			prop = "[" + b.name + "]"
		}
		stmts[i] = "const " + b.alias + " = (" + call + " || {})" + prop + ";"
	}
	return strings.Join(stmts, "\n")
}
