package rewriter

import (
	"errors"
	"strings"
	"testing"

	"github.com/dop251/goja"
)

func TestStripComments(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a // c\nb", "a \nb"},
		{"a /* c */ b", "a  b"},
		{"a /* multi\nline */b", "a b"},
		{`"// not" + '/* x */'`, `"// not" + '/* x */'`},
		{`"a\"//b"`, `"a\"//b"`},
		{"`${ {a:1}.a } // x`", "`${ {a:1}.a } // x`"},
		{"`a${b}` // c", "`a${b}` "},
		{"`${'}'}` /* x */ y", "`${'}'}`  y"},
		{"`${`nested ${x} // y`}`//z", "`${`nested ${x} // y`}`"},
		{"url = 'http://example.com'", "url = 'http://example.com'"},
		{`const re = /https?:\/\//; // c`, `const re = /https?:\/\//; `},
		{`if (/[/*]/.test(s)) x(); /* c */`, `if (/[/*]/.test(s)) x(); `},
		{"return /\\//g.test(s) // c", "return /\\//g.test(s) "},
		{"a = b / c // d", "a = b / c "},
		{"n = (a + 1) / 2 /* half */", "n = (a + 1) / 2 "},
		{"i++ / 2 // c", "i++ / 2 "},
	}
	for _, tt := range tests {
		if got := StripComments(tt.in); got != tt.want {
			t.Fatalf("StripComments(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTransformImports(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{
			`import * as ns from "./a.js";`,
			`const ns = __SF_require("./a.js", __currentModule);`,
		},
		{
			`import d from './a.js'`,
			`const d = (__SF_require("./a.js", __currentModule) || {}).default || __SF_require("./a.js", __currentModule);`,
		},
		{
			`import d, * as ns from "./a.js";`,
			"const ns = __SF_require(\"./a.js\", __currentModule);\nconst d = (ns || {}).default || ns;",
		},
		{
			`import d, { x } from "./a.js";`,
			"const d = (__SF_require(\"./a.js\", __currentModule) || {}).default || __SF_require(\"./a.js\", __currentModule);\nconst x = (__SF_require(\"./a.js\", __currentModule) || {}).x;",
		},
		{
			`import { a as b, c } from "./a.js";`,
			"const b = (__SF_require(\"./a.js\", __currentModule) || {}).a;\nconst c = (__SF_require(\"./a.js\", __currentModule) || {}).c;",
		},
		{
			`import { "a-b" as ab } from "./a.js";`,
			`const ab = (__SF_require("./a.js", __currentModule) || {})["a-b"];`,
		},
		{
			`import "./a.js";`,
			`__SF_require("./a.js", __currentModule);`,
		},
		{
			`const x = require("./a.js")`,
			`const x = __SF_require("./a.js", __currentModule)`,
		},
		{
			`const p = import("./lazy.js")`,
			`const p = import("./lazy.js")`,
		},
	}
	for _, tt := range tests {
		ret, err := Transform("main.js", tt.src)
		if err != nil {
			t.Fatal(err)
		}
		if ret.Code != tt.want {
			t.Fatalf("Transform(%q):\n%s\nwant:\n%s", tt.src, ret.Code, tt.want)
		}
	}
}

func TestTransformExports(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{
			`export const x = 1;`,
			"const x = 1;\n\nmodule.exports.x = x;\n",
		},
		{
			`export default function main() {}`,
			"function main() {}\n\nmodule.exports.default = main;\n",
		},
		{
			`export default async function main() {}`,
			"async function main() {}\n\nmodule.exports.default = main;\n",
		},
		{
			`export default class App {}`,
			"class App {}\n\nmodule.exports.default = App;\n",
		},
		{
			`export default class extends Base {}`,
			"module.exports.default = class extends Base {}",
		},
		{
			`export default function () {}`,
			"module.exports.default = function () {}",
		},
		{
			`export default 42;`,
			"module.exports.default = 42;",
		},
		{
			`export async function f() {}`,
			"async function f() {}\n\nmodule.exports.f = f;\n",
		},
		{
			`export function* gen() {}`,
			"function* gen() {}\n\nmodule.exports.gen = gen;\n",
		},
		{
			`export class Foo {}`,
			"class Foo {}\n\nmodule.exports.Foo = Foo;\n",
		},
		{
			`export { a as b } from "./a.js";`,
			`module.exports.b = (__SF_require("./a.js", __currentModule) || {}).a;`,
		},
		{
			`const a = 1; export { a, a as c };`,
			"const a = 1; \n\nmodule.exports.a = typeof a !== 'undefined' ? a : undefined;\nmodule.exports.c = typeof a !== 'undefined' ? a : undefined;\n",
		},
		{
			`export * from "./a.js";`,
			`(function (m) { for (const k in m) if (k !== 'default') module.exports[k] = m[k]; })(__SF_require("./a.js", __currentModule));`,
		},
		{
			`export * as ns from "./a.js";`,
			`module.exports.ns = __SF_require("./a.js", __currentModule);`,
		},
	}
	for _, tt := range tests {
		ret, err := Transform("main.js", tt.src)
		if err != nil {
			t.Fatal(err)
		}
		if ret.Code != tt.want {
			t.Fatalf("Transform(%q):\n%q\nwant:\n%q", tt.src, ret.Code, tt.want)
		}
	}
}

func TestTransformRequireContext(t *testing.T) {
	src := strings.Join([]string{
		`const a = require.context("./components", true, /\.vue$/);`,
		`const b = require.context('../shared', false);`,
		`const c = require.context("./icons", true, /\.(svg|png)$/i);`,
	}, "\n")
	ret, err := Transform("src/main.js", src)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		`const a = __SF_createContext("./components", true, /\.vue$/, __currentModule);`,
		`const b = __SF_createContext("../shared", false, /\.js$/, __currentModule);`,
		`const c = __SF_createContext("./icons", true, /\.(svg|png)$/i, __currentModule);`,
	}, "\n")
	if ret.Code != want {
		t.Fatalf("invalid code:\n%s", ret.Code)
	}
	if len(ret.Contexts) != 3 {
		t.Fatalf("invalid contexts count(%d), should be 3", len(ret.Contexts))
	}
	if c := ret.Contexts[0]; c.BaseDir != "src/components" || !c.Recursive || c.Pattern != `/\.vue$/` {
		t.Fatalf("invalid context %+v", c)
	}
	if c := ret.Contexts[1]; c.BaseDir != "shared" || c.Recursive || c.Pattern != `/\.js$/` {
		t.Fatalf("invalid context %+v", c)
	}
	if c := ret.Contexts[2]; c.Pattern != `/\.(svg|png)$/i` {
		t.Fatalf("invalid context %+v", c)
	}
	if len(ret.StaticDependencies) != 0 {
		t.Fatalf("contexts are not static dependencies: %v", ret.StaticDependencies)
	}
}

func TestStaticDependencies(t *testing.T) {
	src := strings.Join([]string{
		`import a from "./a.js";`,
		`// import z from "./z.js";`,
		`import { b } from './b.js';`,
		`/* require("./y.js") */`,
		`const c = require("./c.js");`,
		`export * from "./d.js";`,
		`export { e } from "./e.js";`,
		`import "./a.js";`,
	}, "\n")
	ret, err := Transform("main.js", src)
	if err != nil {
		t.Fatal(err)
	}
	deps := strings.Join(ret.StaticDependencies, ",")
	if deps != "./a.js,./b.js,./c.js,./d.js,./e.js" {
		t.Fatalf("invalid dependencies: %s", deps)
	}
}

func TestTransformIdempotent(t *testing.T) {
	sources := []string{
		"import d, { x as y } from './a.js';\nimport * as ns from \"./b.js\";\nexport default function main() { return y + ns.z; }\nexport const k = d;",
		"const ctx = require.context('./modules', true, /\\.js$/);\nexport { ctx };\nexport * from './c.js';",
		"export default class extends Base {}\nexport * as all from './d.js';\nexport { a as b } from './e.js';",
		"import './side.js'; // side effect\nconst t = `${1 + 1} // not a comment`;\nexport let n = 1;",
	}
	for _, src := range sources {
		first, err := Transform("src/main.js", src)
		if err != nil {
			t.Fatal(err)
		}
		second, err := Transform("src/main.js", first.Code)
		if err != nil {
			t.Fatal(err)
		}
		if first.Code != second.Code {
			t.Fatalf("transform is not idempotent:\n%s\n---\n%s", first.Code, second.Code)
		}
		if strings.Join(first.StaticDependencies, ",") != strings.Join(second.StaticDependencies, ",") {
			t.Fatalf("dependencies changed: %v != %v", first.StaticDependencies, second.StaticDependencies)
		}
		if len(first.Contexts) != len(second.Contexts) {
			t.Fatalf("contexts changed: %v != %v", first.Contexts, second.Contexts)
		}
	}
}

func TestTransformJSON(t *testing.T) {
	ret, err := Transform("data/config.json", `{"a":1}`)
	if err != nil {
		t.Fatal(err)
	}
	if ret.Code != `module.exports = JSON.parse("{\"a\":1}");` {
		t.Fatalf("invalid code: %s", ret.Code)
	}
	if len(ret.StaticDependencies) != 0 {
		t.Fatal("json modules have no dependencies")
	}
	_, err = Transform("data/bad.json", `{"a":`)
	if !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestTransformCSSAndText(t *testing.T) {
	ret, err := Transform("style.css", "body { color: red; }")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ret.Code, `__SF_injectStyle(module.exports, "style.css");`) {
		t.Fatalf("invalid css module: %s", ret.Code)
	}
	ret, err = Transform("README.md", "# hello")
	if err != nil {
		t.Fatal(err)
	}
	if ret.Code != `module.exports = "# hello";` {
		t.Fatalf("invalid text module: %s", ret.Code)
	}
}

func TestKindOf(t *testing.T) {
	tests := map[string]Kind{
		"a.js":        KindJS,
		"lib/a.mjs":   KindJS,
		"a.cjs":       KindJS,
		"a.JSON":      KindJSON,
		"s/style.css": KindCSS,
		"LICENSE":     KindOther,
		"dir.js/x":    KindOther,
	}
	for p, want := range tests {
		if got := KindOf(p); got != want {
			t.Fatalf("KindOf(%q) = %q, want %q", p, got, want)
		}
	}
}

func TestCustomRuntimeNames(t *testing.T) {
	r := &Rewriter{RequireFunc: "req", ContextFunc: "ctx", ModuleVar: "mod"}
	ret, err := r.Transform("main.js", `const a = require("./a"); const c = require.context("./c", false);`)
	if err != nil {
		t.Fatal(err)
	}
	if ret.Code != `const a = req("./a", mod); const c = ctx("./c", false, /\.js$/, mod);` {
		t.Fatalf("invalid code: %s", ret.Code)
	}
	if len(ret.StaticDependencies) != 1 || ret.StaticDependencies[0] != "./a" {
		t.Fatalf("invalid dependencies: %v", ret.StaticDependencies)
	}
	if len(ret.Contexts) != 1 || ret.Contexts[0].BaseDir != "c" {
		t.Fatalf("invalid contexts: %v", ret.Contexts)
	}
}

// run executes the transformed modules in a tiny loader and returns the exports of the entry.
func run(t *testing.T, modules map[string]string, entry string) *goja.Object {
	vm := goja.New()
	_, err := vm.RunString(`
		var __defs = {}, __cache = {};
		function __SF_require(specifier, from) {
			var key = specifier.replace(/^\.\//, "");
			if (__cache[key]) return __cache[key].exports;
			var module = { exports: {} };
			__cache[key] = module;
			__defs[key](module, module.exports, key);
			return module.exports;
		}
	`)
	if err != nil {
		t.Fatal(err)
	}
	for path, src := range modules {
		ret, err := Transform(path, src)
		if err != nil {
			t.Fatal(err)
		}
		_, err = vm.RunString(`__defs[` + quote(path) + `] = function (module, exports, __currentModule) {` + ret.Code + "\n};")
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
	}
	v, err := vm.RunString(`__SF_require(` + quote(entry) + `, "")`)
	if err != nil {
		t.Fatal(err)
	}
	return v.ToObject(vm)
}

func TestExecuteTransformed(t *testing.T) {
	exports := run(t, map[string]string{
		"a.js":      "export const x = 1;\nexport default function hello() { return 'hi'; }",
		"b.js":      "export const a = 42;\nconst hidden = 7;\nexport { hidden as seven };",
		"c.js":      "export * from './b.js';\nexport default 'c';",
		"data.json": `{"name":"scriptflow"}`,
		"main.js": strings.Join([]string{
			`import hello, { x } from "./a.js";`,
			`import { a as b } from "./b.js";`,
			`import * as ns from "./b.js";`,
			`import c, * as all from "./c.js";`,
			`const data = require("./data.json");`,
			`export const result = [hello(), x, b, ns.seven, c, all.a, data.name].join(",");`,
		}, "\n"),
	}, "./main.js")
	if got := exports.Get("result").String(); got != "hi,1,42,7,c,42,scriptflow" {
		t.Fatalf("invalid result: %s", got)
	}
}
