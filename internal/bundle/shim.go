package bundle

import (
	"sort"
	"strings"

	"github.com/ije/gox/set"
	"github.com/portending/ScriptFlow/internal/rewriter"
)

// GrantNone disables every capability, including the implicit `GM_setHTML`.
const GrantNone = "none"

// MaxResourceSize is the size limit of a file exposed to `GM_getResourceText`.
const MaxResourceSize = 50000

type capability struct {
	name string
	code string
}

// capabilities are the grantable APIs in the order they are installed.
var capabilities = []capability{
	{"GM_addStyle", `(c) => { const s = document.createElement("style"); s.textContent = c; (document.head || document.documentElement).appendChild(s); return s; }`},
	{"GM_setValue", `(k, v) => localStorage.setItem("GM_" + k, JSON.stringify(v))`},
	{"GM_getValue", `(k, d) => {
		const v = localStorage.getItem("GM_" + k);
		if (v === null || v === "" || v === "undefined") return d;
		try {
			return JSON.parse(v);
		} catch (e) {
			console.error("ScriptFlow: Failed to parse GM_getValue for key", k, "with value:", v);
			return d;
		}
	}`},
	{"GM_deleteValue", `(k) => localStorage.removeItem("GM_" + k)`},
	{"GM_listValues", `() => {
		const keys = [];
		for (let i = 0; i < localStorage.length; i++) {
			const k = localStorage.key(i);
			if (k !== null && k.startsWith("GM_")) keys.push(k.slice(3));
		}
		return keys;
	}`},
	{"GM_xmlhttpRequest", `(d) => {
		const x = new XMLHttpRequest();
		x.onreadystatechange = () => {
			if (x.readyState !== 4) return;
			const r = { status: x.status, statusText: x.statusText, responseText: x.responseText, responseHeaders: x.getAllResponseHeaders() };
			const cb = x.status >= 200 && x.status < 300 ? d.onload : d.onerror;
			if (typeof cb === "function") cb(r);
		};
		x.open(d.method || "GET", d.url, true);
		if (d.headers) for (const h in d.headers) x.setRequestHeader(h, d.headers[h]);
		x.send(d.data || null);
		return { abort: () => x.abort() };
	}`},
	{"GM_getResourceText", `(n) => Object.prototype.hasOwnProperty.call(GM_API.resources, n) ? GM_API.resources[n] : null`},
	{"GM_openInTab", `(u) => globalThis.open(u, "_blank")`},
	{"GM_setClipboard", `(t) => navigator.clipboard.writeText(t)`},
	{"GM_info", `{ scriptHandler: "ScriptFlow", version: "1.0" }`},
	{"GM_setHTML", `(el, html) => { if (!el) return; el.innerHTML = GM_API.policy.createHTML(html); }`},
	{"GM_getMemory", `() => {
		const p = globalThis.performance;
		if (p && typeof p.measureUserAgentSpecificMemory === "function") return p.measureUserAgentSpecificMemory();
		if (p && p.memory) return Promise.resolve({ bytes: p.memory.usedJSHeapSize, breakdown: [] });
		return Promise.reject(new Error("memory measurement is not available"));
	}`},
}

var knownCapabilities = func() *set.ReadOnlySet[string] {
	names := make([]string, len(capabilities))
	for i, c := range capabilities {
		names[i] = c.name
	}
	return set.NewReadOnly(names...)
}()

const trustedTypesPolicy = `let __SF_policy = { createHTML: (s) => s };
try {
	if (globalThis.trustedTypes && trustedTypes.createPolicy) {
		__SF_policy = trustedTypes.createPolicy("scriptflow#api", { createHTML: (s) => s });
	}
} catch (e) {
	if (globalThis.trustedTypes && trustedTypes.policies && trustedTypes.policies.get) {
		__SF_policy = trustedTypes.policies.get("scriptflow#api") || __SF_policy;
	}
}`

// Shim is the capability table a bundle exposes to the user script.
type Shim struct {
	grants    []string
	granted   *set.ReadOnlySet[string]
	resources map[string]string
	// Debug adds a `debugLogging` flag to the api object.
	Debug bool
}

// NewShim creates a shim with the granted capabilities. Unknown names are ignored,
// `GM_setHTML` is granted unless the list contains `none`.
func NewShim(grants []string, resources map[string]string) *Shim {
	requested := set.New[string]()
	for _, g := range grants {
		requested.Add(strings.TrimSpace(g))
	}
	var effective []string
	if !requested.Has(GrantNone) {
		requested.Add("GM_setHTML")
		for _, c := range capabilities {
			if requested.Has(c.name) {
				effective = append(effective, c.name)
			}
		}
	}
	return &Shim{
		grants:    effective,
		granted:   set.NewReadOnly(effective...),
		resources: resources,
	}
}

// Grants returns the effective capability names in install order.
func (s *Shim) Grants() []string {
	return s.grants
}

// Has reports whether the capability is granted.
func (s *Shim) Has(name string) bool {
	return s.granted.Has(name)
}

// Script returns the code declaring `GM_API` and installing it on `globalThis`.
func (s *Shim) Script() string {
	parts := []string{
		"unsafeWindow: globalThis",
		`GM_log: console.log.bind(console, "[SF]")`,
	}
	if s.Debug {
		parts = append(parts, "debugLogging: true")
	}
	for _, c := range capabilities {
		if s.granted.Has(c.name) {
			parts = append(parts, c.name+": "+c.code)
		}
	}
	parts = append(parts, "resources: "+s.resourcesObject(), "policy: __SF_policy")

	var b strings.Builder
	b.WriteString(trustedTypesPolicy)
	b.WriteString("\nconst GM_API = {\n\t")
	b.WriteString(strings.Join(parts, ",\n\t"))
	b.WriteString("\n};\nglobalThis.GM = GM_API;\nObject.assign(globalThis, GM_API);\n")
	return b.String()
}

func (s *Shim) resourcesObject() string {
	if len(s.resources) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(s.resources))
	for name := range s.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make([]string, len(names))
	for i, name := range names {
		entries[i] = quote(name) + ": " + quote(s.resources[name])
	}
	return "{ " + strings.Join(entries, ", ") + " }"
}

// IsCapability reports whether the name is a grantable capability.
func IsCapability(name string) bool {
	return knownCapabilities.Has(name)
}

// Resources picks the files exposed to `GM_getResourceText`: files that are not
// modules and smaller than MaxResourceSize.
func Resources(files map[string]string) map[string]string {
	resources := map[string]string{}
	for path, content := range files {
		if rewriter.KindOf(path) == rewriter.KindOther && len(content) < MaxResourceSize {
			resources[path] = content
		}
	}
	return resources
}
