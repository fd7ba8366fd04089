package mime

import (
	"path"
	"strings"
)

// types of the files a userscript project is made of, text types are utf-8.
var types = map[string][]string{
	"application/javascript": {"js", "mjs", "cjs"},
	"application/json":       {"json", "map"},
	"application/jsonc":      {"jsonc"},
	"application/wasm":       {"wasm"},
	"application/xml":        {"xml"},
	"font/woff2":             {"woff2"},
	"image/gif":              {"gif"},
	"image/jpeg":             {"jpg", "jpeg"},
	"image/png":              {"png"},
	"image/svg+xml":          {"svg"},
	"image/webp":             {"webp"},
	"image/x-icon":           {"ico"},
	"text/css":               {"css"},
	"text/csv":               {"csv"},
	"text/html":              {"html", "htm"},
	"text/markdown":          {"md", "markdown"},
	"text/plain":             {"txt"},
	"text/yaml":              {"yaml", "yml"},
}

var byExt = map[string]string{}

func init() {
	for t, exts := range types {
		if IsText(t) {
			t += "; charset=utf-8"
		}
		for _, ext := range exts {
			byExt["."+ext] = t
		}
	}
}

// IsText reports whether the mime type is a text type.
func IsText(mimeType string) bool {
	switch mimeType {
	case "application/javascript", "application/json", "application/jsonc", "application/xml", "image/svg+xml":
		return true
	}
	return strings.HasPrefix(mimeType, "text/")
}

// ContentType returns the Content-Type header value of the file,
// `application/octet-stream` for unknown extensions.
func ContentType(filename string) string {
	if t, ok := byExt[strings.ToLower(path.Ext(filename))]; ok {
		return t
	}
	return "application/octet-stream"
}
