package resolver

import (
	"strings"

	"github.com/ije/gox/utils"
)

// IsRelative returns true if the specifier is relative to the importing module.
func IsRelative(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

// Normalize makes the given path a module path: slash separated, without leading
// `/` or `./` and without empty or `.` segments.
func Normalize(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	segments := strings.Split(path, "/")
	n := 0
	for _, s := range segments {
		if s != "" && s != "." {
			segments[n] = s
			n++
		}
	}
	return strings.Join(segments[:n], "/")
}

// Dir returns the directory part of the module path, "" for root level modules.
func Dir(path string) string {
	dir, _ := utils.SplitByLastByte(path, '/')
	if dir == path {
		return ""
	}
	return dir
}

// Resolve resolves the specifier against the path of the importing module.
// Non-relative specifiers are returned unchanged, there is no node_modules lookup.
// A `..` beyond the root is ignored.
func Resolve(from string, specifier string) string {
	if !IsRelative(specifier) {
		return specifier
	}
	var parts []string
	if from != "" {
		parts = strings.Split(from, "/")
		parts = parts[:len(parts)-1]
	}
	for _, p := range strings.Split(specifier, "/") {
		switch p {
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		case ".", "":
			// skip
		default:
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}

// Candidates returns the paths tried for a resolved path, in precedence order.
func Candidates(path string) []string {
	return []string{
		path,
		path + ".js",
		path + ".json",
		path + "/index.js",
		path + "/index.json",
	}
}

// TryResolveExisting returns the first candidate of the path accepted by the exists func.
func TryResolveExisting(path string, exists func(path string) bool) (string, bool) {
	for _, c := range Candidates(path) {
		if exists(c) {
			return c, true
		}
	}
	return "", false
}
