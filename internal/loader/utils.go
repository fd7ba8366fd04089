package loader

import (
	"github.com/goccy/go-json"
)

// quote returns s as a JavaScript string literal.
func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
