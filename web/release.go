//go:build !debug

package web

// may be changed by `-ldflags`
var VERSION = "v1"

const DEBUG = false
