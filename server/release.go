//go:build !debug

package server

// production mode
const DEBUG = false

// may be changed by `-ldflags`
var VERSION = "v1"
