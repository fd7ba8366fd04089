//go:build debug

package web

import (
	"fmt"
	"time"
)

// changes on every start in debug mode
var VERSION = fmt.Sprintf("%x", time.Now().Unix())

const DEBUG = true
