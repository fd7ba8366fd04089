package main

import (
	"github.com/portending/ScriptFlow/server"
)

func main() {
	server.Serve()
}
