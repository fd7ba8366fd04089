package main

import (
	"github.com/portending/ScriptFlow/cli"
)

func main() {
	cli.Run()
}
