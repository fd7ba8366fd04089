package cli

import (
	"fmt"
	"os"
)

// may be changed by `-ldflags`
var VERSION = "v1"

const helpMessage = "\033[30mscriptflow - Bundle and run multi-file userscripts.\033[0m" + `

Usage: scriptflow [command] [options]

Commands:
  init [dir]            Create a new project with a "scriptflow.json" manifest
  bundle [dir]          Bundle the project into a single script
  run [dir|url]         Run the project in a sandbox, modules are loaded lazily with --lazy
  serve [dir]           Serve the project files, the bundle and the module channel

Options:
  --version, -v         Show the version
  --help, -h            Display this help message
`

// Run runs the command of the arguments.
func Run() {
	if len(os.Args) < 2 {
		fmt.Print(helpMessage)
		return
	}
	var err error
	switch command, args := os.Args[1], os.Args[2:]; command {
	case "init":
		err = Init(args)
	case "bundle":
		err = Bundle(args)
	case "run":
		err = RunScript(args)
	case "serve":
		err = Serve(args)
	case "version":
		fmt.Println("scriptflow " + VERSION)
	default:
		for _, arg := range os.Args[1:] {
			if arg == "--version" {
				fmt.Println("scriptflow " + VERSION)
				return
			}
			if arg == "-v" {
				fmt.Println(VERSION)
				return
			}
		}
		fmt.Print(helpMessage)
	}
	if err != nil {
		os.Exit(1)
	}
}
