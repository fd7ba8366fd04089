package cli

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ije/gox/log"
	"github.com/ije/gox/term"
	"github.com/portending/ScriptFlow/internal/app_dir"
	"github.com/portending/ScriptFlow/web"
)

const serveHelpMessage = `Serve a project for development: the raw files, the bundle at "/@bundle.js",
the file list at "/@files" and the module channel of "scriptflow run --lazy" at "/@modules".

Usage: scriptflow serve [dir] [options]

Arguments:
  dir          Directory to serve, default is current directory

Options:
  --port       Port to serve on, default is 3000
  --debug      Print debug logs
  --help, -h   Show help message
`

// Serve serves a project directory.
func Serve(argv []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.Int("port", 3000, "port to serve on")
	debug := fs.Bool("debug", false, "print debug logs")
	args, help, err := parseCommandFlags(fs, argv)
	if err != nil {
		return err
	}
	if help {
		fmt.Print(serveHelpMessage)
		return nil
	}

	dir, err := projectDir(args)
	if err != nil {
		return printError(err)
	}

	// the logger prints to the console too
	logFile := app_dir.LogFile("serve")
	os.MkdirAll(filepath.Dir(logFile), 0755)
	logger, err := log.New(fmt.Sprintf("file:%s?buffer=32k", logFile))
	if err != nil {
		return printError(err)
	}
	if *debug {
		logger.SetLevelByName("debug")
	} else {
		logger.SetLevelByName("info")
	}

	handler, err := web.NewHandler(web.Config{
		ProjectDir: dir,
		UserAgent:  "scriptflow/" + VERSION,
		Logger:     logger,
	})
	if err != nil {
		return printError(err)
	}
	s := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: handler,
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return printError(err)
	}

	fmt.Printf(term.Green("Server is ready on http://localhost:%d\n"), *port)
	fmt.Printf(term.Dim("Run lazily with: scriptflow run --lazy --watch ws://localhost:%d/@modules\n"), *port)
	err = s.Serve(ln)
	if err != nil {
		os.Stderr.WriteString(term.Red(err.Error()))
	}
	return err
}
