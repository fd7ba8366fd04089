package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ije/gox/term"
	"github.com/portending/ScriptFlow/internal/bundle"
	"github.com/portending/ScriptFlow/internal/channel"
	"github.com/portending/ScriptFlow/internal/loader"
	"github.com/portending/ScriptFlow/internal/project"
	"github.com/portending/ScriptFlow/internal/sandbox"
)

const runHelpMessage = `Run a project in a sandbox.

Usage: scriptflow run [dir|url] [options]

Arguments:
  dir|url      Project directory, default is current directory. With --lazy, the
               project may also be a "scriptflow serve" url: http(s)://host/ reads
               the files over HTTP, ws(s)://host/@modules over the module channel

Options:
  --lazy       Load the modules on demand instead of running the bundle
  --watch      Run again when a module changes, requires a ws(s) url
  --entry      Entry module, overrides the manifest
  --grant      Comma separated capabilities, overrides the manifest
  --minify     Minify the bundle
  --verbose    Log the script lifecycle and detailed errors
  --timeout    Execution timeout, default is 30s
  --help, -h   Show help message
`

// errScript is returned when the script logged errors.
var errScript = errors.New("script error")

// RunScript runs a project in a sandbox.
func RunScript(argv []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var flags bundleFlags
	var lazy, watch bool
	var timeout time.Duration
	flags.register(fs)
	fs.BoolVar(&lazy, "lazy", false, "load the modules on demand")
	fs.BoolVar(&watch, "watch", false, "run again on changes")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "execution timeout")
	args, help, err := parseCommandFlags(fs, argv)
	if err != nil {
		return err
	}
	if help {
		fmt.Print(runHelpMessage)
		return nil
	}

	if !lazy {
		dir, err := projectDir(args)
		if err != nil {
			return printError(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ret, m, err := bundleProject(ctx, dir, &flags)
		if err != nil {
			return printError(err)
		}
		sb := sandbox.New(sandbox.Options{Name: m.Name})
		_, err = sb.Run(ctx, m.Entry, ret.Code)
		return report(os.Stdout, sb, err)
	}

	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	src, err := openSource(target)
	if err != nil {
		return printError(err)
	}
	defer src.Close()

	cached, err := loader.NewCachedProvider(src.provider, 0, 0)
	if err != nil {
		return printError(err)
	}
	defer cached.Close()

	m, err := project.ReadManifest(cached)
	if err != nil {
		return printError(err)
	}
	flags.apply(m)

	runOnce := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		sb := sandbox.New(sandbox.Options{Name: m.Name})
		err := runLazy(ctx, sb, cached, m)
		return report(os.Stdout, sb, err)
	}
	err = runOnce()
	if !watch {
		return err
	}
	if src.client == nil {
		return printError(errors.New("--watch requires a ws(s) url"))
	}
	fmt.Println(term.Dim("Watching for changes..."))
	for change := range src.client.Changes() {
		cached.Invalidate(change.Path)
		fmt.Println(term.Cyan("↻ " + change.Path + " changed"))
		runOnce()
	}
	return src.client.Err()
}

// runLazy installs the prelude scripts and the capabilities, then requires the entry.
func runLazy(ctx context.Context, sb *sandbox.Sandbox, provider *loader.CachedProvider, m *project.Manifest) error {
	if len(m.Require) > 0 {
		prelude, err := bundle.FetchPrelude(ctx, m.Require, "scriptflow/"+VERSION)
		if err != nil {
			return err
		}
		for _, script := range prelude {
			if _, err := sb.Run(ctx, script.URL, script.Code); err != nil {
				return err
			}
		}
	}
	shim := bundle.NewShim(m.Grant, nil)
	shim.Debug = m.Verbose
	if _, err := sb.Run(ctx, "shim.js", shim.Script()); err != nil {
		return err
	}
	l := loader.NewLoader(provider, sb, loader.LoaderOptions{})
	_, err := l.Require(ctx, "./"+m.Entry, "")
	return err
}

// report prints the console output of the sandbox and the error.
func report(w io.Writer, sb *sandbox.Sandbox, err error) error {
	failed := false
	for _, line := range sb.Output() {
		switch line.Level {
		case "error":
			failed = true
			fmt.Fprintln(w, term.Red(line.Text))
		case "debug":
			fmt.Fprintln(w, term.Dim(line.Text))
		default:
			fmt.Fprintln(w, line.Text)
		}
	}
	if err != nil {
		return printError(err)
	}
	if failed {
		return errScript
	}
	return nil
}

// source is where the lazy loader reads the modules from.
type source struct {
	provider loader.AsyncProvider
	client   *channel.Client
}

func (s *source) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func openSource(target string) (*source, error) {
	switch {
	case strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://"):
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := channel.Dial(ctx, target, nil)
		if err != nil {
			return nil, err
		}
		return &source{provider: client, client: client}, nil
	case strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://"):
		provider, err := loader.NewHTTPProvider(target, "scriptflow/"+VERSION, 30)
		if err != nil {
			return nil, err
		}
		return &source{provider: provider}, nil
	default:
		var args []string
		if target != "" {
			args = []string{target}
		}
		dir, err := projectDir(args)
		if err != nil {
			return nil, err
		}
		provider, err := openProject(dir)
		if err != nil {
			return nil, err
		}
		return &source{provider: provider}, nil
	}
}
