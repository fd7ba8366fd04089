package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ije/gox/term"
	"github.com/portending/ScriptFlow/internal/project"
)

const bundleHelpMessage = `Bundle a project into a single script.

Usage: scriptflow bundle [dir] [options]

Arguments:
  dir          Project directory, default is current directory

Options:
  --entry      Entry module, overrides the manifest
  --grant      Comma separated capabilities, overrides the manifest
  --out, -o    Output file, default is stdout
  --minify     Minify the bundle
  --verbose    Log the script lifecycle and detailed errors
  --help, -h   Show help message
`

type bundleFlags struct {
	entry   string
	grant   string
	out     string
	minify  bool
	verbose bool
}

func (f *bundleFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.entry, "entry", "", "entry module")
	fs.StringVar(&f.grant, "grant", "", "comma separated capabilities")
	fs.BoolVar(&f.minify, "minify", false, "minify the bundle")
	fs.BoolVar(&f.verbose, "verbose", false, "verbose logging")
}

// apply applies the flags to the manifest.
func (f *bundleFlags) apply(m *project.Manifest) {
	if f.entry != "" {
		if m.Name == m.Entry {
			m.Name = ""
		}
		m.Entry = f.entry
	}
	if f.grant != "" {
		m.Grant = splitList(f.grant)
	}
	m.Minify = m.Minify || f.minify
	m.Verbose = m.Verbose || f.verbose
	m.Normalize()
}

// Bundle bundles a project directory.
func Bundle(argv []string) error {
	fs := flag.NewFlagSet("bundle", flag.ContinueOnError)
	var flags bundleFlags
	flags.register(fs)
	fs.StringVar(&flags.out, "out", "", "output file")
	fs.StringVar(&flags.out, "o", "", "output file")
	args, help, err := parseCommandFlags(fs, argv)
	if err != nil {
		return err
	}
	if help {
		fmt.Print(bundleHelpMessage)
		return nil
	}

	dir, err := projectDir(args)
	if err != nil {
		return printError(err)
	}
	start := time.Now()
	ret, m, err := bundleProject(context.Background(), dir, &flags)
	if err != nil {
		return printError(err)
	}

	if flags.out == "" {
		_, err = os.Stdout.WriteString(ret.Code)
		return err
	}
	if err = os.MkdirAll(filepath.Dir(flags.out), 0755); err != nil {
		return printError(err)
	}
	if err = os.WriteFile(flags.out, []byte(ret.Code), 0644); err != nil {
		return printError(err)
	}
	fmt.Fprintf(os.Stderr, term.Green("✔ Bundled %s")+term.Dim(" (%d modules, %d bytes, %v)")+"\n", m.Name, ret.Graph.Len(), len(ret.Code), time.Since(start).Round(time.Millisecond))
	for _, dep := range ret.Graph.Missing {
		fmt.Fprintln(os.Stderr, term.Dim(fmt.Sprintf("  missing %q imported by %s", dep.Specifier, dep.From)))
	}
	return nil
}

func bundleProject(ctx context.Context, dir string, flags *bundleFlags) (*project.Result, *project.Manifest, error) {
	provider, err := openProject(dir)
	if err != nil {
		return nil, nil, err
	}
	m, err := project.ReadManifest(provider)
	if err != nil {
		return nil, nil, err
	}
	flags.apply(m)
	ret, err := project.Build(ctx, provider, m, project.Options{UserAgent: "scriptflow/" + VERSION})
	if err != nil {
		return nil, nil, err
	}
	return ret, m, nil
}
