package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/ije/gox/log"
	"github.com/portending/ScriptFlow/internal/bundle"
	"github.com/portending/ScriptFlow/internal/jsonc"
	"github.com/portending/ScriptFlow/internal/loader"
	"github.com/portending/ScriptFlow/internal/resolver"
)

// ManifestFile is the manifest of a project, a JSONC document at the project root.
const ManifestFile = "scriptflow.json"

// DefaultEntry is the entry of projects without manifest.
const DefaultEntry = "main.js"

// ErrInvalidManifest is returned for manifests that are not valid JSONC.
var ErrInvalidManifest = errors.New("invalid " + ManifestFile)

// Manifest describes how a project is bundled.
type Manifest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Entry string `json:"entry,omitempty"`
	// Grant lists the capabilities exposed to the script.
	Grant []string `json:"grant,omitempty"`
	// Require lists scripts loaded in the global scope before the bundle.
	Require []string `json:"require,omitempty"`
	// Styles lists css files of the project injected before the entry runs.
	Styles  []string `json:"styles,omitempty"`
	Verbose bool     `json:"verbose,omitempty"`
	Minify  bool     `json:"minify,omitempty"`
}

// Provider reads and lists the files of a project.
type Provider interface {
	loader.FileProvider
	loader.Lister
}

// ReadManifest reads the manifest of the project, a project without manifest gets the defaults.
func ReadManifest(p loader.FileProvider) (*Manifest, error) {
	m := &Manifest{}
	content, ok, err := p.GetFile(ManifestFile)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := jsonc.Unmarshal([]byte(content), m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
	}
	m.Normalize()
	return m, nil
}

// Normalize fills the defaults.
func (m *Manifest) Normalize() {
	m.Entry = resolver.Normalize(m.Entry)
	if m.Entry == "" {
		m.Entry = DefaultEntry
	}
	if m.Name == "" {
		m.Name = m.Entry
	}
}

// Options configures a build.
type Options struct {
	Logger    *log.Logger
	UserAgent string
	// Prelude replaces the download of the `require` scripts when not nil.
	Prelude []bundle.Script
}

// Result is a built bundle.
type Result struct {
	Code  string
	Graph *loader.Graph
}

// Build bundles the project: it loads the module graph of the entry, collects the
// resources and the styles, downloads the required scripts and assembles the bundle.
func Build(ctx context.Context, p Provider, m *Manifest, opts Options) (*Result, error) {
	if m == nil {
		return nil, errors.New("missing manifest")
	}
	graphOpts := []loader.GraphOption{}
	if opts.Logger != nil {
		graphOpts = append(graphOpts, loader.WithLogger(opts.Logger))
	}
	graph, err := loader.BuildGraph(m.Entry, p, graphOpts...)
	if err != nil {
		return nil, err
	}

	files, err := ReadAll(p)
	if err != nil {
		return nil, err
	}
	var styles []string
	for _, name := range m.Styles {
		css, ok := files[resolver.Normalize(name)]
		if !ok {
			return nil, fmt.Errorf("style %s not found", name)
		}
		styles = append(styles, css)
	}

	prelude := opts.Prelude
	if prelude == nil && len(m.Require) > 0 {
		prelude, err = bundle.FetchPrelude(ctx, m.Require, opts.UserAgent)
		if err != nil {
			return nil, err
		}
	}

	shim := bundle.NewShim(m.Grant, bundle.Resources(files))
	shim.Debug = m.Verbose
	code, err := bundle.Assemble(graph.Entry, graph, shim, bundle.Options{
		ID:      m.ID,
		Name:    m.Name,
		Verbose: m.Verbose,
		Minify:  m.Minify,
		Prelude: prelude,
		Styles:  styles,
	})
	if err != nil {
		return nil, err
	}
	if opts.Logger != nil {
		opts.Logger.Debugf("bundled %s: %d modules, %d missing, %d bytes", m.Entry, graph.Len(), len(graph.Missing), len(code))
	}
	return &Result{Code: code, Graph: graph}, nil
}

// ReadAll reads all files of the project.
func ReadAll(p Provider) (map[string]string, error) {
	paths, err := p.ListFiles()
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(paths))
	for _, path := range paths {
		content, ok, err := p.GetFile(path)
		if err != nil {
			return nil, err
		}
		if ok {
			files[path] = content
		}
	}
	return files, nil
}

// Hash returns a digest of the manifest and the files, bundles are cached by it.
func Hash(m *Manifest, files map[string]string) string {
	h := xxhash.New()
	write := func(s string) {
		h.WriteString(strconv.Itoa(len(s)))
		h.WriteString(":")
		h.WriteString(s)
	}
	write(m.ID)
	write(m.Name)
	write(m.Entry)
	for _, list := range [][]string{m.Grant, m.Require, m.Styles} {
		write(strconv.Itoa(len(list)))
		for _, s := range list {
			write(s)
		}
	}
	write(strconv.FormatBool(m.Verbose))
	write(strconv.FormatBool(m.Minify))
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		write(path)
		write(files[path])
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
