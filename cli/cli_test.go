package cli

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/portending/ScriptFlow/internal/loader"
	"github.com/portending/ScriptFlow/internal/project"
	"github.com/portending/ScriptFlow/internal/sandbox"
)

func TestParseCommandFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	out := fs.String("out", "", "")
	minify := fs.Bool("minify", false, "")
	args, help, err := parseCommandFlags(fs, []string{"app", "--out", "dist/a.js", "--minify", "extra", "--", "--not-a-flag"})
	if err != nil {
		t.Fatal(err)
	}
	if help || *out != "dist/a.js" || !*minify {
		t.Fatalf("invalid flags help=%v out=%q minify=%v", help, *out, *minify)
	}
	if strings.Join(args, " ") != "app extra --not-a-flag" {
		t.Fatalf("invalid args %v", args)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("out", "", "")
	_, help, err = parseCommandFlags(fs, []string{"-h", "--out=x.js"})
	if err != nil || !help {
		t.Fatalf("expected help, got %v %v", help, err)
	}
}

func TestBundleFlags(t *testing.T) {
	m := &project.Manifest{Entry: "main.js"}
	m.Normalize()
	flags := &bundleFlags{entry: "./src/app.js", grant: "GM_addStyle, GM_setValue,", minify: true}
	flags.apply(m)
	if m.Entry != "src/app.js" || m.Name != "src/app.js" || strings.Join(m.Grant, ",") != "GM_addStyle,GM_setValue" || !m.Minify || m.Verbose {
		t.Fatalf("invalid manifest %+v", m)
	}
}

func TestTemplates(t *testing.T) {
	for _, tmpl := range templates {
		dir := t.TempDir()
		files, err := tmpl.render("demo")
		if err != nil {
			t.Fatal(err)
		}
		if err = writeFiles(dir, files); err != nil {
			t.Fatal(err)
		}
		provider, err := openProject(dir)
		if err != nil {
			t.Fatal(err)
		}
		m, err := project.ReadManifest(provider)
		if err != nil {
			t.Fatal(err)
		}
		if m.Name != "demo" || m.Entry != "main.js" {
			t.Fatalf("%s: invalid manifest %+v", tmpl.name, m)
		}
		ret, err := project.Build(context.Background(), provider, m, project.Options{})
		if err != nil {
			t.Fatalf("%s: %v", tmpl.name, err)
		}
		if len(ret.Graph.Missing) > 0 {
			t.Fatalf("%s: missing dependencies %v", tmpl.name, ret.Graph.Missing)
		}
	}
	if _, ok := findTemplate("Pages"); !ok {
		t.Fatal("templates should be found case insensitively")
	}
}

func TestBundleCommand(t *testing.T) {
	dir := t.TempDir()
	err := writeFiles(dir, map[string]string{
		"scriptflow.json": `{"name": "Demo"}`,
		"main.js":         `import { n } from "./n.js"; globalThis.out = n;`,
		"n.js":            `export const n = 7;`,
	})
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "dist", "demo.user.js")
	if err = Bundle([]string{dir, "--out", out, "--verbose"}); err != nil {
		t.Fatal(err)
	}
	code, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	sb := sandbox.New(sandbox.Options{})
	if _, err = sb.Run(context.Background(), "bundle.js", string(code)); err != nil {
		t.Fatal(err)
	}
	ret, _ := sb.Run(context.Background(), "out.js", "globalThis.out")
	if ret != int64(7) {
		t.Fatalf("invalid out %v", ret)
	}
	var buf bytes.Buffer
	if err = report(&buf, sb, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "ScriptFlow multi-file script loaded: Demo") {
		t.Fatalf("the verbose output should be reported, got %q", buf.String())
	}
}

func TestRunLazy(t *testing.T) {
	dir := t.TempDir()
	err := writeFiles(dir, map[string]string{
		"scriptflow.json": `{"grant": ["GM_setValue", "GM_getValue"]}`,
		"main.js":         "import { key } from \"./lib/key.js\";\nGM_setValue(key, 41);\nconsole.log(GM_getValue(key) + 1);",
		"lib/key.js":      `export const key = "answer";`,
	})
	if err != nil {
		t.Fatal(err)
	}
	src, err := openSource(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	cached, err := loader.NewCachedProvider(src.provider, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer cached.Close()
	m, err := project.ReadManifest(cached)
	if err != nil {
		t.Fatal(err)
	}

	sb := sandbox.New(sandbox.Options{})
	if err = runLazy(context.Background(), sb, cached, m); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err = report(&buf, sb, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "42" {
		t.Fatalf("invalid output %q", buf.String())
	}

	sb = sandbox.New(sandbox.Options{})
	sb.Run(context.Background(), "fail.js", `console.error("boom")`)
	if err = report(&buf, sb, nil); err != errScript {
		t.Fatalf("expected errScript, got %v", err)
	}
}
