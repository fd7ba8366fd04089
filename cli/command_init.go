package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/ije/gox/term"
	"github.com/portending/ScriptFlow/internal/project"
)

const initHelpMessage = `Create a new project.

Usage: scriptflow init [dir] [options]

Arguments:
  dir          Project directory, default is the project name

Options:
  --name       Project name
  --template   Project template: basic, pages or styled
  --yes, -y    Use the defaults without asking
  --help, -h   Show help message
`

type template struct {
	name     string
	manifest project.Manifest
	files    map[string]string
}

var templates = []template{
	{
		name: "basic",
		manifest: project.Manifest{
			Entry: "main.js",
			Grant: []string{"GM_getValue", "GM_setValue"},
		},
		files: map[string]string{
			"main.js": `import { greet } from "./lib/greet.js";

const visits = GM_getValue("visits", 0) + 1;
GM_setValue("visits", visits);
console.log(greet(visits));
`,
			"lib/greet.js": "export function greet(visits) {\n  return `Hello, visit #${visits}`;\n}\n",
		},
	},
	{
		name: "pages",
		manifest: project.Manifest{
			Entry: "main.js",
		},
		files: map[string]string{
			"main.js": `const pages = require.context("./pages", false, /\.js$/);

for (const key of pages.keys()) {
  const page = pages(key).default;
  if (page.match(location.href)) {
    page.run();
  }
}
`,
			"pages/home.js": `export default {
  match: (url) => new URL(url).pathname === "/",
  run: () => console.log("home"),
};
`,
		},
	},
	{
		name: "styled",
		manifest: project.Manifest{
			Entry:  "main.js",
			Grant:  []string{"GM_addStyle", "GM_getResourceText"},
			Styles: []string{"style.css"},
		},
		files: map[string]string{
			"main.js": `import "./banner.css";

const banner = document.createElement("div");
banner.className = "sf-banner";
banner.textContent = GM_getResourceText("banner.txt");
document.body.append(banner);
`,
			"banner.css": ".sf-banner { position: fixed; bottom: 0; padding: 8px; }\n",
			"banner.txt": "Hello from ScriptFlow\n",
			"style.css":  "body { outline: 1px solid transparent; }\n",
		},
	},
}

func templateNames() []string {
	names := make([]string, len(templates))
	for i, t := range templates {
		names[i] = t.name
	}
	return names
}

func findTemplate(name string) (template, bool) {
	for _, t := range templates {
		if t.name == strings.ToLower(name) {
			return t, true
		}
	}
	return template{}, false
}

// Init creates a new project.
func Init(argv []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	name := fs.String("name", "", "project name")
	templateName := fs.String("template", "", "project template")
	yes := fs.Bool("yes", false, "use the defaults")
	fs.BoolVar(yes, "y", false, "use the defaults")
	args, help, err := parseCommandFlags(fs, argv)
	if err != nil {
		return err
	}
	if help {
		fmt.Print(initHelpMessage)
		return nil
	}

	interactive := !*yes && isTTY()
	if *name == "" {
		*name = "my-script"
		if len(args) > 0 {
			*name = filepath.Base(args[0])
		}
		if interactive {
			*name = termInput("Project name:", *name)
		}
	}
	if *templateName == "" {
		*templateName = templates[0].name
		if interactive {
			*templateName = termSelect("Select a template:", templateNames())
		}
	}
	tmpl, ok := findTemplate(*templateName)
	if !ok {
		return printError(fmt.Errorf("invalid template %q, use one of %s", *templateName, strings.Join(templateNames(), ", ")))
	}

	dir := *name
	if len(args) > 0 {
		dir = args[0]
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
		if !interactive || !termConfirm("The directory is not empty, do you want to overwrite the files?") {
			fmt.Println(term.Dim("Canceled."))
			return nil
		}
	}

	files, err := tmpl.render(*name)
	if err != nil {
		return printError(err)
	}
	if err = writeFiles(dir, files); err != nil {
		return printError(fmt.Errorf("failed to create project: %w", err))
	}

	fmt.Println(term.Green("✔ Project created"))
	fmt.Println(term.Dim("To bundle the script, run:"))
	fmt.Println(" ")
	fmt.Println(term.Dim("$ ") + "cd " + dir + " && scriptflow bundle --out dist/" + *name + ".user.js")
	fmt.Println(" ")
	return nil
}

// render returns the files of the template with its manifest.
func (t template) render(name string) (map[string]string, error) {
	m := t.manifest
	m.Name = name
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	files := map[string]string{project.ManifestFile: string(data) + "\n"}
	for path, content := range t.files {
		files[path] = content
	}
	return files, nil
}

func writeFiles(dir string, files map[string]string) error {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		filename := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(filename, []byte(files[path]), 0644); err != nil {
			return err
		}
	}
	return nil
}
