package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ije/gox/term"
	"github.com/portending/ScriptFlow/internal/loader"
	"github.com/portending/ScriptFlow/internal/storage"
)

// parseCommandFlags parses the flags of a command, flags may follow the arguments.
func parseCommandFlags(fs *flag.FlagSet, argv []string) (args []string, help bool, err error) {
	fs.BoolVar(&help, "help", false, "show help message")
	fs.BoolVar(&help, "h", false, "show help message")
	var flags []string
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if arg == "--" {
			args = append(args, argv[i+1:]...)
			break
		}
		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)
			name := strings.TrimLeft(arg, "-")
			if strings.ContainsRune(name, '=') {
				continue
			}
			if f := fs.Lookup(name); f != nil && !isBoolFlag(f) && i+1 < len(argv) {
				i++
				flags = append(flags, argv[i])
			}
			continue
		}
		args = append(args, arg)
	}
	err = fs.Parse(flags)
	return
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// projectDir returns the absolute path of the project directory argument,
// the current directory by default.
func projectDir(args []string) (dir string, err error) {
	if len(args) == 0 || args[0] == "" {
		return os.Getwd()
	}
	dir, err = filepath.Abs(args[0])
	if err != nil {
		return
	}
	fi, err := os.Stat(dir)
	if err == nil && !fi.IsDir() {
		err = fmt.Errorf("stat %s: not a directory", dir)
	}
	return
}

// openProject returns the file provider of the project directory.
func openProject(dir string) (*loader.StorageProvider, error) {
	fs, err := storage.NewFSStorage(&storage.StorageOptions{Type: "fs", Endpoint: dir})
	if err != nil {
		return nil, err
	}
	return loader.NewStorageProvider(fs, ""), nil
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func printError(err error) error {
	os.Stderr.WriteString(term.Red("✖ " + err.Error() + "\n"))
	return err
}
