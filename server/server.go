package server

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/ije/gox/log"
	"github.com/ije/gox/set"
	"github.com/ije/rex"
	"github.com/portending/ScriptFlow/internal/storage"
)

const MB = 1 << 20

var (
	// global config
	config *Config
)

// Serve serves the bundle server.
func Serve() {
	var cfile string
	var err error

	flag.StringVar(&cfile, "config", "config.json", "the config file path")
	flag.Parse()

	if existsFile(cfile) {
		config, err = LoadConfig(cfile)
		if err != nil {
			fmt.Println(err.Error())
			os.Exit(1)
		}
		if DEBUG {
			fmt.Printf("%s [info] Config loaded from %s\n", time.Now().Format("2006-01-02 15:04:05"), cfile)
		}
	}

	if DEBUG {
		config.LogLevel = "debug"
	} else {
		// disable log color in release build
		os.Setenv("NO_COLOR", "1")
	}

	os.MkdirAll(config.LogDir, 0755)
	logger, err := log.New(fmt.Sprintf("file:%s?buffer=32k&fileDateFormat=20060102", path.Join(config.LogDir, "server.log")))
	if err != nil {
		fmt.Println("failed to initialize logger:", err)
		os.Exit(1)
	}
	logger.SetLevelByName(config.LogLevel)

	accessLogger, err := log.New(fmt.Sprintf("file:%s?buffer=32k&fileDateFormat=20060102", path.Join(config.LogDir, "access.log")))
	if err != nil {
		logger.Fatalf("failed to initialize access logger: %v", err)
	}
	accessLogger.SetQuite(true)

	if err = os.MkdirAll(config.WorkDir, 0755); err != nil {
		logger.Fatalf("failed to create the work directory: %v", err)
	}

	// open database
	db, err := OpenBundleDB(path.Join(config.WorkDir, "bundles.db"), config.BundleCacheSize)
	if err != nil {
		logger.Fatalf("init db: %v", err)
	}

	// initialize storage
	projectStorage, err := storage.New(&config.Storage)
	if err != nil {
		logger.Fatalf("failed to initialize storage(%s): %v", config.Storage.Type, err)
	}
	logger.Debugf("storage initialized, type: %s, endpoint: %s", config.Storage.Type, config.Storage.Endpoint)

	projects := NewProjects(projectStorage, db, config.UserAgent, logger)

	// add middlewares
	rex.Use(
		rex.Header("Server", "scriptflow"),
		cors(config.CorsAllowOrigins),
		rex.Logger(logger),
		rex.Optional(rex.AccessLogger(accessLogger), config.AccessLog),
		rex.Optional(rex.Compress(), config.Compress),
		router(projects, db, logger),
	)

	// start server
	C := rex.Serve(rex.ServerConfig{
		Port: uint16(config.Port),
	})
	logger.Infof("Server is ready on http://localhost:%d", config.Port)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, syscall.SIGABRT)
	select {
	case <-c:
	case err = <-C:
		logger.Error(err)
	}

	// release resources
	db.Close()
	logger.FlushBuffer()
	accessLogger.FlushBuffer()
}

func cors(allowOrigins []string) rex.Handle {
	allowList := set.NewReadOnly(allowOrigins...)
	return func(ctx *rex.Context) any {
		origin := ctx.R.Header.Get("Origin")
		isOptionsMethod := ctx.R.Method == "OPTIONS"
		h := ctx.W.Header()
		if allowList.Len() > 0 {
			if origin != "" {
				if !allowList.Has(origin) {
					return rex.Status(403, "forbidden")
				}
				setCorsHeaders(h, isOptionsMethod, origin)
			} else if isOptionsMethod {
				// not a preflight request
				return rex.Status(405, "method not allowed")
			}
			h.Add("Vary", "Origin")
		} else {
			setCorsHeaders(h, isOptionsMethod, "*")
		}
		if isOptionsMethod {
			return rex.NoContent()
		}
		return ctx.Next()
	}
}

func setCorsHeaders(h http.Header, isOptionsMethod bool, origin string) {
	h.Set("Access-Control-Allow-Origin", origin)
	if isOptionsMethod {
		h.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, DELETE")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Max-Age", "86400")
	}
}

func existsFile(filename string) bool {
	fi, err := os.Lstat(filename)
	return err == nil && !fi.IsDir()
}

func init() {
	config = DefaultConfig()
}
