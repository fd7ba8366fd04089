package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/ije/gox/log"
	"github.com/portending/ScriptFlow/internal/channel"
	"github.com/portending/ScriptFlow/internal/loader"
	"github.com/portending/ScriptFlow/internal/mime"
	"github.com/portending/ScriptFlow/internal/project"
	"github.com/portending/ScriptFlow/internal/storage"
)

type Config struct {
	// ProjectDir is the root directory of the project, the current directory by default.
	ProjectDir string
	UserAgent  string
	Logger     *log.Logger
	// WatchInterval is the polling interval of the files served over `/@modules`.
	WatchInterval time.Duration
}

// Handler serves a project in development: the raw files, the file list, the
// bundle and the module channel of the lazy loader.
type Handler struct {
	config     *Config
	storage    storage.Storage
	provider   *loader.StorageProvider
	etagSuffix string
}

func NewHandler(config Config) (*Handler, error) {
	if config.ProjectDir == "" {
		config.ProjectDir = "."
	}
	if config.WatchInterval <= 0 {
		config.WatchInterval = 100 * time.Millisecond
	}
	fs, err := storage.NewFSStorage(&storage.StorageOptions{Type: "fs", Endpoint: config.ProjectDir})
	if err != nil {
		return nil, err
	}
	s := &Handler{
		config:     &config,
		storage:    fs,
		provider:   loader.NewStorageProvider(fs, ""),
		etagSuffix: "-" + VERSION,
	}
	if DEBUG {
		s.etagSuffix += "-dev"
	}
	return s, nil
}

func (s *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	switch pathname := r.URL.Path; pathname {
	case "/@bundle.js":
		s.ServeBundle(w, r)
	case "/@files":
		s.ServeFiles(w, r)
	case "/@modules":
		s.ServeModules(w, r)
	default:
		s.ServeFile(w, r, strings.TrimPrefix(pathname, "/"))
	}
}

// ServeBundle builds the bundle of the project. The `entry`, `verbose` and
// `minify` query parameters override the manifest.
func (s *Handler) ServeBundle(w http.ResponseWriter, r *http.Request) {
	manifest, err := project.ReadManifest(s.provider)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	query := r.URL.Query()
	if query.Has("entry") {
		manifest.Entry = query.Get("entry")
		manifest.Normalize()
	}
	if query.Has("verbose") {
		manifest.Verbose = isTruthy(query.Get("verbose"))
	}
	if query.Has("minify") {
		manifest.Minify = isTruthy(query.Get("minify"))
	}

	files, err := project.ReadAll(s.provider)
	if err != nil {
		http.Error(w, "Internal Server Error", 500)
		return
	}
	etag := fmt.Sprintf("w/\"%s%s\"", project.Hash(manifest, files), s.etagSuffix)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	ret, err := project.Build(r.Context(), s.provider, manifest, project.Options{
		Logger:    s.config.Logger,
		UserAgent: s.config.UserAgent,
	})
	if err != nil {
		var notFound *loader.NotFoundError
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if s.config.Logger != nil {
			s.config.Logger.Errorf("bundle %s: %v", manifest.Entry, err)
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	header := w.Header()
	header.Set("Content-Type", "application/javascript; charset=utf-8")
	header.Set("Cache-Control", "max-age=0, must-revalidate")
	header.Set("Etag", etag)
	header.Set("X-Modules", strconv.Itoa(ret.Graph.Len()))
	io.WriteString(w, ret.Code)
}

// ServeFiles returns the paths of the project files as a JSON array.
func (s *Handler) ServeFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.provider.ListFiles()
	if err != nil {
		http.Error(w, "Internal Server Error", 500)
		return
	}
	if files == nil {
		files = []string{}
	}
	header := w.Header()
	header.Set("Content-Type", "application/json; charset=utf-8")
	header.Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(files)
}

// ServeFile returns a raw project file.
func (s *Handler) ServeFile(w http.ResponseWriter, r *http.Request, key string) {
	file, stat, err := s.storage.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			http.Error(w, "Not Found", 404)
		} else {
			http.Error(w, "Internal Server Error", 500)
		}
		return
	}
	defer file.Close()
	etag := fmt.Sprintf("w/\"%x-%x\"", stat.ModTime().UnixMilli(), stat.Size())
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	header := w.Header()
	header.Set("Content-Type", mime.ContentType(key))
	header.Set("Cache-Control", "max-age=0, must-revalidate")
	header.Set("Etag", etag)
	io.Copy(w, file)
}

// ServeModules answers the module requests of a lazy loader over a websocket,
// and pushes the changes of the files it has read.
func (s *Handler) ServeModules(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "Bad Request", 400)
		return
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sc := channel.NewServerConn(conn, s.provider, s.config.Logger)
	done := make(chan struct{})
	defer close(done)
	go s.watch(sc, done)
	if err := sc.Serve(r.Context()); err != nil && s.config.Logger != nil {
		s.config.Logger.Debugf("modules channel: %v", err)
	}
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "", "1", "true", "yes":
		return true
	default:
		return false
	}
}
