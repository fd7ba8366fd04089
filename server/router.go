package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/ije/gox/log"
	"github.com/ije/gox/utils"
	"github.com/ije/rex"
	"github.com/portending/ScriptFlow/internal/loader"
	"github.com/portending/ScriptFlow/internal/mime"
	"github.com/portending/ScriptFlow/internal/project"
	"github.com/portending/ScriptFlow/internal/storage"
)

const (
	ccMustRevalidate = "public, max-age=0, must-revalidate"
	ccNoCache        = "no-cache"
	ctJavaScript     = "application/javascript; charset=utf-8"
)

// BundleRequest is the body of `POST /bundle`. The files are bundled inline, or the
// stored project is bundled when `project` is set. The manifest fields override the
// `scriptflow.json` of the files.
type BundleRequest struct {
	project.Manifest
	Project string            `json:"project"`
	Files   map[string]string `json:"files"`
}

// BundleResponse is the response of `POST /bundle`.
type BundleResponse struct {
	Hash    string   `json:"hash"`
	Entry   string   `json:"entry"`
	Modules []string `json:"modules"`
	Missing []string `json:"missing,omitempty"`
	Cached  bool     `json:"cached"`
	Code    string   `json:"code"`
}

func router(projects *Projects, db *BundleDB, logger *log.Logger) rex.Handle {
	startTime := time.Now()

	return func(ctx *rex.Context) any {
		pathname := ctx.R.URL.Path

		switch pathname {
		case "/status":
			if ctx.R.Method != "GET" && ctx.R.Method != "HEAD" {
				return rex.Err(405, "method not allowed")
			}
			stat, err := db.Stat()
			if err != nil {
				return rex.Err(500, "db error")
			}
			ctx.SetHeader("Cache-Control", ccNoCache)
			return map[string]any{
				"version": VERSION,
				"uptime":  time.Since(startTime).String(),
				"bundles": stat,
			}

		case "/bundle":
			if ctx.R.Method != "POST" {
				return rex.Err(405, "method not allowed")
			}
			var req BundleRequest
			err := json.NewDecoder(io.LimitReader(ctx.R.Body, config.MaxBodySize)).Decode(&req)
			ctx.R.Body.Close()
			if err != nil {
				return rex.Err(400, "require valid json body")
			}
			var record *BundleRecord
			var cached bool
			if req.Project != "" {
				record, cached, err = projects.BundleProject(ctx.R.Context(), req.Project, func(m *project.Manifest) {
					mergeManifest(m, &req.Manifest)
				})
			} else {
				if len(req.Files) == 0 {
					return rex.Err(400, "files or project is required")
				}
				var m *project.Manifest
				m, err = project.ReadManifest(loader.NewMapProvider(req.Files))
				if err == nil {
					mergeManifest(m, &req.Manifest)
					m.Normalize()
					record, cached, err = projects.Bundle(ctx.R.Context(), req.Files, m)
				}
			}
			if err != nil {
				return bundleError(err, logger)
			}
			ctx.SetHeader("Cache-Control", ccNoCache)
			return &BundleResponse{
				Hash:    record.Hash,
				Entry:   record.Entry,
				Modules: record.Modules,
				Missing: record.Missing,
				Cached:  cached,
				Code:    record.Code,
			}
		}

		if !strings.HasPrefix(pathname, "/projects/") {
			return rex.Err(404, "not found")
		}
		id, subPath := utils.SplitByFirstByte(strings.TrimPrefix(pathname, "/projects/"), '/')

		switch {
		case subPath == "" && ctx.R.Method == "DELETE":
			deleted, err := projects.Delete(id)
			if err != nil {
				return storageError(err, logger)
			}
			return map[string]any{"deleted": deleted}

		case subPath == "files":
			if ctx.R.Method != "GET" && ctx.R.Method != "HEAD" {
				return rex.Err(405, "method not allowed")
			}
			files, err := projects.ListFiles(id)
			if err != nil {
				return storageError(err, logger)
			}
			if files == nil {
				files = []string{}
			}
			ctx.SetHeader("Cache-Control", ccNoCache)
			return files

		case strings.HasPrefix(subPath, "files/"):
			filename := strings.TrimPrefix(subPath, "files/")
			switch ctx.R.Method {
			case "GET", "HEAD":
				r, stat, err := projects.GetFile(id, filename)
				if err != nil {
					return storageError(err, logger)
				}
				ctx.SetHeader("Content-Type", mime.ContentType(filename))
				ctx.SetHeader("Cache-Control", ccMustRevalidate)
				return rex.Content(filename, stat.ModTime(), r) // auto closed
			case "PUT":
				err := projects.PutFile(id, filename, io.LimitReader(ctx.R.Body, config.MaxBodySize))
				ctx.R.Body.Close()
				if err != nil {
					return storageError(err, logger)
				}
				return rex.NoContent()
			case "DELETE":
				if err := projects.DeleteFile(id, filename); err != nil {
					return storageError(err, logger)
				}
				return rex.NoContent()
			default:
				return rex.Err(405, "method not allowed")
			}

		case subPath == "bundle.js":
			if ctx.R.Method != "GET" && ctx.R.Method != "HEAD" {
				return rex.Err(405, "method not allowed")
			}
			query := ctx.Query()
			record, _, err := projects.BundleProject(ctx.R.Context(), id, func(m *project.Manifest) {
				applyQuery(m, query.Get("entry"), query.Get("grant"), query.Get("verbose"), query.Get("minify"))
			})
			if err != nil {
				return bundleError(err, logger)
			}
			etag := fmt.Sprintf(`"%s-%s"`, record.Hash, VERSION)
			if ctx.R.Header.Get("If-None-Match") == etag {
				return rex.Status(http.StatusNotModified, nil)
			}
			ctx.SetHeader("Etag", etag)
			ctx.SetHeader("Cache-Control", ccMustRevalidate)
			ctx.SetHeader("Content-Type", ctJavaScript)
			return rex.Content("bundle.js", time.Unix(record.Created, 0), strings.NewReader(record.Code))
		}

		return rex.Err(404, "not found")
	}
}

// mergeManifest copies the fields set in override to m.
func mergeManifest(m *project.Manifest, override *project.Manifest) {
	if override.ID != "" {
		m.ID = override.ID
	}
	if override.Name != "" {
		m.Name = override.Name
	}
	if override.Entry != "" {
		if override.Name == "" && m.Name == m.Entry {
			m.Name = ""
		}
		m.Entry = override.Entry
	}
	if override.Grant != nil {
		m.Grant = override.Grant
	}
	if override.Require != nil {
		m.Require = override.Require
	}
	if override.Styles != nil {
		m.Styles = override.Styles
	}
	m.Verbose = m.Verbose || override.Verbose || config.Verbose
	m.Minify = m.Minify || override.Minify || config.Minify
}

// applyQuery applies the `entry`, `grant`, `verbose` and `minify` query parameters.
func applyQuery(m *project.Manifest, entry string, grant string, verbose string, minify string) {
	if entry != "" {
		if m.Name == m.Entry {
			m.Name = ""
		}
		m.Entry = entry
	}
	if grant != "" {
		m.Grant = strings.Split(grant, ",")
	}
	if verbose != "" {
		m.Verbose = verbose == "true" || verbose == "1"
	} else if config.Verbose {
		m.Verbose = true
	}
	if minify != "" {
		m.Minify = minify == "true" || minify == "1"
	} else if config.Minify {
		m.Minify = true
	}
}

func bundleError(err error, logger *log.Logger) any {
	var notFound *loader.NotFoundError
	switch {
	case errors.As(err, &notFound):
		return rex.Err(404, notFound.Error())
	case errors.Is(err, project.ErrInvalidManifest):
		return rex.Err(400, err.Error())
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ErrInvalidProjectID):
		return storageError(err, logger)
	default:
		logger.Errorf("bundle: %v", err)
		return rex.Err(500, err.Error())
	}
}

func storageError(err error, logger *log.Logger) any {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return rex.Err(404, "not found")
	case errors.Is(err, storage.ErrInvalidKey), errors.Is(err, ErrInvalidProjectID):
		return rex.Err(400, err.Error())
	default:
		logger.Errorf("storage: %v", err)
		return rex.Err(500, "storage error")
	}
}
