package server

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/portending/ScriptFlow/internal/storage"
)

// Config represents the configuration of the bundle server.
type Config struct {
	Port             uint16                 `json:"port"`
	WorkDir          string                 `json:"workDir"`
	CorsAllowOrigins []string               `json:"corsAllowOrigins"`
	Storage          storage.StorageOptions `json:"storage"`
	LogDir           string                 `json:"logDir"`
	LogLevel         string                 `json:"logLevel"`
	AccessLog        bool                   `json:"accessLog"`
	// UserAgent is sent when downloading the `require` scripts of the projects.
	UserAgent string `json:"userAgent"`
	// MaxBodySize limits the body of the upload and bundle requests, in bytes.
	MaxBodySize int64 `json:"maxBodySize"`
	// BundleCacheSize is the capacity of the in-memory bundle cache.
	BundleCacheSize int             `json:"bundleCacheSize"`
	MinifyRaw       json.RawMessage `json:"minify"`
	VerboseRaw      json.RawMessage `json:"verbose"`
	CompressRaw     json.RawMessage `json:"compress"`
	Minify          bool            `json:"-"`
	Verbose         bool            `json:"-"`
	Compress        bool            `json:"-"`
}

// LoadConfig loads config from the given file.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("fail to read config file: %w", err)
	}
	defer file.Close()

	var config Config
	err = json.NewDecoder(file).Decode(&config)
	if err != nil {
		return nil, fmt.Errorf("fail to parse config: %w", err)
	}
	if config.WorkDir != "" && !filepath.IsAbs(config.WorkDir) {
		config.WorkDir, err = filepath.Abs(config.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("fail to get absolute path of the work directory: %w", err)
		}
	}
	normalizeConfig(&config)
	return &config, nil
}

func DefaultConfig() *Config {
	config := &Config{}
	normalizeConfig(config)
	return config
}

func normalizeConfig(config *Config) {
	if config.Port == 0 {
		config.Port = 8080
		if v := os.Getenv("PORT"); v != "" {
			if p, e := strconv.Atoi(v); e == nil && p > 0 && p < 65536 {
				config.Port = uint16(p)
			}
		}
	}
	if config.WorkDir == "" {
		if v := os.Getenv("WORKDIR"); v != "" {
			config.WorkDir = v
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				homeDir = "/home"
			}
			config.WorkDir = path.Join(homeDir, ".scriptflow")
		}
	}
	if v := os.Getenv("CORS_ALLOW_ORIGINS"); v != "" {
		for _, p := range strings.Split(v, ",") {
			orig := strings.TrimSpace(p)
			if orig != "" {
				u, e := url.Parse(orig)
				if e == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
					config.CorsAllowOrigins = append(config.CorsAllowOrigins, u.Scheme+"://"+u.Host)
				}
			}
		}
	}
	if config.Storage.Type == "" {
		storageType := os.Getenv("STORAGE_TYPE")
		if storageType == "" {
			storageType = "fs"
		}
		config.Storage.Type = storageType
	}
	if config.Storage.Endpoint == "" {
		storageEndpint := os.Getenv("STORAGE_ENDPOINT")
		if storageEndpint == "" {
			storageEndpint = path.Join(config.WorkDir, "storage")
		}
		config.Storage.Endpoint = storageEndpint
	}
	if config.Storage.Region == "" {
		config.Storage.Region = os.Getenv("STORAGE_REGION")
	}
	if config.Storage.AccessKeyID == "" {
		config.Storage.AccessKeyID = os.Getenv("STORAGE_ACCESS_KEY_ID")
	}
	if config.Storage.SecretAccessKey == "" {
		config.Storage.SecretAccessKey = os.Getenv("STORAGE_SECRET_ACCESS_KEY")
	}
	if config.Storage.Type == "s3" && config.Storage.CacheDir == "" {
		config.Storage.CacheDir = os.Getenv("STORAGE_CACHE_DIR")
	}
	if config.LogDir == "" {
		config.LogDir = path.Join(config.WorkDir, "log")
	}
	if config.LogLevel == "" {
		config.LogLevel = os.Getenv("LOG_LEVEL")
		if config.LogLevel == "" {
			config.LogLevel = "info"
		}
	}
	if !config.AccessLog {
		config.AccessLog = os.Getenv("ACCESS_LOG") == "true"
	}
	if config.UserAgent == "" {
		config.UserAgent = "ScriptFlow/" + VERSION
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 10 * MB
	}
	if config.BundleCacheSize <= 0 {
		config.BundleCacheSize = 1000
	}
	config.Compress = !(string(config.CompressRaw) == "false" || os.Getenv("COMPRESS") == "false")
	config.Minify = string(config.MinifyRaw) == "true" || os.Getenv("MINIFY") == "true"
	config.Verbose = string(config.VerboseRaw) == "true" || os.Getenv("VERBOSE") == "true"
}
