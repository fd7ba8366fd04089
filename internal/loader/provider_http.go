package loader

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/portending/ScriptFlow/internal/fetch"
)

// MaxModuleSize is the largest module source an HTTPProvider reads.
const MaxModuleSize = 8 << 20

// HTTPProvider reads modules from a project served over HTTP, e.g. by `scriptflow serve`.
type HTTPProvider struct {
	baseURL   *url.URL
	userAgent string
	timeout   int
}

// NewHTTPProvider creates a provider that reads `<baseURL>/<path>`.
// The file list is read from `<baseURL>/@files`.
func NewHTTPProvider(baseURL string, userAgent string, timeout int) (*HTTPProvider, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("invalid base url scheme")
	}
	if timeout <= 0 {
		timeout = 30
	}
	return &HTTPProvider{baseURL: u, userAgent: userAgent, timeout: timeout}, nil
}

func (p *HTTPProvider) FetchFile(ctx context.Context, path string) (string, bool, error) {
	u, err := p.baseURL.Parse(escapePath(path))
	if err != nil {
		return "", false, err
	}
	client, recycle := fetch.NewClient(p.userAgent, p.timeout)
	defer recycle()
	return client.ReadText(ctx, u, MaxModuleSize)
}

func (p *HTTPProvider) GetFile(path string) (string, bool, error) {
	return p.FetchFile(context.Background(), path)
}

func (p *HTTPProvider) ListFiles() ([]string, error) {
	u, _ := p.baseURL.Parse("@files")
	client, recycle := fetch.NewClient(p.userAgent, p.timeout)
	defer recycle()
	text, ok, err := client.ReadText(context.Background(), u, MaxModuleSize)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var files []string
	if err := json.Unmarshal([]byte(text), &files); err != nil {
		return nil, err
	}
	return files, nil
}

func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
