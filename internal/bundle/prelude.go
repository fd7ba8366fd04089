package bundle

import (
	"context"
	"fmt"
	"net/url"

	"github.com/portending/ScriptFlow/internal/fetch"
	"golang.org/x/sync/errgroup"
)

// MaxPreludeSize is the size limit of a fetched prelude script.
const MaxPreludeSize = 4 << 20

// FetchPrelude downloads the `@require` scripts concurrently, keeping their order.
func FetchPrelude(ctx context.Context, urls []string, userAgent string) ([]Script, error) {
	parsed := make([]*url.URL, len(urls))
	for i, rawURL := range urls {
		u, err := url.Parse(rawURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("invalid @require url %q", rawURL)
		}
		parsed[i] = u
	}
	scripts := make([]Script, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, u := range parsed {
		i, u, rawURL := i, u, urls[i]
		g.Go(func() error {
			client, recycle := fetch.NewClient(userAgent, 30)
			defer recycle()
			code, ok, err := client.ReadText(ctx, u, MaxPreludeSize)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", rawURL, err)
			}
			if !ok {
				return fmt.Errorf("fetch %s: not found", rawURL)
			}
			scripts[i] = Script{URL: rawURL, Code: code}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scripts, nil
}
