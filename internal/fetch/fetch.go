package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

var clientPool = sync.Pool{
	New: func() any {
		return &FetchClient{Client: &http.Client{}}
	},
}

// FetchClient is a custom HTTP client.
type FetchClient struct {
	*http.Client
	userAgent string
}

// NewClient creates a new FetchClient, call recycle when the client is no longer used.
func NewClient(userAgent string, timeout int) (client *FetchClient, recycle func()) {
	client = clientPool.Get().(*FetchClient)
	client.userAgent = userAgent
	client.Timeout = time.Duration(timeout) * time.Second
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 3 {
			return errors.New("stopped after 3 redirects")
		}
		return nil
	}
	return client, func() { clientPool.Put(client) }
}

// Fetch sends a GET request bound to the context.
func (c *FetchClient) Fetch(ctx context.Context, u *url.URL, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.Do(req)
}

// ReadText fetches the URL and returns the response body. A 404 response returns
// `ok == false` without error, other non-2xx responses are errors.
func (c *FetchClient) ReadText(ctx context.Context, u *url.URL, maxBytes int64) (text string, ok bool, err error) {
	resp, err := c.Fetch(ctx, u, nil)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return "", false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, errors.New("unexpected status " + resp.Status + " of " + u.String())
	}
	var r io.Reader = resp.Body
	if maxBytes > 0 {
		r = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", false, err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", false, errors.New("response of " + u.String() + " is too large")
	}
	return string(data), true, nil
}
