package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/gorilla/websocket"
	"github.com/portending/ScriptFlow/internal/loader"
	"github.com/portending/ScriptFlow/internal/sandbox"
)

type failingSource struct {
	*loader.MapProvider
}

func (s failingSource) FetchFile(ctx context.Context, path string) (string, bool, error) {
	if path == "broken.js" {
		return "", false, errors.New("disk error")
	}
	return s.MapProvider.FetchFile(ctx, path)
}

func startServer(t *testing.T, source Source) (*httptest.Server, chan *ServerConn) {
	conns := make(chan *ServerConn, 1)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := NewServerConn(conn, source, nil)
		conns <- sc
		sc.Serve(r.Context())
	}))
	t.Cleanup(ts.Close)
	return ts, conns
}

func dial(t *testing.T, ts *httptest.Server) *Client {
	c, err := Dial(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestChannel(t *testing.T) {
	source := failingSource{loader.NewMapProvider(map[string]string{
		"main.js":    `import "./a.js";`,
		"a.js":       "",
		"pages/b.js": `export default 1;`,
	})}
	ts, conns := startServer(t, source)
	c := dial(t, ts)
	sc := <-conns

	content, ok, err := c.FetchFile(context.Background(), "main.js")
	if err != nil || !ok || content != `import "./a.js";` {
		t.Fatalf("invalid file: %q %v %v", content, ok, err)
	}
	content, ok, err = c.FetchFile(context.Background(), "a.js")
	if err != nil || !ok || content != "" {
		t.Fatalf("an empty file should exist: %q %v %v", content, ok, err)
	}
	if _, ok, err = c.FetchFile(context.Background(), "nope.js"); ok || err != nil {
		t.Fatalf("nope.js should not exist: %v %v", ok, err)
	}
	if _, _, err = c.FetchFile(context.Background(), "broken.js"); err == nil || err.Error() != "disk error" {
		t.Fatalf("expected the source error, got %v", err)
	}
	files, err := c.ListFiles()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(files, ",") != "a.js,main.js,pages/b.js" {
		t.Fatalf("invalid files %v", files)
	}
	if served := strings.Join(sc.Served(), ","); served != "a.js,main.js,nope.js" {
		t.Fatalf("invalid served paths %s", served)
	}

	if err = sc.Notify(Change{Path: "a.js"}); err != nil {
		t.Fatal(err)
	}
	if err = sc.Notify(Change{Path: "main.js", Removed: true}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []Change{{Path: "a.js"}, {Path: "main.js", Removed: true}} {
		select {
		case change := <-c.Changes():
			if change != want {
				t.Fatalf("invalid change %+v, want %+v", change, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for change")
		}
	}
}

func TestChannelConcurrentCalls(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files[name+".js"] = "export const name = " + `"` + name + `";`
	}
	ts, _ := startServer(t, loader.NewMapProvider(files))
	c := dial(t, ts)

	var wg sync.WaitGroup
	errs := make(chan error, len(files))
	for path, want := range files {
		wg.Add(1)
		go func(path, want string) {
			defer wg.Done()
			content, ok, err := c.FetchFile(context.Background(), path)
			if err != nil || !ok || content != want {
				errs <- errors.New("invalid response of " + path)
			}
		}(path, want)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestChannelClosed(t *testing.T) {
	ts, _ := startServer(t, loader.NewMapProvider(nil))
	c := dial(t, ts)
	c.Close()
	if _, _, err := c.FetchFile(context.Background(), "a.js"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, ok := <-c.Changes(); ok {
		t.Fatal("the changes channel should be closed")
	}
}

func TestChannelLazyLoader(t *testing.T) {
	ts, _ := startServer(t, loader.NewMapProvider(map[string]string{
		"main.js":      "import { greet } from \"./lib/greet.js\";\nconst pages = require.context(\"./pages\", false);\nexport const out = greet(pages.keys().join(\",\"));",
		"lib/greet.js": `export const greet = (s) => "hello " + s;`,
		"pages/a.js":   `export default "a";`,
		"pages/b.js":   `export default "b";`,
	}))
	c := dial(t, ts)

	sb := sandbox.New(sandbox.Options{})
	l := loader.NewLoader(c, sb, loader.LoaderOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exports, err := l.Require(ctx, "./main.js", "")
	if err != nil {
		t.Fatal(err)
	}
	var out string
	err = sb.Do(ctx, func(rt *goja.Runtime) error {
		out = exports.ToObject(rt).Get("out").String()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello ./a.js,./b.js" {
		t.Fatalf("invalid out %q", out)
	}
}
