package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/portending/ScriptFlow/internal/channel"
	"github.com/portending/ScriptFlow/internal/sandbox"
)

func newTestServer(t *testing.T, files map[string]string) (*httptest.Server, string) {
	dir := t.TempDir()
	for name, content := range files {
		filename := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	h, err := NewHandler(Config{ProjectDir: dir, WatchInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, dir
}

func get(t *testing.T, url string, header http.Header) (*http.Response, string) {
	req, _ := http.NewRequest("GET", url, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, string(data)
}

func TestServeBundle(t *testing.T) {
	ts, _ := newTestServer(t, map[string]string{
		"scriptflow.json": `{"name": "Demo", /* defaults to main.js */ "styles": ["style.css"]}`,
		"main.js":         `import { n } from "./lib/n.js"; globalThis.out = n * 2;`,
		"lib/n.js":        `export const n = 21;`,
		"other.js":        `globalThis.out = "other";`,
		"style.css":       `body { margin: 0; }`,
	})

	res, code := get(t, ts.URL+"/@bundle.js", nil)
	if res.StatusCode != 200 {
		t.Fatalf("invalid status %d: %s", res.StatusCode, code)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/javascript; charset=utf-8" {
		t.Fatalf("invalid content type %s", ct)
	}
	if res.Header.Get("X-Modules") != "2" {
		t.Fatalf("invalid modules count %s", res.Header.Get("X-Modules"))
	}
	sb := sandbox.New(sandbox.Options{})
	if _, err := sb.Run(context.Background(), "bundle.js", code); err != nil {
		t.Fatal(err)
	}
	out, _ := sb.Run(context.Background(), "out.js", "globalThis.out")
	if out != int64(42) {
		t.Fatalf("invalid out %v", out)
	}

	etag := res.Header.Get("Etag")
	res, _ = get(t, ts.URL+"/@bundle.js", http.Header{"If-None-Match": {etag}})
	if res.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", res.StatusCode)
	}

	res, code = get(t, ts.URL+"/@bundle.js?entry=other.js", http.Header{"If-None-Match": {etag}})
	if res.StatusCode != 200 || !strings.Contains(code, `"other"`) {
		t.Fatalf("invalid bundle of other.js: %d", res.StatusCode)
	}

	res, _ = get(t, ts.URL+"/@bundle.js?entry=nope.js", nil)
	if res.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestServeFiles(t *testing.T) {
	ts, _ := newTestServer(t, map[string]string{
		"main.js":      `console.log("hi")`,
		"pages/a.js":   ``,
		"data.json":    `{}`,
		"assets/a.txt": `text`,
	})

	res, body := get(t, ts.URL+"/@files", nil)
	if res.StatusCode != 200 {
		t.Fatalf("invalid status %d", res.StatusCode)
	}
	var files []string
	if err := json.Unmarshal([]byte(body), &files); err != nil {
		t.Fatal(err)
	}
	if strings.Join(files, ",") != "assets/a.txt,data.json,main.js,pages/a.js" {
		t.Fatalf("invalid files %v", files)
	}

	res, body = get(t, ts.URL+"/main.js", nil)
	if res.StatusCode != 200 || body != `console.log("hi")` {
		t.Fatalf("invalid raw file %d %q", res.StatusCode, body)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/javascript") {
		t.Fatalf("invalid content type %s", ct)
	}
	res, _ = get(t, ts.URL+"/main.js", http.Header{"If-None-Match": {res.Header.Get("Etag")}})
	if res.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", res.StatusCode)
	}

	for _, pathname := range []string{"/nope.js", "/pages", "/"} {
		res, _ = get(t, ts.URL+pathname, nil)
		if res.StatusCode != 404 {
			t.Fatalf("%s: expected 404, got %d", pathname, res.StatusCode)
		}
	}
}

func TestServeModules(t *testing.T) {
	ts, dir := newTestServer(t, map[string]string{
		"main.js": `export default 1;`,
	})

	res, _ := get(t, ts.URL+"/@modules", nil)
	if res.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}

	c, err := channel.Dial(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http")+"/@modules", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	content, ok, err := c.FetchFile(context.Background(), "main.js")
	if err != nil || !ok || content != `export default 1;` {
		t.Fatalf("invalid file: %q %v %v", content, ok, err)
	}
	if _, ok, err = c.FetchFile(context.Background(), "new.js"); ok || err != nil {
		t.Fatalf("new.js should not exist: %v %v", ok, err)
	}
	// let the watcher see the served files
	time.Sleep(200 * time.Millisecond)

	filename := filepath.Join(dir, "main.js")
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filename, future, future); err != nil {
		t.Fatal(err)
	}
	expectChange(t, c, channel.Change{Path: "main.js"})

	if err := os.WriteFile(filepath.Join(dir, "new.js"), []byte("export default 2;"), 0644); err != nil {
		t.Fatal(err)
	}
	expectChange(t, c, channel.Change{Path: "new.js"})

	if err := os.Remove(filename); err != nil {
		t.Fatal(err)
	}
	expectChange(t, c, channel.Change{Path: "main.js", Removed: true})
}

func expectChange(t *testing.T, c *channel.Client, want channel.Change) {
	select {
	case change := <-c.Changes():
		if change != want {
			t.Fatalf("invalid change %+v, want %+v", change, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for %+v", want)
	}
}
