package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/portending/ScriptFlow/internal/storage"
)

func TestMapProvider(t *testing.T) {
	p := NewMapProvider(map[string]string{"b.js": "b", "a.js": "", "c/d.js": "d"})
	content, ok, err := p.GetFile("a.js")
	if err != nil || !ok || content != "" {
		t.Fatalf("an empty file should exist: %q %v %v", content, ok, err)
	}
	if _, ok, _ = p.GetFile("x.js"); ok {
		t.Fatal("x.js should not exist")
	}
	files, _ := p.ListFiles()
	if strings.Join(files, ",") != "a.js,b.js,c/d.js" {
		t.Fatalf("invalid files %v", files)
	}
}

func TestCachedProvider(t *testing.T) {
	backend := newCountingProvider(map[string]string{"a.js": "export default 1;"})
	p, err := NewCachedProvider(backend, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	for i := 0; i < 3; i++ {
		content, ok, err := p.FetchFile(context.Background(), "a.js")
		if err != nil || !ok || content != "export default 1;" {
			t.Fatalf("invalid file: %q %v %v", content, ok, err)
		}
	}
	if n := backend.count("a.js"); n != 1 {
		t.Fatalf("a.js fetched %d times, should be once", n)
	}

	for i := 0; i < 2; i++ {
		if _, ok, _ := p.FetchFile(context.Background(), "missing.js"); ok {
			t.Fatal("missing.js should not exist")
		}
	}
	if n := backend.count("missing.js"); n != 2 {
		t.Fatalf("missing files should not be cached, fetched %d times", n)
	}

	backend.Set("a.js", "export default 2;")
	p.Invalidate("a.js")
	content, _, _ := p.FetchFile(context.Background(), "a.js")
	if content != "export default 2;" {
		t.Fatalf("invalid content after invalidation %q", content)
	}
}

func TestHTTPProvider(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/project/src/main.js":
			w.Write([]byte(`import "./a.js";`))
		case "/project/empty.js":
			w.WriteHeader(200)
		case "/project/@files":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`["src/main.js","empty.js"]`))
		case "/project/broken.js":
			http.Error(w, "oops", 500)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	p, err := NewHTTPProvider(ts.URL+"/project", "scriptflow-test", 5)
	if err != nil {
		t.Fatal(err)
	}
	content, ok, err := p.FetchFile(context.Background(), "src/main.js")
	if err != nil || !ok || content != `import "./a.js";` {
		t.Fatalf("invalid file: %q %v %v", content, ok, err)
	}
	content, ok, err = p.FetchFile(context.Background(), "empty.js")
	if err != nil || !ok || content != "" {
		t.Fatalf("invalid empty file: %q %v %v", content, ok, err)
	}
	if _, ok, err = p.FetchFile(context.Background(), "nope.js"); ok || err != nil {
		t.Fatalf("nope.js should not exist: %v %v", ok, err)
	}
	if _, _, err = p.FetchFile(context.Background(), "broken.js"); err == nil {
		t.Fatal("a server error should fail")
	}
	files, err := p.ListFiles()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(files, ",") != "src/main.js,empty.js" {
		t.Fatalf("invalid files %v", files)
	}

	if _, err = NewHTTPProvider("ftp://example.com", "", 0); err == nil {
		t.Fatal("ftp urls should be rejected")
	}
}

func TestStorageProvider(t *testing.T) {
	s, err := storage.NewFSStorage(&storage.StorageOptions{Type: "fs", Endpoint: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	for key, content := range map[string]string{
		"projects/demo/main.js":      `import { a } from "./lib";`,
		"projects/demo/lib/index.js": `export const a = 1;`,
		"projects/demo/notes.txt":    "hi",
		"projects/other/main.js":     `export default 2;`,
	} {
		if err := s.Put(key, strings.NewReader(content)); err != nil {
			t.Fatal(err)
		}
	}

	p := NewStorageProvider(s, "/projects/demo/")
	files, err := p.ListFiles()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(files, ",") != "lib/index.js,main.js,notes.txt" {
		t.Fatalf("invalid files %v", files)
	}
	if _, ok, err := p.GetFile("../other/main.js"); ok || err != nil {
		t.Fatalf("files of other projects should not be readable: %v %v", ok, err)
	}

	graph, err := BuildGraph("main.js", p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(graph.Paths(), ",") != "main.js,lib/index.js" {
		t.Fatalf("invalid graph %v", graph.Paths())
	}
}
