package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// fakeAPI serves a fixed set of API paths
func fakeAPI(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

const repoJSON = `{
	"full_name": "octo/campus",
	"description": "Timetable helper",
	"language": "TypeScript",
	"stargazers_count": 42,
	"forks_count": 7,
	"size": 1234,
	"topics": ["education", "bot"],
	"license": {"spdx_id": "MIT", "name": "MIT License"},
	"default_branch": "main",
	"html_url": "https://github.com/octo/campus",
	"created_at": "2023-01-05T10:00:00Z",
	"updated_at": "2025-02-01T10:00:00Z",
	"pushed_at": "2025-02-03T10:00:00Z"
}`

func TestFindRepoRef(t *testing.T) {
	tests := []struct {
		text string
		want RepoRef
		ok   bool
	}{
		{"глянь https://github.com/octo/campus будь ласка", RepoRef{Owner: "octo", Repo: "campus"}, true},
		{"github.com/octo/campus.git", RepoRef{Owner: "octo", Repo: "campus"}, true},
		{"see https://github.com/octo/campus.", RepoRef{Owner: "octo", Repo: "campus"}, true},
		{"https://github.com/octo/campus/blob/main/src/index.ts", RepoRef{Owner: "octo", Repo: "campus", Ref: "main", Path: "src/index.ts"}, true},
		{"https://github.com/octo/campus/tree/dev/docs/", RepoRef{Owner: "octo", Repo: "campus", Ref: "dev", Path: "docs"}, true},
		{"https://github.com/octo/campus/tree/dev", RepoRef{Owner: "octo", Repo: "campus", Ref: "dev"}, true},
		{"https://github.com/topics/go then https://github.com/a/b", RepoRef{Owner: "a", Repo: "b"}, true},
		{"https://gitlab.com/octo/campus", RepoRef{}, false},
		{"no links here", RepoRef{}, false},
	}
	for _, tt := range tests {
		got, ok := FindRepoRef(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Errorf("FindRepoRef(%q) = %+v, %v; want %+v, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAnalyze(t *testing.T) {
	readme := "# Campus\n\n" + strings.Repeat("r", 600)
	pkg := `{"name":"campus-bot","scripts":{"build":"tsc","test":"jest","lint":"eslint .","start":"node ."}}`
	server := fakeAPI(t, map[string]string{
		"/repos/octo/campus": repoJSON,
		"/repos/octo/campus/contents/": `[
			{"name":"README.md","type":"file"},
			{"name":"package.json","type":"file"},
			{"name":"src","type":"dir"},
			{"name":"__tests__","type":"dir"},
			{"name":".github","type":"dir"}
		]`,
		"/repos/octo/campus/readme":                     fmt.Sprintf(`{"encoding":"base64","content":%q}`, b64(readme)),
		"/repos/octo/campus/contents/package.json":      fmt.Sprintf(`{"encoding":"base64","content":%q}`, b64(pkg)),
		"/repos/octo/campus/contents/.github/workflows": `[{"name":"ci.yml","type":"file"}]`,
	})

	c := NewClient(server.URL, "", "", time.Second, 16)
	a, err := c.Analyze(context.Background(), "octo", "campus")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if a.Info.Stars != 42 || a.Info.License != "MIT" || len(a.Info.Topics) != 2 {
		t.Errorf("info = %+v", a.Info)
	}
	s := a.Structure
	if s == nil {
		t.Fatal("structure missing")
	}
	if !s.HasReadme || !s.HasTests || !s.HasCI || s.HasDocs {
		t.Errorf("structure flags = %+v", s)
	}
	if s.PackageName != "campus-bot" || len(s.Scripts) != 3 {
		t.Errorf("manifest = %q %v", s.PackageName, s.Scripts)
	}
	if []rune(s.Readme)[500] != '.' || !strings.HasSuffix(s.Readme, "...") {
		t.Errorf("readme should be truncated to 500 chars + ellipsis, got %d runes", len([]rune(s.Readme)))
	}

	recs := a.Recommendations()
	if len(recs) != 1 || !strings.Contains(recs[0], "documentation") {
		t.Errorf("recommendations = %v", recs)
	}

	report := a.Report()
	for _, want := range []string{
		"Repository: octo/campus",
		"Language: TypeScript",
		"Stars: 42 | Forks: 7 | Size: 1234 KB",
		"Topics: education, bot",
		"Created: 2023-01-05",
		"- Manifest: package.json (name campus-bot; scripts build, test, lint)",
		"- Docs: no",
		"Recommendations:",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestAnalyze_PositiveNote(t *testing.T) {
	server := fakeAPI(t, map[string]string{
		"/repos/octo/campus": repoJSON,
		"/repos/octo/campus/contents/": `[
			{"name":"README.md","type":"file"},
			{"name":"tests","type":"dir"},
			{"name":"docs","type":"dir"},
			{"name":".travis.yml","type":"file"}
		]`,
	})

	c := NewClient(server.URL, "", "", time.Second, 16)
	a, err := c.Analyze(context.Background(), "octo", "campus")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if recs := a.Recommendations(); len(recs) != 0 {
		t.Errorf("unexpected recommendations: %v", recs)
	}
	report := a.Report()
	if !strings.Contains(report, "in good shape") || strings.Contains(report, "Recommendations:") {
		t.Errorf("expected a single positive note:\n%s", report)
	}
}

func TestAnalyze_StructureFailureIsSoft(t *testing.T) {
	server := fakeAPI(t, map[string]string{"/repos/octo/campus": repoJSON})

	c := NewClient(server.URL, "", "", time.Second, 16)
	a, err := c.Analyze(context.Background(), "octo", "campus")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Structure != nil {
		t.Error("structure should be nil when the listing fails")
	}
	if !strings.Contains(a.Report(), "Repository: octo/campus") {
		t.Error("report should still include metadata")
	}
}

func TestAnalyze_MissingRepo(t *testing.T) {
	server := fakeAPI(t, map[string]string{})

	c := NewClient(server.URL, "", "", time.Second, 16)
	if _, err := c.Analyze(context.Background(), "octo", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestContents_File(t *testing.T) {
	long := strings.Repeat("x", 2500)
	server := fakeAPI(t, map[string]string{
		"/repos/octo/campus/contents/src/main.go": fmt.Sprintf(`{"path":"src/main.go","size":2500,"encoding":"base64","content":%q}`,
			// GitHub wraps base64 at 60 columns
			strings.Join(chunk(b64(long), 60), "\n")),
	})

	c := NewClient(server.URL, "", "", time.Second, 16)
	got, err := c.Contents(context.Background(), "octo", "campus", "src/main.go", "")
	if err != nil {
		t.Fatalf("Contents: %v", err)
	}
	if got.IsDir || !got.Truncated {
		t.Errorf("contents = %+v", got)
	}
	if len(got.Content) != 2003 || !strings.HasSuffix(got.Content, "...") {
		t.Errorf("content length = %d", len(got.Content))
	}

	report := got.Report(RepoRef{Owner: "octo", Repo: "campus", Ref: "main", Path: "src/main.go"})
	if !strings.HasPrefix(report, "File src/main.go in octo/campus at main (2500 bytes):\n") {
		t.Errorf("report = %q", report[:80])
	}
}

func TestContents_Directory(t *testing.T) {
	var items []string
	for i := 0; i < 12; i++ {
		items = append(items, fmt.Sprintf(`{"name":"f%d","type":"file"}`, i))
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/octo/campus/contents/docs" || r.URL.Query().Get("ref") != "dev" {
			t.Errorf("unexpected request %s", r.URL)
		}
		fmt.Fprint(w, "["+strings.Join(items, ",")+"]")
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "", time.Second, 16)
	got, err := c.Contents(context.Background(), "octo", "campus", "docs", "dev")
	if err != nil {
		t.Fatalf("Contents: %v", err)
	}
	if !got.IsDir || len(got.Entries) != 10 || got.Total != 12 {
		t.Errorf("dir = %+v", got)
	}
	report := got.Report(RepoRef{Owner: "octo", Repo: "campus", Path: "docs"})
	if !strings.Contains(report, "- f9 (file)") || !strings.Contains(report, "... and 2 more") {
		t.Errorf("report = %s", report)
	}
}

func TestClient_ETagRevalidation(t *testing.T) {
	var hits, notModified int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing token header")
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			atomic.AddInt32(&notModified, 1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, repoJSON)
	}))
	defer server.Close()

	c := NewClient(server.URL, "tok", "", time.Second, 16)
	for i := 0; i < 2; i++ {
		info, err := c.RepoInfo(context.Background(), "octo", "campus")
		if err != nil {
			t.Fatalf("RepoInfo #%d: %v", i, err)
		}
		if info.FullName != "octo/campus" {
			t.Errorf("call #%d full name = %q", i, info.FullName)
		}
	}
	if h, nm := atomic.LoadInt32(&hits), atomic.LoadInt32(&notModified); h != 2 || nm != 1 {
		t.Errorf("hits=%d notModified=%d, want 2/1", h, nm)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "", time.Second, 16)
	_, err := c.RepoInfo(context.Background(), "a", "b")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("err = %v, want status 403", err)
	}
}

func chunk(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}
