package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const (
	fileMaxChars   = 2000
	readmeMaxChars = 500
	dirMaxEntries  = 10
	maxScripts     = 3
)

// RepoInfo repository metadata
type RepoInfo struct {
	FullName      string
	Description   string
	Language      string
	Stars         int64
	Forks         int64
	SizeKB        int64
	Topics        []string
	License       string
	DefaultBranch string
	HTMLURL       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PushedAt      time.Time
}

// DirEntry one item of a directory listing
type DirEntry struct {
	Name string
	Type string // "file", "dir", "symlink" or "submodule"
}

// Contents a file or a directory inside a repository
type Contents struct {
	Path string
	// File
	IsDir     bool
	Content   string
	Size      int64
	Truncated bool
	// Directory
	Entries []DirEntry
	Total   int
}

// Structure heuristic view of a repository's layout
type Structure struct {
	HasReadme   bool
	Readme      string // first 500 characters
	Manifest    string // e.g. "package.json", "" when none was found
	PackageName string
	Scripts     []string
	HasTests    bool
	HasDocs     bool
	HasCI       bool
}

// RepoInfo fetches repository metadata
func (c *Client) RepoInfo(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	body, err := c.get(ctx, repoPath(owner, repo, ""))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("github returned invalid JSON")
	}

	r := gjson.ParseBytes(body)
	info := &RepoInfo{
		FullName:      r.Get("full_name").String(),
		Description:   r.Get("description").String(),
		Language:      r.Get("language").String(),
		Stars:         r.Get("stargazers_count").Int(),
		Forks:         r.Get("forks_count").Int(),
		SizeKB:        r.Get("size").Int(),
		License:       r.Get("license.spdx_id").String(),
		DefaultBranch: r.Get("default_branch").String(),
		HTMLURL:       r.Get("html_url").String(),
		CreatedAt:     r.Get("created_at").Time(),
		UpdatedAt:     r.Get("updated_at").Time(),
		PushedAt:      r.Get("pushed_at").Time(),
	}
	if info.License == "" || info.License == "NOASSERTION" {
		info.License = r.Get("license.name").String()
	}
	for _, t := range r.Get("topics").Array() {
		info.Topics = append(info.Topics, t.String())
	}
	if info.FullName == "" {
		info.FullName = owner + "/" + repo
	}
	return info, nil
}

// Contents fetches a file (decoded, truncated to 2000 characters) or a
// directory (up to 10 entries)
func (c *Client) Contents(ctx context.Context, owner, repo, path, ref string) (*Contents, error) {
	p := repoPath(owner, repo, "/contents/"+escapePath(path))
	if ref != "" {
		p += "?ref=" + url.QueryEscape(ref)
	}

	body, err := c.get(ctx, p)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("github returned invalid JSON")
	}

	r := gjson.ParseBytes(body)
	if r.IsArray() {
		items := r.Array()
		out := &Contents{Path: path, IsDir: true, Total: len(items)}
		for i, item := range items {
			if i == dirMaxEntries {
				break
			}
			out.Entries = append(out.Entries, DirEntry{
				Name: item.Get("name").String(),
				Type: item.Get("type").String(),
			})
		}
		return out, nil
	}

	content, err := decodeContent(r)
	if err != nil {
		return nil, err
	}
	text, truncated := truncate(content, fileMaxChars)
	return &Contents{
		Path:      r.Get("path").String(),
		Content:   text,
		Size:      r.Get("size").Int(),
		Truncated: truncated,
	}, nil
}

// Structure inspects the root listing and fetches README, package.json and
// the workflows directory concurrently. Missing pieces are not errors.
func (c *Client) Structure(ctx context.Context, owner, repo string) (*Structure, error) {
	body, err := c.get(ctx, repoPath(owner, repo, "/contents/"))
	if err != nil {
		return nil, err
	}

	s := &Structure{}
	var hasGitHubDir, hasPackageJSON bool
	gjson.ParseBytes(body).ForEach(func(_, item gjson.Result) bool {
		name := strings.ToLower(item.Get("name").String())
		isDir := item.Get("type").String() == "dir"
		switch {
		case strings.HasPrefix(name, "readme"):
			s.HasReadme = true
		case name == "package.json":
			hasPackageJSON = true
		case name == ".github" && isDir:
			hasGitHubDir = true
		case ciFiles[name]:
			s.HasCI = true
		case testNames[name] || (!isDir && isTestFile(name)):
			s.HasTests = true
		case docNames[name]:
			s.HasDocs = true
		}
		if s.Manifest == "" && manifests[name] {
			s.Manifest = name
		}
		return true
	})

	g, gctx := errgroup.WithContext(ctx)
	if s.HasReadme {
		g.Go(func() error {
			readme, err := c.readme(gctx, owner, repo)
			if err == nil {
				s.Readme = readme
			}
			return nil
		})
	}
	if hasPackageJSON {
		g.Go(func() error {
			name, scripts, err := c.packageJSON(gctx, owner, repo)
			if err == nil {
				s.PackageName = name
				s.Scripts = scripts
			}
			return nil
		})
	}
	if hasGitHubDir && !s.HasCI {
		g.Go(func() error {
			dir, err := c.Contents(gctx, owner, repo, ".github/workflows", "")
			if err == nil && dir.IsDir && dir.Total > 0 {
				s.HasCI = true
			}
			return nil
		})
	}
	// Goroutines write disjoint fields and never return errors
	_ = g.Wait()

	return s, nil
}

func (c *Client) readme(ctx context.Context, owner, repo string) (string, error) {
	body, err := c.get(ctx, repoPath(owner, repo, "/readme"))
	if err != nil {
		return "", err
	}
	content, err := decodeContent(gjson.ParseBytes(body))
	if err != nil {
		return "", err
	}
	text, _ := truncate(strings.TrimSpace(content), readmeMaxChars)
	return text, nil
}

func (c *Client) packageJSON(ctx context.Context, owner, repo string) (string, []string, error) {
	body, err := c.get(ctx, repoPath(owner, repo, "/contents/package.json"))
	if err != nil {
		return "", nil, err
	}
	content, err := decodeContent(gjson.ParseBytes(body))
	if err != nil {
		return "", nil, err
	}
	if !gjson.Valid(content) {
		return "", nil, fmt.Errorf("package.json is not valid JSON")
	}

	manifest := gjson.Parse(content)
	var scripts []string
	manifest.Get("scripts").ForEach(func(key, _ gjson.Result) bool {
		scripts = append(scripts, key.String())
		return len(scripts) < maxScripts
	})
	return manifest.Get("name").String(), scripts, nil
}

var (
	ciFiles = map[string]bool{
		".gitlab-ci.yml": true, ".travis.yml": true, ".circleci": true,
		"jenkinsfile": true, "azure-pipelines.yml": true, ".drone.yml": true,
		"bitbucket-pipelines.yml": true,
	}
	testNames = map[string]bool{
		"test": true, "tests": true, "__tests__": true, "spec": true,
		"specs": true, "testing": true, "e2e": true,
	}
	docNames = map[string]bool{
		"docs": true, "doc": true, "documentation": true, "wiki": true,
		"mkdocs.yml": true, "contributing.md": true,
	}
	manifests = map[string]bool{
		"package.json": true, "go.mod": true, "pyproject.toml": true,
		"requirements.txt": true, "cargo.toml": true, "pom.xml": true,
		"build.gradle": true, "composer.json": true, "gemfile": true,
	}
)

func isTestFile(name string) bool {
	return strings.HasSuffix(name, "_test.go") ||
		strings.HasPrefix(name, "test_") ||
		strings.Contains(name, ".test.") ||
		strings.Contains(name, ".spec.")
}

func decodeContent(r gjson.Result) (string, error) {
	if enc := r.Get("encoding").String(); enc != "" && enc != "base64" {
		return "", fmt.Errorf("unsupported content encoding %q", enc)
	}
	raw := strings.NewReplacer("\n", "", "\r", "").Replace(r.Get("content").String())
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode content: %w", err)
	}
	return string(data), nil
}

// truncate cuts s to n runes, appending "..." when it was longer
func truncate(s string, n int) (string, bool) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "...", true
		}
		i++
	}
	return s, false
}

func repoPath(owner, repo, suffix string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + suffix
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
