package github

import (
	"regexp"
	"strings"
)

// RepoRef a repository reference found in free text
type RepoRef struct {
	Owner string
	Repo  string
	Ref   string // branch, tag or commit from /blob/<ref> or /tree/<ref>
	Path  string // sub-path inside the repository, "" for the root
}

var repoURLPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?github\.com/([a-z0-9](?:[a-z0-9-]*[a-z0-9])?)/([\w.-]+)(?:/(?:blob|tree)/([^/\s?#]+))?(/[^\s?#]*)?`)

// Owners that are GitHub site sections rather than accounts
var reservedOwners = map[string]bool{
	"about": true, "features": true, "marketplace": true, "orgs": true,
	"settings": true, "sponsors": true, "topics": true, "collections": true,
}

// FindRepoRef returns the first repository reference in text
func FindRepoRef(text string) (RepoRef, bool) {
	for _, m := range repoURLPattern.FindAllStringSubmatch(text, -1) {
		owner := m[1]
		if reservedOwners[strings.ToLower(owner)] {
			continue
		}
		repo := strings.TrimSuffix(strings.TrimRight(m[2], "."), ".git")
		if repo == "" {
			continue
		}
		path := strings.Trim(strings.TrimRight(m[4], ".,;:!?)»\"'"), "/")
		return RepoRef{Owner: owner, Repo: repo, Ref: m[3], Path: path}, true
	}
	return RepoRef{}, false
}

// FullName returns "owner/repo"
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Repo
}

// HasSubPath reports whether the reference points inside the repository
func (r RepoRef) HasSubPath() bool {
	return r.Path != ""
}

// String returns a canonical link that FindRepoRef parses back to r
func (r RepoRef) String() string {
	s := "https://github.com/" + r.FullName()
	if r.Ref != "" {
		s += "/tree/" + r.Ref
	}
	if r.Path != "" {
		s += "/" + r.Path
	}
	return s
}
