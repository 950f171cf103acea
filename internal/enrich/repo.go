package enrich

import (
	"context"

	"github.com/hession/campusbot/internal/github"
)

// RepoSource answers questions about GitHub repositories. A link with a
// sub-path fetches that file or directory; a bare repository link produces
// a metadata and structure report.
type RepoSource struct {
	client *github.Client
}

func NewRepoSource(client *github.Client) *RepoSource {
	return &RepoSource{client: client}
}

func (s *RepoSource) Kind() Kind {
	return KindRepository
}

func (s *RepoSource) Match(text string) (string, bool) {
	ref, ok := github.FindRepoRef(text)
	if !ok {
		return "", false
	}
	return ref.String(), true
}

func (s *RepoSource) Fetch(ctx context.Context, query string) (string, error) {
	ref, ok := github.FindRepoRef(query)
	if !ok {
		return "", ErrNoMatch
	}

	if ref.HasSubPath() {
		contents, err := s.client.Contents(ctx, ref.Owner, ref.Repo, ref.Path, ref.Ref)
		if err != nil {
			return "", err
		}
		return contents.Report(ref), nil
	}

	analysis, err := s.client.Analyze(ctx, ref.Owner, ref.Repo)
	if err != nil {
		return "", err
	}
	return analysis.Report(), nil
}
