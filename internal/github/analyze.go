package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hession/campusbot/internal/logger"
)

// Analysis combines repository metadata with a structural check
type Analysis struct {
	Info      *RepoInfo
	Structure *Structure // nil when the structure could not be fetched
}

// Analyze fetches metadata and structure concurrently. Metadata is
// required; a structure failure only drops that part of the report.
func (c *Client) Analyze(ctx context.Context, owner, repo string) (*Analysis, error) {
	var (
		info      *RepoInfo
		structure *Structure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = c.RepoInfo(gctx, owner, repo)
		return err
	})
	g.Go(func() error {
		s, err := c.Structure(gctx, owner, repo)
		if err != nil {
			logger.Warn("GitHub structure analysis failed for %s/%s: %v", owner, repo, err)
			return nil
		}
		structure = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Analysis{Info: info, Structure: structure}, nil
}

// Recommendations lists improvements for missing items only
func (a *Analysis) Recommendations() []string {
	var recs []string
	if a.Info != nil {
		if strings.TrimSpace(a.Info.Description) == "" {
			recs = append(recs, "Add a short repository description")
		}
		if a.Info.License == "" {
			recs = append(recs, "Add a LICENSE file so others know how they may use the code")
		}
	}
	if s := a.Structure; s != nil {
		if !s.HasReadme {
			recs = append(recs, "Add a README explaining what the project does and how to run it")
		}
		if !s.HasTests {
			recs = append(recs, "Add automated tests")
		}
		if !s.HasDocs {
			recs = append(recs, "Add documentation (a docs/ folder or CONTRIBUTING.md)")
		}
		if !s.HasCI {
			recs = append(recs, "Set up continuous integration, e.g. a GitHub Actions workflow")
		}
	}
	return recs
}

// Report renders the analysis as plain text for the model
func (a *Analysis) Report() string {
	var sb strings.Builder
	info := a.Info

	fmt.Fprintf(&sb, "Repository: %s", info.FullName)
	if info.HTMLURL != "" {
		fmt.Fprintf(&sb, " (%s)", info.HTMLURL)
	}
	sb.WriteByte('\n')
	if info.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", info.Description)
	}
	if info.Language != "" {
		fmt.Fprintf(&sb, "Language: %s\n", info.Language)
	}
	fmt.Fprintf(&sb, "Stars: %d | Forks: %d | Size: %d KB\n", info.Stars, info.Forks, info.SizeKB)
	if len(info.Topics) > 0 {
		fmt.Fprintf(&sb, "Topics: %s\n", strings.Join(info.Topics, ", "))
	}
	if info.License != "" {
		fmt.Fprintf(&sb, "License: %s\n", info.License)
	}
	fmt.Fprintf(&sb, "Created: %s | Updated: %s | Last push: %s\n",
		formatDate(info.CreatedAt), formatDate(info.UpdatedAt), formatDate(info.PushedAt))

	if s := a.Structure; s != nil {
		sb.WriteString("\nStructure:\n")
		fmt.Fprintf(&sb, "- README: %s\n", yesNo(s.HasReadme))
		if s.Manifest != "" {
			fmt.Fprintf(&sb, "- Manifest: %s", s.Manifest)
			var details []string
			if s.PackageName != "" {
				details = append(details, "name "+s.PackageName)
			}
			if len(s.Scripts) > 0 {
				details = append(details, "scripts "+strings.Join(s.Scripts, ", "))
			}
			if len(details) > 0 {
				fmt.Fprintf(&sb, " (%s)", strings.Join(details, "; "))
			}
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- Tests: %s\n", yesNo(s.HasTests))
		fmt.Fprintf(&sb, "- Docs: %s\n", yesNo(s.HasDocs))
		fmt.Fprintf(&sb, "- CI: %s\n", yesNo(s.HasCI))
		if s.Readme != "" {
			fmt.Fprintf(&sb, "\nREADME excerpt:\n%s\n", s.Readme)
		}
	}

	if recs := a.Recommendations(); len(recs) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, r := range recs {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	} else if a.Structure != nil {
		sb.WriteString("\nThe repository is in good shape: README, license, tests, docs and CI are all present.\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// Report renders a file or directory for the model
func (c *Contents) Report(ref RepoRef) string {
	var sb strings.Builder
	if c.IsDir {
		fmt.Fprintf(&sb, "Directory %s in %s:\n", displayPath(c.Path), ref.FullName())
		for _, e := range c.Entries {
			fmt.Fprintf(&sb, "- %s (%s)\n", e.Name, e.Type)
		}
		if c.Total > len(c.Entries) {
			fmt.Fprintf(&sb, "... and %d more\n", c.Total-len(c.Entries))
		}
		return strings.TrimRight(sb.String(), "\n")
	}

	fmt.Fprintf(&sb, "File %s in %s", displayPath(c.Path), ref.FullName())
	if ref.Ref != "" {
		fmt.Fprintf(&sb, " at %s", ref.Ref)
	}
	fmt.Fprintf(&sb, " (%d bytes):\n%s", c.Size, c.Content)
	return sb.String()
}

func displayPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02")
}
