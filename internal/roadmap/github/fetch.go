package github

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/colonyops/roadmap/internal/core/roadmap"
)

// maxRepoContributors caps how many top contributors a repo item collects.
const maxRepoContributors = 10

var _ roadmap.SnapshotFetcher = (*Client)(nil)

func repoPath(ref roadmap.Ref) string {
	return "/repos/" + url.PathEscape(ref.Owner) + "/" + url.PathEscape(ref.Repo)
}

// FetchSnapshot loads the current state of ref. FetchedAt is stamped after
// the response has been decoded.
func (c *Client) FetchSnapshot(ctx context.Context, ref roadmap.Ref) (roadmap.Snapshot, error) {
	switch ref.Kind {
	case roadmap.KindRepo:
		var r repository
		if err := c.getJSON(ctx, repoPath(ref), &r); err != nil {
			return roadmap.Snapshot{}, err
		}

		title := r.Description
		if title == "" {
			title = r.FullName
		}
		state := "active"
		if r.Archived {
			state = "archived"
		}
		stars := r.StargazersCount

		return roadmap.Snapshot{
			Kind:      roadmap.KindRepo,
			Title:     title,
			State:     state,
			Assignees: []string{},
			Labels:    append([]string{}, r.Topics...),
			Stars:     &stars,
			FetchedAt: c.now().UTC(),
		}, nil

	case roadmap.KindIssue, roadmap.KindPR:
		segment := "issues"
		if ref.Kind == roadmap.KindPR {
			segment = "pulls"
		}

		var is issue
		if err := c.getJSON(ctx, fmt.Sprintf("%s/%s/%d", repoPath(ref), segment, ref.Number), &is); err != nil {
			return roadmap.Snapshot{}, err
		}

		labels := make([]string, 0, len(is.Labels))
		for _, l := range is.Labels {
			labels = append(labels, l.Name)
		}

		return roadmap.Snapshot{
			Kind:      ref.Kind,
			Number:    ref.Number,
			Title:     is.Title,
			State:     is.State,
			Merged:    is.Merged,
			Assignees: logins(is.Assignees),
			Labels:    labels,
			FetchedAt: c.now().UTC(),
		}, nil
	}

	return roadmap.Snapshot{}, fmt.Errorf("github: unsupported reference kind %q", ref.Kind)
}

// Contributors returns the GitHub logins that worked on ref, in first-seen
// order without duplicates. For issues and pull requests that is the
// author, then assignees, then commenters; for repositories the top
// contributors. Bots are skipped.
func (c *Client) Contributors(ctx context.Context, ref roadmap.Ref) ([]string, error) {
	var out []string
	add := func(u User) {
		if u.Login == "" || isBot(u) || slices.Contains(out, u.Login) {
			return
		}
		out = append(out, u.Login)
	}

	if !ref.HasNumber() {
		var cs []contributor
		path := fmt.Sprintf("%s/contributors?per_page=%d", repoPath(ref), maxRepoContributors)
		if err := c.getJSON(ctx, path, &cs); err != nil {
			return nil, err
		}
		for _, cc := range cs {
			add(User{Login: cc.Login, Type: cc.Type})
		}
		return out, nil
	}

	var is issue
	if err := c.getJSON(ctx, fmt.Sprintf("%s/issues/%d", repoPath(ref), ref.Number), &is); err != nil {
		return nil, err
	}
	add(is.User)
	for _, a := range is.Assignees {
		add(a)
	}

	comments, err := getPages[comment](ctx, c, fmt.Sprintf("%s/issues/%d/comments?per_page=100", repoPath(ref), ref.Number))
	if err != nil {
		return nil, err
	}
	for _, cm := range comments {
		add(cm.User)
	}

	return out, nil
}

// Timeline returns the timeline of an issue or pull request, oldest first,
// across all pages.
func (c *Client) Timeline(ctx context.Context, ref roadmap.Ref) ([]TimelineEvent, error) {
	if !ref.HasNumber() {
		return nil, fmt.Errorf("github: timeline needs an issue or pull request, got %s", ref)
	}

	path := fmt.Sprintf("%s/issues/%d/timeline?per_page=100", repoPath(ref), ref.Number)
	return getPages[TimelineEvent](ctx, c, path)
}
