package roadmap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RefKind is the kind of GitHub object an item points at.
type RefKind string

const (
	KindRepo  RefKind = "repo"
	KindIssue RefKind = "issue"
	KindPR    RefKind = "pr"
)

// Ref is a parsed GitHub reference.
type Ref struct {
	Owner  string  `json:"owner"`
	Repo   string  `json:"repo"`
	Kind   RefKind `json:"kind"`
	Number int     `json:"number,omitempty"`
}

var (
	githubHost   = regexp.MustCompile(`^https?://(www\.)?github\.com/`)
	issueOrPRURL = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/(issues|pull)/(\d+)`)
	repoURL      = regexp.MustCompile(`github\.com/([^/]+)/([^/?#]+)`)
)

// IsGithubURL reports whether raw is an http(s) URL on github.com.
func IsGithubURL(raw string) bool {
	return githubHost.MatchString(raw)
}

// ParseGithubURL extracts a Ref from an issue, pull request or repository
// URL. The second return value is false when nothing matched.
func ParseGithubURL(raw string) (Ref, bool) {
	if raw == "" {
		return Ref{}, false
	}

	if m := issueOrPRURL.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[4])
		if err != nil {
			return Ref{}, false
		}
		kind := KindIssue
		if m[3] == "pull" {
			kind = KindPR
		}
		return Ref{Owner: m[1], Repo: m[2], Kind: kind, Number: n}, true
	}

	if m := repoURL.FindStringSubmatch(raw); m != nil {
		return Ref{Owner: m[1], Repo: m[2], Kind: KindRepo}, true
	}

	return Ref{}, false
}

// Slug returns "owner/repo".
func (r Ref) Slug() string {
	return r.Owner + "/" + r.Repo
}

// HasNumber reports whether the ref points at an issue or pull request.
func (r Ref) HasNumber() bool {
	return r.Kind == KindIssue || r.Kind == KindPR
}

func (r Ref) String() string {
	if r.HasNumber() {
		return fmt.Sprintf("%s#%d", r.Slug(), r.Number)
	}
	return r.Slug()
}

// normalizeURL lower-cases a URL and strips its scheme, a leading "www."
// and any trailing slash so it can be found inside free text.
func normalizeURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimRight(s, "/")
}
