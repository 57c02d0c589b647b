package roadmap

import (
	"strings"
	"unicode/utf8"
)

// MatchType names the item field that a message referenced.
type MatchType string

const (
	MatchNone  MatchType = ""
	MatchTitle MatchType = "title"
	MatchURL   MatchType = "url"
	MatchRef   MatchType = "ref"
	MatchRepo  MatchType = "repo"
	MatchID    MatchType = "id"
)

// minTitleRunes keeps short titles like "UI" from matching every message.
const minTitleRunes = 4

// MatchMention reports how text references item, or MatchNone. Matching is
// case-insensitive substring search over, in order: title, GitHub URL,
// owner/repo#N, owner/repo and the item id. The first hit wins.
func MatchMention(text string, item Item) MatchType {
	text = strings.ToLower(text)
	if strings.TrimSpace(text) == "" {
		return MatchNone
	}

	title := strings.ToLower(strings.TrimSpace(item.Title))
	if utf8.RuneCountInString(title) >= minTitleRunes && strings.Contains(text, title) {
		return MatchTitle
	}

	if u := normalizeURL(item.GithubURL); u != "" && strings.Contains(text, u) {
		return MatchURL
	}

	ref := item.Ref
	if ref == nil {
		if parsed, ok := ParseGithubURL(item.GithubURL); ok {
			ref = &parsed
		}
	}
	if ref != nil {
		if ref.HasNumber() && strings.Contains(text, strings.ToLower(ref.String())) {
			return MatchRef
		}
		if strings.Contains(text, strings.ToLower(ref.Slug())) {
			return MatchRepo
		}
	}

	if item.ID != "" && strings.Contains(text, strings.ToLower(item.ID)) {
		return MatchID
	}

	return MatchNone
}
