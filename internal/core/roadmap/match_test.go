package roadmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchMention(t *testing.T) {
	issue := Item{
		ID:        "r_1a2b3c4d",
		Title:     "Agent Wallet Sync",
		GithubURL: "https://github.com/acme/widgets/issues/42",
	}

	tests := []struct {
		name string
		text string
		item Item
		want MatchType
	}{
		{name: "empty", text: "", item: issue, want: MatchNone},
		{name: "whitespace", text: "   ", item: issue, want: MatchNone},
		{name: "title case insensitive", text: "has anyone looked at AGENT wallet sync yet?", item: issue, want: MatchTitle},
		{name: "url", text: "see github.com/acme/widgets/issues/42 please", item: issue, want: MatchURL},
		{name: "ref", text: "fixed in acme/widgets#42", item: issue, want: MatchRef},
		{name: "repo", text: "acme/widgets is great", item: issue, want: MatchRepo},
		{name: "id", text: "bumping r_1a2b3c4d", item: issue, want: MatchID},
		{name: "unrelated", text: "gm everyone", item: issue, want: MatchNone},
		{name: "title beats url", text: "agent wallet sync https://github.com/acme/widgets/issues/42", item: issue, want: MatchTitle},
		{
			name: "short title ignored",
			text: "the ui looks off",
			item: Item{ID: "r_x", Title: "UI", GithubURL: "https://github.com/acme/site"},
			want: MatchNone,
		},
		{
			name: "repo item has no ref match",
			text: "acme/site#3",
			item: Item{ID: "r_x", Title: "Website", GithubURL: "https://github.com/acme/site"},
			want: MatchRepo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchMention(tt.text, tt.item))
		})
	}
}

func TestMatchMention_SingleItemScenario(t *testing.T) {
	item := Item{ID: "r_00000001", Title: "Xylophone"}

	msgs := []struct{ text, ts string }{
		{text: "check Xylophone out", ts: "T1"},
		{text: "unrelated", ts: "T2"},
	}

	var matched []string
	for _, m := range msgs {
		if MatchMention(m.text, item) != MatchNone {
			matched = append(matched, m.ts)
		}
	}

	assert.Equal(t, []string{"T1"}, matched)
}
