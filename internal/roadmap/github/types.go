package github

import "time"

// User is a GitHub account reference.
type User struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

type label struct {
	Name string `json:"name"`
}

type issue struct {
	Number    int     `json:"number"`
	Title     string  `json:"title"`
	State     string  `json:"state"`
	Merged    bool    `json:"merged"`
	User      User    `json:"user"`
	Assignees []User  `json:"assignees"`
	Labels    []label `json:"labels"`
}

type repository struct {
	FullName        string   `json:"full_name"`
	Description     string   `json:"description"`
	Archived        bool     `json:"archived"`
	Topics          []string `json:"topics"`
	StargazersCount int      `json:"stargazers_count"`
}

type comment struct {
	User User `json:"user"`
}

type contributor struct {
	Login         string `json:"login"`
	Type          string `json:"type"`
	Contributions int    `json:"contributions"`
}

// TimelineEvent is one entry of an issue or pull request timeline.
// Only the fields used by the event scanner are decoded.
type TimelineEvent struct {
	ID        int64     `json:"id"`
	Event     string    `json:"event"`
	Actor     *User     `json:"actor"`
	User      *User     `json:"user"`
	Assignee  *User     `json:"assignee"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
}

// Login returns the acting user of the event.
func (e TimelineEvent) Login() string {
	switch {
	case e.Actor != nil && e.Actor.Login != "":
		return e.Actor.Login
	case e.User != nil:
		return e.User.Login
	}
	return ""
}

// AssigneeLogin returns the assigned user for "assigned" events.
func (e TimelineEvent) AssigneeLogin() string {
	if e.Assignee == nil {
		return ""
	}
	return e.Assignee.Login
}

func logins(users []User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u.Login != "" {
			out = append(out, u.Login)
		}
	}
	return out
}

func isBot(u User) bool {
	return u.Type == "Bot"
}
