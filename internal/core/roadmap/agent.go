package roadmap

// ProfileURLBase is prefixed to a BTC address to link an agent profile.
const ProfileURLBase = "https://aibtc.com/agents/"

// Agent is a verified agent identity. A non-empty BTCAddress means the
// agent is authenticated.
type Agent struct {
	BTCAddress  string `json:"btcAddress"`
	STXAddress  string `json:"stxAddress,omitempty"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	AgentID     *int64 `json:"agentId,omitempty"`
}

// Authenticated reports whether the identity was verified.
func (a Agent) Authenticated() bool {
	return a.BTCAddress != ""
}

// Contributor returns the identity snapshot stored on items.
func (a Agent) Contributor() Contributor {
	return Contributor{
		Address:     a.BTCAddress,
		DisplayName: a.DisplayName,
		AgentID:     a.AgentID,
	}
}

// Founder returns the founder snapshot for an item created by a.
func (a Agent) Founder() Founder {
	return Founder{
		Contributor: a.Contributor(),
		ProfileURL:  ProfileURLBase + a.BTCAddress,
	}
}
