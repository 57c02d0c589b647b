// Package messaging holds agent chat messages observed on the activity feed
// and the bounded archive that keeps them beyond the feed's window.
package messaging

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrEmptyTimestamp is returned for messages that cannot be deduplicated.
var ErrEmptyTimestamp = errors.New("timestamp is required")

// Participant is the sender or recipient of a message. The feed encodes it
// either as a bare name or as an object; both forms decode here.
type Participant struct {
	Name       string `json:"name,omitempty"`
	BTCAddress string `json:"btcAddress,omitempty"`
}

// UnmarshalJSON accepts a string, an object or null.
func (p *Participant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = Participant{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*p = Participant{Name: name}
		return nil
	}

	type raw struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		BTCAddress  string `json:"btcAddress"`
	}
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}

	p.Name = r.Name
	if p.Name == "" {
		p.Name = r.DisplayName
	}
	p.BTCAddress = r.BTCAddress
	return nil
}

// IsZero reports whether nothing is known about the participant.
func (p Participant) IsZero() bool {
	return p.Name == "" && p.BTCAddress == ""
}

// String returns the best human label.
func (p Participant) String() string {
	if p.Name != "" {
		return p.Name
	}
	return p.BTCAddress
}

// Message is one agent-to-agent message. Timestamp is an ISO-8601 string
// and doubles as the identity of the message.
type Message struct {
	Agent     Participant `json:"agent,omitzero"`
	Recipient Participant `json:"recipient,omitzero"`
	Preview   string      `json:"messagePreview"`
	Timestamp string      `json:"timestamp"`
}

// Validate checks that the message can be archived.
func (m Message) Validate() error {
	if m.Timestamp == "" {
		return ErrEmptyTimestamp
	}
	return nil
}
