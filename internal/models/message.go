package models

import "time"

// Role identifies which side of the conversation produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known conversation roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one immutable entry in an owner's conversation history.
// SequenceID is server-assigned and is the authoritative ordering key;
// Timestamp is kept for display and auditing only.
type Message struct {
	SequenceID int64     `json:"sequence_id"`
	OwnerID    int64     `json:"owner_id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}
