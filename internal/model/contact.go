package model

import "time"

// Contact is a roster entry.
type Contact struct {
	ID          string
	DisplayName string
	Number      string
	AvatarRef   string
	// LastMessageAt is nil until a message from or to the contact is observed.
	LastMessageAt *time.Time
}

// Label returns the best human-readable name for the contact.
func (c Contact) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	if c.Number != "" {
		return c.Number
	}
	return c.ID
}
