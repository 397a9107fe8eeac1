package types

import (
	"time"
)

// Session is the persisted record of one user session
type Session struct {
	ID         string
	Status     SessionStatus
	RemoteAddr string
	UserAgent  string
	Roots      int
	CreatedAt  time.Time
	LastAccess time.Time
	EndedAt    time.Time
}

// SessionStatus represents where a session is in its lifecycle
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusExpired SessionStatus = "expired"
	SessionStatusClosed  SessionStatus = "closed"
)

// Ended reports whether the session can no longer serve requests
func (s *Session) Ended() bool {
	return s.Status == SessionStatusExpired || s.Status == SessionStatusClosed
}

// Notification describes one critical message shown by the client. A nil
// caption or message is sent as null.
type Notification struct {
	Enabled bool    `yaml:"enabled"`
	Caption *string `yaml:"caption"`
	Message *string `yaml:"message"`
	URL     string  `yaml:"url"`
}

// Silent reports whether the notification redirects without showing text
func (n Notification) Silent() bool {
	return n.Caption == nil && n.Message == nil
}

// SystemMessages holds the texts of the client's critical notifications
type SystemMessages struct {
	SessionExpired     Notification `yaml:"sessionExpired"`
	CommunicationError Notification `yaml:"communicationError"`
	InternalError      Notification `yaml:"internalError"`
	OutOfSync          Notification `yaml:"outOfSync"`
}

// DefaultSystemMessages returns the stock notification texts
func DefaultSystemMessages() *SystemMessages {
	const unsaved = "Take note of any unsaved data, and <u>click here</u> to continue."
	return &SystemMessages{
		SessionExpired: Notification{
			Enabled: true,
			Caption: Text("Session Expired"),
			Message: Text(unsaved),
		},
		CommunicationError: Notification{
			Enabled: true,
			Caption: Text("Communication problem"),
			Message: Text(unsaved),
		},
		InternalError: Notification{
			Enabled: true,
			Caption: Text("Internal error"),
			Message: Text("Please notify the administrator.<br/>" + unsaved),
		},
		OutOfSync: Notification{
			Enabled: true,
			Caption: Text("Out of sync"),
			Message: Text("Something has caused us to be out of sync with the server.<br/>" +
				"Take note of any unsaved data, and <u>click here</u> to re-sync."),
		},
	}
}

// Text returns a pointer to s, for building notifications
func Text(s string) *string {
	return &s
}
