package session

import (
	"errors"
	"time"

	"golang.org/x/oauth2"

	"applypilot-backend/internal/recipients"
	"applypilot-backend/internal/resumes"
)

// MaxNotifications bounds the pending toast queue per session.
const MaxNotifications = 50

var (
	ErrNotFound = errors.New("session not found")
	ErrBusy     = errors.New("another operation is in progress")
)

// Operation names the user actions guarded by the in-flight flag.
type Operation string

const (
	OpRecipients Operation = "recipients"
	OpResume     Operation = "resume"
	OpDispatch   Operation = "dispatch"
)

// Kind is the toast style of a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
	KindWarning Kind = "warning"
)

// Notification is a transient, user-visible message.
type Notification struct {
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Identity is what sign-in yields. Token is only used by the Gmail deliverer.
type Identity struct {
	UID   string        `json:"uid"`
	Name  string        `json:"name"`
	Email string        `json:"email"`
	Token *oauth2.Token `json:"-"`
}

// Session is the per-user dashboard state. Rows stored in the table are never
// mutated; updates replace them with a modified clone.
type Session struct {
	UserID        string
	Identity      Identity
	Recipients    []recipients.Record
	Resume        *resumes.Asset
	Busy          Operation
	Notifications []Notification
	OpenedAt      time.Time
	LastSeen      time.Time
}

func (s *Session) clone() *Session {
	out := *s
	out.Recipients = append([]recipients.Record(nil), s.Recipients...)
	out.Notifications = append([]Notification(nil), s.Notifications...)
	if s.Resume != nil {
		asset := *s.Resume
		out.Resume = &asset
	}
	return &out
}
