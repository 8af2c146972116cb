package delivery

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"applypilot-backend/internal/recipients"
)

// ErrRejected is wrapped when the delivery service answers with a non-2xx status.
var ErrRejected = errors.New("delivery rejected")

// Sender is the signed-in user a message is sent on behalf of.
type Sender struct {
	Name  string
	Email string
	Token *oauth2.Token
}

// Attachment is the resume binary sent with every application.
type Attachment struct {
	FileName  string
	MediaType string
	Data      []byte
}

// Submission is one application email.
type Submission struct {
	Sender      Sender
	Recipient   recipients.Record
	CoverLetter string
	Resume      Attachment
}

// Receipt describes an accepted submission.
type Receipt struct {
	ID     string
	Detail string
}

// Deliverer sends a single application.
type Deliverer interface {
	Deliver(ctx context.Context, sub Submission) (Receipt, error)
}

// ErrNotConfigured is returned by Unconfigured.
var ErrNotConfigured = errors.New("delivery provider not configured")

// Unconfigured stands in when no delivery endpoint is set in dev. Every
// call fails, so dispatch records delivery failures.
type Unconfigured struct{}

func (Unconfigured) Deliver(ctx context.Context, sub Submission) (Receipt, error) {
	return Receipt{}, ErrNotConfigured
}
