package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"applypilot-backend/internal/delivery"
)

// ErrNoToken is returned when the sender never granted Gmail access.
var ErrNoToken = errors.New("sender has no gmail token")

// Client sends applications from the signed-in user's Gmail account.
type Client struct {
	// OAuth refreshes expired sender tokens. Nil uses the token as is.
	OAuth *oauth2.Config
	// Options are appended to every service; tests point the endpoint here.
	Options []option.ClientOption
	Now     func() time.Time
}

var _ delivery.Deliverer = (*Client)(nil)

// Deliver builds the MIME message and calls users.messages.send.
func (c *Client) Deliver(ctx context.Context, sub delivery.Submission) (delivery.Receipt, error) {
	if sub.Sender.Token == nil {
		return delivery.Receipt{}, ErrNoToken
	}
	raw, err := buildMessage(sub, c.now())
	if err != nil {
		return delivery.Receipt{}, err
	}

	var ts oauth2.TokenSource
	if c.OAuth != nil {
		ts = c.OAuth.TokenSource(ctx, sub.Sender.Token)
	} else {
		ts = oauth2.StaticTokenSource(sub.Sender.Token)
	}
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, c.Options...)
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("gmail service: %w", err)
	}

	msg := &gmailapi.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	sent, err := svc.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("gmail send: %w", err)
	}
	return delivery.Receipt{ID: sent.Id, Detail: sent.ThreadId}, nil
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
