package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"applypilot-backend/internal/delivery"
	"applypilot-backend/internal/recipients"
)

func testSubmission() delivery.Submission {
	return delivery.Submission{
		Sender:      delivery.Sender{Name: "Sam Sender", Email: "sam@example.com", Token: &oauth2.Token{AccessToken: "tok"}},
		Recipient:   recipients.Record{Name: "Jane Doe", Email: "jane@x.com", Company: "Acme", JobTitle: "Engineer"},
		CoverLetter: "Dear Jane,\nHello.",
		Resume:      delivery.Attachment{FileName: "cv.pdf", MediaType: "application/pdf", Data: []byte("%PDF-1.4 body")},
	}
}

func TestBuildMessageHasBodyAndAttachment(t *testing.T) {
	raw, err := buildMessage(testSubmission(), time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	subject, _ := mr.Header.Subject()
	if subject != "Application for Engineer at Acme" {
		t.Fatalf("unexpected subject %q", subject)
	}
	to, _ := mr.Header.AddressList("To")
	if len(to) != 1 || to[0].Address != "jane@x.com" {
		t.Fatalf("unexpected to %+v", to)
	}

	var body, attachment, fileName string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next part: %v", err)
		}
		data, _ := io.ReadAll(p.Body)
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			body = string(data)
		case *mail.AttachmentHeader:
			fileName, _ = h.Filename()
			attachment = string(data)
		}
	}
	if body != "Dear Jane,\nHello." {
		t.Fatalf("unexpected body %q", body)
	}
	if fileName != "cv.pdf" || attachment != "%PDF-1.4 body" {
		t.Fatalf("unexpected attachment %q %q", fileName, attachment)
	}
}

func TestDeliverCallsSend(t *testing.T) {
	var gotRaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/messages/send") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var msg struct {
			Raw string `json:"raw"`
		}
		json.NewDecoder(r.Body).Decode(&msg)
		gotRaw = msg.Raw
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"gm-1","threadId":"th-1"}`))
	}))
	defer srv.Close()

	c := &Client{Options: []option.ClientOption{
		option.WithEndpoint(srv.URL + "/"),
		option.WithHTTPClient(srv.Client()),
	}}
	receipt, err := c.Deliver(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if receipt.ID != "gm-1" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	decoded, err := base64.URLEncoding.DecodeString(gotRaw)
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	if !bytes.Contains(decoded, []byte("Subject: Application for Engineer at Acme")) {
		t.Fatalf("raw message missing subject:\n%s", decoded)
	}
}

func TestDeliverWithoutToken(t *testing.T) {
	sub := testSubmission()
	sub.Sender.Token = nil
	if _, err := (&Client{}).Deliver(context.Background(), sub); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}
