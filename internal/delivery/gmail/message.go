package gmail

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-message/mail"

	"applypilot-backend/internal/delivery"
)

// Subject is the subject line of an application email.
func Subject(sub delivery.Submission) string {
	return fmt.Sprintf("Application for %s at %s", sub.Recipient.JobTitle, sub.Recipient.Company)
}

// buildMessage renders sub as an RFC 5322 message: a plain-text cover letter
// followed by the resume attachment.
func buildMessage(sub delivery.Submission, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(Subject(sub))
	h.SetAddressList("From", []*mail.Address{{Name: sub.Sender.Name, Address: sub.Sender.Email}})
	h.SetAddressList("To", []*mail.Address{{Name: sub.Recipient.Name, Address: sub.Recipient.Email}})

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	pw, err := tw.CreatePart(th)
	if err != nil {
		return nil, err
	}
	if _, err := pw.Write([]byte(sub.CoverLetter)); err != nil {
		return nil, err
	}
	if err := pw.Close(); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	if len(sub.Resume.Data) > 0 {
		var ah mail.AttachmentHeader
		mediaType := sub.Resume.MediaType
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		ah.SetContentType(mediaType, nil)
		ah.SetFilename(sub.Resume.FileName)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, err
		}
		if _, err := aw.Write(sub.Resume.Data); err != nil {
			return nil, err
		}
		if err := aw.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
