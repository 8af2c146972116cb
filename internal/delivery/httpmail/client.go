package httpmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"applypilot-backend/internal/delivery"
)

const maxResponseBytes = 64 << 10

// Client posts applications to a mail-delivery endpoint as multipart forms.
type Client struct {
	url        string
	httpClient *http.Client
}

var _ delivery.Deliverer = (*Client)(nil)

// New returns a client for url. A nil httpClient uses a 60s timeout.
func New(url string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("DELIVERY_URL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{url: url, httpClient: httpClient}, nil
}

// Deliver sends one submission. Any non-2xx status is a failure.
func (c *Client) Deliver(ctx context.Context, sub delivery.Submission) (delivery.Receipt, error) {
	body, contentType, err := encode(sub)
	if err != nil {
		return delivery.Receipt{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return delivery.Receipt{}, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("delivery request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	detail := strings.TrimSpace(string(raw))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return delivery.Receipt{Detail: detail}, fmt.Errorf("%w: status %d: %s", delivery.ErrRejected, resp.StatusCode, detail)
	}
	var ack struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &ack)
	return delivery.Receipt{ID: ack.ID, Detail: detail}, nil
}

func encode(sub delivery.Submission) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="resume"; filename=%q`, sub.Resume.FileName))
	mediaType := sub.Resume.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	header.Set("Content-Type", mediaType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(sub.Resume.Data); err != nil {
		return nil, "", err
	}

	recipient, err := json.Marshal(sub.Recipient)
	if err != nil {
		return nil, "", err
	}
	fields := []struct{ name, value string }{
		{"recipient", string(recipient)},
		{"coverLetter", sub.CoverLetter},
		{"senderEmail", sub.Sender.Email},
		{"senderName", sub.Sender.Name},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
