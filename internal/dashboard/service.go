package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"

	"applypilot-backend/internal/campaigns"
	"applypilot-backend/internal/delivery"
	"applypilot-backend/internal/dispatch"
	"applypilot-backend/internal/recipients"
	"applypilot-backend/internal/resumes"
	"applypilot-backend/internal/session"
	"applypilot-backend/internal/shared/metrics"
	"applypilot-backend/internal/shared/telemetry"
)

// PreviewRows is how many recipients the dashboard table shows.
const PreviewRows = 5

// DefaultSpreadsheetMaxBytes applies when Service.SpreadsheetMaxBytes is zero.
const DefaultSpreadsheetMaxBytes int64 = 10 << 20

// ErrResumeUnavailable means the stored resume binary could not be read back.
var ErrResumeUnavailable = errors.New("stored resume could not be read")

// Preview is the recipient table shown after an upload.
type Preview struct {
	Total int                 `json:"total"`
	Rows  []recipients.Record `json:"rows"`
}

// Service runs the dashboard actions against one user's session.
type Service struct {
	Sessions            *session.Store
	Resumes             *resumes.Service
	Runner              *dispatch.Runner
	Campaigns           *campaigns.Service
	SpreadsheetMaxBytes int64
}

// IngestRecipients parses an uploaded spreadsheet and, only if every row is
// valid, replaces the session's recipient list.
func (s *Service) IngestRecipients(ctx context.Context, uid, fileName string, data []byte) (Preview, error) {
	if err := s.Sessions.Begin(uid, session.OpRecipients); err != nil {
		return Preview{}, err
	}
	defer s.Sessions.End(uid, session.OpRecipients)

	records, err := s.parseRecipients(ctx, fileName, data)
	if err != nil {
		metrics.IncRecipientsRejected()
		telemetry.Warn("recipients.rejected", map[string]any{
			"user_id":   uid,
			"file_name": fileName,
			"error":     err.Error(),
		})
		s.notify(uid, session.KindFailure, "Upload failed", describeIngestError(err))
		return Preview{}, err
	}

	if err := s.Sessions.ReplaceRecipients(uid, records); err != nil {
		return Preview{}, err
	}
	metrics.AddRecipientsIngested(len(records))
	telemetry.Info("recipients.ingested", map[string]any{
		"user_id":   uid,
		"file_name": fileName,
		"count":     len(records),
	})
	s.notify(uid, session.KindSuccess, "Recipients loaded", fmt.Sprintf("Processed %d recipient entries", len(records)))
	return preview(records), nil
}

func (s *Service) parseRecipients(ctx context.Context, fileName string, data []byte) ([]recipients.Record, error) {
	limit := s.SpreadsheetMaxBytes
	if limit <= 0 {
		limit = DefaultSpreadsheetMaxBytes
	}
	if int64(len(data)) > limit {
		return nil, recipients.ErrTooLarge
	}
	return recipients.Parse(ctx, fileName, data)
}

// Recipients returns the first PreviewRows recipients and the total.
func (s *Service) Recipients(uid string) (Preview, error) {
	sess, err := s.Sessions.Get(uid)
	if err != nil {
		return Preview{}, err
	}
	return preview(sess.Recipients), nil
}

// UploadResume stores a new resume. A rejected upload leaves the current
// asset in place.
func (s *Service) UploadResume(ctx context.Context, uid, fileName, mediaType string, size int64, r io.Reader) (resumes.Asset, error) {
	if err := s.Sessions.Begin(uid, session.OpResume); err != nil {
		return resumes.Asset{}, err
	}
	defer s.Sessions.End(uid, session.OpResume)

	asset, err := s.Resumes.Upload(ctx, uid, fileName, mediaType, size, r)
	if err != nil {
		telemetry.Warn("resume.rejected", map[string]any{
			"user_id":    uid,
			"file_name":  fileName,
			"media_type": mediaType,
			"size_bytes": size,
			"error":      err.Error(),
		})
		s.notify(uid, session.KindFailure, "Resume upload failed", err.Error())
		return resumes.Asset{}, err
	}

	prev, err := s.Sessions.SetResume(uid, asset)
	if err != nil {
		s.deleteResume(ctx, asset)
		return resumes.Asset{}, err
	}
	if prev != nil && prev.StorageKey != asset.StorageKey {
		s.deleteResume(ctx, *prev)
	}
	metrics.IncResumesUploaded()
	telemetry.Info("resume.uploaded", map[string]any{
		"user_id":    uid,
		"file_name":  asset.FileName,
		"media_type": asset.MediaType,
		"size_bytes": asset.SizeBytes,
	})
	s.notify(uid, session.KindSuccess, "Resume uploaded", asset.FileName)
	return asset, nil
}

// Resume returns the current asset, or nil.
func (s *Service) Resume(uid string) (*resumes.Asset, error) {
	sess, err := s.Sessions.Get(uid)
	if err != nil {
		return nil, err
	}
	return sess.Resume, nil
}

// ClearResume drops the current resume and its stored binary.
func (s *Service) ClearResume(ctx context.Context, uid string) error {
	if err := s.Sessions.Begin(uid, session.OpResume); err != nil {
		return err
	}
	defer s.Sessions.End(uid, session.OpResume)

	prev, err := s.Sessions.ClearResume(uid)
	if err != nil {
		return err
	}
	if prev != nil {
		s.deleteResume(ctx, *prev)
	}
	return nil
}

// GenerateAndSend runs one dispatch over a snapshot of the session. Per
// recipient failures are reported as notifications, not errors.
func (s *Service) GenerateAndSend(ctx context.Context, uid string) (dispatch.Summary, error) {
	if err := s.Sessions.Begin(uid, session.OpDispatch); err != nil {
		return dispatch.Summary{}, err
	}
	defer s.Sessions.End(uid, session.OpDispatch)

	sess, err := s.Sessions.Get(uid)
	if err != nil {
		return dispatch.Summary{}, err
	}
	if sess.Resume == nil {
		s.notify(uid, session.KindFailure, "Missing resume", "Please upload your resume first")
		return dispatch.Summary{}, dispatch.ErrNoResume
	}
	if len(sess.Recipients) == 0 {
		s.notify(uid, session.KindFailure, "No recipients", "Please upload a recipient spreadsheet first")
		return dispatch.Summary{}, dispatch.ErrNoRecipients
	}

	data, err := s.Resumes.Open(ctx, *sess.Resume)
	if err != nil {
		telemetry.Error("dispatch.resume_unavailable", map[string]any{"user_id": uid, "error": err.Error()})
		s.notify(uid, session.KindFailure, "Sending failed", "Your resume could not be read, please upload it again")
		return dispatch.Summary{}, fmt.Errorf("%w: %v", ErrResumeUnavailable, err)
	}

	batch := dispatch.Batch{
		Sender: delivery.Sender{
			Name:  sess.Identity.Name,
			Email: sess.Identity.Email,
			Token: sess.Identity.Token,
		},
		Recipients:  sess.Recipients,
		Resume:      sess.Resume,
		ResumeBytes: data,
		ResumeText:  s.Resumes.Text(ctx, *sess.Resume, data),
		OnOutcome: func(o dispatch.Outcome) {
			if o.Status == dispatch.StatusSent {
				return
			}
			s.notify(uid, session.KindFailure, "Failed to send to "+o.Recipient.Name, outcomeDescription(o))
		},
	}
	summary, err := s.Runner.Run(ctx, batch)
	if err != nil {
		return dispatch.Summary{}, err
	}

	if summary.Sent > 0 {
		desc := fmt.Sprintf("%d personalized cover letters delivered", summary.Sent)
		if summary.Failed > 0 {
			desc += fmt.Sprintf(", %d failed", summary.Failed)
		}
		s.notify(uid, session.KindSuccess, "Emails sent successfully!", desc)
	} else {
		s.notify(uid, session.KindFailure, "No emails were sent", fmt.Sprintf("All %d deliveries failed", summary.Failed))
	}

	if s.Campaigns != nil {
		// History is written even when the request was cancelled mid-batch.
		_, _ = s.Campaigns.Record(context.WithoutCancel(ctx), uid, sess.Resume.FileName, summary)
	}
	return summary, nil
}

// Notifications drains the pending toasts.
func (s *Service) Notifications(uid string) ([]session.Notification, error) {
	out, err := s.Sessions.Drain(uid)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []session.Notification{}
	}
	return out, nil
}

// History lists past dispatches, newest first.
func (s *Service) History(ctx context.Context, uid string, limit int) ([]campaigns.Campaign, error) {
	if _, err := s.Sessions.Get(uid); err != nil {
		return nil, err
	}
	if s.Campaigns == nil {
		return []campaigns.Campaign{}, nil
	}
	return s.Campaigns.List(ctx, uid, limit)
}

// Release frees the stored resume of a closed or expired session.
func (s *Service) Release(ctx context.Context, sess session.Session) {
	if sess.Resume != nil {
		s.deleteResume(ctx, *sess.Resume)
	}
}

func (s *Service) notify(uid string, kind session.Kind, title, desc string) {
	err := s.Sessions.Notify(uid, session.Notification{Kind: kind, Title: title, Description: desc})
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		telemetry.Error("session.notify_failed", map[string]any{"user_id": uid, "error": err.Error()})
	}
}

func (s *Service) deleteResume(ctx context.Context, asset resumes.Asset) {
	if err := s.Resumes.Delete(ctx, asset); err != nil {
		telemetry.Warn("resume.delete_failed", map[string]any{"file_name": asset.FileName, "error": err.Error()})
	}
}

func preview(records []recipients.Record) Preview {
	n := len(records)
	if n > PreviewRows {
		n = PreviewRows
	}
	rows := append([]recipients.Record{}, records[:n]...)
	return Preview{Total: len(records), Rows: rows}
}

func describeIngestError(err error) string {
	var rowErr *recipients.RowError
	switch {
	case errors.As(err, &rowErr):
		return "Invalid data format: " + rowErr.Error()
	case errors.Is(err, recipients.ErrUnsupportedFormat):
		return "Please upload an Excel (.xlsx) or CSV file"
	default:
		return err.Error()
	}
}

func outcomeDescription(o dispatch.Outcome) string {
	switch o.Status {
	case dispatch.StatusGenerationFailed:
		return "Cover letter generation failed for " + o.Recipient.Company
	case dispatch.StatusDeliveryFailed:
		return "Email delivery failed for " + o.Recipient.Email
	default:
		return string(o.Status)
	}
}
