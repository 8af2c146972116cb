package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"applypilot-backend/internal/delivery"
	"applypilot-backend/internal/llm"
	"applypilot-backend/internal/recipients"
	"applypilot-backend/internal/resumes"
	"applypilot-backend/internal/shared/metrics"
	"applypilot-backend/internal/shared/telemetry"
)

// DefaultCallTimeout bounds each generation and delivery call.
const DefaultCallTimeout = 60 * time.Second

// Status is the per-recipient result of a dispatch.
type Status string

const (
	StatusSent             Status = "sent"
	StatusGenerationFailed Status = "generation_failed"
	StatusDeliveryFailed   Status = "delivery_failed"
)

// Batch is a snapshot of everything one dispatch needs. It is never read
// back from the session while the loop runs.
type Batch struct {
	Sender      delivery.Sender
	Recipients  []recipients.Record
	Resume      *resumes.Asset
	ResumeBytes []byte
	ResumeText  string
	// OnOutcome, when set, is called after each recipient is processed.
	OnOutcome func(Outcome)
}

// Outcome records what happened to one recipient.
type Outcome struct {
	Index     int               `json:"index"`
	Recipient recipients.Record `json:"recipient"`
	Status    Status            `json:"status"`
	Error     string            `json:"error,omitempty"`
	ReceiptID string            `json:"receiptId,omitempty"`
	Duration  time.Duration     `json:"-"`
}

// Summary aggregates a completed batch.
type Summary struct {
	Total      int       `json:"total"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Runner walks a batch sequentially: generate a letter, then deliver it.
type Runner struct {
	Generator   llm.Generator
	Deliverer   delivery.Deliverer
	CallTimeout time.Duration
	Now         func() time.Time
}

// Run processes every recipient exactly once, in list order. Collaborator
// errors are recorded per recipient and never abort the batch. The only
// errors returned are the preconditions, checked before any call is made.
func (r *Runner) Run(ctx context.Context, b Batch) (Summary, error) {
	if b.Resume == nil {
		return Summary{}, ErrNoResume
	}
	if len(b.Recipients) == 0 {
		return Summary{}, ErrNoRecipients
	}

	summary := Summary{
		Total:     len(b.Recipients),
		Outcomes:  make([]Outcome, 0, len(b.Recipients)),
		StartedAt: r.now(),
	}
	attachment := delivery.Attachment{
		FileName:  b.Resume.FileName,
		MediaType: b.Resume.MediaType,
		Data:      b.ResumeBytes,
	}

	for i, rec := range b.Recipients {
		start := r.now()
		out := r.one(ctx, i, rec, b, attachment)
		out.Duration = r.now().Sub(start)

		switch out.Status {
		case StatusSent:
			summary.Sent++
			metrics.IncDispatchSent()
		case StatusGenerationFailed:
			summary.Failed++
			metrics.IncDispatchGenerationFailed()
		case StatusDeliveryFailed:
			summary.Failed++
			metrics.IncDispatchDeliveryFailed()
		}
		metrics.ObserveRecipientDurationMs(float64(out.Duration.Milliseconds()))

		fields := map[string]any{
			"index":       i,
			"company":     rec.Company,
			"status":      string(out.Status),
			"duration_ms": out.Duration.Milliseconds(),
		}
		if out.Error != "" {
			fields["error"] = out.Error
			telemetry.Warn("dispatch.recipient", fields)
		} else {
			telemetry.Info("dispatch.recipient", fields)
		}

		summary.Outcomes = append(summary.Outcomes, out)
		if b.OnOutcome != nil {
			b.OnOutcome(out)
		}
	}

	summary.FinishedAt = r.now()
	telemetry.Info("dispatch.complete", map[string]any{
		"total":       summary.Total,
		"sent":        summary.Sent,
		"failed":      summary.Failed,
		"duration_ms": summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	})
	return summary, nil
}

func (r *Runner) one(ctx context.Context, i int, rec recipients.Record, b Batch, attachment delivery.Attachment) (out Outcome) {
	out = Outcome{Index: i, Recipient: rec}
	// A panicking collaborator fails this recipient only.
	step := StatusGenerationFailed
	defer func() {
		if p := recover(); p != nil {
			out.Status = step
			out.Error = fmt.Sprintf("panic: %v", p)
		}
	}()

	// A cancelled batch fails the rest without calling out.
	if err := ctx.Err(); err != nil {
		out.Status = StatusGenerationFailed
		out.Error = err.Error()
		return out
	}

	letter, err := r.generate(ctx, llm.CoverLetterPrompt(b.ResumeText, rec))
	if err != nil {
		out.Status = StatusGenerationFailed
		out.Error = err.Error()
		return out
	}

	step = StatusDeliveryFailed
	receipt, err := r.deliver(ctx, delivery.Submission{
		Sender:      b.Sender,
		Recipient:   rec,
		CoverLetter: letter,
		Resume:      attachment,
	})
	if err != nil {
		out.Status = StatusDeliveryFailed
		out.Error = err.Error()
		return out
	}
	out.Status = StatusSent
	out.ReceiptID = receipt.ID
	return out
}

func (r *Runner) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout())
	defer cancel()
	text, err := r.Generator.Generate(callCtx, prompt)
	if err != nil {
		return "", err
	}
	text, ok := llm.Usable(text)
	if !ok {
		return "", llm.ErrNoText
	}
	return text, nil
}

func (r *Runner) deliver(ctx context.Context, sub delivery.Submission) (delivery.Receipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout())
	defer cancel()
	receipt, err := r.Deliverer.Deliver(callCtx, sub)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return receipt, errors.New("delivery timed out")
	}
	return receipt, err
}

func (r *Runner) callTimeout() time.Duration {
	if r.CallTimeout > 0 {
		return r.CallTimeout
	}
	return DefaultCallTimeout
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}
