package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"applypilot-backend/internal/delivery"
	"applypilot-backend/internal/recipients"
	"applypilot-backend/internal/resumes"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	fail    map[string]bool
	blank   bool
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	for company := range g.fail {
		if strings.Contains(prompt, "at "+company+" about") {
			return "", errors.New("quota exceeded")
		}
	}
	if g.blank {
		return "   ", nil
	}
	return "Dear hiring team,\nHello.", nil
}

type fakeDeliverer struct {
	mu    sync.Mutex
	subs  []delivery.Submission
	fail  map[string]bool
	calls int
}

func (d *fakeDeliverer) Deliver(ctx context.Context, sub delivery.Submission) (delivery.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.subs = append(d.subs, sub)
	if d.fail[sub.Recipient.Email] {
		return delivery.Receipt{}, delivery.ErrRejected
	}
	return delivery.Receipt{ID: "r-" + sub.Recipient.Email}, nil
}

func batchOf(n int) Batch {
	recs := make([]recipients.Record, n)
	for i := range recs {
		c := string(rune('A' + i))
		recs[i] = recipients.Record{Name: "Name" + c, Email: c + "@x.com", Company: "Co" + c, JobTitle: "Engineer"}
	}
	return Batch{
		Sender:      delivery.Sender{Name: "Sam", Email: "sam@example.com"},
		Recipients:  recs,
		Resume:      &resumes.Asset{StorageKey: "k", FileName: "cv.pdf", MediaType: resumes.TypePDF},
		ResumeBytes: []byte("%PDF"),
	}
}

func TestRunPreconditions(t *testing.T) {
	tests := []struct {
		name  string
		batch Batch
		want  error
	}{
		{name: "no resume", batch: Batch{Recipients: batchOf(2).Recipients}, want: ErrNoResume},
		{name: "no recipients", batch: Batch{Resume: batchOf(1).Resume}, want: ErrNoRecipients},
		{name: "neither", batch: Batch{}, want: ErrNoResume},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			del := &fakeDeliverer{}
			r := &Runner{Generator: gen, Deliverer: del}
			_, err := r.Run(context.Background(), tt.batch)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(gen.prompts) != 0 || del.calls != 0 {
				t.Fatalf("collaborators called: gen=%d deliver=%d", len(gen.prompts), del.calls)
			}
		})
	}
}

func TestRunAllSent(t *testing.T) {
	gen := &fakeGenerator{}
	del := &fakeDeliverer{}
	r := &Runner{Generator: gen, Deliverer: del}

	var seen []int
	b := batchOf(3)
	b.OnOutcome = func(o Outcome) { seen = append(seen, o.Index) }

	sum, err := r.Run(context.Background(), b)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Total != 3 || sum.Sent != 3 || sum.Failed != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Fatalf("outcomes not reported in order: %v", seen)
	}
	for i, sub := range del.subs {
		if sub.Recipient != b.Recipients[i] {
			t.Fatalf("delivery %d out of order: %+v", i, sub.Recipient)
		}
		if sub.CoverLetter != "Dear hiring team,\nHello." || string(sub.Resume.Data) != "%PDF" {
			t.Fatalf("unexpected submission %+v", sub)
		}
		if sub.Sender.Email != "sam@example.com" {
			t.Fatalf("sender not propagated: %+v", sub.Sender)
		}
	}
	if sum.Outcomes[1].ReceiptID != "r-B@x.com" {
		t.Fatalf("unexpected receipt id %q", sum.Outcomes[1].ReceiptID)
	}
}

func TestRunGenerationFailuresSkipDelivery(t *testing.T) {
	gen := &fakeGenerator{fail: map[string]bool{"CoB": true, "CoD": true}}
	del := &fakeDeliverer{}
	r := &Runner{Generator: gen, Deliverer: del}

	sum, err := r.Run(context.Background(), batchOf(5))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Sent != 3 || sum.Failed != 2 {
		t.Fatalf("expected 3 sent 2 failed, got %+v", sum)
	}
	if del.calls != 3 {
		t.Fatalf("expected 3 deliveries, got %d", del.calls)
	}
	if len(gen.prompts) != 5 {
		t.Fatalf("expected 5 generations, got %d", len(gen.prompts))
	}
	if sum.Outcomes[1].Status != StatusGenerationFailed || sum.Outcomes[3].Status != StatusGenerationFailed {
		t.Fatalf("unexpected statuses %+v", sum.Outcomes)
	}
}

func TestRunBlankLetterIsGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{blank: true}
	del := &fakeDeliverer{}
	r := &Runner{Generator: gen, Deliverer: del}

	sum, err := r.Run(context.Background(), batchOf(2))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Sent != 0 || sum.Failed != 2 || del.calls != 0 {
		t.Fatalf("unexpected result %+v deliveries=%d", sum, del.calls)
	}
}

func TestRunDeliveryFailureIsolated(t *testing.T) {
	gen := &fakeGenerator{}
	del := &fakeDeliverer{fail: map[string]bool{"B@x.com": true}}
	r := &Runner{Generator: gen, Deliverer: del}

	sum, err := r.Run(context.Background(), batchOf(3))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Sent != 2 || sum.Failed != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Outcomes[1].Status != StatusDeliveryFailed {
		t.Fatalf("expected delivery failure for B, got %+v", sum.Outcomes[1])
	}
	if sum.Outcomes[2].Status != StatusSent {
		t.Fatalf("expected loop to continue after failure, got %+v", sum.Outcomes[2])
	}
}

func TestRunCancelledContextStopsCalls(t *testing.T) {
	gen := &fakeGenerator{}
	del := &fakeDeliverer{}
	r := &Runner{Generator: gen, Deliverer: del}

	ctx, cancel := context.WithCancel(context.Background())
	b := batchOf(3)
	b.OnOutcome = func(o Outcome) {
		if o.Index == 0 {
			cancel()
		}
	}
	sum, err := r.Run(ctx, b)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Sent != 1 || sum.Failed != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(gen.prompts) != 1 || del.calls != 1 {
		t.Fatalf("collaborators called after cancel: gen=%d deliver=%d", len(gen.prompts), del.calls)
	}
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRunCallTimeout(t *testing.T) {
	del := &fakeDeliverer{}
	r := &Runner{Generator: slowGenerator{}, Deliverer: del, CallTimeout: 10 * time.Millisecond}

	sum, err := r.Run(context.Background(), batchOf(2))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 2 || del.calls != 0 {
		t.Fatalf("expected both to time out, got %+v", sum)
	}
	if !strings.Contains(sum.Outcomes[0].Error, "deadline") {
		t.Fatalf("expected deadline error, got %q", sum.Outcomes[0].Error)
	}
}

type panicOnceGenerator struct {
	calls int
}

func (g *panicOnceGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	if g.calls == 1 {
		panic("boom")
	}
	return "Dear hiring team,\nHello.", nil
}

type panicDeliverer struct {
	fakeDeliverer
	panicFor string
}

func (d *panicDeliverer) Deliver(ctx context.Context, sub delivery.Submission) (delivery.Receipt, error) {
	if sub.Recipient.Email == d.panicFor {
		panic("smtp exploded")
	}
	return d.fakeDeliverer.Deliver(ctx, sub)
}

func TestRunCollaboratorPanicFailsOneRecipient(t *testing.T) {
	t.Run("generator", func(t *testing.T) {
		del := &fakeDeliverer{}
		r := &Runner{Generator: &panicOnceGenerator{}, Deliverer: del}

		sum, err := r.Run(context.Background(), batchOf(3))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if sum.Sent != 2 || sum.Failed != 1 || del.calls != 2 {
			t.Fatalf("unexpected result %+v deliveries=%d", sum, del.calls)
		}
		first := sum.Outcomes[0]
		if first.Status != StatusGenerationFailed || !strings.Contains(first.Error, "boom") {
			t.Fatalf("unexpected first outcome %+v", first)
		}
	})

	t.Run("deliverer", func(t *testing.T) {
		del := &panicDeliverer{panicFor: "B@x.com"}
		r := &Runner{Generator: &fakeGenerator{}, Deliverer: del}

		sum, err := r.Run(context.Background(), batchOf(3))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if sum.Sent != 2 || sum.Failed != 1 {
			t.Fatalf("unexpected summary %+v", sum)
		}
		if got := sum.Outcomes[1]; got.Status != StatusDeliveryFailed || got.ReceiptID != "" {
			t.Fatalf("unexpected outcome for B %+v", got)
		}
		if sum.Outcomes[2].Status != StatusSent {
			t.Fatalf("expected loop to continue, got %+v", sum.Outcomes[2])
		}
	})
}
