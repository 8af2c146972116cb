package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	recipientsIngestedTotal  atomic.Uint64
	recipientsRejectedTotal  atomic.Uint64
	resumesUploadedTotal     atomic.Uint64
	dispatchSentTotal        atomic.Uint64
	dispatchGenFailedTotal   atomic.Uint64
	dispatchDelivFailedTotal atomic.Uint64

	recipientDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

// AddRecipientsIngested counts records accepted from a spreadsheet upload.
func AddRecipientsIngested(n int) {
	if n > 0 {
		recipientsIngestedTotal.Add(uint64(n))
	}
}

// IncRecipientsRejected counts a rejected spreadsheet upload.
func IncRecipientsRejected() {
	recipientsRejectedTotal.Add(1)
}

func IncResumesUploaded() {
	resumesUploadedTotal.Add(1)
}

func IncDispatchSent() {
	dispatchSentTotal.Add(1)
}

func IncDispatchGenerationFailed() {
	dispatchGenFailedTotal.Add(1)
}

func IncDispatchDeliveryFailed() {
	dispatchDelivFailedTotal.Add(1)
}

// ObserveRecipientDurationMs records the wall time spent on one recipient.
func ObserveRecipientDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	recipientDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(Render()))
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "recipients_ingested_total", "Recipient records accepted from uploads", recipientsIngestedTotal.Load())
	writeCounter(&buf, "recipients_rejected_total", "Spreadsheet uploads rejected", recipientsRejectedTotal.Load())
	writeCounter(&buf, "resumes_uploaded_total", "Resumes accepted", resumesUploadedTotal.Load())
	writeCounter(&buf, "dispatch_sent_total", "Cover letters delivered", dispatchSentTotal.Load())
	writeCounter(&buf, "dispatch_generation_failed_total", "Recipients whose letter could not be generated", dispatchGenFailedTotal.Load())
	writeCounter(&buf, "dispatch_delivery_failed_total", "Recipients whose letter could not be delivered", dispatchDelivFailedTotal.Load())
	writeHistogram(&buf, "dispatch_recipient_duration_ms", "Per-recipient dispatch duration in milliseconds", recipientDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe files value under the first bucket whose bound holds it; Render
// accumulates.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
