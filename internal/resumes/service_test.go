package resumes

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"applypilot-backend/internal/shared/storage/object/local"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	fixed := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	return &Service{
		Store: local.New(t.TempDir()),
		Now:   func() time.Time { return fixed },
	}
}

func TestUploadStoresAndOpens(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	content := "Jane Doe\nGo engineer"

	asset, err := svc.Upload(ctx, "uid-1", "cv.txt", "", int64(len(content)), strings.NewReader(content))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if asset.MediaType != TypeText || asset.SizeBytes != int64(len(content)) || asset.FileName != "cv.txt" {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if asset.UploadedAt.IsZero() || asset.StorageKey == "" {
		t.Fatalf("expected key and timestamp: %+v", asset)
	}

	data, err := svc.Open(ctx, asset)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(data) != content {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestUploadRejectsBodyLargerThanDeclared(t *testing.T) {
	svc := newTestService(t)
	body := bytes.Repeat([]byte("a"), int(MaxBytes)+10)

	_, err := svc.Upload(context.Background(), "uid-1", "cv.txt", TypeText, 100, bytes.NewReader(body))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestUploadRejectsWrongTypeBeforeStoring(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Upload(context.Background(), "uid-1", "photo.png", "image/png", 10, strings.NewReader("png"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestTextPlaceholderUnlessEnabled(t *testing.T) {
	svc := newTestService(t)
	asset := Asset{FileName: "cv.txt", MediaType: TypeText}
	data := []byte("Ten years of Go")

	if got := svc.Text(context.Background(), asset, data); got != "" {
		t.Fatalf("expected empty placeholder, got %q", got)
	}
	svc.ExtractText = true
	if got := svc.Text(context.Background(), asset, data); got != "Ten years of Go" {
		t.Fatalf("expected extracted text, got %q", got)
	}
	doc := Asset{FileName: "cv.doc", MediaType: TypeDOC}
	if got := svc.Text(context.Background(), doc, []byte{0xD0, 0xCF}); got != "" {
		t.Fatalf("expected placeholder for unsupported format, got %q", got)
	}
}

func TestDeleteRemovesBinary(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	asset, err := svc.Upload(ctx, "uid-1", "cv.txt", TypeText, 3, strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := svc.Delete(ctx, asset); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Open(ctx, asset); err == nil {
		t.Fatalf("expected open to fail after delete")
	}
}

func TestUploadRejectsContentNotMatchingType(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	body := "just some notes, not a pdf"

	_, err := svc.Upload(ctx, "uid-1", "cv.pdf", TypePDF, int64(len(body)), strings.NewReader(body))
	if !errors.Is(err, ErrContentMismatch) {
		t.Fatalf("expected ErrContentMismatch, got %v", err)
	}

	pdf := "%PDF-1.4 resume"
	asset, err := svc.Upload(ctx, "uid-1", "cv.pdf", TypePDF, int64(len(pdf)), strings.NewReader(pdf))
	if err != nil {
		t.Fatalf("upload pdf: %v", err)
	}
	if asset.MediaType != TypePDF {
		t.Fatalf("unexpected asset %+v", asset)
	}
}
