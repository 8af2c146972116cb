package resumes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"applypilot-backend/internal/extract"
	"applypilot-backend/internal/shared/storage/object"
	"applypilot-backend/internal/shared/telemetry"
)

// Service stores resume binaries and reads them back for dispatch.
type Service struct {
	Store object.Store
	// ExtractText turns on real text extraction for prompts. When off, the
	// prompt carries an empty resume placeholder.
	ExtractText bool
	Now         func() time.Time
}

// Upload validates and stores a resume. The declared size is trusted only for
// the early check; the stored byte count is enforced again.
func (s *Service) Upload(ctx context.Context, userID, fileName, mediaType string, size int64, r io.Reader) (Asset, error) {
	if r == nil {
		return Asset{}, ErrNoFile
	}
	resolved, err := Validate(fileName, size, mediaType)
	if err != nil {
		return Asset{}, err
	}

	obj, err := s.Store.Put(ctx, userID, fileName, resolved, io.LimitReader(r, MaxBytes+1))
	if err != nil {
		return Asset{}, fmt.Errorf("store resume: %w", err)
	}
	if obj.Size > MaxBytes {
		s.discard(ctx, obj.Key)
		return Asset{}, ErrTooLarge
	}
	if obj.Size == 0 {
		s.discard(ctx, obj.Key)
		return Asset{}, ErrNoFile
	}
	if !contentMatches(resolved, obj.Sniffed) {
		s.discard(ctx, obj.Key)
		return Asset{}, fmt.Errorf("%w: declared %s, content looks like %s", ErrContentMismatch, resolved, obj.Sniffed)
	}

	return Asset{
		StorageKey: obj.Key,
		FileName:   fileName,
		SizeBytes:  obj.Size,
		MediaType:  resolved,
		UploadedAt: s.now(),
	}, nil
}

// Open reads the stored resume bytes.
func (s *Service) Open(ctx context.Context, asset Asset) ([]byte, error) {
	if asset.StorageKey == "" {
		return nil, ErrNoFile
	}
	rc, err := s.Store.Open(ctx, asset.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open resume: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read resume: %w", err)
	}
	return data, nil
}

// Text returns the resume text used in prompts. Extraction failures degrade
// to the empty placeholder.
func (s *Service) Text(ctx context.Context, asset Asset, data []byte) string {
	if !s.ExtractText {
		return ""
	}
	text, err := extract.Text(ctx, data, asset.MediaType, asset.FileName)
	if err != nil {
		fields := map[string]any{
			"file_name":  asset.FileName,
			"media_type": asset.MediaType,
			"error":      err.Error(),
		}
		if errors.Is(err, extract.ErrUnsupported) {
			telemetry.Info("resume.extract_skipped", fields)
		} else {
			telemetry.Warn("resume.extract_failed", fields)
		}
		return ""
	}
	return text
}

// Delete removes the stored binary for asset.
func (s *Service) Delete(ctx context.Context, asset Asset) error {
	if asset.StorageKey == "" {
		return nil
	}
	return s.Store.Delete(ctx, asset.StorageKey)
}

func (s *Service) discard(ctx context.Context, key string) {
	if err := s.Store.Delete(ctx, key); err != nil {
		telemetry.Warn("resume.discard_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
