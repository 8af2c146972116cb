package resumes

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// MaxBytes is the largest accepted resume, inclusive.
const MaxBytes int64 = 5 << 20

const (
	TypePDF  = "application/pdf"
	TypeDOC  = "application/msword"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeText = "text/plain"
)

var typeByExt = map[string]string{
	".pdf":  TypePDF,
	".doc":  TypeDOC,
	".docx": TypeDOCX,
	".txt":  TypeText,
}

var (
	ErrNoFile          = errors.New("no resume provided")
	ErrUnsupportedType = errors.New("resume must be a PDF, DOC, DOCX or TXT file")
	ErrTooLarge        = errors.New("resume exceeds 5 MB")
	ErrContentMismatch = errors.New("resume content does not match its file type")
)

// sniffedAs lists the http.DetectContentType results accepted for each type.
var sniffedAs = map[string][]string{
	TypePDF:  {"application/pdf"},
	TypeDOCX: {"application/zip"},
	TypeDOC:  {"application/octet-stream"},
	TypeText: {"text/plain"},
}

// contentMatches reports whether the sniffed leading bytes agree with the
// resolved media type. An empty sniff is accepted.
func contentMatches(resolved, sniffed string) bool {
	sniffed = strings.TrimSpace(strings.Split(sniffed, ";")[0])
	if sniffed == "" {
		return true
	}
	for _, want := range sniffedAs[resolved] {
		if sniffed == want {
			return true
		}
	}
	return false
}

// Asset is the stored resume owned by one session.
type Asset struct {
	StorageKey string    `json:"-"`
	FileName   string    `json:"fileName"`
	SizeBytes  int64     `json:"sizeBytes"`
	MediaType  string    `json:"mediaType"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Validate resolves the media type of an upload and enforces the allow-list
// and size limit. An empty or generic declared type falls back to the file
// extension.
func Validate(fileName string, size int64, mediaType string) (string, error) {
	if strings.TrimSpace(fileName) == "" || size <= 0 {
		return "", ErrNoFile
	}
	resolved := resolveType(fileName, mediaType)
	if !allowed(resolved) {
		return "", ErrUnsupportedType
	}
	if size > MaxBytes {
		return "", ErrTooLarge
	}
	return resolved, nil
}

func resolveType(fileName, declared string) string {
	parsed, _, err := mime.ParseMediaType(declared)
	if err != nil {
		parsed = ""
	}
	parsed = strings.ToLower(parsed)
	if parsed != "" && parsed != "application/octet-stream" {
		return parsed
	}
	return typeByExt[strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))]
}

func allowed(mediaType string) bool {
	for _, t := range typeByExt {
		if t == mediaType {
			return true
		}
	}
	return false
}
