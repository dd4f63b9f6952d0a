// Package ingest turns an uploaded file into a ContentArtifact: images become
// data URIs with pixel dimensions, PDFs and text files become plain text, and
// every artifact carries its token estimate.
package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp" // register decoder

	"github.com/ashita-ai/pneuma/internal/model"
	"github.com/ashita-ai/pneuma/internal/tokens"
)

// MaxFileSize is the default upload limit.
const MaxFileSize int64 = 20 << 20

var (
	imageTypes = map[string]bool{"image/png": true, "image/jpeg": true, "image/gif": true, "image/webp": true}
	textTypes  = map[string]bool{"text/plain": true, "text/csv": true, "text/markdown": true, "application/json": true}
	pdfTypes   = map[string]bool{"application/pdf": true}
)

// extensionTypes resolves uploads that arrive without a useful content type.
var extensionTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".md":   "text/markdown",
	".json": "application/json",
	".pdf":  "application/pdf",
}

// Reason classifies a rejected upload.
type Reason string

const (
	ReasonUnsupportedType Reason = "unsupported_type"
	ReasonTooLarge        Reason = "too_large"
	ReasonUnreadable      Reason = "unreadable"
)

// ValidationError reports an upload that cannot be turned into an artifact.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Supported reports whether contentType can be ingested.
func Supported(contentType string) bool {
	ct := normalize(contentType)
	return imageTypes[ct] || textTypes[ct] || pdfTypes[ct]
}

// SupportedTypes lists every accepted content type.
func SupportedTypes() []string {
	out := make([]string, 0, len(imageTypes)+len(textTypes)+len(pdfTypes))
	for _, set := range []map[string]bool{imageTypes, textTypes, pdfTypes} {
		for ct := range set {
			out = append(out, ct)
		}
	}
	return out
}

// ResolveContentType picks the content type for an upload. The declared type
// wins unless it is missing or generic, in which case the file extension and
// then the content itself are consulted.
func ResolveContentType(declared, filename string, data []byte) string {
	ct := normalize(declared)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if byExt, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return byExt
	}
	return normalize(http.DetectContentType(data))
}

// normalize lower-cases a media type and drops parameters such as charset.
func normalize(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// Processor converts uploads into artifacts.
type Processor struct {
	// MaxBytes is the upload limit. Zero means MaxFileSize.
	MaxBytes int64
}

// Limit returns the effective upload limit in bytes.
func (p Processor) Limit() int64 {
	if p.MaxBytes > 0 {
		return p.MaxBytes
	}
	return MaxFileSize
}

// Validate checks the content type and size before any decoding.
func (p Processor) Validate(contentType string, size int64) error {
	if !Supported(contentType) {
		return &ValidationError{
			Reason:  ReasonUnsupportedType,
			Message: fmt.Sprintf("Unsupported file type: %s", contentType),
		}
	}
	if size > p.Limit() {
		return &ValidationError{
			Reason:  ReasonTooLarge,
			Message: fmt.Sprintf("File too large. Maximum size is %dMB.", p.Limit()>>20),
		}
	}
	return nil
}

// Process validates and decodes an upload.
func (p Processor) Process(contentType string, data []byte) (model.ContentArtifact, error) {
	ct := normalize(contentType)
	if err := p.Validate(ct, int64(len(data))); err != nil {
		return model.ContentArtifact{}, err
	}
	switch {
	case imageTypes[ct]:
		return processImage(ct, data)
	case pdfTypes[ct]:
		return processPDF(data)
	default:
		return processText(ct, data), nil
	}
}

// Validate checks an upload against the default limit.
func Validate(contentType string, size int64) error {
	return Processor{}.Validate(contentType, size)
}

// Process ingests an upload with the default limit.
func Process(contentType string, data []byte) (model.ContentArtifact, error) {
	return Processor{}.Process(contentType, data)
}

func processImage(contentType string, data []byte) (model.ContentArtifact, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return model.ContentArtifact{}, &ValidationError{
			Reason:  ReasonUnreadable,
			Message: fmt.Sprintf("Invalid image: %v", err),
		}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return model.ContentArtifact{}, &ValidationError{
			Reason:  ReasonUnreadable,
			Message: fmt.Sprintf("Invalid image dimensions %dx%d", cfg.Width, cfg.Height),
		}
	}
	return model.ContentArtifact{
		Kind:            model.ContentImage,
		Data:            "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
		MimeType:        contentType,
		Width:           cfg.Width,
		Height:          cfg.Height,
		EstimatedTokens: tokens.EstimateImageTokens(cfg.Width, cfg.Height),
	}, nil
}

func processText(contentType string, data []byte) model.ContentArtifact {
	text := strings.ToValidUTF8(string(data), "\uFFFD")
	return model.ContentArtifact{
		Kind:            model.ContentText,
		Data:            text,
		MimeType:        contentType,
		EstimatedTokens: tokens.EstimateTextTokens(text),
	}
}
