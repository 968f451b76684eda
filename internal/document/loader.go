// Package document loads files into memory for question extraction.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/qps-ai/client/internal/models"
)

// ErrTooLarge is returned when a document exceeds the size limit.
var ErrTooLarge = errors.New("document exceeds size limit")

// DefaultAccept lists the document types offered by the upload picker.
var DefaultAccept = []string{".pdf", "image/*"}

// Load reads the file at path. maxSize <= 0 means no limit.
func Load(path string, maxSize int64) (*models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	return Read(filepath.Base(path), "", f, maxSize)
}

// Read builds a document from r. An empty contentType is detected from the
// name and the content.
func Read(name, contentType string, r io.Reader, maxSize int64) (*models.Document, error) {
	if maxSize > 0 {
		r = io.LimitReader(r, maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", name, ErrTooLarge, maxSize)
	}

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = DetectContentType(name, data)
	}

	doc := &models.Document{
		ID:          uuid.New().String(),
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		LoadedAt:    time.Now(),
		Data:        data,
	}
	if isPDF(name, contentType) {
		doc.Pages = CountPages(data)
	}
	return doc, nil
}

// DetectContentType guesses the MIME type from the extension, falling back
// to content sniffing.
func DetectContentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// CountPages returns the PDF page count, or 0 if data is not a readable PDF.
func CountPages(data []byte) (pages int) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}

// Accepts reports whether a file matches one of the patterns. A pattern is
// an extension (".pdf"), a MIME type ("application/pdf") or a MIME wildcard
// ("image/*"). An empty pattern list accepts everything.
func Accepts(name, contentType string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	ext := strings.ToLower(filepath.Ext(name))
	types := []string{mediaType(contentType), mediaType(mime.TypeByExtension(ext))}

	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case strings.HasPrefix(p, "."):
			if ext == p {
				return true
			}
		case strings.HasSuffix(p, "/*"):
			prefix := strings.TrimSuffix(p, "*")
			for _, t := range types {
				if t != "" && strings.HasPrefix(t, prefix) {
					return true
				}
			}
		default:
			for _, t := range types {
				if t == p {
					return true
				}
			}
		}
	}
	return false
}

func isPDF(name, contentType string) bool {
	return mediaType(contentType) == "application/pdf" || strings.EqualFold(filepath.Ext(name), ".pdf")
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}
