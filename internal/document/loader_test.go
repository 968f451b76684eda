// loader_test.go - Tests for document loading
package document

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	t.Run("reads content and metadata", func(t *testing.T) {
		doc, err := Read("scan.png", "image/png", strings.NewReader("pixels"), 0)
		if err != nil {
			t.Fatalf("Failed to read document: %v", err)
		}

		if doc.ID == "" {
			t.Error("Expected ID to be set")
		}
		if doc.Name != "scan.png" {
			t.Errorf("Expected name 'scan.png', got %v", doc.Name)
		}
		if doc.Size != 6 {
			t.Errorf("Expected size 6, got %d", doc.Size)
		}
		if string(doc.Data) != "pixels" {
			t.Errorf("Expected data 'pixels', got %q", doc.Data)
		}
		if doc.ContentType != "image/png" {
			t.Errorf("Expected content type 'image/png', got %v", doc.ContentType)
		}
		if doc.LoadedAt.IsZero() {
			t.Error("Expected LoadedAt to be set")
		}
	})

	t.Run("detects missing content type from extension", func(t *testing.T) {
		doc, err := Read("paper.pdf", "", strings.NewReader("%PDF-1.4"), 0)
		if err != nil {
			t.Fatalf("Failed to read document: %v", err)
		}
		if doc.ContentType != "application/pdf" {
			t.Errorf("Expected 'application/pdf', got %v", doc.ContentType)
		}
	})

	t.Run("replaces generic octet-stream", func(t *testing.T) {
		doc, err := Read("photo.jpg", "application/octet-stream", strings.NewReader("x"), 0)
		if err != nil {
			t.Fatalf("Failed to read document: %v", err)
		}
		if doc.ContentType != "image/jpeg" {
			t.Errorf("Expected 'image/jpeg', got %v", doc.ContentType)
		}
	})

	t.Run("unreadable pdf has zero pages", func(t *testing.T) {
		doc, err := Read("broken.pdf", "application/pdf", strings.NewReader("not really a pdf"), 0)
		if err != nil {
			t.Fatalf("Failed to read document: %v", err)
		}
		if doc.Pages != 0 {
			t.Errorf("Expected 0 pages, got %d", doc.Pages)
		}
	})

	t.Run("empty document is allowed", func(t *testing.T) {
		doc, err := Read("empty.pdf", "", bytes.NewReader(nil), 10)
		if err != nil {
			t.Fatalf("Failed to read empty document: %v", err)
		}
		if doc.Size != 0 {
			t.Errorf("Expected size 0, got %d", doc.Size)
		}
	})

	t.Run("enforces size limit", func(t *testing.T) {
		_, err := Read("big.pdf", "", strings.NewReader("0123456789A"), 10)
		if !errors.Is(err, ErrTooLarge) {
			t.Errorf("Expected ErrTooLarge, got %v", err)
		}
	})

	t.Run("exactly at limit is allowed", func(t *testing.T) {
		_, err := Read("fit.pdf", "", strings.NewReader("0123456789"), 10)
		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads file from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "exam.pdf")
		if err := os.WriteFile(path, []byte("%PDF-1.4 content"), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}

		doc, err := Load(path, 0)
		if err != nil {
			t.Fatalf("Failed to load: %v", err)
		}
		if doc.Name != "exam.pdf" {
			t.Errorf("Expected base name 'exam.pdf', got %v", doc.Name)
		}
		if doc.ContentType != "application/pdf" {
			t.Errorf("Expected 'application/pdf', got %v", doc.ContentType)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.pdf"), 0)
		if err == nil {
			t.Error("Expected error for missing file")
		}
	})
}

func TestCountPages_Garbage(t *testing.T) {
	inputs := [][]byte{nil, []byte("%PDF-"), []byte("trailer <<>>\n%%EOF")}
	for _, in := range inputs {
		if got := CountPages(in); got != 0 {
			t.Errorf("CountPages(%q) = %d, want 0", in, got)
		}
	}
}

func TestAccepts(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		contentType string
		patterns    []string
		want        bool
	}{
		{"pdf by extension", "a.PDF", "", DefaultAccept, true},
		{"png by wildcard", "scan.png", "image/png", DefaultAccept, true},
		{"image from extension only", "scan.jpeg", "", DefaultAccept, true},
		{"content type with params", "blob", "image/webp; q=1", DefaultAccept, true},
		{"docx rejected", "notes.docx", "", DefaultAccept, false},
		{"exact mime", "x.bin", "application/pdf", []string{"application/pdf"}, true},
		{"no patterns accepts all", "notes.docx", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Accepts(tt.file, tt.contentType, tt.patterns); got != tt.want {
				t.Errorf("Accepts(%q, %q) = %v, want %v", tt.file, tt.contentType, got, tt.want)
			}
		})
	}
}
