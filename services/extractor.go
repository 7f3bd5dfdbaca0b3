package services

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"rag-chatbot-platform/internal/config"
	"rag-chatbot-platform/models"
)

// Extractor turns a raw document into page-structured text. Implementations
// handle exactly one source format; format dispatch happens in the registry.
type Extractor interface {
	Extract(ctx context.Context, doc models.Document) ([]models.Page, error)
}

// ExtractorRegistry dispatches documents to a format-specific extractor
// keyed by file extension and enforces the upload size cap before any
// parsing happens.
type ExtractorRegistry struct {
	config     *config.Config
	extractors map[string]Extractor
}

// NewExtractorRegistry creates a registry with the built-in PDF and plain
// text extractors registered.
func NewExtractorRegistry(cfg *config.Config) *ExtractorRegistry {
	r := &ExtractorRegistry{
		config:     cfg,
		extractors: make(map[string]Extractor),
	}
	r.Register(".pdf", &PDFExtractor{})
	text := &TextExtractor{}
	r.Register(".txt", text)
	r.Register(".md", text)
	return r
}

// Register adds or replaces the extractor for an extension. Extensions are
// matched case-insensitively and must include the leading dot.
func (r *ExtractorRegistry) Register(ext string, e Extractor) {
	r.extractors[strings.ToLower(ext)] = e
}

// Extract validates the document and runs the extractor for its file type.
// Documents with no extractable text fail with models.ErrEmptyDocument;
// unreadable sources fail with models.ExtractionError. Both are fatal for
// the whole document.
func (r *ExtractorRegistry) Extract(ctx context.Context, doc models.Document) ([]models.Page, error) {
	if int64(len(doc.Content)) > r.config.MaxUploadBytes() {
		return nil, &models.ExtractionError{
			Filename: doc.Filename,
			Err:      fmt.Errorf("document exceeds %dMB upload limit", r.config.MaxUploadSizeMB),
		}
	}

	ext := strings.ToLower(filepath.Ext(doc.Filename))
	extractor, ok := r.extractors[ext]
	if !ok {
		return nil, &models.ExtractionError{
			Filename: doc.Filename,
			Err:      fmt.Errorf("unsupported file type %q", ext),
		}
	}

	pages, err := extractor.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}

	if !hasText(pages) {
		return nil, fmt.Errorf("%q: %w", doc.Filename, models.ErrEmptyDocument)
	}
	return pages, nil
}

func hasText(pages []models.Page) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

// PDFExtractor extracts per-page text from PDF documents.
type PDFExtractor struct{}

func (e *PDFExtractor) Extract(ctx context.Context, doc models.Document) ([]models.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	if err != nil {
		// Covers corrupted files and encrypted documents alike
		return nil, &models.ExtractionError{Filename: doc.Filename, Err: fmt.Errorf("failed to open PDF: %w", err)}
	}

	numPages := reader.NumPage()
	pages := make([]models.Page, 0, numPages)

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, &models.ExtractionError{
				Filename: doc.Filename,
				Err:      fmt.Errorf("failed to extract text from page %d: %w", i, err),
			}
		}

		pages = append(pages, models.Page{Number: i, Text: text})
	}

	return pages, nil
}

// TextExtractor treats the whole document as a single unpaged body of text.
type TextExtractor struct{}

func (e *TextExtractor) Extract(ctx context.Context, doc models.Document) ([]models.Page, error) {
	return []models.Page{{Number: 0, Text: string(doc.Content)}}, nil
}
