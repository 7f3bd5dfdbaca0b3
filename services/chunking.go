package services

import (
	"fmt"
	"strings"
	"time"

	"rag-chatbot-platform/models"
)

// Chunker splits extracted text into overlapping passages with a sliding
// window. Consecutive chunks from the same document overlap by exactly the
// configured overlap; the final chunk is whatever remains and is not
// padded.
type Chunker struct {
	maxChunkSize int
	overlap      int
}

// NewChunker validates the window parameters once so Split never has to.
func NewChunker(maxChunkSize, overlap int) (*Chunker, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("max chunk size must be positive, got %d", maxChunkSize)
	}
	if overlap <= 0 || overlap >= maxChunkSize {
		return nil, fmt.Errorf("overlap must be in (0, %d), got %d", maxChunkSize, overlap)
	}
	return &Chunker{maxChunkSize: maxChunkSize, overlap: overlap}, nil
}

// Split chunks a single body of text with no page structure.
func (c *Chunker) Split(text, sourceDocument string) ([]models.Chunk, error) {
	return c.SplitPages([]models.Page{{Number: 0, Text: text}}, sourceDocument)
}

// SplitPages chunks the concatenation of the given pages. Each chunk
// records the page its window starts on, so page provenance survives
// chunking for formats that carry page boundaries. Empty input fails with
// models.ErrEmptyDocument rather than returning zero chunks silently.
func (c *Chunker) SplitPages(pages []models.Page, sourceDocument string) ([]models.Chunk, error) {
	// Page starts are tracked in rune offsets of the joined text so each
	// window start can be mapped back to its originating page.
	var joined strings.Builder
	type pageStart struct {
		offset int
		number int
	}
	var starts []pageStart
	offset := 0
	for _, p := range pages {
		runeCount := len([]rune(p.Text))
		if runeCount == 0 {
			continue
		}
		starts = append(starts, pageStart{offset: offset, number: p.Number})
		joined.WriteString(p.Text)
		offset += runeCount
	}

	runes := []rune(joined.String())
	if strings.TrimSpace(joined.String()) == "" {
		return nil, fmt.Errorf("%q: %w", sourceDocument, models.ErrEmptyDocument)
	}

	pageAt := func(runeOffset int) int {
		page := 0
		for _, s := range starts {
			if s.offset > runeOffset {
				break
			}
			page = s.number
		}
		return page
	}

	step := c.maxChunkSize - c.overlap
	now := time.Now().UTC()

	var chunks []models.Chunk
	for start := 0; start < len(runes); start += step {
		end := start + c.maxChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, models.Chunk{
			Text:           string(runes[start:end]),
			SourceDocument: sourceDocument,
			Page:           pageAt(start),
			SequenceIndex:  len(chunks),
			CreatedAt:      now,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// MaxChunkSize reports the configured window length.
func (c *Chunker) MaxChunkSize() int { return c.maxChunkSize }

// Overlap reports the configured window overlap.
func (c *Chunker) Overlap() int { return c.overlap }
