package models

import "time"

// Document is an uploaded file awaiting ingestion. It lives only for the
// duration of extraction and chunking and is never persisted as-is.
type Document struct {
	Filename   string    `json:"filename"`
	Content    []byte    `json:"-"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Page is one unit of extracted text. Formats without page structure
// (plain text, markdown) yield a single page with Number 0.
type Page struct {
	Number int
	Text   string
}

// Chunk is a bounded, overlap-preserving slice of extracted document text.
// Immutable once created.
type Chunk struct {
	Text           string    `json:"text"`
	SourceDocument string    `json:"source_document"`
	Page           int       `json:"page,omitempty"`
	SequenceIndex  int       `json:"sequence_index"`
	CreatedAt      time.Time `json:"created_at"`
}

// EmbeddedChunk is a Chunk plus its embedding vector and a stable
// identifier. An embedded chunk belongs to exactly one collection.
type EmbeddedChunk struct {
	Chunk
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"-"`
}

// ScoredChunk pairs an embedded chunk with its similarity to the query.
type ScoredChunk struct {
	EmbeddedChunk
	Score float64 `json:"score"`
}

// IngestResult summarizes a successful document ingestion.
type IngestResult struct {
	KnowledgeBase string `json:"knowledge_base"`
	ChunksAdded   int    `json:"chunks_added"`
}
