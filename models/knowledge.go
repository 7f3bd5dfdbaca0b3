package models

import "time"

// KnowledgeBase is a named, isolated collection of embedded chunks.
// It is created on the first successful ingestion and mutated only by the
// ingestion path; queries never change it.
type KnowledgeBase struct {
	Name          string    `json:"name"`
	CollectionID  string    `json:"collection_id"`
	CreatedAt     time.Time `json:"created_at"`
	DocumentCount int       `json:"document_count"`
	ChunkCount    int       `json:"chunk_count"`
}
