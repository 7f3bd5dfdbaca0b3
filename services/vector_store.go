package services

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"rag-chatbot-platform/models"
	"rag-chatbot-platform/utils"
)

// VectorStore owns one isolated SQLite database per collection under the
// persist directory. Isolation between knowledge bases is physical: a
// search opens exactly one collection file, so chunks can never leak
// across collections. Contents survive process restart unchanged.
type VectorStore struct {
	mu         sync.Mutex
	persistDir string
	open       map[string]*sql.DB
}

// NewVectorStore prepares the persist directory and indexes the collection
// files already on disk. Database handles are opened lazily on first use.
func NewVectorStore(persistDir string) (*VectorStore, error) {
	if persistDir == "" {
		return nil, fmt.Errorf("persist directory is required")
	}
	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating persist directory: %w", err)
	}
	return &VectorStore{
		persistDir: persistDir,
		open:       make(map[string]*sql.DB),
	}, nil
}

func (s *VectorStore) collectionPath(collectionID string) string {
	return filepath.Join(s.persistDir, collectionID+".db")
}

// CreateCollection creates a new empty collection. It fails with
// models.ErrAlreadyExists when the collection is already on disk.
func (s *VectorStore) CreateCollection(ctx context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.collectionPath(collectionID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("collection %q: %w", collectionID, models.ErrAlreadyExists)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("opening collection database: %w", err)
	}
	if err := initCollectionSchema(ctx, db); err != nil {
		db.Close()
		os.Remove(path)
		return fmt.Errorf("initializing collection schema: %w", err)
	}

	s.open[collectionID] = db
	return nil
}

// CollectionExists reports whether the collection is present on disk.
func (s *VectorStore) CollectionExists(collectionID string) bool {
	_, err := os.Stat(s.collectionPath(collectionID))
	return err == nil
}

// ListCollections returns the collection ids present on disk.
func (s *VectorStore) ListCollections() ([]string, error) {
	entries, err := os.ReadDir(s.persistDir)
	if err != nil {
		return nil, fmt.Errorf("reading persist directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".db") || name == registryFileName {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".db"))
	}
	sort.Strings(ids)
	return ids, nil
}

func initCollectionSchema(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id TEXT NOT NULL,
		source_document TEXT NOT NULL,
		page INTEGER NOT NULL,
		sequence_index INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		text BLOB NOT NULL,
		compression TEXT NOT NULL,
		embedding BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_source_document ON chunks(source_document);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *VectorStore) getDB(collectionID string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.open[collectionID]; ok {
		return db, nil
	}

	path := s.collectionPath(collectionID)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("collection %q: %w", collectionID, models.ErrUnknownKnowledgeBase)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening collection database: %w", err)
	}
	s.open[collectionID] = db
	return db, nil
}

// Upsert appends embedded chunks to a collection in one transaction, so a
// failed ingestion never leaves partial chunks visible to queries. Chunks
// are immutable; re-ingesting a document adds new chunk identities rather
// than updating old ones.
func (s *VectorStore) Upsert(ctx context.Context, collectionID string, chunks []models.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	db, err := s.getDB(collectionID)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, source_document, page, sequence_index, created_at, text, compression, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		payload, algorithm, err := utils.CompressText(chunk.Text)
		if err != nil {
			return fmt.Errorf("compressing chunk text: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			chunk.ChunkID,
			chunk.SourceDocument,
			chunk.Page,
			chunk.SequenceIndex,
			chunk.CreatedAt.UTC().Format(time.RFC3339Nano),
			payload,
			string(algorithm),
			encodeVector(chunk.Vector),
		)
		if err != nil {
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}

	return tx.Commit()
}

// Search scans the collection and returns up to topK chunks ordered by
// descending cosine similarity. Equal scores keep insertion order so
// results are deterministic. Every query recomputes from the collection,
// nothing is cached across queries.
func (s *VectorStore) Search(ctx context.Context, collectionID string, queryVector []float32, topK int) ([]models.ScoredChunk, error) {
	db, err := s.getDB(collectionID)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT chunk_id, source_document, page, sequence_index, created_at, text, compression, embedding
		FROM chunks
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var results []models.ScoredChunk
	for rows.Next() {
		var (
			chunk       models.EmbeddedChunk
			createdAt   string
			payload     []byte
			compression string
			vectorBlob  []byte
		)
		if err := rows.Scan(&chunk.ChunkID, &chunk.SourceDocument, &chunk.Page, &chunk.SequenceIndex,
			&createdAt, &payload, &compression, &vectorBlob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		text, err := utils.DecompressText(payload, utils.CompressionAlgorithm(compression))
		if err != nil {
			return nil, fmt.Errorf("decompressing chunk text: %w", err)
		}
		chunk.Text = text

		if chunk.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing chunk timestamp: %w", err)
		}
		chunk.Vector = decodeVector(vectorBlob)

		results = append(results, models.ScoredChunk{
			EmbeddedChunk: chunk,
			Score:         cosineSimilarity(queryVector, chunk.Vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	// Stable sort keeps insertion order for equal scores
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteChunks removes the chunks with the given ids from a collection in
// one transaction. Ids not present are skipped. The ingestion path uses
// this to back out an already-committed batch when a later step fails.
func (s *VectorStore) DeleteChunks(ctx context.Context, collectionID string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	db, err := s.getDB(collectionID)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("deleting chunk: %w", err)
		}
	}

	return tx.Commit()
}

// Count returns the number of chunks stored in a collection.
func (s *VectorStore) Count(ctx context.Context, collectionID string) (int, error) {
	db, err := s.getDB(collectionID)
	if err != nil {
		return 0, err
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// DeleteCollection removes a collection and its on-disk file. Deleting a
// collection that does not exist is a no-op, not an error.
func (s *VectorStore) DeleteCollection(collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.open[collectionID]; ok {
		db.Close()
		delete(s.open, collectionID)
	}

	err := os.Remove(s.collectionPath(collectionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing collection file: %w", err)
	}
	return nil
}

// Close closes all open collection handles.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, db := range s.open {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.open, id)
	}
	return firstErr
}

// encodeVector packs float32s little-endian for a stable, byte-identical
// round trip through SQLite.
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
