package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"rag-chatbot-platform/internal/config"
	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/internal/telemetry"
	"rag-chatbot-platform/models"
)

// registryFileName holds knowledge base metadata next to the collection
// files; the vector store skips it when scanning for collections.
const registryFileName = "registry.db"

// Embedder maps text to fixed-length vectors via a remote provider.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// KnowledgeService owns the mapping from knowledge base name to vector
// store collection and runs the ingestion pipeline. It serializes builds
// per name: a second ingestion for a name already building is rejected
// rather than interleaved, so queries never observe a half-built
// collection. Different names may build concurrently.
type KnowledgeService struct {
	config     *config.Config
	store      *VectorStore
	chunker    *Chunker
	extractors *ExtractorRegistry
	embedder   Embedder
	metrics    *telemetry.Metrics

	registry *sql.DB

	buildMu  sync.Mutex
	building map[string]bool
}

// NewKnowledgeService opens (or creates) the registry database under the
// persist directory. Previously created knowledge bases become listable
// and queryable immediately, with no re-ingestion.
func NewKnowledgeService(cfg *config.Config, store *VectorStore, chunker *Chunker,
	extractors *ExtractorRegistry, embedder Embedder, metrics *telemetry.Metrics) (*KnowledgeService, error) {

	registry, err := sql.Open("sqlite3", filepath.Join(cfg.PersistDir, registryFileName))
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_bases (
		name TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		document_count INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := registry.Exec(schema); err != nil {
		registry.Close()
		return nil, fmt.Errorf("initializing registry schema: %w", err)
	}

	// Collection files with no registry row are leftovers from a crash
	// between collection creation and registration. Sweep them at startup;
	// a failed sweep is logged, not fatal.
	if err := sweepOrphanCollections(registry, store); err != nil {
		logger.Warn("orphan collection sweep failed", "error", err)
	}

	return &KnowledgeService{
		config:     cfg,
		store:      store,
		chunker:    chunker,
		extractors: extractors,
		embedder:   embedder,
		metrics:    metrics,
		registry:   registry,
		building:   make(map[string]bool),
	}, nil
}

func sweepOrphanCollections(registry *sql.DB, store *VectorStore) error {
	rows, err := registry.Query(`SELECT collection_id FROM knowledge_bases`)
	if err != nil {
		return fmt.Errorf("reading registered collections: %w", err)
	}
	defer rows.Close()

	registered := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning collection id: %w", err)
		}
		registered[id] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	onDisk, err := store.ListCollections()
	if err != nil {
		return err
	}
	for _, id := range onDisk {
		if registered[id] {
			continue
		}
		if err := store.DeleteCollection(id); err != nil {
			return fmt.Errorf("removing orphan collection %q: %w", id, err)
		}
		logger.Warn("removed orphan collection", "collection_id", id)
	}
	return nil
}

// Create registers a new, empty knowledge base with its backing
// collection. Fails with models.ErrAlreadyExists if the name is taken.
func (s *KnowledgeService) Create(ctx context.Context, name string) (*models.KnowledgeBase, error) {
	if name == "" {
		return nil, fmt.Errorf("knowledge base name cannot be empty")
	}

	if _, err := s.Get(ctx, name); err == nil {
		return nil, fmt.Errorf("knowledge base %q: %w", name, models.ErrAlreadyExists)
	}

	kb := &models.KnowledgeBase{
		Name:         name,
		CollectionID: uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateCollection(ctx, kb.CollectionID); err != nil {
		return nil, err
	}

	_, err := s.registry.ExecContext(ctx, `
		INSERT INTO knowledge_bases (name, collection_id, created_at, document_count, chunk_count)
		VALUES (?, ?, ?, 0, 0)
	`, kb.Name, kb.CollectionID, kb.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		s.store.DeleteCollection(kb.CollectionID)
		return nil, fmt.Errorf("registering knowledge base: %w", err)
	}

	logger.Info("knowledge base created", "name", name, "collection_id", kb.CollectionID)
	return kb, nil
}

// Get resolves a knowledge base by name or fails with
// models.ErrUnknownKnowledgeBase.
func (s *KnowledgeService) Get(ctx context.Context, name string) (*models.KnowledgeBase, error) {
	row := s.registry.QueryRowContext(ctx, `
		SELECT name, collection_id, created_at, document_count, chunk_count
		FROM knowledge_bases WHERE name = ?
	`, name)

	var (
		kb        models.KnowledgeBase
		createdAt string
	)
	err := row.Scan(&kb.Name, &kb.CollectionID, &createdAt, &kb.DocumentCount, &kb.ChunkCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("knowledge base %q: %w", name, models.ErrUnknownKnowledgeBase)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up knowledge base: %w", err)
	}
	if kb.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing knowledge base timestamp: %w", err)
	}
	return &kb, nil
}

// List returns all registered knowledge bases ordered by name.
func (s *KnowledgeService) List(ctx context.Context) ([]models.KnowledgeBase, error) {
	rows, err := s.registry.QueryContext(ctx, `
		SELECT name, collection_id, created_at, document_count, chunk_count
		FROM knowledge_bases ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge bases: %w", err)
	}
	defer rows.Close()

	var kbs []models.KnowledgeBase
	for rows.Next() {
		var (
			kb        models.KnowledgeBase
			createdAt string
		)
		if err := rows.Scan(&kb.Name, &kb.CollectionID, &createdAt, &kb.DocumentCount, &kb.ChunkCount); err != nil {
			return nil, fmt.Errorf("scanning knowledge base row: %w", err)
		}
		if kb.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing knowledge base timestamp: %w", err)
		}
		kbs = append(kbs, kb)
	}
	return kbs, rows.Err()
}

// Delete removes a knowledge base and its backing collection. Deleting a
// name that does not exist is a no-op.
func (s *KnowledgeService) Delete(ctx context.Context, name string) error {
	kb, err := s.Get(ctx, name)
	if errors.Is(err, models.ErrUnknownKnowledgeBase) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.DeleteCollection(kb.CollectionID); err != nil {
		return err
	}
	if _, err := s.registry.ExecContext(ctx, `DELETE FROM knowledge_bases WHERE name = ?`, name); err != nil {
		return fmt.Errorf("unregistering knowledge base: %w", err)
	}

	logger.Info("knowledge base deleted", "name", name)
	return nil
}

// Ingest runs the full write path for one document: extract, chunk, embed
// every chunk, then append them in a single transaction. Any failure
// leaves the target collection exactly as it was; no partial writes become
// visible to queries. The knowledge base is created on first ingestion if
// it does not exist yet.
func (s *KnowledgeService) Ingest(ctx context.Context, name string, doc models.Document) (*models.IngestResult, error) {
	tracer := otel.Tracer("knowledge-service")
	ctx, span := tracer.Start(ctx, "knowledge.ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("knowledge_base", name),
		attribute.String("document", doc.Filename),
	)

	if err := s.beginBuild(name); err != nil {
		return nil, err
	}
	defer s.endBuild(name)

	start := time.Now()

	kb, err := s.Get(ctx, name)
	createdNow := false
	if errors.Is(err, models.ErrUnknownKnowledgeBase) {
		if kb, err = s.Create(ctx, name); err != nil {
			return nil, err
		}
		createdNow = true
	} else if err != nil {
		return nil, err
	}

	result, err := s.ingestInto(ctx, kb, doc)
	if err != nil {
		// A knowledge base only comes into existence on a successful
		// first ingestion; roll back the eager creation above.
		if createdNow {
			if delErr := s.Delete(ctx, name); delErr != nil {
				logger.Error("failed to roll back knowledge base creation", "name", name, "error", delErr)
			}
		}
		logger.Error("ingestion failed", "knowledge_base", name, "document", doc.Filename, "error", err)
		return nil, err
	}

	s.metrics.RecordIngestion(ctx, name, result.ChunksAdded, time.Since(start).Seconds())
	logger.Info("document ingested",
		"knowledge_base", name,
		"document", doc.Filename,
		"chunks", result.ChunksAdded,
		"duration", time.Since(start).String(),
	)
	return result, nil
}

func (s *KnowledgeService) ingestInto(ctx context.Context, kb *models.KnowledgeBase, doc models.Document) (*models.IngestResult, error) {
	pages, err := s.extractors.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunker.SplitPages(pages, doc.Filename)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	// All chunks are embedded before anything is written, so a provider
	// failure cannot leave a half-ingested document behind.
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	embedded := make([]models.EmbeddedChunk, len(chunks))
	for i, chunk := range chunks {
		embedded[i] = models.EmbeddedChunk{
			Chunk:   chunk,
			ChunkID: uuid.NewString(),
			Vector:  vectors[i],
		}
	}

	if err := s.store.Upsert(ctx, kb.CollectionID, embedded); err != nil {
		return nil, err
	}

	_, err = s.registry.ExecContext(ctx, `
		UPDATE knowledge_bases
		SET document_count = document_count + 1, chunk_count = chunk_count + ?
		WHERE name = ?
	`, len(embedded), kb.Name)
	if err != nil {
		// The chunk batch committed into the collection file before the
		// registry write, so a reported failure must take the chunks back
		// out or queries would see a document the caller was told failed.
		ids := make([]string, len(embedded))
		for i := range embedded {
			ids[i] = embedded[i].ChunkID
		}
		if cleanupErr := s.store.DeleteChunks(context.WithoutCancel(ctx), kb.CollectionID, ids); cleanupErr != nil {
			logger.Error("failed to remove chunks after counter update failure",
				"knowledge_base", kb.Name, "chunks", len(ids), "error", cleanupErr)
		}
		return nil, fmt.Errorf("updating knowledge base counters: %w", err)
	}

	return &models.IngestResult{KnowledgeBase: kb.Name, ChunksAdded: len(embedded)}, nil
}

func (s *KnowledgeService) beginBuild(name string) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if s.building[name] {
		return fmt.Errorf("knowledge base %q: %w", name, models.ErrBuildInProgress)
	}
	s.building[name] = true
	return nil
}

func (s *KnowledgeService) endBuild(name string) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	delete(s.building, name)
}

// Store exposes the underlying vector store for the query path.
func (s *KnowledgeService) Store() *VectorStore { return s.store }

// Close releases the registry database handle.
func (s *KnowledgeService) Close() error {
	return s.registry.Close()
}
