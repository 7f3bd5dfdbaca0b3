package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"rag-chatbot-platform/internal/config"
	"rag-chatbot-platform/models"
)

// fakeEmbedder returns deterministic vectors without a provider call.
type fakeEmbedder struct {
	fail    error
	started chan struct{}
	release chan struct{}
	calls   int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	if f.fail != nil {
		return nil, f.fail
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), 1}
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		MaxChunkSize:     100,
		ChunkOverlap:     20,
		MaxUploadSizeMB:  1,
		TopK:             4,
		MemoryWindowSize: 3,
		PersistDir:       t.TempDir(),
	}
}

func newTestService(t *testing.T, embedder Embedder) *KnowledgeService {
	t.Helper()
	cfg := testConfig(t)

	store, err := NewVectorStore(cfg.PersistDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	chunker, err := NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap)
	if err != nil {
		t.Fatal(err)
	}

	service, err := NewKnowledgeService(cfg, store, chunker, NewExtractorRegistry(cfg), embedder, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { service.Close() })
	return service
}

func textDocument(name, content string) models.Document {
	return models.Document{
		Filename:   name,
		Content:    []byte(content),
		UploadedAt: time.Now().UTC(),
	}
}

func TestCreateGetDeleteLifecycle(t *testing.T) {
	service := newTestService(t, &fakeEmbedder{})
	ctx := context.Background()

	kb, err := service.Create(ctx, "docs")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if kb.Name != "docs" || kb.CollectionID == "" {
		t.Errorf("unexpected knowledge base: %+v", kb)
	}

	got, err := service.Get(ctx, "docs")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CollectionID != kb.CollectionID {
		t.Errorf("Get collection = %q, want %q", got.CollectionID, kb.CollectionID)
	}

	if _, err := service.Create(ctx, "docs"); !errors.Is(err, models.ErrAlreadyExists) {
		t.Errorf("duplicate Create error = %v, want ErrAlreadyExists", err)
	}

	if err := service.Delete(ctx, "docs"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := service.Get(ctx, "docs"); !errors.Is(err, models.ErrUnknownKnowledgeBase) {
		t.Errorf("Get after delete error = %v, want ErrUnknownKnowledgeBase", err)
	}
	if service.Store().CollectionExists(kb.CollectionID) {
		t.Error("collection survived knowledge base delete")
	}
}

func TestDeleteUnknownIsNoOp(t *testing.T) {
	service := newTestService(t, &fakeEmbedder{})
	if err := service.Delete(context.Background(), "never-existed"); err != nil {
		t.Errorf("Delete unknown = %v, want nil", err)
	}
}

func TestListOrderedByName(t *testing.T) {
	service := newTestService(t, &fakeEmbedder{})
	ctx := context.Background()

	for _, name := range []string{"zebra", "alpha", "middle"} {
		if _, err := service.Create(ctx, name); err != nil {
			t.Fatal(err)
		}
	}

	kbs, err := service.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"alpha", "middle", "zebra"}
	if len(kbs) != len(want) {
		t.Fatalf("got %d knowledge bases, want %d", len(kbs), len(want))
	}
	for i, name := range want {
		if kbs[i].Name != name {
			t.Errorf("kbs[%d].Name = %q, want %q", i, kbs[i].Name, name)
		}
	}
}

func TestIngestCreatesKnowledgeBase(t *testing.T) {
	service := newTestService(t, &fakeEmbedder{})
	ctx := context.Background()

	result, err := service.Ingest(ctx, "docs", textDocument("note.txt", "some text worth keeping around"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.ChunksAdded < 1 {
		t.Errorf("ChunksAdded = %d", result.ChunksAdded)
	}

	kb, err := service.Get(ctx, "docs")
	if err != nil {
		t.Fatalf("Get after ingest: %v", err)
	}
	if kb.DocumentCount != 1 || kb.ChunkCount != result.ChunksAdded {
		t.Errorf("counters = (%d docs, %d chunks), want (1, %d)",
			kb.DocumentCount, kb.ChunkCount, result.ChunksAdded)
	}
}

func TestFailedFirstIngestRollsBackCreation(t *testing.T) {
	embedErr := &models.ProviderError{Provider: "gemini", Err: errors.New("boom")}
	service := newTestService(t, &fakeEmbedder{fail: embedErr})
	ctx := context.Background()

	_, err := service.Ingest(ctx, "docs", textDocument("note.txt", "some text"))
	if err == nil {
		t.Fatal("Ingest succeeded with failing embedder")
	}
	if _, err := service.Get(ctx, "docs"); !errors.Is(err, models.ErrUnknownKnowledgeBase) {
		t.Errorf("knowledge base exists after failed first ingest: %v", err)
	}
}

func TestFailedIngestLeavesNoPartialChunks(t *testing.T) {
	embedder := &fakeEmbedder{}
	service := newTestService(t, embedder)
	ctx := context.Background()

	if _, err := service.Ingest(ctx, "docs", textDocument("first.txt", "original content")); err != nil {
		t.Fatal(err)
	}
	before, _ := service.Get(ctx, "docs")

	embedder.fail = &models.RateLimitError{Attempts: 4, Err: errors.New("quota")}
	_, err := service.Ingest(ctx, "docs", textDocument("second.txt", "more content"))
	var rateErr *models.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("error = %v, want RateLimitError", err)
	}

	after, _ := service.Get(ctx, "docs")
	if after.ChunkCount != before.ChunkCount || after.DocumentCount != before.DocumentCount {
		t.Errorf("counters changed on failed ingest: before %+v, after %+v", before, after)
	}
	count, err := service.Store().Count(ctx, after.CollectionID)
	if err != nil {
		t.Fatal(err)
	}
	if count != before.ChunkCount {
		t.Errorf("stored chunks = %d, want %d", count, before.ChunkCount)
	}
}

func TestCounterUpdateFailureBacksOutChunks(t *testing.T) {
	embedder := &fakeEmbedder{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	service := newTestService(t, embedder)
	ctx := context.Background()

	kb, err := service.Create(ctx, "docs")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := service.Ingest(ctx, "docs", textDocument("note.txt", "content to embed"))
		done <- err
	}()

	// The ingest is past its registry reads once embedding starts. Close
	// the registry so the counter update after the chunk upsert fails.
	<-embedder.started
	if err := service.registry.Close(); err != nil {
		t.Fatal(err)
	}
	close(embedder.release)

	if err := <-done; err == nil {
		t.Fatal("ingest reported success with a dead registry")
	}

	// A reported failure must leave nothing visible to queries.
	count, err := service.Store().Count(ctx, kb.CollectionID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("collection holds %d chunks after failed ingest, want 0", count)
	}
}

func TestStartupSweepsOrphanCollections(t *testing.T) {
	cfg := testConfig(t)
	embedder := &fakeEmbedder{}
	ctx := context.Background()

	store, err := NewVectorStore(cfg.PersistDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	chunker, err := NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap)
	if err != nil {
		t.Fatal(err)
	}

	service, err := NewKnowledgeService(cfg, store, chunker, NewExtractorRegistry(cfg), embedder, nil)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := service.Create(ctx, "docs")
	if err != nil {
		t.Fatal(err)
	}

	// A collection file with no registry row, as left by a crash between
	// collection creation and registration.
	if err := store.CreateCollection(ctx, "orphan-collection"); err != nil {
		t.Fatal(err)
	}
	if err := service.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewKnowledgeService(cfg, store, chunker, NewExtractorRegistry(cfg), embedder, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reopened.Close() })

	if store.CollectionExists("orphan-collection") {
		t.Error("orphan collection survived startup sweep")
	}
	if !store.CollectionExists(kb.CollectionID) {
		t.Error("registered collection was swept")
	}
	if _, err := reopened.Get(ctx, "docs"); err != nil {
		t.Errorf("registered knowledge base lost: %v", err)
	}
}

func TestConcurrentBuildRejected(t *testing.T) {
	// Buffered so later, unsynchronized calls never block on the
	// handshake channels.
	embedder := &fakeEmbedder{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	service := newTestService(t, embedder)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := service.Ingest(ctx, "docs", textDocument("slow.txt", "slow document"))
		done <- err
	}()

	<-embedder.started // first build is inside the embedding step

	_, err := service.Ingest(ctx, "docs", textDocument("fast.txt", "competing document"))
	if !errors.Is(err, models.ErrBuildInProgress) {
		t.Errorf("concurrent ingest error = %v, want ErrBuildInProgress", err)
	}

	close(embedder.release)
	if err := <-done; err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	// The name is free again once the build finishes.
	if _, err := service.Ingest(ctx, "docs", textDocument("later.txt", "follow-up document")); err != nil {
		t.Errorf("ingest after build finished: %v", err)
	}
}
