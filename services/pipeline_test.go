package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"ragdemo/config"
	"ragdemo/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVectorStore is an in-memory vectorStore with dot-product search,
// standing in for the Chroma collection in pipeline tests.
type fakeVectorStore struct {
	mu      sync.Mutex
	chunks  []models.Chunk
	vectors [][]float32

	// failAfter is the number of chunks accepted before Upsert starts
	// failing; -1 means never fail.
	failAfter int
	deleted   []string
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{failAfter: -1}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range chunks {
		if f.failAfter >= 0 && len(f.chunks) >= f.failAfter {
			return errors.New("collection write failed")
		}
		f.chunks = append(f.chunks, chunks[i])
		f.vectors = append(f.vectors, vectors[i])
	}
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, vector []float32, topK int) ([]models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type scored struct {
		chunk models.Chunk
		score float32
	}
	ranked := make([]scored, 0, len(f.chunks))
	for i, chunk := range f.chunks {
		var dot float32
		for j := 0; j < len(vector) && j < len(f.vectors[i]); j++ {
			dot += vector[j] * f.vectors[i][j]
		}
		ranked = append(ranked, scored{chunk: chunk, score: dot})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	found := make([]models.Chunk, 0, len(ranked))
	for _, s := range ranked {
		found = append(found, s.chunk)
	}
	return found, nil
}

func (f *fakeVectorStore) Chunks(ctx context.Context) ([]models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Chunk(nil), f.chunks...), nil
}

func (f *fakeVectorStore) DeleteBySource(ctx context.Context, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, source)
	kept := f.chunks[:0]
	keptVectors := f.vectors[:0]
	for i, chunk := range f.chunks {
		if chunk.Source != source {
			kept = append(kept, chunk)
			keptVectors = append(keptVectors, f.vectors[i])
		}
	}
	f.chunks = kept
	f.vectors = keptVectors
	return nil
}

func (f *fakeVectorStore) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = nil
	f.vectors = nil
	return nil
}

// fakeEmbedder maps text to term-count vectors over a fixed vocabulary.
// failOn makes the Nth Embed call fail; 0 disables that.
type fakeEmbedder struct {
	terms  []string
	calls  int
	failOn int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failOn > 0 && f.calls >= f.failOn {
		return nil, errors.New("embedding model unavailable")
	}
	vec := make([]float32, len(f.terms))
	lower := strings.ToLower(text)
	for i, term := range f.terms {
		vec[i] = float32(strings.Count(lower, term))
	}
	return vec, nil
}

func newTestPipeline(t *testing.T, store vectorStore, embedder Embedder, chunkSize int) *Pipeline {
	t.Helper()
	appCfg := config.Default()
	appCfg.Chunking.Size = chunkSize
	appCfg.Chunking.Overlap = 10
	p, err := newPipeline(context.Background(), store, appCfg, config.PipelineConfig{Name: "advanced"}, embedder)
	require.NoError(t, err)
	return p
}

func TestPipelineIngestThenRetrieve(t *testing.T) {
	store := newFakeVectorStore()
	embedder := &fakeEmbedder{terms: []string{"attention", "gradient"}}
	p := newTestPipeline(t, store, embedder, 1500)
	ctx := context.Background()

	const attentionSrc = "https://example.com/attention.pdf"
	n, err := p.IngestText(ctx, attentionSrc, "The attention mechanism lets transformers weigh every token against every other token.")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = p.IngestText(ctx, "https://example.com/sgd.pdf", "Gradient descent updates model weights by following the negative gradient of the loss.")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.True(t, p.Ready())
	assert.Equal(t, 2, p.ChunkCount())

	fused, err := p.Retrieve(ctx, "how does the attention mechanism work")
	require.NoError(t, err)
	require.NotEmpty(t, fused)
	assert.Equal(t, attentionSrc, fused[0].Chunk.Source)
	assert.Contains(t, fused[0].Chunk.Text, "attention")
	assert.Greater(t, fused[0].Score, 0.0)
}

func TestPipelineIngestEmbedFailureLeavesNothingIndexed(t *testing.T) {
	store := newFakeVectorStore()
	embedder := &fakeEmbedder{terms: []string{"attention"}, failOn: 2}
	p := newTestPipeline(t, store, embedder, 80)
	ctx := context.Background()

	text := strings.Repeat("Attention is all you need for sequence transduction. ", 10)
	_, err := p.IngestText(ctx, "https://example.com/attention.pdf", text)
	require.Error(t, err)
	require.GreaterOrEqual(t, embedder.calls, 2, "text must split into multiple chunks")

	stored, err := store.Chunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored, "no chunk may be persisted when embedding fails part way")
	assert.Equal(t, 0, p.ChunkCount())
	assert.False(t, p.Ready())
}

func TestPipelineIngestStoreFailureRollsBack(t *testing.T) {
	store := newFakeVectorStore()
	store.failAfter = 1
	embedder := &fakeEmbedder{terms: []string{"attention"}}
	p := newTestPipeline(t, store, embedder, 80)
	ctx := context.Background()

	const src = "https://example.com/attention.pdf"
	text := strings.Repeat("Attention is all you need for sequence transduction. ", 10)
	_, err := p.IngestText(ctx, src, text)
	require.Error(t, err)

	assert.Contains(t, store.deleted, src, "a partial write must be rolled back by source")
	stored, err := store.Chunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, 0, p.ChunkCount())
	assert.False(t, p.Ready())
}

func TestPipelineRemoveSourceClearsBothArms(t *testing.T) {
	store := newFakeVectorStore()
	embedder := &fakeEmbedder{terms: []string{"attention", "gradient"}}
	p := newTestPipeline(t, store, embedder, 1500)
	ctx := context.Background()

	const attentionSrc = "https://example.com/attention.pdf"
	const sgdSrc = "https://example.com/sgd.pdf"
	_, err := p.IngestText(ctx, attentionSrc, "The attention mechanism weighs tokens.")
	require.NoError(t, err)
	_, err = p.IngestText(ctx, sgdSrc, "Gradient descent follows the loss downhill.")
	require.NoError(t, err)

	require.NoError(t, p.RemoveSource(ctx, attentionSrc))

	assert.Equal(t, 1, p.ChunkCount())
	docs, err := p.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, sgdSrc, docs[0].Metadata["source"])
}

func TestPipelineResetClearsEverything(t *testing.T) {
	store := newFakeVectorStore()
	embedder := &fakeEmbedder{terms: []string{"attention"}}
	p := newTestPipeline(t, store, embedder, 1500)
	ctx := context.Background()

	_, err := p.IngestText(ctx, "https://example.com/attention.pdf", "The attention mechanism weighs tokens.")
	require.NoError(t, err)
	require.True(t, p.Ready())

	require.NoError(t, p.Reset(ctx))

	assert.False(t, p.Ready())
	docs, err := p.Documents(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestPipelineRebuildsKeywordIndexFromStore(t *testing.T) {
	store := newFakeVectorStore()
	store.chunks = []models.Chunk{
		{ID: "c1", Text: "The attention mechanism weighs tokens.", Source: "https://example.com/attention.pdf", Index: 0},
		{ID: "c2", Text: "Gradient descent follows the loss downhill.", Source: "https://example.com/sgd.pdf", Index: 0},
	}
	store.vectors = [][]float32{{1, 0}, {0, 1}}

	embedder := &fakeEmbedder{terms: []string{"attention", "gradient"}}
	p := newTestPipeline(t, store, embedder, 1500)

	assert.True(t, p.Ready())
	assert.Equal(t, 2, p.ChunkCount())
	ranked := p.keyword.Search("attention mechanism", 5)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "c1", ranked[0].Chunk.ID)
}
