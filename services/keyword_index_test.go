package services

import (
	"testing"

	"ragdemo/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunks() []models.Chunk {
	return []models.Chunk{
		{ID: "c1", Source: "doc-a", Index: 0, Text: "Transformers rely on self-attention to relate tokens within a sequence."},
		{ID: "c2", Source: "doc-a", Index: 1, Text: "Convolutional networks excel at image classification tasks."},
		{ID: "c3", Source: "doc-b", Index: 0, Text: "The attention mechanism computes weighted sums of value vectors."},
		{ID: "c4", Source: "doc-b", Index: 1, Text: "Gradient descent minimizes the loss function step by step."},
	}
}

func TestKeywordIndexRanksRelevantChunkFirst(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Add(testChunks())

	results := idx.Search("how does self-attention work", 3)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].Chunk.ID)
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
	}
}

func TestKeywordIndexOmitsNonMatchingChunks(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Add(testChunks())

	results := idx.Search("gradient descent", 10)
	require.Len(t, results, 1)
	assert.Equal(t, "c4", results[0].Chunk.ID)
}

func TestKeywordIndexEmptyQueryReturnsNothing(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Add(testChunks())

	assert.Nil(t, idx.Search("", 5))
	assert.Nil(t, idx.Search("the and of", 5)) // stopwords only
}

func TestKeywordIndexSearchBeforeAdd(t *testing.T) {
	idx := NewKeywordIndex()
	assert.Nil(t, idx.Search("anything", 5))
}

func TestKeywordIndexRespectsTopK(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Add(testChunks())

	results := idx.Search("attention networks loss sequence", 2)
	assert.LessOrEqual(t, len(results), 2)
}

func TestKeywordIndexRemoveBySource(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Add(testChunks())
	require.Equal(t, 4, idx.Len())

	removed := idx.RemoveBySource("doc-a")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, idx.Len())

	// The removed document's content must no longer be findable.
	for _, r := range idx.Search("convolutional image classification", 5) {
		assert.NotEqual(t, "doc-a", r.Chunk.Source)
	}
	// Remaining content still is.
	results := idx.Search("attention mechanism", 5)
	require.NotEmpty(t, results)
	assert.Equal(t, "c3", results[0].Chunk.ID)
}

func TestKeywordIndexClear(t *testing.T) {
	idx := NewKeywordIndex()
	idx.Add(testChunks())
	idx.Clear()

	assert.Equal(t, 0, idx.Len())
	assert.Nil(t, idx.Search("attention", 5))
}
