package services

import (
	"context"
	"fmt"
	"log"

	"ragdemo/config"
	"ragdemo/models"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
)

// Pipeline is one RAG variant: its own vector store for dense retrieval
// plus an in-memory keyword index for the sparse arm. Both are populated
// together during ingestion and queried together at retrieval.
type Pipeline struct {
	cfg      config.PipelineConfig
	store    vectorStore
	keyword  *KeywordIndex
	embedder Embedder

	chunkSize    int
	chunkOverlap int
	topK         int
	weights      []float64
	fusedTopN    int
}

// NewPipeline opens (or creates) the variant's Chroma collection and
// rebuilds the keyword index from whatever the collection already holds,
// so sparse search survives restarts.
func NewPipeline(ctx context.Context, client chromago.Client, appCfg *config.AppConfig, cfg config.PipelineConfig, embedder Embedder) (*Pipeline, error) {
	name := fmt.Sprintf("%s-%s", appCfg.Chroma.CollectionPrefix, cfg.Name)
	store, err := newChromaStore(ctx, client, name)
	if err != nil {
		return nil, err
	}
	return newPipeline(ctx, store, appCfg, cfg, embedder)
}

func newPipeline(ctx context.Context, store vectorStore, appCfg *config.AppConfig, cfg config.PipelineConfig, embedder Embedder) (*Pipeline, error) {
	p := &Pipeline{
		cfg:          cfg,
		store:        store,
		keyword:      NewKeywordIndex(),
		embedder:     embedder,
		chunkSize:    appCfg.Chunking.Size,
		chunkOverlap: appCfg.Chunking.Overlap,
		topK:         appCfg.Retrieval.TopK,
		weights:      []float64{appCfg.Retrieval.KeywordWeight, appCfg.Retrieval.VectorWeight},
		fusedTopN:    appCfg.Retrieval.FusedTopN,
	}
	if err := p.rebuildKeywordIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to rebuild keyword index for %s: %w", cfg.Name, err)
	}
	return p, nil
}

// Config returns the pipeline's static configuration.
func (p *Pipeline) Config() config.PipelineConfig { return p.cfg }

// Ready reports whether any documents have been indexed yet.
func (p *Pipeline) Ready() bool { return p.keyword.Len() > 0 }

// ChunkCount reports the number of indexed chunks.
func (p *Pipeline) ChunkCount() int { return p.keyword.Len() }

// IngestText chunks, embeds, and indexes one extracted document. The
// source tag (URL or file path) ends up in chunk metadata so the document
// can later be listed or removed. Ingestion is all-or-nothing per source:
// every chunk is embedded before anything is written, and a store failure
// rolls back whatever part of the batch made it in, so the keyword index
// and the vector store never disagree about a source.
func (p *Pipeline) IngestText(ctx context.Context, source, text string) (int, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.chunkSize),
		textsplitter.WithChunkOverlap(p.chunkOverlap),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("failed to split %s: %w", source, err)
	}
	log.Printf("PIPELINE [%s]: Split %s into %d chunks.", p.cfg.Name, source, len(parts))

	vectors := make([][]float32, len(parts))
	for i, part := range parts {
		vec, err := p.embedder.Embed(ctx, part)
		if err != nil {
			return 0, fmt.Errorf("could not embed chunk %d of %s: %w", i, source, err)
		}
		vectors[i] = vec
	}

	chunks := make([]models.Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = models.Chunk{
			ID:     fmt.Sprintf("%s-chunk%d", uuid.New().String(), i),
			Text:   part,
			Source: source,
			Index:  i,
		}
	}

	if err := p.store.Upsert(ctx, chunks, vectors); err != nil {
		if delErr := p.store.DeleteBySource(ctx, source); delErr != nil {
			log.Printf("PIPELINE [%s]: WARN: could not roll back partial ingest of %s: %v", p.cfg.Name, source, delErr)
		}
		return 0, err
	}
	p.keyword.Add(chunks)
	return len(chunks), nil
}

// Retrieve runs both retriever arms and fuses their rankings.
func (p *Pipeline) Retrieve(ctx context.Context, query string) ([]models.ScoredChunk, error) {
	keywordRanked := p.keyword.Search(query, p.topK)

	vectorRanked, err := p.vectorSearch(ctx, query)
	if err != nil {
		return nil, err
	}

	fused := fuseRankings(p.fusedTopN, p.weights, keywordRanked, vectorRanked)
	log.Printf("PIPELINE [%s]: Fused %d keyword + %d vector results into %d chunks.",
		p.cfg.Name, len(keywordRanked), len(vectorRanked), len(fused))
	return fused, nil
}

func (p *Pipeline) vectorSearch(ctx context.Context, query string) ([]models.ScoredChunk, error) {
	queryEmbedding, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query text: %w", err)
	}
	found, err := p.store.Search(ctx, queryEmbedding, p.topK)
	if err != nil {
		return nil, err
	}
	ranked := make([]models.ScoredChunk, 0, len(found))
	for _, chunk := range found {
		ranked = append(ranked, models.ScoredChunk{Chunk: chunk})
	}
	return ranked, nil
}

// Documents lists every chunk currently held in the store.
func (p *Pipeline) Documents(ctx context.Context) ([]models.SourceDocument, error) {
	chunks, err := p.store.Chunks(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]models.SourceDocument, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, models.SourceDocument{
			Text: chunk.Text,
			Metadata: map[string]interface{}{
				"source":    chunk.Source,
				"chunk_id":  chunk.ID,
				"chunk_num": chunk.Index,
			},
		})
	}
	return docs, nil
}

// RemoveSource deletes every chunk ingested from the given source, on both
// the dense and sparse sides.
func (p *Pipeline) RemoveSource(ctx context.Context, source string) error {
	if err := p.store.DeleteBySource(ctx, source); err != nil {
		return err
	}
	removed := p.keyword.RemoveBySource(source)
	log.Printf("PIPELINE [%s]: Removed %d chunks for source %s.", p.cfg.Name, removed, source)
	return nil
}

// Reset drops all indexed state on both sides.
func (p *Pipeline) Reset(ctx context.Context) error {
	if err := p.store.Reset(ctx); err != nil {
		return err
	}
	p.keyword.Clear()
	log.Printf("PIPELINE [%s]: Reset complete.", p.cfg.Name)
	return nil
}

func (p *Pipeline) rebuildKeywordIndex(ctx context.Context) error {
	chunks, err := p.store.Chunks(ctx)
	if err != nil {
		return err
	}
	if len(chunks) > 0 {
		p.keyword.Add(chunks)
		log.Printf("PIPELINE [%s]: Rebuilt keyword index with %d persisted chunks.", p.cfg.Name, len(chunks))
	}
	return nil
}
