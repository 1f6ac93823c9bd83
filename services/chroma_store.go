package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"ragdemo/models"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

// vectorStore is the dense arm of a pipeline: it persists chunk vectors
// and returns chunks ranked by similarity. Kept narrow so pipeline tests
// can run against an in-memory double instead of a Chroma server.
type vectorStore interface {
	Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]models.Chunk, error)
	Chunks(ctx context.Context) ([]models.Chunk, error)
	DeleteBySource(ctx context.Context, source string) error
	Reset(ctx context.Context) error
}

// chromaStore implements vectorStore on a Chroma v2 collection.
type chromaStore struct {
	client         chromago.Client
	collection     chromago.Collection
	collectionName string
}

func newChromaStore(ctx context.Context, client chromago.Client, name string) (*chromaStore, error) {
	collection, err := getOrCreateCollection(ctx, client, name)
	if err != nil {
		return nil, err
	}
	return &chromaStore{client: client, collection: collection, collectionName: name}, nil
}

func getOrCreateCollection(ctx context.Context, client chromago.Client, name string) (chromago.Collection, error) {
	collection, err := client.GetOrCreateCollection(
		ctx,
		name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "RAG demo pipeline collection"),
				chromago.NewStringAttribute("created_by", "ragdemo"),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %s: %w", name, err)
	}
	return collection, nil
}

// Upsert adds the chunk batch to the collection. Callers treat a failure
// mid-batch as a partial write and compensate with DeleteBySource.
func (s *chromaStore) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	for i, ch := range chunks {
		metadata := chromago.NewDocumentMetadata(
			chromago.NewStringAttribute("source", ch.Source),
			chromago.NewStringAttribute("chunk_id", ch.ID),
			chromago.NewIntAttribute("chunk_num", int64(ch.Index)),
		)
		err := s.collection.Add(ctx,
			chromago.WithIDs(chromago.DocumentID(ch.ID)),
			chromago.WithTexts(ch.Text),
			chromago.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(vectors[i])),
			chromago.WithMetadatas(metadata),
		)
		if err != nil {
			return fmt.Errorf("failed to add chunk %d of %s to chromadb: %w", ch.Index, ch.Source, err)
		}
	}
	return nil
}

// Search queries the collection with the given vector.
func (s *chromaStore) Search(ctx context.Context, vector []float32, topK int) ([]models.Chunk, error) {
	results, err := s.collection.Query(
		ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(topK),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	if len(documentGroups) == 0 {
		return nil, nil
	}
	var chunks []models.Chunk
	for i, doc := range documentGroups[0] {
		if doc.ContentString() == "" {
			continue
		}
		var meta map[string]interface{}
		if len(metadataGroups) > 0 && len(metadataGroups[0]) > i {
			meta = metadataMap(metadataGroups[0][i])
		}
		chunks = append(chunks, chunkFromMetadata(doc.ContentString(), meta))
	}
	return chunks, nil
}

// Chunks lists everything the collection currently holds.
func (s *chromaStore) Chunks(ctx context.Context) ([]models.Chunk, error) {
	results, err := s.collection.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents from chromadb: %w", err)
	}
	ids := results.GetIDs()
	documents := results.GetDocuments()
	metadatas := results.GetMetadatas()

	chunks := make([]models.Chunk, 0, len(documents))
	for i := range documents {
		text := documents[i].ContentString()
		if text == "" {
			continue
		}
		var meta map[string]interface{}
		if len(metadatas) > i && metadatas[i] != nil {
			meta = metadataMap(metadatas[i])
		}
		chunk := chunkFromMetadata(text, meta)
		if chunk.ID == "" && len(ids) > i {
			chunk.ID = string(ids[i])
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// DeleteBySource drops every chunk ingested from the given source.
func (s *chromaStore) DeleteBySource(ctx context.Context, source string) error {
	where := chromago.EqString("source", source)
	if err := s.collection.Delete(ctx, chromago.WithWhereDelete(where)); err != nil {
		return fmt.Errorf("failed to delete chunks of %s from chromadb: %w", source, err)
	}
	return nil
}

// Reset drops all indexed state by recreating the collection.
func (s *chromaStore) Reset(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collectionName); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", s.collectionName, err)
	}
	collection, err := getOrCreateCollection(ctx, s.client, s.collectionName)
	if err != nil {
		return err
	}
	s.collection = collection
	return nil
}

// metadataMap converts Chroma's DocumentMetadata into a plain map. The
// struct exposes no accessor for all values, so round-trip through JSON.
func metadataMap(metadata chromago.DocumentMetadata) map[string]interface{} {
	if metadata == nil {
		return map[string]interface{}{}
	}
	jsonBytes, err := json.Marshal(metadata)
	if err != nil {
		log.Printf("WARN: could not marshal document metadata: %v", err)
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &m); err != nil {
		log.Printf("WARN: could not unmarshal document metadata: %v", err)
		return map[string]interface{}{}
	}
	return m
}

func chunkFromMetadata(text string, meta map[string]interface{}) models.Chunk {
	chunk := models.Chunk{Text: text}
	if meta == nil {
		return chunk
	}
	if id, ok := meta["chunk_id"].(string); ok {
		chunk.ID = id
	}
	if source, ok := meta["source"].(string); ok {
		chunk.Source = source
	}
	if num, ok := meta["chunk_num"].(float64); ok {
		chunk.Index = int(num)
	}
	return chunk
}
