package models

// SourceDocument represents a chunk of text and its origin.
type SourceDocument struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Chunk is an indexed piece of a source document. The ID is shared between
// the vector store and the keyword index so both sides stay in sync.
type Chunk struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source"`
	Index  int    `json:"index"`
}

// ScoredChunk is a chunk with a retrieval relevance score attached.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// ChatTurn is one query/answer exchange kept in a session's history.
type ChatTurn struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

// PipelineInfo describes one configured RAG variant to the UI.
type PipelineInfo struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	WithHistory bool   `json:"withHistory"`
	Color       string `json:"color"`
	Documents   int    `json:"documents"`
}
