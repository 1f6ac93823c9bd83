package models

// LoadDocumentsResponse reports how much was indexed from the submitted URLs.
type LoadDocumentsResponse struct {
	Pipeline  string `json:"pipeline"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
}

// QueryResponse is the answer to a RAG query.
type QueryResponse struct {
	Answer     string           `json:"answer"`
	SourceDocs []SourceDocument `json:"source_docs,omitempty"`
	SessionID  string           `json:"sessionID,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// DocumentsResponse lists the chunks currently indexed for a pipeline.
type DocumentsResponse struct {
	Pipeline string           `json:"pipeline"`
	Count    int              `json:"count"`
	Chunks   []SourceDocument `json:"chunks"`
}
