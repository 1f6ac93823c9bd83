package models

// LoadDocumentsRequest carries the PDF URLs to ingest into a pipeline.
type LoadDocumentsRequest struct {
	URLs []string `json:"urls"`
}

// QueryRequest carries a user query. SessionID is only meaningful for
// pipelines with chat history; leaving it empty starts a new session.
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionID,omitempty"`
}
