package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"ragdemo/config"
	"ragdemo/models"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Sentinel errors the controller maps to HTTP statuses.
var (
	ErrPipelineNotFound = errors.New("pipeline not found")
	ErrPipelineNotReady = errors.New("pipeline has no documents loaded")
)

// RAGService interface defines methods for RAG operations
type RAGService interface {
	ListPipelines(ctx context.Context) []models.PipelineInfo
	LoadDocuments(ctx context.Context, pipeline string, req models.LoadDocumentsRequest) (*models.LoadDocumentsResponse, error)
	Query(ctx context.Context, pipeline string, req models.QueryRequest) (*models.QueryResponse, error)
	GetDocuments(ctx context.Context, pipeline string) (*models.DocumentsResponse, error)
	Reset(ctx context.Context, pipeline string) error
	IngestFile(ctx context.Context, pipeline, path string) error
	RemoveSource(ctx context.Context, pipeline, source string) error
}

// chatSession pairs a Gemini chat with the history ring used for query
// condensation. The chat itself also carries the conversation, but the
// condense step needs the raw turns.
type chatSession struct {
	pipeline string
	chat     *genai.Chat

	// mu serializes whole query turns on this session: the genai chat is
	// not safe for concurrent SendMessage calls, and the turns the
	// condense step reads must be the same turns the exchange is recorded
	// against.
	mu    sync.Mutex
	turns []models.ChatTurn
}

// run executes one conversational exchange under the session lock. The
// callback gets the turns recorded so far and returns the turn to record;
// the history ring is trimmed to maxTurns afterwards.
func (s *chatSession) run(maxTurns int, fn func(turns []models.ChatTurn) (models.ChatTurn, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn, err := fn(s.turns)
	if err != nil {
		return err
	}
	s.turns = trimTurns(append(s.turns, turn), maxTurns)
	return nil
}

// ragServiceImpl holds the dependencies it needs to do its job
type ragServiceImpl struct {
	httpClient   *http.Client
	geminiClient *genai.Client
	model        string
	pipelines    map[string]*Pipeline
	order        []string
	sessions     map[string]*chatSession
	mu           sync.Mutex
}

// NewRAGService creates a new RAG service instance over the given pipelines.
// The order of the slice is the order pipelines are listed in.
func NewRAGService(client *http.Client, geminiClient *genai.Client, cfg config.GeminiConfig, pipelines []*Pipeline) RAGService {
	byName := make(map[string]*Pipeline, len(pipelines))
	order := make([]string, 0, len(pipelines))
	for _, p := range pipelines {
		byName[p.Config().Name] = p
		order = append(order, p.Config().Name)
	}
	return &ragServiceImpl{
		httpClient:   client,
		geminiClient: geminiClient,
		model:        cfg.Model,
		pipelines:    byName,
		order:        order,
		sessions:     make(map[string]*chatSession),
	}
}

func (r *ragServiceImpl) pipeline(name string) (*Pipeline, error) {
	p, ok := r.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, name)
	}
	return p, nil
}

// ListPipelines implements RAGService.
func (r *ragServiceImpl) ListPipelines(ctx context.Context) []models.PipelineInfo {
	infos := make([]models.PipelineInfo, 0, len(r.order))
	for _, name := range r.order {
		p := r.pipelines[name]
		cfg := p.Config()
		infos = append(infos, models.PipelineInfo{
			Name:        cfg.Name,
			Title:       cfg.Title,
			Description: cfg.Description,
			WithHistory: cfg.WithHistory,
			Color:       cfg.Color,
			Documents:   p.ChunkCount(),
		})
	}
	return infos
}

// LoadDocuments implements RAGService: downloads each PDF, extracts its
// text, and indexes it into the pipeline.
func (r *ragServiceImpl) LoadDocuments(ctx context.Context, pipeline string, req models.LoadDocumentsRequest) (*models.LoadDocumentsResponse, error) {
	p, err := r.pipeline(pipeline)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	if len(urls) == 0 {
		return nil, errors.New("no PDF URLs provided")
	}

	totalChunks := 0
	for _, u := range urls {
		log.Printf("SERVICE: Loading PDF %s into pipeline %s...", u, pipeline)
		text, err := FetchPDFText(ctx, r.httpClient, u)
		if err != nil {
			return nil, err
		}
		n, err := p.IngestText(ctx, u, text)
		if err != nil {
			return nil, err
		}
		totalChunks += n
	}
	log.Printf("SERVICE: Loaded %d PDFs (%d chunks) into pipeline %s.", len(urls), totalChunks, pipeline)
	return &models.LoadDocumentsResponse{
		Pipeline:  pipeline,
		Documents: len(urls),
		Chunks:    totalChunks,
	}, nil
}

// Query implements RAGService: retrieves context through the pipeline's
// hybrid retriever and asks Gemini for an answer. For history pipelines the
// question is first condensed against the session's recent turns.
func (r *ragServiceImpl) Query(ctx context.Context, pipeline string, req models.QueryRequest) (*models.QueryResponse, error) {
	p, err := r.pipeline(pipeline)
	if err != nil {
		return nil, err
	}
	if !p.Ready() {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotReady, pipeline)
	}
	log.Printf("SERVICE: Querying pipeline %s with: '%s' (SessionID: '%s')", pipeline, req.Query, req.SessionID)

	cfg := p.Config()
	if !cfg.WithHistory {
		return r.queryStateless(ctx, p, req.Query)
	}
	return r.queryWithHistory(ctx, p, req)
}

func (r *ragServiceImpl) queryStateless(ctx context.Context, p *Pipeline, query string) (*models.QueryResponse, error) {
	retrieved, err := p.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	chat, err := r.geminiClient.Chats.Create(ctx, r.model, &genai.GenerateContentConfig{
		SystemInstruction: GetSystemPrompt(),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("could not start chat: %w", err)
	}
	answer, err := r.sendMessage(ctx, chat, buildAnswerPrompt(retrieved, query))
	if err != nil {
		return nil, err
	}
	return &models.QueryResponse{
		Answer:     answer,
		SourceDocs: sourceDocuments(retrieved),
	}, nil
}

func (r *ragServiceImpl) queryWithHistory(ctx context.Context, p *Pipeline, req models.QueryRequest) (*models.QueryResponse, error) {
	session, sessionID, err := r.getOrCreateSession(ctx, p, req.SessionID)
	if err != nil {
		return nil, err
	}

	var resp *models.QueryResponse
	err = session.run(p.Config().MaxTurns, func(turns []models.ChatTurn) (models.ChatTurn, error) {
		// Condense a follow-up into a standalone question before retrieval.
		retrievalQuery := req.Query
		if len(turns) > 0 {
			condensed, err := r.condenseQuery(ctx, turns, req.Query)
			if err != nil {
				log.Printf("SERVICE: Query condensation failed, retrieving with the raw query: %v", err)
			} else if condensed != "" {
				log.Printf("SERVICE: Condensed query: '%s'", condensed)
				retrievalQuery = condensed
			}
		}

		retrieved, err := p.Retrieve(ctx, retrievalQuery)
		if err != nil {
			return models.ChatTurn{}, err
		}

		answer, err := r.sendMessage(ctx, session.chat, buildAnswerPrompt(retrieved, req.Query))
		if err != nil {
			return models.ChatTurn{}, err
		}

		resp = &models.QueryResponse{
			Answer:     answer,
			SourceDocs: sourceDocuments(retrieved),
			SessionID:  sessionID,
		}
		return models.ChatTurn{Query: req.Query, Answer: answer}, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *ragServiceImpl) getOrCreateSession(ctx context.Context, p *Pipeline, sessionID string) (*chatSession, string, error) {
	r.mu.Lock()
	if sessionID != "" {
		if session, ok := r.sessions[sessionID]; ok && session.pipeline == p.Config().Name {
			r.mu.Unlock()
			return session, sessionID, nil
		}
	}
	r.mu.Unlock()

	// No session ID was provided, or the session is gone (e.g. server
	// restarted). Start a fresh one.
	log.Println("SERVICE: No active session found. Creating a new one.")
	chat, err := r.geminiClient.Chats.Create(ctx, r.model, &genai.GenerateContentConfig{
		SystemInstruction: GetSystemPrompt(),
	}, nil)
	if err != nil {
		return nil, "", fmt.Errorf("could not start new chat session: %w", err)
	}
	session := &chatSession{pipeline: p.Config().Name, chat: chat}
	sessionID = uuid.New().String()

	r.mu.Lock()
	r.sessions[sessionID] = session
	r.mu.Unlock()
	return session, sessionID, nil
}

func (r *ragServiceImpl) condenseQuery(ctx context.Context, turns []models.ChatTurn, query string) (string, error) {
	chat, err := r.geminiClient.Chats.Create(ctx, r.model, nil, nil)
	if err != nil {
		return "", fmt.Errorf("could not start condensation chat: %w", err)
	}
	condensed, err := r.sendMessage(ctx, chat, buildCondensePrompt(turns, query))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(condensed), nil
}

// sendMessage sends one message on a chat and collects the text parts of
// the reply.
func (r *ragServiceImpl) sendMessage(ctx context.Context, chat *genai.Chat, prompt string) (string, error) {
	result, err := chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "I'm sorry, I couldn't generate a response.", nil
	}
	var responseText strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			responseText.WriteString(part.Text)
		}
	}
	return responseText.String(), nil
}

// GetDocuments implements RAGService.
func (r *ragServiceImpl) GetDocuments(ctx context.Context, pipeline string) (*models.DocumentsResponse, error) {
	p, err := r.pipeline(pipeline)
	if err != nil {
		return nil, err
	}
	docs, err := p.Documents(ctx)
	if err != nil {
		return nil, err
	}
	return &models.DocumentsResponse{
		Pipeline: pipeline,
		Count:    len(docs),
		Chunks:   docs,
	}, nil
}

// Reset implements RAGService: drops the pipeline's indexed state and any
// chat sessions bound to it.
func (r *ragServiceImpl) Reset(ctx context.Context, pipeline string) error {
	p, err := r.pipeline(pipeline)
	if err != nil {
		return err
	}
	if err := p.Reset(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	for id, session := range r.sessions {
		if session.pipeline == pipeline {
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	return nil
}

// IngestFile implements RAGService: extracts a local file and indexes it.
// Used by the directory watcher.
func (r *ragServiceImpl) IngestFile(ctx context.Context, pipeline, path string) error {
	p, err := r.pipeline(pipeline)
	if err != nil {
		return err
	}
	text, err := ExtractTextFromFile(path)
	if err != nil {
		return err
	}
	_, err = p.IngestText(ctx, path, text)
	return err
}

// RemoveSource implements RAGService. Used by the directory watcher.
func (r *ragServiceImpl) RemoveSource(ctx context.Context, pipeline, source string) error {
	p, err := r.pipeline(pipeline)
	if err != nil {
		return err
	}
	return p.RemoveSource(ctx, source)
}

func sourceDocuments(retrieved []models.ScoredChunk) []models.SourceDocument {
	docs := make([]models.SourceDocument, 0, len(retrieved))
	for _, sc := range retrieved {
		docs = append(docs, models.SourceDocument{
			Text: sc.Chunk.Text,
			Metadata: map[string]interface{}{
				"source":    sc.Chunk.Source,
				"chunk_num": sc.Chunk.Index,
				"score":     sc.Score,
			},
		})
	}
	return docs
}

// trimTurns keeps only the most recent maxTurns entries.
func trimTurns(turns []models.ChatTurn, maxTurns int) []models.ChatTurn {
	if maxTurns <= 0 || len(turns) <= maxTurns {
		return turns
	}
	return turns[len(turns)-maxTurns:]
}
