package services

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ragdemo/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimTurnsKeepsMostRecent(t *testing.T) {
	turns := []models.ChatTurn{
		{Query: "q1"}, {Query: "q2"}, {Query: "q3"}, {Query: "q4"}, {Query: "q5"}, {Query: "q6"},
	}
	trimmed := trimTurns(turns, 5)
	require.Len(t, trimmed, 5)
	assert.Equal(t, "q2", trimmed[0].Query)
	assert.Equal(t, "q6", trimmed[4].Query)
}

func TestTrimTurnsNoopUnderLimit(t *testing.T) {
	turns := []models.ChatTurn{{Query: "q1"}, {Query: "q2"}}
	assert.Len(t, trimTurns(turns, 5), 2)
	assert.Len(t, trimTurns(turns, 0), 2)
}

func TestBuildAnswerPromptIncludesContextAndQuestion(t *testing.T) {
	chunks := []models.ScoredChunk{
		{Chunk: models.Chunk{Text: "first passage", Source: "https://example.com/a.pdf"}},
		{Chunk: models.Chunk{Text: "second passage", Source: "https://example.com/b.pdf"}},
	}
	prompt := buildAnswerPrompt(chunks, "what is covered?")

	assert.Contains(t, prompt, "[1] (source: https://example.com/a.pdf)")
	assert.Contains(t, prompt, "first passage")
	assert.Contains(t, prompt, "[2] (source: https://example.com/b.pdf)")
	assert.Contains(t, prompt, "second passage")
	assert.Contains(t, prompt, "Question: what is covered?")
}

func TestBuildCondensePromptIncludesHistory(t *testing.T) {
	turns := []models.ChatTurn{
		{Query: "who wrote the paper?", Answer: "Smith et al."},
	}
	prompt := buildCondensePrompt(turns, "when did they publish it?")

	assert.Contains(t, prompt, "User: who wrote the paper?")
	assert.Contains(t, prompt, "Assistant: Smith et al.")
	assert.Contains(t, prompt, "Follow-up question: when did they publish it?")
}

func TestSourceDocumentsCarryMetadata(t *testing.T) {
	retrieved := []models.ScoredChunk{
		{Chunk: models.Chunk{Text: "body", Source: "src", Index: 3}, Score: 0.42},
	}
	docs := sourceDocuments(retrieved)
	require.Len(t, docs, 1)
	assert.Equal(t, "body", docs[0].Text)
	assert.Equal(t, "src", docs[0].Metadata["source"])
	assert.Equal(t, 3, docs[0].Metadata["chunk_num"])
	assert.Equal(t, 0.42, docs[0].Metadata["score"])
}

func TestGetSystemPromptNotNil(t *testing.T) {
	require.NotNil(t, GetSystemPrompt())
}

func TestChatSessionRunPassesRecordedTurns(t *testing.T) {
	session := &chatSession{pipeline: "advanced-history"}

	require.NoError(t, session.run(5, func(turns []models.ChatTurn) (models.ChatTurn, error) {
		require.Empty(t, turns)
		return models.ChatTurn{Query: "q1", Answer: "a1"}, nil
	}))
	require.NoError(t, session.run(5, func(turns []models.ChatTurn) (models.ChatTurn, error) {
		require.Len(t, turns, 1)
		assert.Equal(t, "q1", turns[0].Query)
		return models.ChatTurn{Query: "q2", Answer: "a2"}, nil
	}))
	assert.Len(t, session.turns, 2)
}

func TestChatSessionRunDropsFailedExchanges(t *testing.T) {
	session := &chatSession{pipeline: "advanced-history"}

	err := session.run(5, func(turns []models.ChatTurn) (models.ChatTurn, error) {
		return models.ChatTurn{}, errors.New("model unavailable")
	})
	assert.Error(t, err)
	assert.Empty(t, session.turns)
}

func TestChatSessionSerializesConcurrentExchanges(t *testing.T) {
	session := &chatSession{pipeline: "advanced-history"}

	var active, overlapped int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := session.run(5, func(turns []models.ChatTurn) (models.ChatTurn, error) {
				if atomic.AddInt32(&active, 1) > 1 {
					atomic.StoreInt32(&overlapped, 1)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return models.ChatTurn{Query: fmt.Sprintf("q%d", i), Answer: "a"}, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlapped), "exchanges on one session must not run concurrently")
	assert.Len(t, session.turns, 5)
}
