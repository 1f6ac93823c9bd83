package services

import (
	"fmt"
	"strings"

	"ragdemo/models"

	"google.golang.org/genai"
)

// GetSystemPrompt defines the core instructions for the answering model.
func GetSystemPrompt() *genai.Content {
	prompt := `You are a helpful assistant answering questions about documents the user has loaded into this application.

You will be given a set of context passages retrieved from those documents, followed by the user's question. Ground your answer in the provided passages. If the passages do not contain the information needed to answer, say that the loaded documents do not cover it; do not invent information. Keep answers concise and directly responsive to the question.`

	contents := genai.Text(prompt)
	if len(contents) == 0 {
		return nil
	}
	return contents[0]
}

// buildAnswerPrompt assembles the retrieved context and the question into
// the message sent to the model.
func buildAnswerPrompt(chunks []models.ScoredChunk, question string) string {
	var sb strings.Builder
	sb.WriteString("Context passages:\n\n")
	for i, sc := range chunks {
		fmt.Fprintf(&sb, "[%d] (source: %s)\n%s\n\n", i+1, sc.Chunk.Source, sc.Chunk.Text)
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

// buildCondensePrompt asks the model to rewrite a follow-up question as a
// standalone one, using the recent conversation. The rewritten question is
// what gets sent to the retrievers.
func buildCondensePrompt(turns []models.ChatTurn, question string) string {
	var sb strings.Builder
	sb.WriteString("Given the following conversation and a follow-up question, rephrase the follow-up question to be a standalone question that captures all needed context. Reply with the standalone question only.\n\nConversation:\n")
	for _, t := range turns {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", t.Query, t.Answer)
	}
	sb.WriteString("\nFollow-up question: ")
	sb.WriteString(question)
	return sb.String()
}
