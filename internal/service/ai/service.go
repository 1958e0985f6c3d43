// Package ai orchestrates completion requests: it assembles bounded history
// into an ordered request, invokes the provider with the currently selected
// model, and classifies failures.
package ai

import (
	"context"

	"tgchatbot/internal/models"

	openai "github.com/sashabaranov/go-openai"
)

// Sampling constants for every completion request; they are configuration of
// the system, not tunable per call.
const (
	temperature = 0.7
	maxTokens   = 1000
)

// CompletionClient is the subset of the OpenAI client the orchestrator
// needs. *openai.Client satisfies it.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service produces assistant replies. It has no side effects of its own:
// persisting the exchange is the caller's responsibility, and only after a
// successful reply.
type Service struct {
	client   CompletionClient
	registry *Registry
}

// NewService builds the orchestrator around a completion client and the
// model registry it owns.
func NewService(client CompletionClient, registry *Registry) *Service {
	return &Service{client: client, registry: registry}
}

// Registry exposes the model registry for selection commands.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Respond sends history plus the new user message to the provider and
// returns the first choice's text. History entries are forwarded in
// chronological order, never reordered or deduplicated, with the user
// message appended last. Failures come back as *Error.
func (s *Service) Respond(ctx context.Context, history []models.Message, userMessage string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    roleFor(m.Role),
			Content: m.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.registry.Get(),
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func roleFor(role models.Role) string {
	if role == models.RoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}
