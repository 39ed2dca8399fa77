package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/jmallory/streamchat/internal/config"
	"github.com/jmallory/streamchat/internal/model/chat"
)

const defaultSystemPrompt = "You are a helpful assistant."

// TokenStream yields reply fragments in generation order. Recv returns
// io.EOF once the reply is complete.
type TokenStream interface {
	Recv() (string, error)
	Close()
}

// Generator produces the assistant reply for a prompt plus recent history.
type Generator interface {
	Stream(ctx context.Context, history []chat.Message, prompt string) (TokenStream, error)
}

// Service generates replies through the configured chat model chain.
type Service struct {
	cfg   config.AIConfig
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the prompt/model chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{cfg: cfg, chain: runnable}, nil
}

// Stream runs the chain and returns the model's token stream.
func (s *Service) Stream(ctx context.Context, history []chat.Message, userPrompt string) (TokenStream, error) {
	input := map[string]any{
		"system":  s.systemPrompt(),
		"history": historyMessages(history, s.cfg.HistoryLimit),
		"query":   userPrompt,
	}

	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream chain output: %w", err)
	}

	return &modelStream{inner: stream}, nil
}

func (s *Service) systemPrompt() string {
	if s.cfg.SystemPromptFile == "" {
		return defaultSystemPrompt
	}
	data, err := os.ReadFile(s.cfg.SystemPromptFile)
	if err != nil {
		log.Printf("[ai] failed to read system prompt file: %v", err)
		return defaultSystemPrompt
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return defaultSystemPrompt
}

// historyMessages converts the most recent stored turns into model messages.
func historyMessages(history []chat.Message, limit int) []*schema.Message {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	converted := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case chat.RoleUser:
			converted = append(converted, schema.UserMessage(content))
		case chat.RoleAssistant:
			converted = append(converted, schema.AssistantMessage(content, nil))
		}
	}
	return converted
}

// modelStream adapts the chain's stream reader to TokenStream.
type modelStream struct {
	inner *schema.StreamReader[*schema.Message]
}

func (m *modelStream) Recv() (string, error) {
	for {
		chunk, err := m.inner.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		return chunk.Content, nil
	}
}

func (m *modelStream) Close() {
	m.inner.Close()
}
