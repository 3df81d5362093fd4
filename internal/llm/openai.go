package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// Config selects the hosted model endpoint.  BaseURL may point at any
// OpenAI-compatible completion service; empty means the default API host.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIClient creates streaming conversations against the chat completion
// API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs the client.  Credential validation happens at
// first use; config-level checks belong to the config package.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
	}
}

// NewConversation opens a chat handle seeded with the system instruction.
func (c *OpenAIClient) NewConversation(systemInstruction string) Conversation {
	return &openAIConversation{
		client: c.client,
		model:  c.model,
		messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
		},
	}
}

// openAIConversation accumulates the turn history so each Send carries the
// full context.  The session layer serializes turns; the mutex only protects
// against misuse.
type openAIConversation struct {
	client *openai.Client
	model  string

	mu       sync.Mutex
	messages []openai.ChatCompletionMessage
}

func (c *openAIConversation) Send(ctx context.Context, prompt string) (Stream, error) {
	if c.client == nil {
		return nil, errors.New("openai client not initialized")
	}

	c.mu.Lock()
	c.messages = append(c.messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	msgs := make([]openai.ChatCompletionMessage, len(c.messages))
	copy(msgs, c.messages)
	c.mu.Unlock()

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}
	return &openAIStream{conv: c, stream: stream}, nil
}

// appendAssistant records the completed reply so the next turn sees it.
func (c *openAIConversation) appendAssistant(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: content,
	})
}

type openAIStream struct {
	conv   *openAIConversation
	stream *openai.ChatCompletionStream
	buf    strings.Builder
	done   bool
}

func (s *openAIStream) Recv() (string, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) && !s.done {
			s.done = true
			s.conv.appendAssistant(s.buf.String())
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	chunk := resp.Choices[0].Delta.Content
	s.buf.WriteString(chunk)
	return chunk, nil
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
