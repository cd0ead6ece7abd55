package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpchat/internal/domain"
)

// session adapts an SDK client session to the domain contract. Every
// operation is bounded by the configured call timeout.
type session struct {
	name    string
	cs      *mcp.ClientSession
	timeout time.Duration
}

func (s *session) Name() string {
	return s.name
}

func (s *session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *session) ListTools(ctx context.Context) ([]domain.ToolDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.cs.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	tools := make([]domain.ToolDefinition, 0, len(res.Tools))
	for _, tool := range res.Tools {
		tools = append(tools, domain.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return tools, nil
}

func (s *session) ListPrompts(ctx context.Context) ([]domain.PromptDefinition, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.cs.ListPrompts(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	prompts := make([]domain.PromptDefinition, 0, len(res.Prompts))
	for _, prompt := range res.Prompts {
		prompts = append(prompts, promptDefinition(prompt))
	}
	return prompts, nil
}

func (s *session) ListResources(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.cs.ListResources(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	uris := make([]string, 0, len(res.Resources))
	for _, resource := range res.Resources {
		uris = append(uris, resource.URI)
	}
	return uris, nil
}

func (s *session) CallTool(ctx context.Context, name string, args map[string]any) ([]domain.ContentFragment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}
	fragments := fragmentsFromContent(res.Content)
	if res.IsError {
		return nil, errors.New(joinFragments(fragments))
	}
	return fragments, nil
}

func (s *session) ReadResource(ctx context.Context, uri string) ([]domain.ContentFragment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", uri, err)
	}
	fragments := make([]domain.ContentFragment, 0, len(res.Contents))
	for _, contents := range res.Contents {
		fragments = append(fragments, domain.ContentFragment{Text: contents.Text})
	}
	return fragments, nil
}

func (s *session) GetPrompt(ctx context.Context, name string, args map[string]string) ([]domain.PromptMessage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.cs.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", name, err)
	}
	messages := make([]domain.PromptMessage, 0, len(res.Messages))
	for _, msg := range res.Messages {
		messages = append(messages, domain.PromptMessage{
			Role:    string(msg.Role),
			Content: promptContent(msg.Content),
		})
	}
	return messages, nil
}

func (s *session) Close() error {
	return s.cs.Close()
}

func promptDefinition(prompt *mcp.Prompt) domain.PromptDefinition {
	def := domain.PromptDefinition{
		Name:        prompt.Name,
		Description: prompt.Description,
	}
	for _, arg := range prompt.Arguments {
		def.Arguments = append(def.Arguments, domain.PromptArgument{
			Name:        arg.Name,
			Description: arg.Description,
			Required:    arg.Required,
		})
	}
	return def
}

// fragmentsFromContent keeps the text-bearing items, in order. Non-text
// content has no rendering here and is dropped.
func fragmentsFromContent(content []mcp.Content) []domain.ContentFragment {
	fragments := make([]domain.ContentFragment, 0, len(content))
	for _, item := range content {
		if text, ok := item.(*mcp.TextContent); ok {
			fragments = append(fragments, domain.ContentFragment{Text: text.Text})
		}
	}
	return fragments
}

func promptContent(content mcp.Content) domain.PromptContent {
	if text, ok := content.(*mcp.TextContent); ok {
		return domain.SinglePromptContent(domain.ContentFragment{Text: text.Text})
	}
	return domain.TextPromptContent("")
}

func joinFragments(fragments []domain.ContentFragment) string {
	var sb strings.Builder
	for _, fragment := range fragments {
		sb.WriteString(fragment.Text)
	}
	return sb.String()
}
