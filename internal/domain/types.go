package domain

import (
	"context"
	"errors"
	"time"
)

// TransportKind identifies how a server session is established.
type TransportKind string

const (
	TransportStdio          TransportKind = "stdio"
	TransportStreamableHTTP TransportKind = "streamable_http"
)

// NormalizeTransport maps an empty transport to the default.
func NormalizeTransport(kind TransportKind) TransportKind {
	if kind == "" {
		return TransportStdio
	}
	return kind
}

// ServerSpec describes how to reach one capability server.
type ServerSpec struct {
	Name      string
	Transport TransportKind
	Command   string
	Args      []string
	Env       map[string]string
	Cwd       string
	HTTP      *StreamableHTTPConfig
}

// StreamableHTTPConfig configures a streamable HTTP connection.
type StreamableHTTPConfig struct {
	Endpoint string
	Headers  map[string]string
}

// ModelConfig configures the chat model backend.
type ModelConfig struct {
	Provider     string
	Model        string
	APIKey       string
	APIKeyEnvVar string
	BaseURL      string
}

// RuntimeConfig carries tunables that apply across servers.
type RuntimeConfig struct {
	CallTimeoutSeconds int
	Observability      ObservabilityConfig
}

// ObservabilityConfig configures the optional metrics endpoint.
type ObservabilityConfig struct {
	ListenAddress string
}

// Config is the loaded configuration document.
type Config struct {
	Servers map[string]ServerSpec
	Model   ModelConfig
	Runtime RuntimeConfig
}

const (
	DefaultCallTimeoutSeconds = 120
	DefaultModelProvider      = "openai"
)

// CallTimeout returns the per-operation session timeout.
func (r RuntimeConfig) CallTimeout() time.Duration {
	seconds := r.CallTimeoutSeconds
	if seconds <= 0 {
		seconds = DefaultCallTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// ToolDefinition describes one discovered tool. InputSchema is the
// loosely typed JSON Schema document as advertised by the server; it is
// interpreted at adaptation time and validated only when invoking.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema any
}

// PromptArgument describes one prompt argument.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// PromptDefinition describes one discovered prompt.
type PromptDefinition struct {
	Name        string
	Description string
	Arguments   []PromptArgument
}

// ContentFragment is one unit of text content returned by a session
// operation (tool call, resource read, prompt message).
type ContentFragment struct {
	Text string
}

// PromptMessage is one message of a fetched prompt.
type PromptMessage struct {
	Role    string
	Content PromptContent
}

// Session is one established connection to a capability server. The
// registry holds non-owning references; lifetime is managed by whoever
// connected it.
type Session interface {
	Name() string
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	ListPrompts(ctx context.Context) ([]PromptDefinition, error)
	ListResources(ctx context.Context) ([]string, error)
	CallTool(ctx context.Context, name string, args map[string]any) ([]ContentFragment, error)
	ReadResource(ctx context.Context, uri string) ([]ContentFragment, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) ([]PromptMessage, error)
	Close() error
}

// Metrics records orchestrator observations. Implementations must be
// safe for sequential use; the driver never calls them concurrently.
type Metrics interface {
	ObserveModelTurn(model string, d time.Duration, err error)
	ObserveToolCall(tool string, d time.Duration, err error)
	ObserveResourceRead(d time.Duration, err error)
	ObservePromptFetch(d time.Duration, err error)
}

var ErrToolNotFound = errors.New("tool not found")
var ErrResourceNotFound = errors.New("resource not found")
var ErrPromptNotFound = errors.New("prompt not found")
var ErrNoContent = errors.New("no content available")
var ErrInvalidCommand = errors.New("invalid command")
