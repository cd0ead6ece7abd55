// Package transport establishes MCP client sessions over stdio or
// streamable HTTP and adapts them to the domain session contract.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

const (
	clientName    = "mcpchat"
	clientVersion = "0.1.0"
)

type Connector struct {
	impl        *mcp.Implementation
	callTimeout time.Duration
	logger      *zap.Logger
}

type ConnectorOptions struct {
	CallTimeout time.Duration
	Logger      *zap.Logger
}

func NewConnector(opts ConnectorOptions) *Connector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultCallTimeoutSeconds) * time.Second
	}
	return &Connector{
		impl:        &mcp.Implementation{Name: clientName, Version: clientVersion},
		callTimeout: timeout,
		logger:      logger.Named("connector"),
	}
}

// Connect establishes one session. The returned session owns the
// underlying connection; callers release it with Close.
func (c *Connector) Connect(ctx context.Context, spec domain.ServerSpec) (domain.Session, error) {
	transport, err := c.buildTransport(spec)
	if err != nil {
		return nil, domain.Wrap(domain.CodeFailedPrecond, "connect", err)
	}

	client := mcp.NewClient(c.impl, nil)
	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, domain.E(domain.CodeUnavailable, "connect", fmt.Sprintf("server %s", spec.Name), err)
	}
	c.logger.Info("session established", zap.String("server", spec.Name), zap.String("transport", string(domain.NormalizeTransport(spec.Transport))))

	return &session{
		name:    spec.Name,
		cs:      cs,
		timeout: c.callTimeout,
	}, nil
}

func (c *Connector) buildTransport(spec domain.ServerSpec) (mcp.Transport, error) {
	switch domain.NormalizeTransport(spec.Transport) {
	case domain.TransportStdio:
		if spec.Command == "" {
			return nil, fmt.Errorf("%w: command is required for stdio transport", domain.ErrInvalidCommand)
		}
		cmd := exec.Command(spec.Command, spec.Args...)
		if spec.Cwd != "" {
			cmd.Dir = spec.Cwd
		}
		cmd.Env = append(os.Environ(), formatEnv(spec.Env)...)
		return &mcp.CommandTransport{Command: cmd}, nil
	case domain.TransportStreamableHTTP:
		if spec.HTTP == nil || spec.HTTP.Endpoint == "" {
			return nil, fmt.Errorf("%w: http.endpoint is required for streamable_http transport", domain.ErrInvalidCommand)
		}
		return &mcp.StreamableClientTransport{
			Endpoint:   spec.HTTP.Endpoint,
			HTTPClient: httpClientFor(spec.HTTP.Headers),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", spec.Transport)
	}
}

func formatEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

func httpClientFor(headers map[string]string) *http.Client {
	if len(headers) == 0 {
		return nil
	}
	return &http.Client{
		Transport: &headerRoundTripper{
			headers: headers,
			base:    http.DefaultTransport,
		},
	}
}

type headerRoundTripper struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	for k, v := range t.headers {
		cloned.Header.Set(k, v)
	}
	return t.base.RoundTrip(cloned)
}
