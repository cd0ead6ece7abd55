// Package registry merges capabilities advertised by connected sessions
// into a single keyed lookup space.
package registry

import (
	"context"

	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

// Registry maps capability keys (tool names, prompt names, resource
// URIs — one shared namespace) to the session that owns them. It is
// populated once during the connect phase and read-only afterwards, so
// no locking is needed.
type Registry struct {
	keys    map[string]domain.Session
	tools   []domain.ToolDefinition
	prompts []domain.PromptDefinition
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		keys:   make(map[string]domain.Session),
		logger: logger.Named("registry"),
	}
}

// Register folds one session's discovered capabilities into the lookup
// space. A key registered by a later session silently overwrites an
// earlier mapping. Register never fails: a partial discovery result is
// registered as-is.
func (r *Registry) Register(session domain.Session, tools []domain.ToolDefinition, prompts []domain.PromptDefinition, resourceURIs []string) {
	for _, tool := range tools {
		if prev, ok := r.keys[tool.Name]; ok {
			r.logger.Debug("capability key overwritten",
				zap.String("key", tool.Name),
				zap.String("previous", prev.Name()),
				zap.String("server", session.Name()),
			)
		}
		r.keys[tool.Name] = session
		r.tools = append(r.tools, tool)
	}
	for _, prompt := range prompts {
		r.keys[prompt.Name] = session
		r.prompts = append(r.prompts, prompt)
	}
	for _, uri := range resourceURIs {
		r.keys[uri] = session
	}
	r.logger.Info("session registered",
		zap.String("server", session.Name()),
		zap.Int("tools", len(tools)),
		zap.Int("prompts", len(prompts)),
		zap.Int("resources", len(resourceURIs)),
	)
}

// Lookup resolves a capability key to its owning session.
func (r *Registry) Lookup(key string) (domain.Session, bool) {
	session, ok := r.keys[key]
	return session, ok
}

// Tools returns the merged tool list in discovery order across sessions.
func (r *Registry) Tools() []domain.ToolDefinition {
	out := make([]domain.ToolDefinition, len(r.tools))
	copy(out, r.tools)
	return out
}

// Prompts returns the merged prompt list in discovery order.
func (r *Registry) Prompts() []domain.PromptDefinition {
	out := make([]domain.PromptDefinition, len(r.prompts))
	copy(out, r.prompts)
	return out
}

// Keys returns every registered capability key. Iteration order is not
// deterministic.
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.keys))
	for key := range r.keys {
		out = append(out, key)
	}
	return out
}

// Discover queries one session for each capability class. A failure in
// one class is reported and does not block discovery of the others.
func Discover(ctx context.Context, session domain.Session, logger *zap.Logger) ([]domain.ToolDefinition, []domain.PromptDefinition, []string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("discovery").With(zap.String("server", session.Name()))

	tools, err := session.ListTools(ctx)
	if err != nil {
		log.Warn("tool discovery failed", zap.Error(err))
		tools = nil
	}

	prompts, err := session.ListPrompts(ctx)
	if err != nil {
		log.Warn("prompt discovery failed", zap.Error(err))
		prompts = nil
	}

	uris, err := session.ListResources(ctx)
	if err != nil {
		log.Warn("resource discovery failed", zap.Error(err))
		uris = nil
	}

	return tools, prompts, uris
}
