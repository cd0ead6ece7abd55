package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mcpchat/internal/domain"
)

// GetResource reads a resource by URI. An unregistered URI with a
// recognizable scheme falls back to any registered key sharing that
// scheme prefix; the first match in iteration order wins.
func (d *Driver) GetResource(ctx context.Context, uri string) (string, error) {
	session, ok := d.registry.Lookup(uri)
	if !ok {
		if prefix := schemePrefix(uri); prefix != "" {
			for _, key := range d.registry.Keys() {
				if strings.HasPrefix(key, prefix) {
					session, _ = d.registry.Lookup(key)
					break
				}
			}
		}
	}
	if session == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrResourceNotFound, uri)
	}

	started := time.Now()
	fragments, err := session.ReadResource(ctx, uri)
	d.metrics.ObserveResourceRead(time.Since(started), err)
	if err != nil {
		return "", err
	}
	if len(fragments) == 0 {
		return "", domain.ErrNoContent
	}
	return fragments[0].Text, nil
}

// ExecutePrompt fetches a prompt, extracts the text of its first
// message, and feeds it into the dispatch loop as a new user query.
func (d *Driver) ExecutePrompt(ctx context.Context, name string, args map[string]string) (string, error) {
	session, ok := d.registry.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrPromptNotFound, name)
	}

	started := time.Now()
	messages, err := session.GetPrompt(ctx, name, args)
	d.metrics.ObservePromptFetch(time.Since(started), err)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "", domain.ErrNoContent
	}

	return d.ProcessQuery(ctx, messages[0].Content.Text())
}

// ListPrompts enumerates the registered prompt descriptors without
// touching any session.
func (d *Driver) ListPrompts() []domain.PromptDefinition {
	return d.registry.Prompts()
}

// schemePrefix returns the "scheme://" prefix of a URI, or empty when
// the URI carries none.
func schemePrefix(uri string) string {
	idx := strings.Index(uri, "://")
	if idx <= 0 {
		return ""
	}
	return uri[:idx+len("://")]
}
