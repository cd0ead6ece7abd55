// Package driver runs the conversation between the chat model and the
// capability registry: model turns alternate with tool invocations
// until the model produces a turn with no tool calls.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
	"mcpchat/internal/infra/chatmodel"
	"mcpchat/internal/infra/registry"
)

type Driver struct {
	registry *registry.Registry
	model    model.ToolCallingChatModel
	tools    *chatmodel.ToolSet
	out      io.Writer
	logger   *zap.Logger
	metrics  domain.Metrics
	name     string
}

type Options struct {
	Out     io.Writer
	Logger  *zap.Logger
	Metrics domain.Metrics
	// ModelName labels metrics observations.
	ModelName string
}

// New binds the full adapted tool list to the chat model. The registry
// is read-only from here on; the same tool set is offered on every
// model turn.
func New(reg *registry.Registry, chatModel model.ToolCallingChatModel, tools *chatmodel.ToolSet, opts Options) (*Driver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	bound := chatModel
	if tools.Len() > 0 {
		var err error
		bound, err = chatModel.WithTools(tools.Infos())
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
	}

	return &Driver{
		registry: reg,
		model:    bound,
		tools:    tools,
		out:      out,
		logger:   logger.Named("driver"),
		metrics:  metrics,
		name:     opts.ModelName,
	}, nil
}

// ProcessQuery drives one conversation to termination and returns the
// final assistant content. The transcript lives only for this call.
func (d *Driver) ProcessQuery(ctx context.Context, query string) (string, error) {
	log := d.logger.With(zap.String("query_id", uuid.NewString()))
	messages := []*schema.Message{schema.UserMessage(query)}

	var final string
	for {
		started := time.Now()
		response, err := d.model.Generate(ctx, messages)
		d.metrics.ObserveModelTurn(d.name, time.Since(started), err)
		if err != nil {
			return "", fmt.Errorf("model turn: %w", err)
		}

		final = response.Content
		if response.Content != "" {
			fmt.Fprintln(d.out, response.Content)
		}
		messages = append(messages, schema.AssistantMessage(response.Content, response.ToolCalls))

		if len(response.ToolCalls) == 0 {
			return final, nil
		}
		log.Debug("tool calls requested", zap.Int("count", len(response.ToolCalls)))
		if !d.runToolCalls(ctx, log, &messages, response.ToolCalls) {
			return final, nil
		}
	}
}

// runToolCalls processes one model turn's tool-call batch strictly in
// request order. It reports whether the conversation should loop back
// for another model turn.
//
// Two failure paths are deliberately distinct: an unresolvable tool name
// aborts the remaining calls in the batch but the conversation loops
// back to the model, while an invocation error ends tool processing for
// the turn and terminates the conversation. Do not merge them.
func (d *Driver) runToolCalls(ctx context.Context, log *zap.Logger, messages *[]*schema.Message, calls []schema.ToolCall) bool {
	for _, call := range calls {
		name := call.Function.Name

		session, ok := d.registry.Lookup(name)
		if !ok {
			fmt.Fprintf(d.out, "Tool %q not found.\n", name)
			log.Warn("tool not found, aborting remaining calls", zap.String("tool", name))
			// Remaining calls in this batch are abandoned.
			break
		}

		var args map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				d.reportInvocationError(log, name, fmt.Errorf("decode arguments: %w", err))
				return false
			}
		}
		if err := d.tools.Validate(name, args); err != nil {
			d.reportInvocationError(log, name, err)
			return false
		}

		fmt.Fprintf(d.out, "Calling tool %s\n", name)
		started := time.Now()
		fragments, err := session.CallTool(ctx, name, args)
		d.metrics.ObserveToolCall(name, time.Since(started), err)
		if err != nil {
			d.reportInvocationError(log, name, err)
			return false
		}

		result := joinFragments(fragments)
		fmt.Fprintf(d.out, "Tool result: %s\n", result)
		*messages = append(*messages, schema.ToolMessage(result, call.ID))
	}
	return true
}

func (d *Driver) reportInvocationError(log *zap.Logger, tool string, err error) {
	fmt.Fprintf(d.out, "Error calling tool %q: %v\n", tool, err)
	log.Warn("tool invocation failed", zap.String("tool", tool), zap.Error(err))
}

func joinFragments(fragments []domain.ContentFragment) string {
	var sb strings.Builder
	for _, fragment := range fragments {
		sb.WriteString(fragment.Text)
	}
	return sb.String()
}

type nopMetrics struct{}

func (nopMetrics) ObserveModelTurn(string, time.Duration, error) {}
func (nopMetrics) ObserveToolCall(string, time.Duration, error)  {}
func (nopMetrics) ObserveResourceRead(time.Duration, error)      {}
func (nopMetrics) ObservePromptFetch(time.Duration, error)       {}
