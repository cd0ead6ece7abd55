package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
	"mcpchat/internal/infra/chatmodel"
	"mcpchat/internal/infra/registry"
)

type fakeModel struct {
	responses []*schema.Message
	turns     [][]*schema.Message
	bound     []*schema.ToolInfo
}

func (f *fakeModel) Generate(_ context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	snapshot := make([]*schema.Message, len(messages))
	copy(snapshot, messages)
	f.turns = append(f.turns, snapshot)

	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next, nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (f *fakeModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	f.bound = tools
	return f, nil
}

type toolCallRecord struct {
	name string
	args map[string]any
}

type fakeSession struct {
	name string

	toolResults map[string][]domain.ContentFragment
	toolErr     error
	calls       []toolCallRecord

	resources   map[string][]domain.ContentFragment
	resourceErr error
	reads       []string

	promptMessages []domain.PromptMessage
	promptErr      error
	promptArgs     map[string]string
}

func (f *fakeSession) Name() string { return f.name }

func (f *fakeSession) ListTools(context.Context) ([]domain.ToolDefinition, error) {
	return nil, nil
}

func (f *fakeSession) ListPrompts(context.Context) ([]domain.PromptDefinition, error) {
	return nil, nil
}

func (f *fakeSession) ListResources(context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeSession) CallTool(_ context.Context, name string, args map[string]any) ([]domain.ContentFragment, error) {
	f.calls = append(f.calls, toolCallRecord{name: name, args: args})
	if f.toolErr != nil {
		return nil, f.toolErr
	}
	return f.toolResults[name], nil
}

func (f *fakeSession) ReadResource(_ context.Context, uri string) ([]domain.ContentFragment, error) {
	f.reads = append(f.reads, uri)
	if f.resourceErr != nil {
		return nil, f.resourceErr
	}
	fragments, ok := f.resources[uri]
	if !ok {
		return nil, fmt.Errorf("unknown resource %s", uri)
	}
	return fragments, nil
}

func (f *fakeSession) GetPrompt(_ context.Context, _ string, args map[string]string) ([]domain.PromptMessage, error) {
	f.promptArgs = args
	if f.promptErr != nil {
		return nil, f.promptErr
	}
	return f.promptMessages, nil
}

func (f *fakeSession) Close() error { return nil }

func toolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{
		ID: id,
		Function: schema.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func newTestDriver(t *testing.T, chat *fakeModel, reg *registry.Registry, out *bytes.Buffer) *Driver {
	t.Helper()
	toolSet := chatmodel.NewToolSet(reg.Tools(), zap.NewNop())
	d, err := New(reg, chat, toolSet, Options{Out: out, Logger: zap.NewNop()})
	require.NoError(t, err)
	return d
}

func TestProcessQueryNoToolCalls(t *testing.T) {
	chat := &fakeModel{responses: []*schema.Message{
		schema.AssistantMessage("Just an answer.", nil),
	}}
	reg := registry.New(zap.NewNop())
	var out bytes.Buffer

	d := newTestDriver(t, chat, reg, &out)

	final, err := d.ProcessQuery(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "Just an answer.", final)
	require.Len(t, chat.turns, 1)
	require.Contains(t, out.String(), "Just an answer.")
}

func TestProcessQueryToolCallRoundTrip(t *testing.T) {
	session := &fakeSession{
		name: "calc",
		toolResults: map[string][]domain.ContentFragment{
			"add": {{Text: "5"}},
		},
	}
	reg := registry.New(zap.NewNop())
	reg.Register(session, []domain.ToolDefinition{{Name: "add"}}, nil, nil)

	chat := &fakeModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			toolCall("call-1", "add", `{"a":2,"b":3}`),
		}),
		schema.AssistantMessage("The answer is 5.", nil),
	}}
	var out bytes.Buffer

	d := newTestDriver(t, chat, reg, &out)

	final, err := d.ProcessQuery(context.Background(), "add 2 and 3")
	require.NoError(t, err)
	require.Equal(t, "The answer is 5.", final)

	require.Len(t, session.calls, 1)
	require.Equal(t, "add", session.calls[0].name)
	require.Equal(t, map[string]any{"a": float64(2), "b": float64(3)}, session.calls[0].args)

	// Second model turn sees user, assistant, and tool messages.
	require.Len(t, chat.turns, 2)
	transcript := chat.turns[1]
	require.Len(t, transcript, 3)
	require.Equal(t, schema.User, transcript[0].Role)
	require.Equal(t, schema.Assistant, transcript[1].Role)
	require.Equal(t, schema.Tool, transcript[2].Role)
	require.Equal(t, "5", transcript[2].Content)
	require.Equal(t, "call-1", transcript[2].ToolCallID)
}

func TestProcessQueryBatchOrderPreserved(t *testing.T) {
	session := &fakeSession{
		name: "calc",
		toolResults: map[string][]domain.ContentFragment{
			"first":  {{Text: "one"}},
			"second": {{Text: "two"}},
		},
	}
	reg := registry.New(zap.NewNop())
	reg.Register(session, []domain.ToolDefinition{{Name: "first"}, {Name: "second"}}, nil, nil)

	chat := &fakeModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			toolCall("c1", "first", `{}`),
			toolCall("c2", "second", `{}`),
		}),
		schema.AssistantMessage("done", nil),
	}}
	var out bytes.Buffer

	d := newTestDriver(t, chat, reg, &out)

	final, err := d.ProcessQuery(context.Background(), "do both")
	require.NoError(t, err)
	require.Equal(t, "done", final)

	require.Len(t, session.calls, 2)
	require.Equal(t, "first", session.calls[0].name)
	require.Equal(t, "second", session.calls[1].name)

	// One tool message per call, in request order.
	transcript := chat.turns[1]
	require.Len(t, transcript, 4)
	require.Equal(t, "one", transcript[2].Content)
	require.Equal(t, "two", transcript[3].Content)
}

func TestProcessQueryMissingToolAbortsBatchAndLoopsBack(t *testing.T) {
	session := &fakeSession{
		name: "calc",
		toolResults: map[string][]domain.ContentFragment{
			"known": {{Text: "ok"}},
		},
	}
	reg := registry.New(zap.NewNop())
	reg.Register(session, []domain.ToolDefinition{{Name: "known"}}, nil, nil)

	chat := &fakeModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			toolCall("c1", "known", `{}`),
			toolCall("c2", "ghost", `{}`),
			toolCall("c3", "known", `{}`),
		}),
		schema.AssistantMessage("recovered", nil),
	}}
	var out bytes.Buffer

	d := newTestDriver(t, chat, reg, &out)

	final, err := d.ProcessQuery(context.Background(), "mixed batch")
	require.NoError(t, err)
	require.Equal(t, "recovered", final)

	// The unresolvable name abandons the rest of the batch but the
	// conversation still loops back to the model.
	require.Len(t, session.calls, 1)
	require.Len(t, chat.turns, 2)
	require.Contains(t, out.String(), `Tool "ghost" not found.`)
}

func TestProcessQueryInvocationErrorEndsConversation(t *testing.T) {
	session := &fakeSession{
		name:    "calc",
		toolErr: errors.New("backend exploded"),
	}
	reg := registry.New(zap.NewNop())
	reg.Register(session, []domain.ToolDefinition{{Name: "add"}}, nil, nil)

	chat := &fakeModel{responses: []*schema.Message{
		schema.AssistantMessage("working on it", []schema.ToolCall{
			toolCall("c1", "add", `{}`),
		}),
	}}
	var out bytes.Buffer

	d := newTestDriver(t, chat, reg, &out)

	final, err := d.ProcessQuery(context.Background(), "add")
	require.NoError(t, err)
	require.Equal(t, "working on it", final)

	// No second model turn after an invocation failure.
	require.Len(t, chat.turns, 1)
	require.Contains(t, out.String(), "backend exploded")
}

func TestProcessQueryBadArgumentsEndConversation(t *testing.T) {
	session := &fakeSession{name: "calc"}
	reg := registry.New(zap.NewNop())
	reg.Register(session, []domain.ToolDefinition{{Name: "add"}}, nil, nil)

	chat := &fakeModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			toolCall("c1", "add", `{"a": not json`),
		}),
	}}
	var out bytes.Buffer

	d := newTestDriver(t, chat, reg, &out)

	final, err := d.ProcessQuery(context.Background(), "add")
	require.NoError(t, err)
	require.Equal(t, "", final)
	require.Empty(t, session.calls)
	require.Contains(t, out.String(), "Error calling tool")
}

func TestProcessQueryValidationFailureEndsConversation(t *testing.T) {
	session := &fakeSession{name: "calc"}
	reg := registry.New(zap.NewNop())
	reg.Register(session, []domain.ToolDefinition{{
		Name: "add",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
			},
			"required": []any{"a"},
		},
	}}, nil, nil)

	chat := &fakeModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			toolCall("c1", "add", `{"a":"not a number"}`),
		}),
	}}
	var out bytes.Buffer

	d := newTestDriver(t, chat, reg, &out)

	_, err := d.ProcessQuery(context.Background(), "add")
	require.NoError(t, err)
	require.Empty(t, session.calls)
	require.Len(t, chat.turns, 1)
	require.Contains(t, out.String(), "Error calling tool")
}

func TestProcessQueryModelErrorPropagates(t *testing.T) {
	chat := &fakeModel{}
	reg := registry.New(zap.NewNop())
	var out bytes.Buffer

	d := newTestDriver(t, chat, reg, &out)

	_, err := d.ProcessQuery(context.Background(), "anything")
	require.Error(t, err)
}

func TestNewBindsToolsToModel(t *testing.T) {
	session := &fakeSession{name: "calc"}
	reg := registry.New(zap.NewNop())
	reg.Register(session, []domain.ToolDefinition{{Name: "add"}, {Name: "sub"}}, nil, nil)

	chat := &fakeModel{}
	toolSet := chatmodel.NewToolSet(reg.Tools(), zap.NewNop())
	_, err := New(reg, chat, toolSet, Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	require.Len(t, chat.bound, 2)
}
