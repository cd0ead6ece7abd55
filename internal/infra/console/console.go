// Package console runs the interactive chat loop on stdio.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

// Conversation is the slice of the dispatch engine the console needs.
type Conversation interface {
	ProcessQuery(ctx context.Context, query string) (string, error)
	GetResource(ctx context.Context, uri string) (string, error)
	ExecutePrompt(ctx context.Context, name string, args map[string]string) (string, error)
	ListPrompts() []domain.PromptDefinition
}

type Console struct {
	conv   Conversation
	in     io.Reader
	out    io.Writer
	logger *zap.Logger
}

type Options struct {
	In     io.Reader
	Out    io.Writer
	Logger *zap.Logger
}

func New(conv Conversation, opts Options) *Console {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Console{
		conv:   conv,
		in:     opts.In,
		out:    opts.Out,
		logger: opts.Logger.Named("console"),
	}
}

// Run reads lines until EOF, a quit command, or context cancellation.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, "MCP chat started. Type your queries, or:")
	fmt.Fprintln(c.out, "  @<uri>                 read a resource")
	fmt.Fprintln(c.out, "  /prompts               list available prompts")
	fmt.Fprintln(c.out, "  /prompt <name> [k=v]   execute a prompt")
	fmt.Fprintln(c.out, "  quit                   exit")

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fmt.Fprint(c.out, "\nQuery: ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") {
			return nil
		}

		if err := c.handle(ctx, line); err != nil {
			c.logger.Warn("input failed", zap.Error(err))
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

func (c *Console) handle(ctx context.Context, line string) error {
	switch {
	case strings.HasPrefix(line, "@"):
		text, err := c.conv.GetResource(ctx, strings.TrimSpace(line[1:]))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, text)
		return nil
	case line == "/prompts":
		c.printPrompts()
		return nil
	case strings.HasPrefix(line, "/prompt "):
		name, args, err := parsePromptCommand(line)
		if err != nil {
			return err
		}
		_, err = c.conv.ExecutePrompt(ctx, name, args)
		return err
	case strings.HasPrefix(line, "/"):
		return fmt.Errorf("%w: %s", domain.ErrInvalidCommand, line)
	default:
		_, err := c.conv.ProcessQuery(ctx, line)
		return err
	}
}

func (c *Console) printPrompts() {
	prompts := c.conv.ListPrompts()
	if len(prompts) == 0 {
		fmt.Fprintln(c.out, "No prompts available.")
		return
	}
	for _, p := range prompts {
		if p.Description != "" {
			fmt.Fprintf(c.out, "%s - %s\n", p.Name, p.Description)
		} else {
			fmt.Fprintln(c.out, p.Name)
		}
		for _, arg := range p.Arguments {
			marker := ""
			if arg.Required {
				marker = " (required)"
			}
			fmt.Fprintf(c.out, "  %s%s %s\n", arg.Name, marker, arg.Description)
		}
	}
}

func parsePromptCommand(line string) (string, map[string]string, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", nil, fmt.Errorf("%w: /prompt needs a name", domain.ErrInvalidCommand)
	}
	name := fields[1]
	args := make(map[string]string, len(fields)-2)
	for _, field := range fields[2:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return "", nil, fmt.Errorf("%w: prompt argument %q is not key=value", domain.ErrInvalidCommand, field)
		}
		args[key] = value
	}
	return name, args, nil
}
