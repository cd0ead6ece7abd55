package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidateConfigReportsSummary(t *testing.T) {
	path := writeConfig(t, `
servers:
  calc:
    command: calc-server
model:
  model: gpt-4o
`)

	var out bytes.Buffer
	err := New(zap.NewNop()).ValidateConfig(path, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "1 server(s)")
	require.Contains(t, out.String(), "gpt-4o")
}

func TestValidateConfigRejectsBrokenConfig(t *testing.T) {
	path := writeConfig(t, `
servers:
  calc: {}
model: {}
`)

	var out bytes.Buffer
	err := New(zap.NewNop()).ValidateConfig(path, &out)
	require.Error(t, err)
}

func TestRunFailsFastOnBadConfig(t *testing.T) {
	err := New(zap.NewNop()).Run(context.Background(), RunConfig{
		ConfigPath: filepath.Join(t.TempDir(), "absent.yaml"),
		In:         strings.NewReader(""),
		Out:        &bytes.Buffer{},
	})
	require.Error(t, err)
}

func TestRunSkipsUnreachableServers(t *testing.T) {
	// The configured command does not exist, so the connection fails;
	// the run continues to the console, which sees EOF immediately.
	path := writeConfig(t, `
servers:
  ghost:
    command: /nonexistent/mcp-server-binary
model:
  model: llama3
  baseURL: http://localhost:11434/v1
`)

	var out bytes.Buffer
	err := New(zap.NewNop()).Run(context.Background(), RunConfig{
		ConfigPath: path,
		In:         strings.NewReader(""),
		Out:        &out,
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), `Failed to connect to server "ghost"`)
}
