// Package app wires configuration, server sessions, the chat model, and
// the interactive console into a running orchestrator.
package app

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
	"mcpchat/internal/infra/catalog"
	"mcpchat/internal/infra/chatmodel"
	"mcpchat/internal/infra/console"
	"mcpchat/internal/infra/driver"
	"mcpchat/internal/infra/registry"
	"mcpchat/internal/infra/telemetry"
	"mcpchat/internal/infra/transport"
)

type App struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger}
}

type RunConfig struct {
	ConfigPath string
	In         io.Reader
	Out        io.Writer
}

// Run connects every configured server, registers its capabilities, and
// hands control to the console loop. All sessions are released before
// Run returns, whatever the exit path.
func (a *App) Run(ctx context.Context, rc RunConfig) error {
	cfg, err := catalog.NewLoader(a.logger).Load(rc.ConfigPath)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(promReg)
	if addr := cfg.Runtime.Observability.ListenAddress; addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		telemetry.ServeMetrics(metricsCtx, addr, promReg, a.logger)
	}

	connector := transport.NewConnector(transport.ConnectorOptions{
		CallTimeout: cfg.Runtime.CallTimeout(),
		Logger:      a.logger,
	})
	reg := registry.New(a.logger)

	var sessions []domain.Session
	defer func() {
		for _, s := range sessions {
			if err := s.Close(); err != nil {
				a.logger.Warn("session close failed",
					zap.String("server", s.Name()), zap.Error(err))
			}
		}
	}()

	for _, name := range sortedServerNames(cfg.Servers) {
		spec := cfg.Servers[name]
		session, err := connector.Connect(ctx, spec)
		if err != nil {
			a.logger.Warn("server connection failed",
				zap.String("server", name), zap.Error(err))
			fmt.Fprintf(rc.Out, "Failed to connect to server %q: %v\n", name, err)
			continue
		}
		sessions = append(sessions, session)

		tools, prompts, resourceURIs := registry.Discover(ctx, session, a.logger)
		reg.Register(session, tools, prompts, resourceURIs)
	}

	chatModel, err := chatmodel.New(ctx, cfg.Model)
	if err != nil {
		return err
	}

	toolSet := chatmodel.NewToolSet(reg.Tools(), a.logger)
	engine, err := driver.New(reg, chatModel, toolSet, driver.Options{
		Out:       rc.Out,
		Logger:    a.logger,
		Metrics:   metrics,
		ModelName: cfg.Model.Model,
	})
	if err != nil {
		return err
	}

	return console.New(engine, console.Options{
		In:     rc.In,
		Out:    rc.Out,
		Logger: a.logger,
	}).Run(ctx)
}

// ValidateConfig loads the configuration and reports the server count on
// success.
func (a *App) ValidateConfig(path string, out io.Writer) error {
	cfg, err := catalog.NewLoader(a.logger).Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Configuration valid: %d server(s), model %s\n",
		len(cfg.Servers), cfg.Model.Model)
	return nil
}

func sortedServerNames(servers map[string]domain.ServerSpec) []string {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
