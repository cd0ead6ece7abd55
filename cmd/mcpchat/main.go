package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcpchat/internal/app"
)

type chatOptions struct {
	configPath string
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	opts := chatOptions{
		configPath: "mcpchat.yaml",
	}

	root := &cobra.Command{
		Use:   "mcpchat",
		Short: "Interactive LLM chat over aggregated MCP servers",
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "path to configuration file")

	root.AddCommand(
		newChatCmd(logger, &opts),
		newValidateCmd(logger, &opts),
	)

	return root
}

func newChatCmd(logger *zap.Logger, opts *chatOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect to the configured servers and start the chat loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application := app.New(logger)
			return application.Run(ctx, app.RunConfig{
				ConfigPath: opts.configPath,
				In:         os.Stdin,
				Out:        os.Stdout,
			})
		},
	}

	return cmd
}

func newValidateCmd(logger *zap.Logger, opts *chatOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration without connecting to servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			application := app.New(logger)
			return application.ValidateConfig(opts.configPath, os.Stdout)
		},
	}

	return cmd
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
