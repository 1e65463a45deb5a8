// Command enroller drives shift enrollment from the terminal: browse the
// catalogue, queue registration goals and run them against the portal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fenixctl/enroller/internal/app"
	"github.com/fenixctl/enroller/internal/config"
	"github.com/fenixctl/enroller/internal/logger"
)

const appName = "enroller"

// Set at build time with -ldflags "-X main.Version=...".
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	logLevel string
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Fenix shift enrollment automation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	cmd.AddCommand(
		degreesCmd(g),
		coursesCmd(g),
		goalsCmd(g),
		runCmd(g),
		hashPasswordCmd(),
		tokenCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

// setup loads configuration and builds the application for one command.
func (g *globals) setup(ctx context.Context) (*app.App, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	log := logger.Setup(level, cfg.LogFormat)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, log, err
	}
	a.Start(ctx)
	return a, log, nil
}
