package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/lox/holdemtable/internal/config"
)

// version is set by ldflags during build
var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Config   string `short:"c" default:"holdem.hcl" type:"path" help:"HCL configuration file (defaults apply when missing)"`
	LogLevel string `help:"Log level (debug|info|warn|error), overrides the config file"`
}

// load reads the configuration and builds the logger every command uses.
func (g *Globals) load() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, nil, err
	}
	if g.LogLevel != "" {
		level, err := log.ParseLevel(g.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("--log-level: %w", err)
		}
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config %s: %w", g.Config, err)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           cfg.LogLevel,
	})
	return cfg, logger, nil
}

type CLI struct {
	Globals

	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Serve    ServeCmd         `cmd:"" help:"Run the shared document server"`
	Play     PlayCmd          `cmd:"" help:"Sit at a table on a document server"`
	Simulate SimulateCmd      `cmd:"" help:"Play scripted players against each other"`
	Verify   VerifyCmd        `cmd:"" help:"Recompute a deal from its seed and check it"`
	Watch    WatchCmd         `cmd:"" help:"Follow a table as a spectator"`
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal, shutting down gracefully", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("holdem"),
		kong.Description("Texas Hold'em over a shared document store"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
