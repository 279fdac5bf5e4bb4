// Command screenspec annotates captured screens and publishes them as UI
// specification documents.
//
//	screenspec project create "Checkout flow"
//	screenspec capture <project-id> cart.png --url https://shop.test/cart
//	screenspec annotate <screen-id> --tool arrow --from 10,10 --to 200,120
//	screenspec edit <screen-id>
//	screenspec export <project-id> -o checkout.pdf
//
// Configuration is read from screenspec.yaml or $SCREENSPEC_CONFIG.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"screenspec/internal/config"
	"screenspec/internal/logging"
	"screenspec/internal/storage"
)

var version = "dev"

// env is what every command needs once flags are parsed.
type env struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	repo       storage.Repository
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	e := &env{}
	if err := buildRootCmd(e).Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "screenspec",
		Short:        "Annotate screenshots and export UI specifications",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return e.close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "config file (default screenspec.yaml or $SCREENSPEC_CONFIG)")

	rootCmd.AddCommand(
		buildProjectCmd(e),
		buildCaptureCmd(e),
		buildListCmd(e),
		buildAnnotateCmd(e),
		buildUndoCmd(e),
		buildFlattenCmd(e),
		buildEditCmd(e),
		buildExportCmd(e),
		buildShareCmd(e),
		buildFollowCmd(e),
		buildDiscoverCmd(e),
	)
	return rootCmd
}

func (e *env) setup() error {
	cfg, err := config.Load(config.Path(e.configPath))
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	e.cfg, e.logger = cfg, logger
	return nil
}

// store opens the configured repository on first use.
func (e *env) store() (storage.Repository, error) {
	if e.repo != nil {
		return e.repo, nil
	}
	repo, err := storage.Open(e.cfg.Storage, e.logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	e.repo = repo
	return repo, nil
}

func (e *env) close() error {
	if e.repo == nil {
		return nil
	}
	err := e.repo.Close()
	e.repo = nil
	return err
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
