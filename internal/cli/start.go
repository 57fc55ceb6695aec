package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/hulrap/TradingBot-sub016/internal/app"
	"github.com/hulrap/TradingBot-sub016/internal/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sandwich engine",
	Long: `Start the sandwich engine. It connects to the pending-transaction
feed and the configured relays, then runs continuously until stopped.`,
	RunE: runStart,
}

var startPidFile string

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().Bool("paper", false, "paper trading mode (simulate only, never submit)")
	startCmd.Flags().StringVar(&startPidFile, "pid-file", "./sandwich-engine.pid", "path to PID file")

	viper.BindPFlag("engine.paper_trading", startCmd.Flags().Lookup("paper"))
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if viper.GetBool("debug") {
		fmt.Printf("Configuration loaded: %+v\n", cfg)
	}

	if err := writePidFile(startPidFile); err != nil {
		return err
	}
	defer os.Remove(startPidFile)

	// Create application with dependency injection
	engine := fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
		),
		app.Module,
		fx.Invoke(func(lc fx.Lifecycle, application *app.Application) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return application.Start(ctx)
				},
				OnStop: func(ctx context.Context) error {
					return application.Stop(ctx)
				},
			})
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutdown signal received, stopping engine...")
		cancel()
	}()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Wait for shutdown
	<-ctx.Done()

	if err := engine.Stop(context.Background()); err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
	}

	fmt.Println("Sandwich engine stopped")
	return nil
}

func writePidFile(path string) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}
