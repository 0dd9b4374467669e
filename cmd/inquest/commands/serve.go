package commands

import (
	"context"
	"fmt"
	"net/http"

	//nolint:gosec // We are using pprof for debugging
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/varenko/inquest/internal/apiserver"
	"github.com/varenko/inquest/internal/config"
	"github.com/varenko/inquest/internal/diagnosis"
	"github.com/varenko/inquest/internal/lifecycle"
	"github.com/varenko/inquest/internal/logging"
	"github.com/varenko/inquest/internal/tracing"
)

var (
	serveConfigPath string
	apiPort         int
	pprofEnabled    bool
	pprofPort       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Inquest diagnosis server",
	Long: `Start the Inquest server which accepts execution records over HTTP,
diagnoses them, and exposes the signature catalog, health checks, and
prometheus metrics. When a config file is given it is watched for
changes; a valid edit swaps the engine tuning without a restart.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "",
		"Path to the engine configuration YAML file; watched for changes when set")
	serveCmd.Flags().IntVar(&apiPort, "api-port", 0,
		"Port the API server listens on (overrides the config file)")
	serveCmd.Flags().BoolVar(&pprofEnabled, "pprof-enabled", false, "Enable pprof profiling server (default: false)")
	serveCmd.Flags().IntVar(&pprofPort, "pprof-port", 9999, "Port the pprof server listens on (default: 9999)")
}

// buildEngine assembles a diagnosis engine from a validated config. Each
// call gets a fresh cache, so a config reload never serves results scored
// under the previous tuning.
func buildEngine(cfg *config.Config) (*diagnosis.Engine, error) {
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}

	if cfg.Server.Cache.Enabled {
		cache, err := diagnosis.NewCache(cfg.Server.Cache.DiagnosisConfig(), logging.GetLogger("diagnosis.cache"))
		if err != nil {
			return nil, err
		}
		opts.Cache = cache
	}

	return diagnosis.New(opts), nil
}

// configWatcherComponent adapts the config file watcher to the lifecycle
// manager.
type configWatcherComponent struct {
	watcher *config.Watcher
}

func (c *configWatcherComponent) Start(ctx context.Context) error { return c.watcher.Start(ctx) }
func (c *configWatcherComponent) Stop(ctx context.Context) error  { return c.watcher.Stop() }
func (c *configWatcherComponent) Name() string                    { return "Config Watcher" }

func runServe(cmd *cobra.Command, args []string) {
	if err := setupLog(logLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}
	logger := logging.GetLogger("serve")

	cfg, err := loadConfig(serveConfigPath)
	HandleError(err, "Configuration error")
	if apiPort != 0 {
		cfg.Server.Port = apiPort
	}

	logger.Info("Starting Inquest v%s", Version)
	logger.Debug("Configuration loaded: port=%d cache=%v tracing=%v",
		cfg.Server.Port, cfg.Server.Cache.Enabled, cfg.Server.Tracing.Enabled)

	manager := lifecycle.NewManager()

	// Initialize tracing provider
	tracingProvider, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.Server.Tracing.Enabled,
		Endpoint:    cfg.Server.Tracing.Endpoint,
		TLSCAPath:   cfg.Server.Tracing.TLSCAPath,
		TLSInsecure: cfg.Server.Tracing.TLSInsecure,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing (continuing without tracing): %v", err)
		tracingProvider, _ = tracing.NewProvider(tracing.Config{})
	}
	if err := manager.Register(tracingProvider); err != nil {
		HandleError(err, "Tracing registration error")
	}

	// Start pprof server if enabled
	if pprofEnabled {
		go func() {
			pprofAddr := fmt.Sprintf(":%d", pprofPort)
			logger.Info("Starting pprof server on %s", pprofAddr)
			if err := http.ListenAndServe(pprofAddr, nil); err != nil { //nolint:gosec // We are using pprof for debugging
				logger.Error("pprof server failed: %v", err)
			}
		}()
	}

	engine, err := buildEngine(cfg)
	HandleError(err, "Engine initialization error")

	apiComponent := apiserver.New(cfg.Server.Port, engine, nil, tracingProvider)

	// Watch the config file when one was given. A valid edit rebuilds the
	// engine and swaps it into the running server; invalid edits keep the
	// previous tuning.
	if serveConfigPath != "" {
		watcher, err := config.NewWatcher(config.WatcherConfig{FilePath: serveConfigPath}, func(next *config.Config) error {
			nextEngine, err := buildEngine(next)
			if err != nil {
				return err
			}
			apiComponent.SetEngine(nextEngine)
			return nil
		})
		HandleError(err, "Config watcher error")

		if err := manager.Register(&configWatcherComponent{watcher: watcher}); err != nil {
			HandleError(err, "Config watcher registration error")
		}
	}

	if err := manager.Register(apiComponent, tracingProvider); err != nil {
		HandleError(err, "API server registration error")
	}

	logger.Info("All components registered")
	ctx, cancel := context.WithCancel(context.Background())
	if err := manager.Start(ctx); err != nil {
		cancel()
		HandleError(err, "Startup error")
	}

	logger.Info("Inquest started, accepting diagnosis requests on port %d", cfg.Server.Port)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received, gracefully shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}

	logger.Info("Shutdown complete")
}
