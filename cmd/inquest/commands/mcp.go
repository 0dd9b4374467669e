package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/varenko/inquest/internal/logging"
	"github.com/varenko/inquest/internal/mcp"
)

var (
	mcpConfigPath   string
	httpAddr        string
	transportType   string
	mcpEndpointPath string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol (MCP) server that exposes execution
diagnosis as MCP tools for AI assistants.

Supports two transport modes:
  - stdio: Standard input/output mode (default, for subprocess-based MCP clients)
  - http: HTTP server mode (suitable for independent deployment)

HTTP mode includes a /health endpoint for health checks.`,
	Run: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpConfigPath, "config", "",
		"Path to the engine configuration YAML file (defaults apply when omitted)")
	mcpCmd.Flags().StringVar(&httpAddr, "http-addr", getEnv("MCP_HTTP_ADDR", ":8082"), "HTTP server address (host:port)")
	mcpCmd.Flags().StringVar(&transportType, "transport", "stdio", "Transport type: stdio or http")
	mcpCmd.Flags().StringVar(&mcpEndpointPath, "mcp-endpoint", getEnv("MCP_ENDPOINT", "/mcp"), "HTTP endpoint path for MCP requests")
}

func runMCP(cmd *cobra.Command, args []string) {
	// In stdio mode the process runs as a client subprocess; default to
	// error-level so routine chatter does not flood the client's logs.
	if transportType == "stdio" && !rootCmd.PersistentFlags().Changed("log-level") {
		logLevelFlags = []string{"error"}
	}
	if err := setupLog(logLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}
	logger := logging.GetLogger("mcp")
	logger.Info("Starting Inquest MCP server (transport: %s)", transportType)

	cfg, err := loadConfig(mcpConfigPath)
	HandleError(err, "Configuration error")

	engine, err := buildEngine(cfg)
	HandleError(err, "Engine initialization error")

	inquestServer := mcp.NewServer(engine, Version)
	mcpServer := inquestServer.GetMCPServer()

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal: %v, shutting down gracefully...", sig)
		cancel()
	}()

	switch transportType {
	case "stdio":
		logger.Info("Starting stdio transport")
		if err := server.ServeStdio(mcpServer); err != nil {
			logger.Error("Stdio transport error: %v", err)
		}

	case "http":
		// Ensure endpoint path starts with /
		endpointPath := mcpEndpointPath
		if endpointPath == "" {
			endpointPath = "/mcp"
		} else if endpointPath[0] != '/' {
			endpointPath = "/" + endpointPath
		}

		logger.Info("Starting HTTP server on %s (endpoint: %s)", httpAddr, endpointPath)

		// Stateless mode keeps compatibility with clients that don't
		// manage sessions.
		streamableServer := server.NewStreamableHTTPServer(
			mcpServer,
			server.WithEndpointPath(endpointPath),
			server.WithStateLess(true),
		)

		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("ok"))
		})
		mux.Handle(endpointPath, streamableServer)

		httpSrv := &http.Server{
			Addr:              httpAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second, // Prevent Slowloris attacks
		}

		errCh := make(chan error, 1)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()

			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Error during shutdown: %v", err)
			}
		case err := <-errCh:
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}

	default:
		logger.Fatal("Invalid transport type: %s (must be 'stdio' or 'http')", transportType)
	}

	logger.Info("Server stopped")
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
