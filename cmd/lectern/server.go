package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/lectern/lectern/internal/agent"
	"github.com/lectern/lectern/internal/api"
	"github.com/lectern/lectern/internal/config"
	"github.com/lectern/lectern/internal/docproc"
	"github.com/lectern/lectern/internal/index"
	"github.com/lectern/lectern/internal/ollama"
	"github.com/lectern/lectern/internal/rag"
	"github.com/lectern/lectern/internal/search"
	"github.com/lectern/lectern/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lectern server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running lectern server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lectern system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "lectern.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "lectern version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to start twice. The health endpoint is the source of truth; the
	// PID file only improves the error message.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("lectern is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("lectern is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check Ollama readiness, pulling missing models.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	// Open the vector index.
	idx, err := index.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	idx.SetMinResolveScore(float32(cfg.Retrieval.MinResolveScore))
	defer func() {
		if err := idx.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing index: %v\n", err)
		}
	}()

	// Assemble the question answering system.
	embedder := search.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	searcher := search.NewSearcher(embedder, idx)
	searcher.SetDefaultLimit(cfg.Retrieval.TopK)

	registry := agent.NewRegistry(agent.NewSearchTool(searcher))
	runner := agent.NewRunner(ollamaClient, cfg.Ollama.ChatModel, registry, slog.Default())
	runner.SetMaxToolRounds(cfg.Retrieval.MaxToolRounds)

	processor := docproc.New(cfg.Chunking.MaxChars, cfg.Chunking.OverlapChars)
	sessions := session.NewManager(0)
	system := rag.New(processor, embedder, idx, runner, sessions, slog.Default())

	// Index course documents from the docs folder on startup.
	if cfg.Storage.DocsDir != "" {
		folderRes, err := system.AddCourseFolder(ctx, cfg.Storage.DocsDir)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", cfg.Storage.DocsDir, err)
		}
		slog.Info("startup ingest complete",
			"courses_added", folderRes.CoursesAdded,
			"chunks_added", folderRes.ChunksAdded,
			"skipped", folderRes.Skipped,
			"failed", len(folderRes.Failed),
		)
	}

	// HTTP API.
	handler := api.NewAppHandler(api.AppDeps{
		System: system,
		Token:  cfg.API.IngestToken,
	})
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over streamable HTTP on its own port.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Searcher: searcher,
		Catalog:  idx,
	})
	mcpHTTP := server.NewStreamableHTTPServer(mcpSrv)
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	go func() {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := mcpHTTP.Start(mcpAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("MCP server error", "error", err)
		}
	}()

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "lectern listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mcpHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Warn("MCP server shutdown", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("lectern is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop lectern (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to lectern (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	serverUp := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			serverUp = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check Ollama.
	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Chat model", "%s", cfg.Ollama.ChatModel)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)

	// Show catalog size if the server is up.
	if serverUp {
		coursesResp, err := client.Get(serverURL + "/api/courses")
		if err == nil {
			var analytics struct {
				TotalCourses int `json:"total_courses"`
				TotalChunks  int `json:"total_chunks"`
			}
			if decodeJSON(coursesResp, &analytics) == nil {
				printStatus("Courses", "%d", analytics.TotalCourses)
				printStatus("Chunks", "%d", analytics.TotalChunks)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Docs dir", "%s", cfg.Storage.DocsDir)
	return nil
}
