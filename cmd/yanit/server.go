package main

import (
	"context"
	"errors"
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
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tansu/yanit/internal/api"
	"github.com/tansu/yanit/internal/audit"
	"github.com/tansu/yanit/internal/budget"
	"github.com/tansu/yanit/internal/catalog"
	"github.com/tansu/yanit/internal/config"
	"github.com/tansu/yanit/internal/gateway"
	"github.com/tansu/yanit/internal/pipeline"
	"github.com/tansu/yanit/internal/reply"
	"github.com/tansu/yanit/internal/replycache"
	"github.com/tansu/yanit/internal/retrieval"
	"github.com/tansu/yanit/internal/rules"
	"github.com/tansu/yanit/internal/session"
	"github.com/tansu/yanit/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the yanit server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running yanit server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show yanit system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "yanit.pid")
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
	fmt.Fprintf(os.Stderr, "yanit version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("yanit is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("yanit is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Load the tenant catalog. A merchant either hands us a file or a DSN
	// into their commerce database.
	var src catalog.Source
	switch {
	case cfg.Tenant.CatalogDSN != "":
		pgSrc, err := catalog.NewPostgresSource(ctx, cfg.Tenant.CatalogDSN, cfg.Tenant.Name)
		if err != nil {
			return fmt.Errorf("connecting to catalog database: %w", err)
		}
		defer pgSrc.Close()
		src = pgSrc
	case cfg.Tenant.CatalogPath != "":
		src = catalog.FileSource{Path: cfg.Tenant.CatalogPath}
	default:
		return fmt.Errorf("no catalog configured: set tenant.catalog_path or tenant.catalog_dsn")
	}

	index, err := catalog.Load(ctx, cfg.Tenant.Name, src)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	slog.Info("catalog loaded", "tenant", index.Tenant(), "products", index.Len())

	// Product vectors sharpen retrieval but the lexical and feature scorers
	// carry the tier on their own, so embedding failures only warn.
	var embedder *retrieval.Embedder
	if cfg.Embedding.Enabled {
		embedder = retrieval.NewEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.Model)
		if err := index.AttachEmbeddings(ctx, embedder, store); err != nil {
			slog.Warn("embedding backend unavailable, retrieval falls back to lexical scoring", "error", err)
			embedder = nil
		} else {
			slog.Info("product embeddings attached", "model", cfg.Embedding.Model)
		}
	}

	// Rule router learns the catalog's own words so product mentions are not
	// mistaken for free-form chatter.
	var extraVocab []string
	for _, p := range index.Products() {
		extraVocab = append(extraVocab, strings.Fields(p.NormText)...)
	}
	router := rules.New(slog.Default(), extraVocab...)

	var retriever *retrieval.Retriever
	if embedder != nil {
		retriever = retrieval.New(index, embedder, slog.Default())
	} else {
		retriever = retrieval.New(index, nil, slog.Default())
	}

	cache := replycache.New(replycache.Options{
		TTLs: replycache.TTLs{
			BusinessInfo:   cfg.Cache.BusinessInfoTTL,
			ProductInquiry: cfg.Cache.ProductTTL,
			Social:         cfg.Cache.SocialTTL,
		},
		MaxPerTenant: cfg.Cache.MaxPerTenant,
	})

	governor := budget.New(budget.Limits{
		DailyQueryCap: cfg.Budget.DailyQueryCap,
		DailyBudget:   cfg.Budget.DailyBudget,
		CostPer1K:     cfg.Budget.CostPer1K,
	}, slog.Default(), nil)

	sessions, err := buildSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("building session store: %w", err)
	}

	// Tier 3 is optional: without an API key the pipeline downgrades or
	// asks for clarification instead of calling out.
	var model pipeline.ModelGateway
	if cfg.Model.APIKey != "" {
		model = gateway.NewClient(cfg.Model.BaseURL, cfg.Model.APIKey, gateway.Options{
			Model:            cfg.Model.Name,
			Timeout:          cfg.Model.Timeout,
			FailureThreshold: cfg.Model.FailureThreshold,
			Cooldown:         cfg.Model.Cooldown,
		})
		slog.Info("model gateway configured", "model", cfg.Model.Name)
	} else {
		slog.Warn("no model API key configured, tier 3 disabled")
	}

	var publisher audit.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kp.Close(); err != nil {
				slog.Warn("closing kafka publisher", "error", err)
			}
		}()
		publisher = kp
		slog.Info("audit events publishing to kafka", "topic", cfg.Kafka.Topic)
	}
	auditor := audit.New(slog.Default(), store, publisher)

	composer := reply.NewComposer(reply.BusinessFacts{
		Phone:        cfg.Tenant.Phone,
		Website:      cfg.Tenant.Website,
		Email:        cfg.Tenant.Email,
		ReturnPolicy: cfg.Tenant.ReturnPolicy,
		ShippingInfo: cfg.Tenant.ShippingInfo,
	})

	pipe := pipeline.New(index, router, retriever, cache, model, governor, sessions, composer, auditor,
		pipeline.Options{
			TauHigh: cfg.Pipeline.TauHigh,
			TauLow:  cfg.Pipeline.TauLow,
			TopK:    cfg.Pipeline.TopK,
		})

	handler := api.NewHandler(api.Deps{
		Resolver: pipe,
		Cache:    cache,
		Index:    index,
		Governor: governor,
		Auditor:  auditor,
		Store:    store,
		Token:    cfg.Server.AdminToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Resolver: pipe,
		Searcher: retriever,
		Governor: governor,
		Tenant:   cfg.Tenant.Name,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "yanit listening on %s\n", addr)
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
	return srv.Shutdown(shutdownCtx)
}

func buildSessionStore(cfg config.Config) (session.Store, error) {
	switch cfg.Session.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
		return session.NewStore(session.StoreTypeRedis,
			session.WithRedisClient(client),
			session.WithIdleTTL(cfg.Session.IdleTTL))
	default:
		return session.NewStore(session.StoreTypeMemory,
			session.WithIdleTTL(cfg.Session.IdleTTL))
	}
}

func stopServer() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("yanit is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop yanit (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to yanit (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Tenant", "%s", cfg.Tenant.Name)
	switch {
	case cfg.Tenant.CatalogDSN != "":
		printStatus("Catalog", "postgres")
	case cfg.Tenant.CatalogPath != "":
		printStatus("Catalog", "%s", cfg.Tenant.CatalogPath)
	default:
		printStatus("Catalog", "not configured")
	}

	if cfg.Model.APIKey != "" {
		printStatus("Model", "%s", cfg.Model.Name)
	} else {
		printStatus("Model", "disabled (no API key)")
	}
	if cfg.Embedding.Enabled {
		printStatus("Embeddings", "%s at %s", cfg.Embedding.Model, cfg.Embedding.BaseURL)
	} else {
		printStatus("Embeddings", "disabled")
	}
	printStatus("Sessions", "%s", cfg.Session.Driver)
	if len(cfg.Kafka.Brokers) > 0 {
		printStatus("Kafka", "%s", strings.Join(cfg.Kafka.Brokers, ","))
	}

	// Show today's counters if the server is up.
	if resp != nil && resp.StatusCode == 200 && cfg.Server.AdminToken != "" {
		c := &apiClient{
			baseURL:    serverURL,
			token:      cfg.Server.AdminToken,
			httpClient: client,
		}
		costsResp, err := c.get(context.Background(), "/admin/tenants/"+cfg.Tenant.Name+"/costs")
		if err == nil {
			var costs api.CostsResponse
			if decodeJSON(costsResp, &costs) == nil {
				printStatus("Requests today", "%d", costs.Requests)
				printStatus("Tier-3 calls", "%d", costs.Tier3)
				printStatus("Estimated cost", "$%.4f", costs.EstimatedCost)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
