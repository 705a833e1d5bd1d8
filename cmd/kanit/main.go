// Package main is the Kanıt CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hyperjump/kanit/internal/assistant"
	"github.com/hyperjump/kanit/internal/cache"
	"github.com/hyperjump/kanit/internal/cli"
	"github.com/hyperjump/kanit/internal/config"
	"github.com/hyperjump/kanit/internal/conversation"
	"github.com/hyperjump/kanit/internal/extract"
	"github.com/hyperjump/kanit/internal/kb"
	"github.com/hyperjump/kanit/internal/knowledge"
	"github.com/hyperjump/kanit/internal/llm"
	"github.com/hyperjump/kanit/internal/metrics"
	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/internal/quality"
	"github.com/hyperjump/kanit/internal/ratelimit"
	"github.com/hyperjump/kanit/internal/server"
	"github.com/hyperjump/kanit/internal/storage"
	"github.com/hyperjump/kanit/internal/trust"
	"github.com/hyperjump/kanit/internal/watcher"
	"github.com/hyperjump/kanit/internal/websearch"
	"github.com/hyperjump/kanit/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kanit/config.yaml"
	defaultServerURL  = "http://localhost:8000"
	metricsNamespace  = "kanit"
	pruneInterval     = 5 * time.Minute
)

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence so "kanit server" from the project
// dir uses the project's config. Returns the config and the path that was
// actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "evaluate":
		runEvaluate()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kanit version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (search requests, inbox events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var inboxWatcher *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		inbox := watcher.NewInbox(components.KB, extract.NewExtractor(),
			watcher.WithInboxStats(components.Stats),
			watcher.WithInboxLogger(logger))
		inboxWatcher = watcher.New(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			inbox,
			watcher.WithLogger(logger),
		)
		if err := inboxWatcher.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go inboxWatcher.SyncExistingFiles(ctx)
	}

	go pruneSessions(ctx, components.Memory, logger)

	searxngURL := ""
	if len(cfg.Search.SearxngURLs) > 0 {
		searxngURL = cfg.Search.SearxngURLs[0]
	}
	srv := server.NewServer(server.Deps{
		Assistant:   components.Assistant,
		Memory:      components.Memory,
		KB:          components.KB,
		Chats:       components.Storage,
		Stats:       components.Stats,
		LLM:         components.LLM,
		Gatherer:    components.Registry,
		HTTPMetrics: components.HTTPMetrics,
	}, &cfg.Server, logger, server.WithHealthInfo(cfg.LLM.Model, searxngURL))
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	if inboxWatcher != nil {
		inboxWatcher.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// pruneSessions drops idle conversations until ctx is done.
func pruneSessions(ctx context.Context, memory *conversation.Window, logger *zap.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := memory.Prune(); n > 0 {
				logger.Debug("idle sessions pruned", zap.Int("count", n))
			}
		}
	}
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front of the slice so that flag.Parse() sees
// them. Go's flag package stops at the first non-flag argument, so
// "kanit ask \"soru\" -mode research" would otherwise leave -mode unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins all positional args with spaces so multi-word messages work
// the same with or without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	mode := fs.String("mode", "normal", "chat mode (normal, research, creative, code, spor)")
	web := fs.Bool("web", true, "allow web search")
	maxSources := fs.Int("max-sources", 5, "maximum web sources")
	user := fs.String("user", "cli", "user ID")
	session := fs.String("session", "default", "session ID")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	message := joinArgs(fs.Args())
	if message == "" {
		fmt.Fprintln(os.Stderr, "Usage: kanit ask [flags] <message>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := models.ChatRequest{
		Message:      message,
		Mode:         *mode,
		UseWebSearch: web,
		MaxSources:   *maxSources,
		UserID:       *user,
		SessionID:    *session,
	}
	resp, err := askViaHTTP(*serverURL, &req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteChatResponse(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL string, req *models.ChatRequest) (*models.ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// snippetFile is the input of "kanit evaluate".
type snippetFile struct {
	Web []models.InformationSnippet `json:"web"`
	DB  []models.InformationSnippet `json:"db"`
}

// readSnippetFile parses a snippet file. Snippets without a timestamp are
// stamped with now so they count as fresh.
func readSnippetFile(path string, now time.Time) (*snippetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f snippetFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, list := range [][]models.InformationSnippet{f.Web, f.DB} {
		for i := range list {
			if list[i].Timestamp.IsZero() {
				list[i].Timestamp = now
			}
		}
	}
	return &f, nil
}

func runEvaluate() {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	snippetsPath := fs.String("snippets", "", `JSON file {"web": [...], "db": [...]} of snippets`)
	configPath := fs.String("config", "", "config file path for trust tiers, source weights and core facts (optional)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := joinArgs(fs.Args())
	if query == "" || *snippetsPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: kanit evaluate -snippets file.json [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	now := time.Now()
	input, err := readSnippetFile(*snippetsPath, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read snippets: %v\n", err)
		os.Exit(1)
	}

	var opts []knowledge.Option
	if *configPath != "" {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		opts = evaluatorOptions(cfg, nil)
	}
	opts = append(opts, knowledge.WithClock(func() time.Time { return now }))
	result := knowledge.NewEvaluator(opts...).Evaluate(input.Web, input.DB, query)
	if err := cli.WriteEvaluation(os.Stdout, query, &result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(strings.TrimRight(*serverURL, "/") + "/api/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(stats)
}

// Components holds the wired server dependencies.
type Components struct {
	Storage     *storage.SQLiteStorage
	KB          *kb.Store
	Stats       *metrics.Stats
	Registry    *prometheus.Registry
	HTTPMetrics *metrics.HTTPMetrics
	Memory      *conversation.Window
	LLM         *llm.Ollama
	Assistant   *assistant.Service
}

func (c *Components) Close() {
	if c.KB != nil {
		_ = c.KB.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func evaluatorOptions(cfg *config.Config, stats *metrics.Stats) []knowledge.Option {
	assessor := quality.NewAssessor(trust.NewScorer(cfg.Trust))
	return []knowledge.Option{
		knowledge.WithAssessor(assessor),
		knowledge.WithSourceWeights(knowledge.DefaultSourceWeights().Merge(cfg.SourceWeights)),
		knowledge.WithFacts(knowledge.NewFactTable(cfg.CoreFacts, time.Now())),
		knowledge.WithMetrics(stats),
	}
}

func newEmbedder(cfg *config.Config) (kb.Embedder, error) {
	if cfg.Embedding.Model == "" {
		return kb.NewHashEmbedder(cfg.Embedding.Dimensions), nil
	}
	inner, err := kb.NewOllamaEmbedder(cfg.LLM.OllamaURL, cfg.Embedding.Model, cfg.Embedding.Dimensions,
		&http.Client{Timeout: cfg.LLM.Timeout})
	if err != nil {
		return nil, err
	}
	return kb.NewCachedEmbedder(inner, cfg.Embedding.CacheSize), nil
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Stats: metrics.NewStats()}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	embedder, err := newEmbedder(cfg)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.KB, err = kb.NewStore(embedder, kb.WithStorage(store), kb.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize knowledge base: %w", err)
	}
	restored, err := c.KB.Restore(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to restore knowledge base: %w", err)
	}
	logger.Info("knowledge base restored", zap.Int("documents", restored))

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := c.Stats.Register(c.Registry, metricsNamespace); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	c.HTTPMetrics, err = metrics.NewHTTPMetrics(c.Registry, metricsNamespace)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}

	assessor := quality.NewAssessor(trust.NewScorer(cfg.Trust))
	web := websearch.NewClient(cfg.Search.SearxngURLs, assessor,
		websearch.WithHTTPClient(&http.Client{Timeout: cfg.Search.RequestTimeout}),
		websearch.WithCache(cache.NewSearchCache(cfg.Search.CacheCapacity, cfg.Search.CacheTTL, c.Stats)),
		websearch.WithStats(c.Stats),
		websearch.WithLogger(logger),
		websearch.WithVariations(cfg.Search.Variations),
		websearch.WithSkipDomains(cfg.Search.SkipDomains),
		websearch.WithQualityFloor(cfg.Search.ResultQualityFloor),
		websearch.WithUserAgent(cfg.Search.UserAgent),
		websearch.WithBreaker(cfg.Search.BreakerMaxFailures, cfg.Search.BreakerOpenTimeout),
	)
	fetcher := websearch.NewFetcher(
		websearch.WithFetchTimeout(cfg.Search.ScrapeTimeout),
		websearch.WithFetchUserAgent(cfg.Search.UserAgent),
		websearch.WithMaxChars(cfg.Search.ScrapeMaxChars),
		websearch.WithFetchLogger(logger),
	)

	c.LLM, err = llm.NewOllama(cfg.LLM.OllamaURL, cfg.LLM.Model, &http.Client{Timeout: cfg.LLM.Timeout},
		llm.WithContextWindow(cfg.LLM.ContextWindow, cfg.LLM.StreamContextWindow),
		llm.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Memory = conversation.NewWindow(
		conversation.WithMaxMessages(cfg.Conversation.MaxMessages),
		conversation.WithIdleTimeout(cfg.Conversation.IdleTimeout),
	)

	c.Assistant = assistant.NewService(assistant.Deps{
		Limiter:   ratelimit.New(cfg.Limits.RequestsPerMinute, cfg.Limits.Window),
		Memory:    c.Memory,
		KB:        c.KB,
		Web:       web,
		Fetcher:   fetcher,
		Assessor:  assessor,
		Evaluator: knowledge.NewEvaluator(evaluatorOptions(cfg, c.Stats)...),
		Generator: c.LLM,
		Chats:     store,
	},
		assistant.WithSettings(assistant.Settings{
			Modes:              cfg.Modes,
			StreamModes:        cfg.StreamModes,
			Language:           cfg.Search.Language,
			KBResults:          cfg.Search.KBResults,
			KBMinRelevance:     cfg.Search.KBMinRelevance,
			ScrapeMinChars:     cfg.Search.ScrapeMinChars,
			ScrapeQualityFloor: cfg.Search.ScrapeQualityFloor,
			ScrapeConcurrency:  cfg.Search.ScrapeConcurrency,
			ContextMessages:    cfg.Conversation.ContextMessages,
			FollowUpHistory:    cfg.Conversation.FollowUpHistory,
		}),
		assistant.WithStats(c.Stats),
		assistant.WithLogger(logger),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`kanit - Evidence-ranked question answering over web search and a local knowledge base

Usage:
  kanit server [flags]                         Start the HTTP server
  kanit ask [flags] <message>                  Ask the running server a question
  kanit evaluate -snippets file.json <query>   Rank a snippet file offline
  kanit status [flags]                         Show server statistics
  kanit version                                Show version
  kanit help                                   Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kanit/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --server string    Server URL (default: http://localhost:8000)
  --mode string      Chat mode (default: normal)
  --web              Allow web search (default: true)
  --max-sources int  Maximum web sources (default: 5)
  --user string      User ID (default: cli)
  --session string   Session ID (default: default)
  --output string    Output format: text or json (default: text)

Evaluate Flags:
  --snippets string  JSON file with "web" and "db" snippet lists
  --config string    Config file for trust tiers, source weights and core facts
  --output string    Output format: text or json (default: text)

Examples:
  kanit server
  kanit ask "Türkiye'nin başkenti neresi?"
  kanit ask --web=false --mode research "kuantum bilgisayar nedir"
  kanit evaluate -snippets snippets.json "başkent"
  kanit status`)
}
