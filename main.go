// assistant-core - hybrid intent resolution and task execution pipeline.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jeranaias/assistant-core/internal/config"
	"github.com/jeranaias/assistant-core/internal/dispatch"
	"github.com/jeranaias/assistant-core/internal/intent"
	"github.com/jeranaias/assistant-core/internal/local"
	"github.com/jeranaias/assistant-core/internal/logging"
	"github.com/jeranaias/assistant-core/internal/metrics"
	"github.com/jeranaias/assistant-core/internal/provider"
	"github.com/jeranaias/assistant-core/internal/router"
	"github.com/jeranaias/assistant-core/internal/workflow"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	configPath := os.Getenv("ASSISTANT_CONFIG")
	args := os.Args[1:]
	cmd := "help"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("assistant-core %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	defer log.Sync()

	app, err := newApp(cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer app.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "resolve":
		err = app.cmdResolve(ctx, args)
	case "batch":
		err = app.cmdBatch(ctx, args)
	case "run":
		err = app.cmdRun(ctx, args)
	case "status":
		err = app.cmdStatus()
	case "serve":
		err = app.cmdServe(ctx)
	default:
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("command failed", zap.String("command", cmd), zap.Error(err))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`assistant-core - hybrid intent resolution and task execution

Usage:
  assistant-core resolve <message>     resolve one message to an intent
  assistant-core batch                 resolve messages from stdin, one per line
  assistant-core run <skill> [json]    execute a skill with JSON parameters
  assistant-core status                print pipeline status
  assistant-core serve                 serve resolution and metrics over HTTP
  assistant-core version               print version

Environment:
  ASSISTANT_CONFIG    path to the TOML or JSON configuration file
  <PROVIDER>_API_KEY  API key override per configured provider
`)
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app owns the pipeline's service objects. Everything is constructed here
// and passed down; no component reaches for ambient state.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics

	localMgr *local.Manager
	cache    provider.ResponseCache
	router   *router.Router
	engine   *workflow.Engine

	store   *intent.TrainingStore
	watcher *intent.CatalogWatcher
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	m := metrics.New()

	registry := provider.NewRegistry(cfg.Providers)

	var cache provider.ResponseCache
	if cfg.Cache.Backend == "redis" {
		rc, err := provider.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword,
			cfg.Cache.RedisDB, cfg.Cache.KeyPrefix, cfg.CacheTTL())
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		cache = rc
	} else {
		cache = provider.NewMemoryCache(cfg.CacheTTL(), cfg.Cache.MaxEntries)
	}

	localMgr := local.NewManager(cfg.Local, log)
	dispatcher := dispatch.NewDispatcher(cfg.Dispatch, registry, cache, localMgr, m, log)

	catalog := intent.LoadCatalog(cfg.Intent.CatalogPath, log)

	var store *intent.TrainingStore
	if cfg.Intent.TrainingDBPath != "" {
		s, err := intent.OpenTrainingStore(cfg.Intent.TrainingDBPath)
		if err != nil {
			return nil, fmt.Errorf("training store: %w", err)
		}
		store = s
	}

	matcher := intent.NewMatcher(catalog, store, log)
	if store != nil {
		if err := matcher.Retrain(); err != nil {
			log.Warn("retrain from store failed", zap.Error(err))
		}
	}

	var watcher *intent.CatalogWatcher
	if cfg.Intent.WatchCatalog && cfg.Intent.CatalogPath != "" {
		w, err := intent.NewCatalogWatcher(catalog, log)
		if err != nil {
			return nil, fmt.Errorf("catalog watcher: %w", err)
		}
		if err := w.Watch(); err != nil {
			return nil, fmt.Errorf("catalog watcher: %w", err)
		}
		watcher = w
	}

	rt := router.NewRouter(cfg.Routing, matcher, catalog, dispatcher, localMgr, m, log)

	engine := workflow.NewEngine(cfg.Workflow, m, log)
	registerBuiltinSkills(engine, log)
	registerBuiltinWorkflows(engine)

	engine.Subscribe(func(ev workflow.Event) {
		log.Debug("execution event",
			zap.String("type", string(ev.Type)),
			zap.String("execution", ev.ExecutionID),
			zap.String("name", ev.Name),
			zap.String("step", ev.Step))
	})

	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		localMgr: localMgr,
		cache:    cache,
		router:   rt,
		engine:   engine,
		store:    store,
		watcher:  watcher,
	}, nil
}

func (a *app) shutdown() {
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if rc, ok := a.cache.(*provider.RedisCache); ok {
		rc.Close()
	}
	a.localMgr.Shutdown()
}

// =============================================================================
// COMMANDS
// =============================================================================

func (a *app) cmdResolve(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: resolve <message>")
	}
	message := strings.Join(args, " ")

	res, err := a.router.Resolve(ctx, message)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) cmdBatch(ctx context.Context, _ []string) error {
	var messages []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			messages = append(messages, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	results, err := a.router.BatchProcess(ctx, messages)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func (a *app) cmdRun(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: run <skill> [json-params]")
	}
	name := args[0]

	params := map[string]any{}
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
	}

	result, err := a.engine.ExecuteSkill(ctx, name, params)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"skill": name, "result": result, "stats": a.engine.StatsFor(name)})
}

func (a *app) cmdStatus() error {
	return printJSON(a.router.Status())
}

// cmdServe exposes resolution and metrics over HTTP until interrupted.
func (a *app) cmdServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/resolve", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
			http.Error(w, "expected {\"message\": ...}", http.StatusBadRequest)
			return
		}
		res, err := a.router.Resolve(r.Context(), body.Message)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a.router.Status())
	})

	srv := &http.Server{Addr: ":8790", Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	a.log.Info("serving", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// BUILT-IN SKILLS AND WORKFLOWS
// =============================================================================

// registerBuiltinSkills installs the demo skill set the built-in catalog's
// actions map to. Hosting applications replace these with real handlers.
func registerBuiltinSkills(engine *workflow.Engine, log *zap.Logger) {
	ack := func(kind string) workflow.SkillFunc {
		return func(_ context.Context, params map[string]any) (any, error) {
			log.Info("skill invoked", zap.String("kind", kind), zap.Any("params", params))
			return map[string]any{"ok": true, "kind": kind, "params": params}, nil
		}
	}

	skills := []*workflow.Skill{
		{Name: "respond_greeting", Description: "Reply to a greeting", Handler: ack("greeting")},
		{Name: "respond_help", Description: "Explain available capabilities", Handler: ack("help")},
		{Name: "respond_acknowledge", Description: "Acknowledge thanks", Handler: ack("acknowledge")},
		{
			Name:               "task_create",
			Description:        "Create a task",
			RequiredParameters: []string{"title"},
			Handler:            ack("task_create"),
		},
		{Name: "task_list", Description: "List open tasks", Handler: ack("task_list")},
		{
			Name:               "calendar_create_event",
			Description:        "Create a calendar event",
			RequiredParameters: []string{"title", "time"},
			Handler:            ack("calendar_create_event"),
		},
		{Name: "calendar_list_events", Description: "List calendar events", Handler: ack("calendar_list_events")},
		{
			Name:               "message_send",
			Description:        "Send a message",
			RequiredParameters: []string{"recipient", "content"},
			Handler:            ack("message_send"),
		},
	}
	for _, s := range skills {
		if err := engine.RegisterSkill(s); err != nil {
			log.Warn("skill registration failed", zap.String("skill", s.Name), zap.Error(err))
		}
	}
}

func registerBuiltinWorkflows(engine *workflow.Engine) {
	_ = engine.RegisterWorkflow(&workflow.Workflow{
		Name:        "schedule_and_notify",
		Description: "Create a calendar event, then message the participants",
		Steps: []workflow.Step{
			{Name: "create_event", Type: workflow.StepSkill, Skill: "calendar_create_event"},
			{Name: "confirmed", Type: workflow.StepCondition, Condition: "notify"},
			{
				Name:      "notify_participants",
				Type:      workflow.StepSkill,
				Skill:     "message_send",
				DependsOn: []string{"create_event"},
			},
		},
	})
}
