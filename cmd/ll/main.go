package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lendline/internal/a2a"
	"lendline/internal/agents/websearch"
	"lendline/internal/config"
	"lendline/internal/db"
	"lendline/internal/domain"
	"lendline/internal/lifecycle"
	"lendline/internal/migrate"
	"lendline/internal/orchestrator"
	"lendline/internal/registry"
	"lendline/internal/repo"
	"lendline/internal/router"
	"lendline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ll",
	Short: "Lendline CLI",
	Long: `Lendline orchestrates mortgage processing across A2A agents.
It discovers agents by their capability cards, routes each request to the
best-matching agent, and keeps every chat and document upload attached to
the right mortgage application as it moves through its lifecycle phases.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("LENDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(applicationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := loadConfig(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Listen
			}
			logger := newLogger()
			r := repo.New(conn)
			mgr := newManager(r, cfg, logger)
			reg, rt, orch := buildOrchestrator(cfg, logger)

			authCfg := server.AuthConfig{JWTSecret: os.Getenv("LENDLINE_JWT_SECRET"), Logger: logger}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("LENDLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Repo:         r,
				Lifecycle:    mgr,
				Registry:     reg,
				Router:       rt,
				Orchestrator: orch,
				BasePath:     basePath,
				Auth:         authCfg,
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(r, cfg.Webhooks, logger)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Lendline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func agentCmd() *cobra.Command {
	agent := &cobra.Command{Use: "agent", Short: "Run A2A agents"}
	agent.AddCommand(agentWebsearchCmd())
	agent.AddCommand(agentOrchestratorCmd())
	return agent
}

func agentWebsearchCmd() *cobra.Command {
	var addr string
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "websearch",
		Short: "Run the web search demo agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			baseURL := "http://" + addr
			srv := websearch.Server(baseURL, delay, logger)
			return serveAgent(cmd.Context(), addr, srv, "Web Search Agent")
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:10001", "listen address")
	cmd.Flags().DurationVar(&delay, "delay", 2*time.Second, "simulated work duration per task")
	return cmd
}

func agentOrchestratorCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Run the orchestrator as an A2A agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig(workspace)
			if err != nil {
				return err
			}
			logger := newLogger()
			_, _, orch := buildOrchestrator(cfg, logger)
			baseURL := "http://" + addr
			return serveAgent(cmd.Context(), addr, orch.Server(baseURL), "Mortgage A2A Orchestrator")
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:10000", "listen address")
	return cmd
}

func serveAgent(ctx context.Context, addr string, agent *a2a.Server, name string) error {
	srv := &http.Server{Addr: addr, Handler: agent.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	fmt.Printf("Serving %s on http://%s (card at %s)\n", name, addr, a2a.CardPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func chatCmd() *cobra.Command {
	var personName string
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message through the orchestrator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig(workspace)
			if err != nil {
				return err
			}
			logger := newLogger()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				mgr := newManager(r, cfg, logger)
				intent := lifecycle.DetectIntent(nil, "", message)
				resolution, err := mgr.FindOrCreateApplication(ctx, lifecycle.FindOrCreateOptions{
					PersonName: personName,
					Intent:     intent,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				_, _, orch := buildOrchestrator(cfg, logger)
				result := orch.Process(ctx, message)
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"intent":     intent,
						"resolution": resolution,
						"result":     result,
					})
				}
				fmt.Println(result.Response)
				if resolution.ApplicationID != "" {
					fmt.Printf("\napplication: %s (%s, phase %s)\n", resolution.ApplicationID, resolution.Status, resolution.Phase)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&personName, "person", "", "applicant name")
	return cmd
}

func routeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route <request>",
		Short: "Preview the routing decision for a request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := strings.Join(args, " ")
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig(workspace)
			if err != nil {
				return err
			}
			_, rt, _ := buildOrchestrator(cfg, newLogger())
			decision := rt.Route(cmd.Context(), request)
			return printJSONOrTable(decision)
		},
	}
	return cmd
}

func applicationCmd() *cobra.Command {
	app := &cobra.Command{Use: "application", Short: "Manage mortgage applications"}
	app.AddCommand(applicationListCmd())
	app.AddCommand(applicationShowCmd())
	app.AddCommand(applicationPhaseCmd())
	return app
}

func applicationListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListApplications(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Applicant", "Phase", "Source", "Created"})
				for _, app := range items {
					tw.AppendRow(table.Row{app.ID, app.ApplicantName, app.Phase, app.CreatedFrom, app.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func applicationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an application with its threads and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				app, err := r.GetApplication(ctx, args[0])
				if err != nil {
					return err
				}
				threads, err := r.ListThreads(ctx, app.ID)
				if err != nil {
					return err
				}
				events, err := r.EventsForEntity(ctx, "application", app.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"application": app,
					"threads":     threads,
					"events":      events,
				})
			})
		},
	}
	return cmd
}

func applicationPhaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phase <id> <phase>",
		Short: "Set the lifecycle phase",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig(workspace)
			if err != nil {
				return err
			}
			logger := newLogger()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				mgr := newManager(r, cfg, logger)
				if err := mgr.UpdatePhase(ctx, args[0], domain.ApplicationPhase(args[1]), viper.GetString("actor-id")); err != nil {
					return err
				}
				app, err := r.GetApplication(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(app)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := "llk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The raw key is printed once and never stored.
				fmt.Println(raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage lendline.yml"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default lendline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate lendline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

// --- helpers ---

// loadConfig falls back to built-in defaults when no lendline.yml exists.
func loadConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func newManager(r repo.Repo, cfg *config.Config, logger *slog.Logger) lifecycle.Manager {
	mgr := lifecycle.New(r, logger)
	if cfg.Lifecycle.CreationMode == "exclusive" {
		mgr.Mode = lifecycle.ModeExclusive
	}
	return mgr
}

func buildOrchestrator(cfg *config.Config, logger *slog.Logger) (*registry.Registry, *router.Router, *orchestrator.Orchestrator) {
	client := a2a.NewClient()
	client.Logger = logger
	client.CardTimeout = config.Duration(cfg.Agents.CardTimeout, client.CardTimeout)
	client.SendTimeout = config.Duration(cfg.Agents.SendTimeout, client.SendTimeout)
	poll := a2a.DefaultPollPolicy()
	poll.Interval = config.Duration(cfg.Agents.PollInterval, poll.Interval)
	if cfg.Agents.PollAttempts > 0 {
		poll.MaxAttempts = cfg.Agents.PollAttempts
	}
	client.Poll = poll

	reg := registry.New(client, cfg.Agents.Endpoints, logger)
	rt := router.New(reg, logger)
	if cfg.Router.DefaultAgent != "" {
		rt.DefaultAgent = cfg.Router.DefaultAgent
	}
	if len(cfg.Router.FallbackKeywords) > 0 {
		rt.FallbackKeywords = cfg.Router.FallbackKeywords
	}
	orch := orchestrator.New(reg, rt, client, logger)
	return reg, rt, orch
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.New(conn))
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
