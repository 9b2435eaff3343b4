package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"domainflow/internal/app"
	"domainflow/internal/config"
	"domainflow/internal/engine"
	"domainflow/internal/prefs"
	"domainflow/internal/server"
	"domainflow/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:   "df",
	Short: "domainflow CLI",
	Long: `domainflow tracks maintenance work on client websites.
- Templates: reusable task definitions; every new domain gets one task per template.
- Domains: client sites with tasks, subtasks and comments; they can be closed, reopened and pinned.
- Progress: completed tasks over total tasks, shown per domain.
- Workspace: the .domainflow directory with the database, plus domainflow.yml for settings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
)

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DOMAINFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("yes", false, "skip confirmation prompts")
	rootCmd.PersistentFlags().String("jwt-secret", "", "enable API authentication with this HS256 secret")
	rootCmd.PersistentFlags().String("api-key", "", "static API key accepted through X-Api-Key")
	rootCmd.PersistentFlags().String("locale", "", "collation locale (BCP-47)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("yes", rootCmd.PersistentFlags().Lookup("yes"))
	_ = viper.BindPFlag("jwt-secret", rootCmd.PersistentFlags().Lookup("jwt-secret"))
	_ = viper.BindPFlag("api-key", rootCmd.PersistentFlags().Lookup("api-key"))
	_ = viper.BindPFlag("locale", rootCmd.PersistentFlags().Lookup("locale"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(domainCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(prefsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tuiCmd())
}

// overrides applies flags and DOMAINFLOW_* variables over domainflow.yml.
func overrides(c *config.Config) {
	if v := viper.GetString("jwt-secret"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := viper.GetString("api-key"); v != "" {
		c.Auth.APIKey = v
	}
	if v := viper.GetString("locale"); v != "" {
		c.Locale = v
	}
}

func openWorkspace() (*app.Workspace, error) {
	return app.Open(viper.GetString("workspace"), overrides)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine)
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := app.Open(viper.GetString("workspace"), func(c *config.Config) {
				overrides(c)
				if cmd.Flags().Changed("addr") {
					c.Server.Addr = addr
				}
				if cmd.Flags().Changed("base-path") {
					c.Server.BasePath = basePath
				}
			})
			if err != nil {
				return err
			}
			defer ws.Close()
			cfg := ws.Config
			logger := log.New(os.Stderr, "domainflow ", log.LstdFlags)
			handler, err := server.New(server.Config{
				Engine:   ws.Engine,
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret, APIKey: cfg.Auth.APIKey, Logger: logger},
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			server.StartWebhookDispatcher(ctx, ws.Engine, logger)
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			if !cfg.AuthEnabled() {
				logger.Printf("WARNING: auth.jwt_secret is empty; every request runs as the implicit administrator")
			}
			fmt.Fprintf(stdout, "Serving domainflow API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage domainflow.yml"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default domainflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, created, err := app.InitConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(stdout, "%s already exists\n", path)
				return nil
			}
			fmt.Fprintf(stdout, "wrote %s\n", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate domainflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "config ok")
			return nil
		},
	})
	return cfg
}

func prefsCmd() *cobra.Command {
	p := &cobra.Command{Use: "prefs", Short: "Dashboard preferences"}
	p.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show stored preferences with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stored, err := e.Preferences().Load(ctx)
				if err != nil {
					return err
				}
				return printJSON(stored)
			})
		},
	})

	var sortBy, search, showClosed, taskSort, tag, dependency string
	set := &cobra.Command{
		Use:   "set",
		Short: "Update preferences; only the given flags change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				store := e.Preferences()
				var patch prefs.Patch
				if cmd.Flags().Changed("sort-by") {
					patch.SortBy = &sortBy
				}
				if cmd.Flags().Changed("search") {
					patch.SearchQuery = &search
				}
				if cmd.Flags().Changed("show-closed") {
					v, err := parseYesNo(showClosed)
					if err != nil {
						return err
					}
					patch.ShowClosedDomains = &v
				}
				if cmd.Flags().Changed("task-sort") || cmd.Flags().Changed("tag") || cmd.Flags().Changed("dependency") {
					current, err := store.DomainFilters(ctx)
					if err != nil {
						return err
					}
					if cmd.Flags().Changed("task-sort") {
						current.SortBy = taskSort
					}
					if cmd.Flags().Changed("tag") {
						current.FilterTag = tag
					}
					if cmd.Flags().Changed("dependency") {
						current.FilterDependency = dependency
					}
					patch.DomainFilters = &current
				}
				saved, err := store.Save(ctx, patch)
				if err != nil {
					return err
				}
				return printJSON(saved)
			})
		},
	}
	set.Flags().StringVar(&sortBy, "sort-by", "", "domain sort: created_at, name, progress")
	set.Flags().StringVar(&search, "search", "", "domain search query")
	set.Flags().StringVar(&showClosed, "show-closed", "", "show closed domains (true/false)")
	set.Flags().StringVar(&taskSort, "task-sort", "", "task sort: created_at, priority, title")
	set.Flags().StringVar(&tag, "tag", "", "task tag filter, all for none")
	set.Flags().StringVar(&dependency, "dependency", "", "task dependency filter, all for none")
	p.AddCommand(set)
	return p
}

func tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return tui.Run(ctx, e)
			})
		},
	}
}

// --- helpers ---

// confirm asks before a destructive operation. --yes answers for the user.
func confirm(prompt string) bool {
	if viper.GetBool("yes") {
		return true
	}
	fmt.Fprintf(stdout, "%s [s/N] ", prompt)
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s", "si", "sì", "y", "yes":
		return true
	default:
		return false
	}
}

func parseYesNo(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "s", "si", "sì":
		return true, nil
	case "false", "0", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", v)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
