package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tktechnologies/meeting-agent/internal/app"
	"github.com/tktechnologies/meeting-agent/internal/config"
	"github.com/tktechnologies/meeting-agent/internal/db"
	"github.com/tktechnologies/meeting-agent/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "agenda",
	Short: "Meeting agenda planner",
	Long: `agenda plans meeting agendas from an organization's recorded facts.
Core concepts:
- Facts: decisions, risks, action items, status updates and goals, each with evidence quotes.
- Workstreams: long-running initiatives that group facts; the macro layer plans around them.
- Macro mode: auto plans from raw facts when no workstream exists, strict refuses, off ignores workstreams.
- Proposals: planned agendas; every bullet carries a justification taken from evidence.
- Workspace: the directory holding agenda.yml and the SQLite database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AGENDA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "config file (default <workspace>/agenda.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("org", "", "organization id (overrides org.default_id)")
	flags.String("log-level", "", "log level: debug, info, warn, error (overrides logging.level)")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "org", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(workstreamCmd())
	rootCmd.AddCommand(factCmd())
	rootCmd.AddCommand(meetingCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(researchCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
}

func loadConfig() (*config.Config, error) {
	cfg, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if org := viper.GetString("org"); org != "" {
		cfg.Org.DefaultID = org
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if l := viper.GetString("log-level"); l != "" {
		level = l
	}
	return logging.New(level, cfg.Logging.Development)
}

// withApp opens the workspace, wires the service and hands it to fn.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	conn, err := app.OpenDB(ctx, viper.GetString("workspace"), cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	a, err := app.Build(ctx, conn, cfg, app.Options{
		LLMAPIKey:      viper.GetString("llm-api-key"),
		ResearchAPIKey: viper.GetString("research-api-key"),
		Logger:         log,
	})
	if err != nil {
		return err
	}
	return fn(ctx, a)
}

func orgID(a *app.App) string {
	return a.Config.Org.DefaultID
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable renders rows unless --json is set, in which case v is printed.
func printTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage agenda.yml",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default agenda.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var (
		name   string
		scopes []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for --actor-id; the key is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				plain, k, err := a.Engine.CreateAPIKey(ctx, actorID(), name, scopes...)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": plain, "id": k.ID, "actor_id": k.ActorID, "name": k.Name, "scopes": k.Scopes})
				}
				fmt.Printf("api key for %s: %s\n", k.ActorID, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	create.Flags().StringSliceVar(&scopes, "scope", nil, "granted scope, e.g. agenda.read or fact.* (repeatable; default all)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Engine.Repo.ListAPIKeys(ctx, actorID())
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(keys))
				for _, k := range keys {
					granted := "*"
					if len(k.Scopes) > 0 {
						granted = strings.Join(k.Scopes, ",")
					}
					rows = append(rows, table.Row{k.ID, k.Name, granted, k.CreatedAt, k.LastUsedAt})
				}
				return printTable(keys, table.Row{"ID", "Name", "Scopes", "Created", "Last used"}, rows)
			})
		},
	}
	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key of --actor-id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.RevokeAPIKey(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
	key.AddCommand(create, list, revoke)
	return key
}

func researchCmd() *cobra.Command {
	r := &cobra.Command{Use: "research", Short: "Deep research service"}
	r.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Probe the deep research service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				status := "disabled"
				detail := ""
				if a.Research != nil {
					ok, err := a.Research.Health(ctx)
					switch {
					case err != nil:
						status, detail = "degraded", err.Error()
					case !ok:
						status, detail = "degraded", "agent not ready"
					default:
						status = "ok"
					}
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"status": status, "detail": detail})
				}
				if detail != "" {
					fmt.Printf("research: %s (%s)\n", status, detail)
				} else {
					fmt.Printf("research: %s\n", status)
				}
				return nil
			})
		},
	})
	return r
}
