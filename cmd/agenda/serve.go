package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/app"
	"github.com/tktechnologies/meeting-agent/internal/mcptools"
	"github.com/tktechnologies/meeting-agent/internal/server"
)

var version = "dev"

func serveCmd() *cobra.Command {
	var (
		addr, basePath   string
		allowActorHeader bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("AGENDA_JWT_SECRET is required for bearer auth")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()
			ctx := cmd.Context()
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
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				Research: a.Research,
				Metrics:  a.Metrics,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, AllowActorHeader: allowActorHeader},
				Logger:   log,
			})
			if err != nil {
				return err
			}

			hooks := server.NewWebhookDispatcher(a.Engine.Repo, cfg.Webhooks, log.Named("webhooks"))
			hooks.Start(ctx)
			defer hooks.Stop()

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Warn("shutdown", zap.Error(err))
				}
			}()
			log.Info("serving meeting agent API",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.String("org", cfg.Org.DefaultID))
			fmt.Printf("Serving meeting agent API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "trust X-Actor-Id without credentials (local development only)")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the planner as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				mcptools.Version = version
				s := mcptools.New(a.Engine)
				fmt.Fprintln(os.Stderr, "meeting-agent MCP server on stdio")
				return mcpserver.ServeStdio(s)
			})
		},
	}
}
