package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-widget-service/internal/app"
	"quiz-widget-service/internal/config"
	"quiz-widget-service/internal/infra/backend"
	"quiz-widget-service/internal/infra/memory"
	"quiz-widget-service/internal/infra/postgres"
	redisstore "quiz-widget-service/internal/infra/redis"
	"quiz-widget-service/internal/infra/sqlite"
	transport "quiz-widget-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz widget server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	service := app.NewQuizService(deps.sessions, deps.quizzes, app.WithRules(cfg.Rules()))

	router := transport.NewRouter(service, deps.auth, routerConfig(cfg, finalPort, deps))

	// no WriteTimeout: it would cut long-lived WebSocket connections
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz widget service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func routerConfig(cfg config.Config, port string, d *deps) transport.RouterConfig {
	baseURL := cfg.Server.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:" + port
	}
	return transport.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metadata: transport.ResourceMetadata{
			Resource:             baseURL,
			AuthorizationServers: cfg.Auth.AuthorizationServers,
			ScopesSupported:      cfg.Auth.Scopes,
		},
		AuthServer:     d.authServer,
		RequestTimeout: config.TTLDuration(cfg.Server.RequestTimeout, 30*time.Second),
	}
}

type deps struct {
	sessions   app.SessionRepository
	quizzes    app.QuizStore
	auth       transport.Authenticator
	authServer transport.AuthServerMetadataSource
	closers    []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDeps picks the storage backends from config. Saved quizzes go to the
// first configured of postgres, sqlite, and the remote backend, falling back
// to memory. Redis, when configured, holds sessions and caches saved quizzes.
func buildDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	d := &deps{}

	var backendClient *backend.Client
	if cfg.Backend.URL != "" {
		backendClient = backend.NewClient(backend.Options{
			BaseURL:    cfg.Backend.URL,
			AppName:    cfg.Backend.AppName,
			AppVersion: cfg.Backend.AppVersion,
			Timeout:    config.TTLDuration(cfg.Backend.Timeout, 10*time.Second),
		})
	}

	if backendClient != nil {
		d.authServer = backendClient
	}

	var store app.QuizStore
	switch {
	case cfg.Postgres.URL != "":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.closers = append(d.closers, pool.Close)
		store = postgres.NewQuizStore(pool)
		log.Printf("saved quizzes: postgres")
	case cfg.SQLite.Path != "":
		s, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = s.Close() })
		store = s
		log.Printf("saved quizzes: sqlite at %s", cfg.SQLite.Path)
	case backendClient != nil:
		store = backendClient
		log.Printf("saved quizzes: backend at %s", cfg.Backend.URL)
	default:
		store = memory.NewQuizStore()
		log.Printf("saved quizzes: in-memory")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Session.TTL, 2*time.Hour)

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			d.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		d.closers = append(d.closers, func() { _ = client.Close() })
		d.sessions = redisstore.NewSessionStore(client, config.TTLDuration(cfg.Redis.TTL, sessionTTL))
		d.quizzes = redisstore.NewQuizCache(client, store, quizTTL)
	} else {
		d.sessions = memory.NewSessionStore(sessionTTL)
		d.quizzes = memory.NewQuizCache(store, quizTTL)
	}

	switch cfg.Auth.Mode {
	case "", "static":
		d.auth = transport.StaticAuthenticator{}
	case "userinfo":
		if backendClient == nil {
			d.close()
			return nil, fmt.Errorf("auth mode userinfo requires backend.url")
		}
		d.auth = backendClient
	default:
		d.close()
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
	return d, nil
}
