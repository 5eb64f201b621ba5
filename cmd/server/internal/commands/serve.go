package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/okrd/internal/api"
	"github.com/wolfeidau/okrd/internal/auth"
	httpmiddleware "github.com/wolfeidau/okrd/internal/http"
	"github.com/wolfeidau/okrd/internal/idp"
	"github.com/wolfeidau/okrd/internal/logger"
	"github.com/wolfeidau/okrd/internal/mcp"
	"github.com/wolfeidau/okrd/internal/store"
	memorystore "github.com/wolfeidau/okrd/internal/store/memory"
	postgresstore "github.com/wolfeidau/okrd/internal/store/postgres"
	"github.com/wolfeidau/okrd/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"OKRD_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"OKRD_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"OKRD_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"OKRD_CORS_ORIGINS"`

	// Identity platform configuration
	IdP IdPFlags `embed:"" prefix:"idp-"`

	// Operational modes
	Telemetry bool `help:"enable tracing and metrics export" default:"false" env:"OKRD_TELEMETRY"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"OKRD_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type IdPFlags struct {
	Domain        string `help:"identity platform base URL" env:"OKRD_IDP_DOMAIN"`
	ProjectID     string `help:"identity platform project ID" env:"OKRD_IDP_PROJECT_ID"`
	ProjectSecret string `help:"identity platform project secret" env:"OKRD_IDP_PROJECT_SECRET"`
}

func (f *IdPFlags) Validate() error {
	if f.Domain == "" {
		return errors.New("identity platform domain is required (--idp-domain or OKRD_IDP_DOMAIN)")
	}
	if f.ProjectID == "" {
		return errors.New("identity platform project ID is required (--idp-project-id or OKRD_IDP_PROJECT_ID)")
	}
	if f.ProjectSecret == "" {
		return errors.New("identity platform project secret is required (--idp-project-secret or OKRD_IDP_PROJECT_SECRET)")
	}
	return nil
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	ConnectTimeout  int32 `help:"connection timeout in seconds" default:"10"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"OKRD_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Dev)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("dev", globals.Dev).Msg("Starting server")

	// Setup telemetry if enabled
	if c.Telemetry {
		log.Info().Msg("Telemetry is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "okrd", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Identity platform client handles session authentication, access
	// token introspection and policy checks
	if err := c.IdP.Validate(); err != nil {
		return err
	}
	idpClient, err := idp.NewClient(ctx, idp.Config{
		Domain:        c.IdP.Domain,
		ProjectID:     c.IdP.ProjectID,
		ProjectSecret: c.IdP.ProjectSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to create identity platform client: %w", err)
	}

	tenantStore, cleanup, err := c.createTenantStore(ctx, log)
	if err != nil {
		return err
	}
	defer cleanup()

	gate := auth.NewGate(idpClient)

	okrAPI := api.New(tenantStore, idpClient)
	agentServer := mcp.New(tenantStore, gate, globals.Version)

	r := chi.NewRouter()
	r.Use(httpmiddleware.ClientIPMiddleware())
	r.Use(logger.Requests(log))

	// Session-authenticated REST surface
	r.Mount("/api", okrAPI.Routes())

	// Agent endpoint binds connection identity once via bearer token,
	// then authorizes each tool call separately
	r.Handle("/mcp", auth.BearerMiddleware(idpClient)(agentServer.Handler()))

	// OAuth protected resource metadata lets agent clients discover
	// where to obtain credentials
	r.Get("/.well-known/oauth-protected-resource", protectedResourceMetadata(idpClient))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handler := withCORS(c.CORSOrigins, r)
	srv := configureHTTPServer(c.Listen, handler)

	return c.serve(srv, log)
}

// serve runs the HTTP server until SIGINT or SIGTERM, then drains
// in-flight requests.
func (c *ServeCmd) serve(srv *http.Server, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if c.Cert != "" && c.Key != "" {
			log.Info().Str("addr", c.Listen).Msg("Starting HTTPS server")
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (c *ServeCmd) createTenantStore(ctx context.Context, log zerolog.Logger) (store.TenantStore, func(), error) {
	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return nil, nil, err
		}
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			ConnectTimeout:  c.PostgresStore.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		tenantStore, err := postgresstore.NewTenantStore(ctx, pool, c.PostgresStore.AutoMigrate)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to create postgres tenant store: %w", err)
		}
		log.Info().Msg("Using PostgreSQL tenant store")
		return tenantStore, pool.Close, nil

	default:
		log.Info().Msg("Using in-memory tenant store")
		return memorystore.NewTenantStore(), func() {}, nil
	}
}

// protectedResourceMetadata serves the OAuth protected resource document
// naming the identity platform as the authorization server.
func protectedResourceMetadata(idpClient *idp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		doc := map[string]any{
			"resource":              fmt.Sprintf("%s://%s", scheme, r.Host),
			"authorization_servers": []string{idpClient.Domain()},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}
}

func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-ID"},
		ExposedHeaders:   []string{"Mcp-Session-Id"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}
