package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/api"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/auth"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/config"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/dataflow"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/flowstore"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/inference"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/presets"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/tracing"
	"github.com/flexinfer/mentatlab/services/workbench-go/internal/validator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workbench HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var servePort string

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "Listen port (default from PORT)")
}

// stores bundles the persistence backends selected by configuration.
type stores struct {
	workflows flowstore.Store
	registry  registry.Registry
	presets   presets.Store
	closer    io.Closer
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if servePort != "" {
		cfg.Port = servePort
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info("starting workbench",
		slog.String("version", version),
		slog.String("port", cfg.Port),
		slog.String("store", cfg.StoreType),
		slog.String("artifacts", cfg.ArtifactBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcfg := tracing.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.Enabled = cfg.TracingEnabled
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tcfg.SampleRate = cfg.TracingSampleRate
	tp, err := tracing.Init(ctx, tcfg, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.closer.Close()

	schemas, err := validator.New()
	if err != nil {
		return fmt.Errorf("create validator: %w", err)
	}

	artifacts, err := dataflow.New(&dataflow.Config{
		Type:            cfg.ArtifactBackend,
		Endpoint:        cfg.S3Endpoint,
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		UseSSL:          cfg.S3UseSSL,
		PathPrefix:      cfg.ArtifactPrefix,
	})
	if err != nil {
		return fmt.Errorf("create artifact backend: %w", err)
	}

	loader := registry.NewLoader(st.registry, schemas, logger)
	if cfg.CatalogPath != "" {
		if err := loadCatalog(ctx, loader, artifacts, cfg.CatalogPath, logger); err != nil {
			return err
		}
	}

	handlers := api.NewHandlers(api.Deps{
		Workflows: st.workflows,
		Registry:  st.registry,
		Presets:   st.presets,
		Artifacts: artifacts,
		Schemas:   schemas,
		Cache:     inference.NewCache(cfg.CacheSize),
	}, cfg, logger)

	limiter := auth.NewPerIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	opts := []api.Option{
		api.WithRateLimiter(limiter),
		api.WithTracing(tp.Enabled()),
	}
	if cfg.AuthEnabled {
		verifier, err := newVerifier(ctx, cfg)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithAuth(auth.NewMiddleware(verifier, &auth.MiddlewareConfig{
			Enabled:       true,
			RequiredRoles: cfg.RequiredRoles,
			Logger:        logger,
		})))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewServer(handlers, opts...).Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return limiter.Run(gctx, time.Minute)
	})
	if cfg.CatalogWatch && cfg.CatalogPath != "" && !isURI(cfg.CatalogPath) {
		g.Go(func() error {
			return loader.Watch(gctx, cfg.CatalogPath)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server stopped")
	return err
}

// openStores connects the workflow, metadata and preset stores. The redis
// backends share one client.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.StoreType != "redis" {
		logger.Info("using in-memory stores")
		wf := flowstore.NewMemoryStore()
		reg := registry.NewMemoryRegistry()
		ps := presets.NewMemoryStore()
		return &stores{
			workflows: wf,
			registry:  reg,
			presets:   ps,
			closer:    closerFunc(func() error { return errors.Join(wf.Close(), reg.Close(), ps.Close()) }),
		}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB != 0 {
		opts.DB = cfg.RedisDB
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}
	logger.Info("using redis stores", slog.String("addr", opts.Addr), slog.Int("db", opts.DB))

	return &stores{
		workflows: flowstore.NewRedisStoreWithClient(client),
		registry:  registry.NewRedisRegistryFromClient(client),
		presets:   presets.NewRedisStoreWithClient(client),
		closer:    client,
	}, nil
}

// loadCatalog seeds the registry from a file path or an artifact URI.
func loadCatalog(ctx context.Context, loader *registry.Loader, artifacts *dataflow.Service, path string, logger *slog.Logger) error {
	var err error
	if isURI(path) {
		var data []byte
		data, err = artifacts.LoadDocument(ctx, path)
		if err == nil {
			var n int
			n, err = loader.ReplaceBytes(ctx, data)
			if err == nil {
				logger.Info("catalog loaded", slog.String("uri", path), slog.Int("entries", n))
			}
		}
	} else {
		_, err = loader.LoadFile(ctx, path)
	}

	if err != nil {
		metrics.CatalogReloads.WithLabelValues("error").Inc()
		return fmt.Errorf("load catalog: %w", err)
	}
	metrics.CatalogReloads.WithLabelValues("ok").Inc()
	return nil
}

// newVerifier chains the configured token verifiers: service tokens first,
// then OIDC.
func newVerifier(ctx context.Context, cfg *config.Config) (auth.Verifier, error) {
	var chain auth.Chain
	if cfg.ServiceTokenSecret != "" {
		tokens, err := auth.NewServiceTokens(cfg.ServiceTokenSecret, auth.DefaultServiceIssuer)
		if err != nil {
			return nil, fmt.Errorf("service tokens: %w", err)
		}
		chain = append(chain, tokens)
	}
	if cfg.OIDCIssuer != "" {
		provider, err := auth.NewProvider(ctx, &auth.Config{
			Issuer:   cfg.OIDCIssuer,
			ClientID: cfg.OIDCClientID,
		})
		if err != nil {
			return nil, fmt.Errorf("oidc provider: %w", err)
		}
		chain = append(chain, provider)
	}
	return chain, nil
}

func isURI(path string) bool {
	return strings.Contains(path, "://")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
