package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/vishal065/BookBazaar-masterji/internal/app"
	"github.com/vishal065/BookBazaar-masterji/internal/config"
	"github.com/vishal065/BookBazaar-masterji/internal/metrics"
	"github.com/vishal065/BookBazaar-masterji/internal/server"
	"github.com/vishal065/BookBazaar-masterji/internal/util"
	"github.com/vishal065/BookBazaar-masterji/pkg/notify"
	"github.com/vishal065/BookBazaar-masterji/pkg/queue"
	"github.com/vishal065/BookBazaar-masterji/pkg/storage"
	"github.com/vishal065/BookBazaar-masterji/pkg/store"
)

var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "bookbazaar",
		Short:         "BookBazaar online bookstore API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (env BOOKBAZAAR_CONFIG)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.ResolvePath(*configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			util.InitLogger(cfg.LogLevel)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.ResolvePath(*configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			util.InitLogger(cfg.LogLevel)
			if cfg.DatabaseURL == "" {
				return errors.New("migrate: databaseURL is required (set DATABASE_URL)")
			}
			gs, err := store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			slog.Info("migrations applied")
			return gs.Close()
		},
	}
}

func serve(ctx context.Context, cfg config.FileConfig) error {
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		return err
	}
	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		return err
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	m := metrics.New()

	var st store.Store
	if cfg.DatabaseURL != "" {
		gs, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer gs.Close()
		st = gs
	} else {
		slog.Warn("databaseURL not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	var (
		rdb       redis.UniversalClient
		revoker   store.TokenRevoker
		mailQueue *queue.MailQueue
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		revoker = store.NewRedisTokenRevoker(rdb)
		mailQueue, err = queue.NewMailQueue(rdb, queue.MailQueueConfig{Observe: m.MailJob})
		if err != nil {
			return fmt.Errorf("mail queue: %w", err)
		}
	} else {
		slog.Warn("redisAddr not set, rate limiting disabled and mail sent inline")
	}

	var objects storage.ObjectStore
	if cfg.Minio.Endpoint != "" {
		ms, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("minio: %w", err)
		}
		objects = ms
	}

	var mailer notify.Mailer = notify.LogMailer{}
	if cfg.Mail.Host != "" {
		sm, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:      cfg.Mail.Host,
			Port:      cfg.Mail.Port,
			Username:  cfg.Mail.User,
			Password:  cfg.Mail.Pass,
			FromName:  cfg.Mail.FromName,
			FromEmail: cfg.Mail.FromEmail,
		})
		if err != nil {
			return fmt.Errorf("smtp mailer: %w", err)
		}
		mailer = sm
	}
	dispatcher := notify.NewDispatcher(mailer, mailQueue, m.MailJob)

	appCore, err := app.New(app.Config{
		Store:         st,
		JWTSecret:     cfg.JWTSecret,
		JWTOptions:    store.JWTOptions{Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience, Leeway: leeway},
		SessionTTL:    sessionTTL,
		Revoker:       revoker,
		Objects:       objects,
		CoverMaxBytes: cfg.CoverMaxBytes,
		Notifier:      dispatcher,
		Metrics:       m,
		SuperAdminKey: cfg.SuperAdminKey,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	api, err := server.New(server.Config{
		App:                      appCore,
		Metrics:                  m,
		Production:               cfg.IsProduction(),
		TrustedProxies:           trusted,
		CORSAllowedOrigins:       cfg.CORSAllowedOrigins,
		MaxCoverBytes:            cfg.CoverMaxBytes,
		Redis:                    rdb,
		SignupRateLimitPerMinute: cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
		OrderRateLimitPerMinute:  cfg.OrderRateLimitPerMinute,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return dispatcher.Run(gctx, cfg.MailConcurrency)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
