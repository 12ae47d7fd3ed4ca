package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatterbox/internal/account"
	"github.com/chatterbox/internal/chat"
	"github.com/chatterbox/internal/config"
	"github.com/chatterbox/internal/handler"
	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/push"
	"github.com/chatterbox/internal/repository"
	"github.com/chatterbox/internal/repository/memory"
	"github.com/chatterbox/internal/startup"
	"github.com/chatterbox/internal/storage"
	sessionmem "github.com/chatterbox/internal/storage/memory"
	"github.com/chatterbox/internal/upload"
	"github.com/chatterbox/internal/ws"
	"github.com/chatterbox/migrations"
)

func main() {
	logger.SetPrefix("api")
	defer logger.Flush(2 * time.Second)
	migrate := flag.Bool("migrate", false, "apply database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	inMemory := flag.Bool("memory", false, "keep everything in process memory (no PostgreSQL or Redis)")
	flag.Parse()

	logger.Info("starting API service")
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store repository.Store
	if *inMemory {
		logger.Info("using in-memory store, data is lost on exit")
		store = memory.New()
	} else {
		if *dev {
			embeddedDB, err := startEmbeddedPostgres(cfg)
			if err != nil {
				logger.Errorf("embedded postgres: %v", err)
				os.Exit(1)
			}
			defer func() {
				logger.Info("stopping embedded postgres...")
				if err := embeddedDB.Stop(); err != nil {
					logger.Errorf("embedded postgres stop: %v", err)
				}
			}()
		}
		pool, err := openDatabase(ctx, cfg)
		if err != nil {
			logger.Errorf("%v", err)
			return
		}
		defer pool.Close()
		if *migrate {
			logger.Info("migrations applied, exiting")
			return
		}
		store = repository.NewPostgresStore(pool)
	}

	var sessions storage.SessionStore
	if *inMemory || cfg.Redis.URL == "" {
		logger.Info("sessions kept in memory")
		sessions = sessionmem.New()
	} else {
		rc, err := startup.ConnectRedisWithRetry(ctx, cfg.Redis.URL, 60*time.Second, "")
		if err != nil {
			logger.Errorf("%v", err)
			return
		}
		logger.Info("redis connected")
		sessions = rc
	}
	defer sessions.Close()

	images, uploads, err := openImageStore(ctx, cfg)
	if err != nil {
		logger.Errorf("%v", err)
		return
	}

	pushClient := push.NewClient(cfg.Push.ServiceURL, cfg.Push.InternalSecret)
	if !pushClient.Enabled() {
		logger.Info("PUSH_SERVICE_URL not set, mention alerts disabled")
	}

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(cfg.MaxWSConnections)
	svc := chat.NewService(store, hub, pushClient)
	hub.SetService(svc)
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	deps := handler.Deps{
		Accounts:           account.NewService(store, sessions, cfg.Session.TTL),
		Chat:               svc,
		Hub:                hub,
		Images:             images,
		Uploads:            uploads,
		Push:               pushClient,
		MaxUploadBytes:     cfg.Upload.MaxBytes(),
		CookieSecure:       cfg.Session.CookieSecure,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimit.RPS,
		RateLimitBurst:     cfg.RateLimit.Burst,
	}
	webDist := "./web/dist"
	if info, err := os.Stat(webDist); err == nil && info.IsDir() {
		deps.Static = spaHandler(webDist)
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	svc.Wait()
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// openDatabase connects to PostgreSQL and applies the embedded migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
	poolCfg.MinConns = min(4, poolCfg.MaxConns)

	pool, err := startup.ConnectDBWithRetry(ctx, poolCfg, 60*time.Second, "")
	if err != nil {
		return nil, err
	}
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := repository.Migrate(migrateCtx, pool, migrations.Files); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("database connected, migrations applied")
	return pool, nil
}

// openImageStore returns the configured image backend and, for the local one, the
// handler that serves stored files.
func openImageStore(ctx context.Context, cfg *config.Config) (upload.ImageStore, http.Handler, error) {
	if cfg.Upload.Backend == "minio" {
		st, err := upload.NewMinIOStore(ctx, upload.MinIOOptions{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
			PublicURL: cfg.MinIO.PublicURL,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("images stored in minio bucket %s", cfg.MinIO.Bucket)
		return st, nil, nil
	}
	local := upload.NewLocalStore(cfg.Upload.Dir)
	logger.Infof("images stored in %s", cfg.Upload.Dir)
	return local, local, nil
}

func spaHandler(dir string) http.HandlerFunc {
	fs := http.Dir(dir)
	fileServer := http.FileServer(fs)
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := fs.Open(path); err != nil {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
		} else {
			f.Close()
			fileServer.ServeHTTP(w, r)
		}
	}
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "chatterbox"
		password = "chatterbox_secret"
		database = "chatterbox"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "chatterbox-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
