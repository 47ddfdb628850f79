// Command server starts the ClipTube API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cliptube/internal/api"
	"cliptube/internal/auth"
	"cliptube/internal/media"
	"cliptube/internal/observability/logging"
	"cliptube/internal/observability/metrics"
	"cliptube/internal/server"
	"cliptube/internal/serverutil"
	"cliptube/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when establishing a Postgres connection")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	mediaDriver := flag.String("media-driver", "", "media store driver (file or s3)")
	mediaDir := flag.String("media-dir", "", "directory for locally stored uploads")
	mediaPublicBase := flag.String("media-public-base", "", "public URL prefix for locally stored uploads")
	s3Endpoint := flag.String("s3-endpoint", "", "S3 endpoint for media storage (e.g. http://127.0.0.1:9000)")
	s3PublicEndpoint := flag.String("s3-public-endpoint", "", "public endpoint used in stored media URLs")
	s3Bucket := flag.String("s3-bucket", "", "S3 bucket for media storage")
	s3Prefix := flag.String("s3-prefix", "", "S3 key prefix for media objects")
	s3Region := flag.String("s3-region", "", "S3 region")
	s3AccessKey := flag.String("s3-access-key", "", "S3 access key")
	s3SecretKey := flag.String("s3-secret-key", "", "S3 secret key")
	s3UseSSL := flag.Bool("s3-use-ssl", false, "enable TLS for S3 requests")
	accessTTL := flag.Duration("access-ttl", 0, "access token lifetime")
	refreshTTL := flag.Duration("refresh-ttl", 0, "refresh token lifetime")
	purgeInterval := flag.Duration("refresh-purge-interval", 0, "interval between expired refresh token sweeps")
	cookieSecure := flag.String("cookie-secure", "", "auth cookie Secure flag policy (auto or always)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	studioOrigins := flag.String("studio-origins", "", "comma separated origins allowed for the creator studio UI")
	viewerOrigins := flag.String("viewer-origins", "", "comma separated origins allowed for the viewer UI")
	embedOrigins := flag.String("embed-origins", "", "comma separated sites allowed to embed the player")
	cspMediaSources := flag.String("csp-media-sources", "", "comma separated extra media-src hosts, e.g. the media CDN")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CLIPTUBE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CLIPTUBE_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openDatastore(ctx, datastoreSettings{
		driver:          firstNonEmpty(*storageDriver, os.Getenv("CLIPTUBE_STORAGE_DRIVER")),
		dataPath:        *dataPath,
		postgresDSN:     resolvePostgresDSN(*postgresDSN),
		maxConns:        resolveInt(*postgresMaxConns, "CLIPTUBE_POSTGRES_MAX_CONNS"),
		minConns:        resolveInt(*postgresMinConns, "CLIPTUBE_POSTGRES_MIN_CONNS"),
		maxConnLifetime: resolveDuration(*postgresMaxConnLifetime, "CLIPTUBE_POSTGRES_MAX_CONN_LIFETIME", 0),
		maxConnIdle:     resolveDuration(*postgresMaxConnIdle, "CLIPTUBE_POSTGRES_MAX_CONN_IDLE", 0),
		healthInterval:  resolveDuration(*postgresHealthInterval, "CLIPTUBE_POSTGRES_HEALTH_INTERVAL", 0),
		connectTimeout:  resolveDuration(*postgresConnectTimeout, "CLIPTUBE_POSTGRES_CONNECT_TIMEOUT", 0),
		appName:         firstNonEmpty(*postgresAppName, os.Getenv("CLIPTUBE_POSTGRES_APP_NAME")),
	})
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  []byte(os.Getenv("CLIPTUBE_ACCESS_SECRET")),
		RefreshSecret: []byte(os.Getenv("CLIPTUBE_REFRESH_SECRET")),
		AccessTTL:     resolveDuration(*accessTTL, "CLIPTUBE_ACCESS_TTL", 0),
		RefreshTTL:    resolveDuration(*refreshTTL, "CLIPTUBE_REFRESH_TTL", 0),
	})
	if err != nil {
		logger.Error("failed to configure token issuer", "error", err)
		os.Exit(1)
	}
	sessions, err := auth.NewSessionManager(store, issuer)
	if err != nil {
		logger.Error("failed to configure sessions", "error", err)
		os.Exit(1)
	}

	mediaStore, localMediaDir, err := openMediaStore(mediaSettings{
		driver:      firstNonEmpty(*mediaDriver, os.Getenv("CLIPTUBE_MEDIA_DRIVER")),
		dir:         firstNonEmpty(*mediaDir, os.Getenv("CLIPTUBE_MEDIA_DIR")),
		publicBase:  firstNonEmpty(*mediaPublicBase, os.Getenv("CLIPTUBE_MEDIA_PUBLIC_BASE")),
		s3Endpoint:  firstNonEmpty(*s3Endpoint, os.Getenv("CLIPTUBE_S3_ENDPOINT")),
		s3Public:    firstNonEmpty(*s3PublicEndpoint, os.Getenv("CLIPTUBE_S3_PUBLIC_ENDPOINT")),
		s3Bucket:    firstNonEmpty(*s3Bucket, os.Getenv("CLIPTUBE_S3_BUCKET")),
		s3Prefix:    firstNonEmpty(*s3Prefix, os.Getenv("CLIPTUBE_S3_PREFIX")),
		s3Region:    firstNonEmpty(*s3Region, os.Getenv("CLIPTUBE_S3_REGION")),
		s3AccessKey: firstNonEmpty(*s3AccessKey, os.Getenv("CLIPTUBE_S3_ACCESS_KEY")),
		s3SecretKey: firstNonEmpty(*s3SecretKey, os.Getenv("CLIPTUBE_S3_SECRET_KEY")),
		s3UseSSL:    resolveBool(*s3UseSSL, "CLIPTUBE_S3_USE_SSL"),
	})
	if err != nil {
		logger.Error("failed to configure media store", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, sessions, mediaStore)
	if policy, err := resolveCookiePolicy(firstNonEmpty(*cookieSecure, os.Getenv("CLIPTUBE_COOKIE_SECURE"))); err != nil {
		logger.Error("invalid cookie policy", "error", err)
		os.Exit(1)
	} else {
		handler.CookiePolicy = policy
	}

	listenAddr := firstNonEmpty(*addr, os.Getenv("CLIPTUBE_ADDR"))
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "CLIPTUBE_RATE_GLOBAL_RPS"),
			GlobalBurst:   resolveInt(*globalBurst, "CLIPTUBE_RATE_GLOBAL_BURST"),
			LoginLimit:    resolveInt(*loginLimit, "CLIPTUBE_RATE_LOGIN_LIMIT"),
			LoginWindow:   resolveDuration(*loginWindow, "CLIPTUBE_RATE_LOGIN_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("CLIPTUBE_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("CLIPTUBE_RATE_REDIS_PASSWORD")),
			RedisTimeout:  resolveDuration(*redisTimeout, "CLIPTUBE_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			StudioOrigins: splitAndTrim(firstNonEmpty(*studioOrigins, os.Getenv("CLIPTUBE_STUDIO_ORIGINS"))),
			ViewerOrigins: splitAndTrim(firstNonEmpty(*viewerOrigins, os.Getenv("CLIPTUBE_VIEWER_ORIGINS"))),
		},
		Security: server.SecurityConfig{
			EmbedOrigins: splitAndTrim(firstNonEmpty(*embedOrigins, os.Getenv("CLIPTUBE_EMBED_ORIGINS"))),
			MediaSources: splitAndTrim(firstNonEmpty(*cspMediaSources, os.Getenv("CLIPTUBE_CSP_MEDIA_SOURCES"))),
		},
		Logger:   logger,
		Metrics:  recorder,
		MediaDir: localMediaDir,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("ClipTube API listening", "addr", listenAddr)
		logger.Info("metrics endpoint available", "path", "/metrics")
		return serverutil.Run(groupCtx, serverutil.Config{
			Server: srv,
			TLS: serverutil.TLSConfig{
				CertFile: firstNonEmpty(*tlsCert, os.Getenv("CLIPTUBE_TLS_CERT")),
				KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("CLIPTUBE_TLS_KEY")),
			},
		})
	})
	group.Go(func() error {
		interval := resolveDuration(*purgeInterval, "CLIPTUBE_REFRESH_PURGE_INTERVAL", 15*time.Minute)
		runRefreshTokenSweeper(groupCtx, store, recorder, logging.WithComponent(logger, "token-sweeper"), interval)
		return nil
	})

	err = group.Wait()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closeErr := store.Close(shutdownCtx); closeErr != nil {
		logger.Warn("failed to close datastore", "error", closeErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// runRefreshTokenSweeper clears refresh tokens whose expiry has passed so a
// stolen but expired token can never linger as the stored comparison value.
func runRefreshTokenSweeper(ctx context.Context, store storage.Repository, recorder *metrics.Recorder, logger *slog.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := store.PurgeExpiredRefreshTokens(ctx, time.Now())
			if err != nil {
				logger.Warn("refresh token sweep failed", "error", err)
				continue
			}
			if purged > 0 {
				recorder.ObservePurgedTokens(purged)
				logger.Info("purged expired refresh tokens", "count", purged)
			}
		}
	}
}

type datastoreSettings struct {
	driver          string
	dataPath        string
	postgresDSN     string
	maxConns        int
	minConns        int
	maxConnLifetime time.Duration
	maxConnIdle     time.Duration
	healthInterval  time.Duration
	connectTimeout  time.Duration
	appName         string
}

func openDatastore(ctx context.Context, settings datastoreSettings) (storage.Repository, error) {
	driver := strings.ToLower(strings.TrimSpace(settings.driver))
	if driver == "" {
		if settings.postgresDSN != "" {
			driver = "postgres"
		} else {
			driver = "json"
		}
	}
	switch driver {
	case "json":
		dataFile := firstNonEmpty(settings.dataPath, os.Getenv("CLIPTUBE_DATA"))
		if dataFile == "" {
			dataFile = "data/store.json"
		}
		return storage.NewStorage(dataFile)
	case "postgres":
		if settings.postgresDSN == "" {
			return nil, fmt.Errorf("postgres storage selected without DSN")
		}
		var opts []storage.PostgresOption
		if settings.maxConns > 0 {
			opts = append(opts, storage.WithMaxConnections(int32(settings.maxConns)))
		}
		if settings.minConns > 0 {
			opts = append(opts, storage.WithMinConnections(int32(settings.minConns)))
		}
		if settings.maxConnLifetime > 0 || settings.maxConnIdle > 0 {
			opts = append(opts, storage.WithConnLifetimes(settings.maxConnLifetime, settings.maxConnIdle))
		}
		if settings.healthInterval > 0 {
			opts = append(opts, storage.WithHealthCheckInterval(settings.healthInterval))
		}
		if settings.connectTimeout > 0 {
			opts = append(opts, storage.WithConnectTimeout(settings.connectTimeout))
		}
		if settings.appName != "" {
			opts = append(opts, storage.WithApplicationName(settings.appName))
		}
		return storage.NewPostgresRepository(ctx, settings.postgresDSN, opts...)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

type mediaSettings struct {
	driver      string
	dir         string
	publicBase  string
	s3Endpoint  string
	s3Public    string
	s3Bucket    string
	s3Prefix    string
	s3Region    string
	s3AccessKey string
	s3SecretKey string
	s3UseSSL    bool
}

// openMediaStore returns the configured store plus the local directory to
// serve statically, which is empty for remote backends.
func openMediaStore(settings mediaSettings) (media.Store, string, error) {
	driver := strings.ToLower(strings.TrimSpace(settings.driver))
	if driver == "" {
		if settings.s3Endpoint != "" || settings.s3Bucket != "" {
			driver = "s3"
		} else {
			driver = "file"
		}
	}
	switch driver {
	case "file":
		dir := settings.dir
		if dir == "" {
			dir = "data/media"
		}
		base := settings.publicBase
		if base == "" {
			base = "/media"
		}
		store, err := media.NewFileStore(dir, base)
		if err != nil {
			return nil, "", err
		}
		return store, store.BaseDir(), nil
	case "s3":
		store, err := media.NewS3Store(media.S3Config{
			Endpoint:       settings.s3Endpoint,
			PublicEndpoint: settings.s3Public,
			Bucket:         settings.s3Bucket,
			Prefix:         settings.s3Prefix,
			Region:         settings.s3Region,
			AccessKey:      settings.s3AccessKey,
			SecretKey:      settings.s3SecretKey,
			UseSSL:         settings.s3UseSSL,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		return nil, "", fmt.Errorf("unsupported media driver %q", driver)
	}
}

func resolveCookiePolicy(mode string) (api.AuthCookiePolicy, error) {
	policy := api.DefaultAuthCookiePolicy()
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		policy.SecureMode = api.AuthCookieSecureAuto
	case "always":
		policy.SecureMode = api.AuthCookieSecureAlways
	default:
		return api.AuthCookiePolicy{}, fmt.Errorf("unsupported cookie secure mode %q", mode)
	}
	return policy, nil
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("CLIPTUBE_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	return fallback
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
