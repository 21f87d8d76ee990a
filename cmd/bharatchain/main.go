// Command bharatchain runs the consent-gated citizen data registry: the HTTP
// API, a gRPC health endpoint and the background dependency checker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/bharatchain/internal/audit"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/health"
	"github.com/jmerrifield20/bharatchain/internal/identity"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
	"github.com/jmerrifield20/bharatchain/internal/registry/handler"
	"github.com/jmerrifield20/bharatchain/internal/registry/repository"
	"github.com/jmerrifield20/bharatchain/internal/registry/service"
	"github.com/jmerrifield20/bharatchain/internal/webhooks"
	"github.com/jmerrifield20/bharatchain/internal/zkproof"
	"github.com/jmerrifield20/bharatchain/migrations"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const appName = "BharatChain"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// ledgerService is the gRPC health service name that mirrors chain status.
const ledgerService = "bharatchain.ledger"

func main() {
	fileFound, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bharatchain: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bharatchain: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	logger = logger.With(zap.String("instance", randomID()))
	if !fileFound {
		logger.Info("no config file found, using defaults and env vars")
	}

	if err := run(logger); err != nil {
		logger.Fatal("bharatchain exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting "+appName,
		zap.String("version", version),
		zap.String("environment", viper.GetString("environment")),
	)

	// ── Database (optional) ──────────────────────────────────────────────────
	var db *pgxpool.Pool
	if dbURL := viper.GetString("database.url"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		db = pool
		logger.Info("connected to postgres")

		if viper.GetBool("database.migrate_on_start") {
			n, err := migrations.Up(ctx, db, func(format string, args ...any) {
				logger.Info(fmt.Sprintf(format, args...))
			})
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied", zap.Int("count", n))
		}
	} else {
		logger.Warn("database.url not set; using in-memory stores (data is lost on restart)")
	}

	// ── Crypto ───────────────────────────────────────────────────────────────
	cipher, err := newCipher(logger)
	if err != nil {
		return fmt.Errorf("crypto setup: %w", err)
	}
	secret, err := jwtSecret(logger)
	if err != nil {
		return err
	}
	tokens, err := identity.NewCitizenTokenIssuer(secret, strings.ToLower(appName), viper.GetDuration("crypto.jwt_expiry"))
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}
	hasher := identity.NewHasher(secret, viper.GetInt("crypto.biometric_iterations"))
	logger.Info("crypto engine ready")

	// ── Chain ────────────────────────────────────────────────────────────────
	lcfg := ledgerConfig()
	rawChain, err := ledger.New(lcfg, db, logger)
	if err != nil {
		return err
	}
	connectCtx, cancel := context.WithTimeout(ctx, durationOr("chain.connect_timeout", 30*time.Second))
	err = rawChain.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect chain backend %q: %w", lcfg.Backend, err)
	}
	chain := ledger.Instrument(rawChain, handler.RecordLedgerWrite)

	if err := ledger.VerifyChain(ctx, chain); err != nil && !errors.Is(err, ledger.ErrVerifyUnsupported) {
		logger.Warn("chain integrity check FAILED", zap.Error(err))
	} else if err == nil {
		logger.Info("chain verified", zap.String("status", chain.Ping(ctx)))
	}

	// ── Stores ───────────────────────────────────────────────────────────────
	var (
		consentStore consent.Store
		auditStore   audit.Store
	)
	if db != nil {
		consentStore = consent.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
	} else {
		consentStore = consent.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
	}

	recorder := audit.NewRecorder(auditStore, logger)
	var publishers audit.Publishers
	if brokers := viper.GetStringSlice("audit.kafka_brokers"); len(brokers) > 0 {
		pub, err := audit.NewKafkaPublisher(brokers, viper.GetString("audit.kafka_topic"), logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := pub.EnsureTopic(ensureCtx, 3, 1); err != nil {
			logger.Warn("kafka: ensure audit topic", zap.Error(err))
		}
		cancel()
		publishers = append(publishers, pub)
		logger.Info("audit stream enabled", zap.Strings("brokers", brokers))
	}
	var dispatcher *webhooks.Dispatcher
	if urls := viper.GetStringSlice("audit.webhook_urls"); len(urls) > 0 {
		dispatcher = webhooks.NewDispatcher(webhookSubscriptions(urls), logger)
		dispatcher.SetMetricsRecorder(handler.RecordWebhookDelivery)
		publishers = append(publishers, dispatcher)
		logger.Info("audit webhooks enabled", zap.Int("endpoints", len(urls)))
	}
	if len(publishers) > 0 {
		recorder.SetPublisher(publishers)
	}

	// ── Grant cache ──────────────────────────────────────────────────────────
	cacheTTL := durationOr("consent.cache_ttl", 30*time.Second)
	var (
		grantCache consent.GrantCache
		memCache   *consent.MemoryCache
		rdb        *redis.Client
	)
	if redisURL := viper.GetString("redis.url"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("parse redis.url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		rc := consent.NewRedisCache(rdb, cacheTTL)
		rc.OnError = func(op string, err error) {
			logger.Warn("grant cache", zap.String("op", op), zap.Error(err))
		}
		grantCache = rc
		logger.Info("grant cache: redis", zap.String("addr", opts.Addr))
	} else {
		memCache = consent.NewMemoryCache(cacheTTL)
		grantCache = memCache
		logger.Info("grant cache: in-process")
	}

	// ── Services ─────────────────────────────────────────────────────────────
	var citizenSvc *service.CitizenService
	var recordSvc *service.RecordService

	consentSvc := consent.NewService(consentStore, chain, consent.NewEngine(logger), consent.Config{
		MaxDurationDays:     viper.GetInt("consent.max_duration_days"),
		DefaultDurationDays: viper.GetInt("consent.default_duration_days"),
		TxTimeout:           consentTxTimeout(lcfg),
	}, logger)
	consentSvc.SetCache(grantCache)
	consentSvc.SetAuditor(recorder)
	consentSvc.SetMetricsRecord(handler.RecordConsentOp)
	consentSvc.SetDecisionRecord(handler.RecordPermissionDecision)

	if db != nil {
		citizenSvc = service.NewCitizenService(repository.NewCitizenRepository(db), hasher, cipher, chain, logger)
	} else {
		citizenSvc = service.NewCitizenService(repository.NewMemoryCitizenRepository(), hasher, cipher, chain, logger)
	}
	citizenSvc.SetAuditor(recorder)
	citizenSvc.SetTokenIssuer(tokens)
	consentSvc.SetProofVerifier(citizenSvc)

	if db != nil {
		recordSvc = service.NewRecordService(repository.NewRecordRepository(db), citizenSvc, consentSvc, cipher, chain, logger)
	} else {
		recordSvc = service.NewRecordService(repository.NewMemoryRecordRepository(), citizenSvc, consentSvc, cipher, chain, logger)
	}
	recordSvc.SetAuditor(recorder)
	recordSvc.SetMetricsRecord(handler.RecordRecordOp)

	zkSvc := service.NewZKService(citizenSvc, recordSvc, zkproof.NewStubProver(logger), logger)
	zkSvc.SetAuditor(recorder)

	// ── gRPC health ──────────────────────────────────────────────────────────
	grpcServer := grpc.NewServer()
	healthSrv := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(ledgerService, grpc_health_v1.HealthCheckResponse_SERVING)

	// ── Dependency checker ───────────────────────────────────────────────────
	targets := []health.Target{{Name: "chain", Probe: health.LedgerProbe(chain)}}
	if db != nil {
		targets = append(targets, health.Target{Name: "database", Probe: health.PingProbe(db)})
	}
	if rdb != nil {
		targets = append(targets, health.Target{Name: "redis", Probe: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	checker := health.New(targets, health.Config{
		CheckInterval: durationOr("health.check_interval", time.Minute),
	}, logger)
	checker.SetMetricsRecord(handler.RecordHealthCheck)
	checker.SetTransition(func(target, status string) {
		if target != "chain" {
			return
		}
		st := grpc_health_v1.HealthCheckResponse_SERVING
		if status == health.StatusDegraded {
			st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		healthSrv.SetServingStatus(ledgerService, st)
	})

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	origins := viper.GetStringSlice("server.allowed_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))

	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	router.Use(handler.RateLimiter(ctx, viper.GetInt("server.rate_limit_per_minute")))
	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/metrics", handler.MetricsHandler())

	var dbPinger health.Pinger
	if db != nil {
		dbPinger = db
	}
	statusHandler := handler.NewStatusHandler(handler.StatusInfo{
		System:  appName,
		Version: version,
		Backend: lcfg.Backend,
	}, chain, cipher, dbPinger, logger)
	statusHandler.SetChecker(checker)

	root := router.Group("")
	statusHandler.Register(root)
	handler.NewIdentityHandler(citizenSvc, tokens, logger).Register(root)
	handler.NewConsentHandler(consentSvc, recorder, tokens, logger).Register(root)
	handler.NewRecordHandler(recordSvc, logger).Register(root)
	handler.NewZKHandler(zkSvc, logger).Register(root)
	handler.NewChainHandler(chain, logger).Register(root)

	// ── Run ──────────────────────────────────────────────────────────────────
	httpPort := viper.GetInt("server.port")
	grpcPort := viper.GetInt("server.grpc_port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("gRPC listen on :%d: %w", grpcPort, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(appName+" HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info(appName+" gRPC health listening", zap.Int("port", grpcPort))
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error { return checker.Start(gctx) })
	if memCache != nil {
		g.Go(func() error {
			ticker := time.NewTicker(cacheTTL)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					memCache.Evict()
				case <-gctx.Done():
					return nil
				}
			}
		})
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down " + appName + "...")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", zap.Error(err))
		}
		grpcServer.GracefulStop()
		if dispatcher != nil {
			dispatcher.Wait()
		}
		if err := chain.Disconnect(shutdownCtx); err != nil {
			logger.Error("chain disconnect error", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info(appName + " stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
