package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/internal/api/handlers"
	"github.com/troikatech/voice-bridge/internal/relay"
	"github.com/troikatech/voice-bridge/pkg/auth"
	"github.com/troikatech/voice-bridge/pkg/docindex"
	"github.com/troikatech/voice-bridge/pkg/elevenlabs"
	"github.com/troikatech/voice-bridge/pkg/env"
	"github.com/troikatech/voice-bridge/pkg/logger"
	"github.com/troikatech/voice-bridge/pkg/middleware"
	"github.com/troikatech/voice-bridge/pkg/mongo"
	"github.com/troikatech/voice-bridge/pkg/otel"
	"github.com/troikatech/voice-bridge/pkg/twilio"
)

// BridgeServer wires the HTTP surface, the relay, and the side channels.
type BridgeServer struct {
	cfg         *env.Config
	redisClient *redis.Client
	mongoClient *mongo.Client
	handler     *handlers.Handler
}

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize OpenTelemetry if enabled
	if cfg.OTELEnabled {
		shutdown, err := otel.InitTracing("voice-bridge", "1.0.0", cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer shutdown()
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	logger.Log.Info("Starting Voice Bridge",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
	)

	// Initialize Redis
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Initialize MongoDB
	mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Log.Warn("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()

	// Accept a plaintext ADMIN_PASSWORD when no hash is configured, so local
	// setups don't need to pre-compute bcrypt hashes.
	if cfg.AdminPassHash == "" {
		if pw := os.Getenv("ADMIN_PASSWORD"); pw != "" {
			hash, err := auth.HashPassword(pw)
			if err != nil {
				logger.Log.Fatal("Failed to hash admin password", zap.Error(err))
			}
			cfg.AdminPassHash = hash
		}
	}

	// Initialize Twilio client
	twilioClient := twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, logger.Log)

	// Initialize agent connector
	connector := elevenlabs.NewConnector(
		cfg.ElevenLabsAPIKey,
		cfg.ElevenLabsAgentID,
		time.Duration(cfg.AgentConnectTimeoutS)*time.Second,
		logger.Log,
	)

	// Relay session registry
	registry := relay.NewRegistry()

	// Document keyword index, seeded from disk at boot
	docIndex := docindex.New()
	defer docIndex.Close()
	if _, err := docindex.SeedFromDir(docIndex, cfg.DocumentsPath, logger.Log); err != nil {
		logger.Log.Warn("Failed to seed document index", zap.Error(err))
	}

	// Outbound call throttle: burst of 5, one token back per 10s
	callBucket := middleware.NewTokenBucket(redisClient, 5, 1, 10*time.Second)

	apiHandler := handlers.NewHandler(cfg, redisClient, mongoClient, twilioClient, connector, registry, docIndex, callBucket)

	server := &BridgeServer{
		cfg:         cfg,
		redisClient: redisClient,
		mongoClient: mongoClient,
		handler:     apiHandler,
	}

	router := server.setupRouter()

	srv := &http.Server{
		Addr:        ":" + cfg.AppPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Long-lived WebSocket traffic; the upgrade hijacks the connection so
		// this only bounds plain HTTP responses.
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("Voice Bridge listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

func (s *BridgeServer) setupRouter() *gin.Engine {
	if s.cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20)) // 1 MB limit

	// Add OpenTelemetry middleware if enabled
	if s.cfg.OTELEnabled {
		router.Use(otel.GinMiddleware())
	}

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))

	// CORS
	corsConfig := cors.DefaultConfig()
	if s.cfg.CORSAllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{s.cfg.CORSAllowedOrigins}
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	rateLimiter := middleware.NewRateLimiter(s.redisClient, s.cfg.APIRateLimitRPM)
	authRateLimiter := middleware.NewAuthRateLimiter(s.redisClient, 5, 60, 300)

	// Health and metrics
	router.GET("/health", s.handler.HealthCheck)
	router.GET("/metrics", s.handler.GetMetrics)
	router.GET("/metrics/prometheus", s.handler.GetPrometheusMetrics)

	// Dial form and call origination (public, matching the service this
	// replaced; origination is throttled by the token bucket)
	router.GET("/", s.handler.Index)
	router.GET("/outbound-call", middleware.ValidatePhoneQuery("number"), s.handler.OutboundCall)

	// Twilio fetches TwiML with either verb depending on configuration
	router.GET("/outbound-call-twiml", s.handler.OutboundCallTwiML)
	router.POST("/outbound-call-twiml", s.handler.OutboundCallTwiML)

	// Media stream WebSocket (public wss://, no auth: Twilio connects directly)
	router.GET("/outbound-media-stream", s.handler.MediaStream)

	// Call status callbacks (public, signature verified)
	router.POST("/webhooks/twilio/status", s.handler.TwilioStatusWebhook)

	// Auth endpoints
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authRateLimiter.Middleware(), s.handler.Login)
	}

	// API endpoints (protected)
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(s.cfg.JWTSecret))
	api.Use(middleware.IdempotencyMiddleware(s.redisClient))
	api.Use(rateLimiter.Middleware())
	{
		calls := api.Group("/calls")
		{
			calls.GET("", s.handler.ListCalls)
			calls.GET("/:call_sid", middleware.ValidateCallSidParam("call_sid"), s.handler.GetCall)
		}

		documents := api.Group("/documents")
		{
			documents.POST("", middleware.RoleMiddleware("admin"), s.handler.IndexDocument)
			documents.GET("/search", s.handler.SearchDocuments)
		}
	}

	return router
}
