package test

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/internal/api/handlers"
	"github.com/troikatech/voice-bridge/internal/relay"
	"github.com/troikatech/voice-bridge/pkg/docindex"
	"github.com/troikatech/voice-bridge/pkg/elevenlabs"
	"github.com/troikatech/voice-bridge/pkg/env"
	"github.com/troikatech/voice-bridge/pkg/middleware"
	"github.com/troikatech/voice-bridge/pkg/mongo"
	"github.com/troikatech/voice-bridge/pkg/twilio"
)

// buildTestRouter creates a router for testing (simplified version of the
// bridge server)
func buildTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	// Mock dependencies (in real tests, use test doubles)
	cfg := &env.Config{
		JWTSecret: "test-secret",
	}
	mongoClient, _ := mongo.NewClient("mongodb://localhost:27017", "test")
	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	logger := zap.NewNop()
	twilioClient := twilio.NewClient("", "", logger)
	connector := elevenlabs.NewConnector("", "", 5*time.Second, logger)
	registry := relay.NewRegistry()
	docIndex := docindex.New()
	callBucket := middleware.NewTokenBucket(redisClient, 5, 1, 10*time.Second)

	h := handlers.NewHandler(cfg, redisClient, mongoClient, twilioClient, connector, registry, docIndex, callBucket)
	rateLimiter := middleware.NewRateLimiter(redisClient, 60)
	authRateLimiter := middleware.NewAuthRateLimiter(redisClient, 5, 60, 300)

	// Register routes (matching bridge server structure)
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", h.GetMetrics)
	router.GET("/metrics/prometheus", h.GetPrometheusMetrics)

	router.GET("/", h.Index)
	router.GET("/outbound-call", middleware.ValidatePhoneQuery("number"), h.OutboundCall)
	router.GET("/outbound-call-twiml", h.OutboundCallTwiML)
	router.POST("/outbound-call-twiml", h.OutboundCallTwiML)
	router.GET("/outbound-media-stream", h.MediaStream)
	router.POST("/webhooks/twilio/status", h.TwilioStatusWebhook)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authRateLimiter.Middleware(), h.Login)
	}

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	api.Use(middleware.IdempotencyMiddleware(redisClient))
	api.Use(rateLimiter.Middleware())
	{
		calls := api.Group("/calls")
		{
			calls.GET("", h.ListCalls)
			calls.GET("/:call_sid", middleware.ValidateCallSidParam("call_sid"), h.GetCall)
		}

		documents := api.Group("/documents")
		{
			documents.POST("", middleware.RoleMiddleware("admin"), h.IndexDocument)
			documents.GET("/search", h.SearchDocuments)
		}
	}

	return router
}

// Expected routes from the bridge server
var expectedRoutes = []struct {
	method string
	path   string
}{
	// Health & Metrics
	{"GET", "/health"},
	{"GET", "/metrics"},
	{"GET", "/metrics/prometheus"},

	// Dial form & call origination
	{"GET", "/"},
	{"GET", "/outbound-call"},
	{"GET", "/outbound-call-twiml"},
	{"POST", "/outbound-call-twiml"},

	// Media stream
	{"GET", "/outbound-media-stream"},

	// Webhooks
	{"POST", "/webhooks/twilio/status"},

	// Auth
	{"POST", "/auth/login"},

	// Calls
	{"GET", "/api/calls"},
	{"GET", "/api/calls/:call_sid"},

	// Documents
	{"POST", "/api/documents"},
	{"GET", "/api/documents/search"},
}

func Test_Routes_Registered(t *testing.T) {
	r := buildTestRouter()
	routes := r.Routes()

	// Build map of registered routes
	registered := make(map[string]bool)
	for _, rt := range routes {
		key := rt.Method + " " + rt.Path
		registered[key] = true
	}

	// Check all expected routes are registered
	for _, expected := range expectedRoutes {
		key := expected.method + " " + expected.path
		if !registered[key] {
			t.Errorf("missing route: %s %s", expected.method, expected.path)
		}
	}
}

func Test_Routes_Count(t *testing.T) {
	r := buildTestRouter()
	routes := r.Routes()

	// Should have at least the expected number of routes
	// (may have more due to OPTIONS, etc.)
	if len(routes) < len(expectedRoutes) {
		t.Errorf("expected at least %d routes, got %d", len(expectedRoutes), len(routes))
	}
}
