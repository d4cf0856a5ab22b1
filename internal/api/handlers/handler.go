package handlers

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/internal/relay"
	"github.com/troikatech/voice-bridge/pkg/docindex"
	"github.com/troikatech/voice-bridge/pkg/elevenlabs"
	"github.com/troikatech/voice-bridge/pkg/env"
	"github.com/troikatech/voice-bridge/pkg/logger"
	"github.com/troikatech/voice-bridge/pkg/middleware"
	"github.com/troikatech/voice-bridge/pkg/mongo"
	"github.com/troikatech/voice-bridge/pkg/twilio"
)

type Handler struct {
	cfg          *env.Config
	redisClient  *redis.Client
	mongoClient  *mongo.Client
	logger       *zap.Logger
	twilioClient *twilio.Client
	connector    *elevenlabs.Connector
	registry     *relay.Registry
	docIndex     *docindex.Index
	notifier     *twilio.SMSNotifier

	// callBucket throttles outbound call origination across all clients.
	callBucket *middleware.TokenBucket
}

func NewHandler(
	cfg *env.Config,
	redisClient *redis.Client,
	mongoClient *mongo.Client,
	twilioClient *twilio.Client,
	connector *elevenlabs.Connector,
	registry *relay.Registry,
	docIndex *docindex.Index,
	callBucket *middleware.TokenBucket,
) *Handler {
	return &Handler{
		cfg:          cfg,
		redisClient:  redisClient,
		mongoClient:  mongoClient,
		logger:       logger.Log,
		twilioClient: twilioClient,
		connector:    connector,
		registry:     registry,
		docIndex:     docIndex,
		notifier:     twilio.NewSMSNotifier(twilioClient, cfg.TwilioPhoneNumber, cfg.ConfirmationSMS, logger.Log),
		callBucket:   callBucket,
	}
}
