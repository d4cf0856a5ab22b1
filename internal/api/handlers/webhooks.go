package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/errors"
	"github.com/troikatech/voice-bridge/pkg/mongo"
	"github.com/troikatech/voice-bridge/pkg/webhook"
)

type TwilioStatusPayload struct {
	CallSid        string `form:"CallSid"`
	CallStatus     string `form:"CallStatus"`
	From           string `form:"From"`
	To             string `form:"To"`
	Direction      string `form:"Direction"`
	CallDuration   string `form:"CallDuration"`
	Timestamp      string `form:"Timestamp"`
	RecordingUrl   string `form:"RecordingUrl"`
	ErrorCode      string `form:"ErrorCode"`
	AccountSid     string `form:"AccountSid"`
	ApiVersion     string `form:"ApiVersion"`
	SequenceNumber string `form:"SequenceNumber"`
}

// TwilioStatusWebhook ingests call status callbacks. Requests are
// signature-verified, deduplicated per (CallSid, CallStatus), and folded into
// the call record.
func (h *Handler) TwilioStatusWebhook(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		errors.BadRequest(c, "invalid form payload")
		return
	}

	requestURL := "https://" + h.publicHost(c) + c.Request.URL.RequestURI()
	signature := c.GetHeader("X-Twilio-Signature")
	if err := webhook.VerifyTwilioSignature(h.cfg.TwilioAuthToken, requestURL, c.Request.PostForm, signature); err != nil {
		h.logger.Warn("Rejected status webhook",
			zap.String("remote_addr", c.Request.RemoteAddr),
			zap.Error(err),
		)
		errors.Unauthorized(c, "invalid webhook signature")
		return
	}

	var payload TwilioStatusPayload
	if err := c.ShouldBind(&payload); err != nil {
		errors.BadRequest(c, "invalid payload")
		return
	}
	if payload.CallSid == "" {
		errors.BadRequest(c, "CallSid is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	// Twilio retries callbacks; drop duplicates of the same transition.
	dedupeKey := "webhook:status:" + payload.CallSid + ":" + payload.CallStatus
	set, err := h.redisClient.SetNX(ctx, dedupeKey, "1", 24*time.Hour).Result()
	if err == nil && !set {
		c.JSON(http.StatusOK, gin.H{"message": "duplicate ignored"})
		return
	}

	update := map[string]interface{}{
		"call_sid": payload.CallSid,
		"status":   payload.CallStatus,
	}
	mongo.UpdateTimestamp(update)
	if payload.From != "" {
		update["from_number"] = payload.From
	}
	if payload.To != "" {
		update["to_number"] = payload.To
	}
	if payload.Direction != "" {
		update["direction"] = payload.Direction
	}
	if payload.CallDuration != "" {
		update["duration_seconds"] = payload.CallDuration
	}
	if payload.RecordingUrl != "" {
		update["recording_url"] = payload.RecordingUrl
	}
	if payload.ErrorCode != "" {
		update["error_code"] = payload.ErrorCode
	}

	if _, err := h.mongoClient.NewQuery("calls").
		Upsert(ctx, map[string]interface{}{"call_sid": payload.CallSid}, update); err != nil {
		h.logger.Error("Failed to store call status",
			zap.String("call_sid", payload.CallSid),
			zap.Error(err),
		)
		errors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "webhook processed"})
}
