package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/errors"
	"github.com/troikatech/voice-bridge/pkg/mongo"
	"github.com/troikatech/voice-bridge/pkg/twilio"
	"github.com/troikatech/voice-bridge/pkg/utils"
	"github.com/troikatech/voice-bridge/pkg/validation"
)

// agentPrompt is passed to the media stream as a custom TwiML parameter.
const agentPrompt = "Hello, I would like to schedule an appointment. Can you help me with that?"

// OutboundCall originates a call to the number in the query string. Twilio
// fetches TwiML from this service once the callee answers, which connects the
// call's audio to the media-stream WebSocket.
func (h *Handler) OutboundCall(c *gin.Context) {
	number := c.Query("number")
	if number == "" {
		errors.BadRequest(c, "phone number is required")
		return
	}

	normalized, err := validation.NormalizeE164(number)
	if err != nil {
		errors.BadRequest(c, err.Error())
		return
	}

	ok, err := h.callBucket.TakeToken(c.Request.Context(), "outbound_calls")
	if err != nil {
		// Redis down; fail open rather than blocking calls
		h.logger.Warn("Call rate limiter unavailable", zap.Error(err))
	} else if !ok {
		errors.TooManyRequests(c, "outbound call rate limit exceeded")
		return
	}

	twimlURL := "https://" + h.publicHost(c) + "/outbound-call-twiml"

	call, err := h.twilioClient.CreateCall(c.Request.Context(), h.cfg.TwilioPhoneNumber, normalized, twimlURL)
	if err != nil {
		h.logger.Error("Failed to initiate outbound call",
			zap.String("to", utils.MaskPhoneNumber(normalized)),
			zap.Error(err),
		)
		errors.InternalError(c, err, h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	record := map[string]interface{}{
		"call_sid":    call.Sid,
		"from_number": h.cfg.TwilioPhoneNumber,
		"to_number":   normalized,
		"direction":   "outbound",
		"status":      call.Status,
	}
	mongo.AddTimestamps(record)
	if _, err := h.mongoClient.NewQuery("calls").Insert(ctx, record); err != nil {
		h.logger.Warn("Failed to record outbound call", zap.String("call_sid", call.Sid), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Call initiated",
		"callSid": call.Sid,
	})
}

// OutboundCallTwiML answers Twilio's TwiML fetch with a <Connect><Stream>
// pointing back at the media-stream WebSocket.
func (h *Handler) OutboundCallTwiML(c *gin.Context) {
	wsURL := "wss://" + h.publicHost(c) + "/outbound-media-stream"

	doc, err := twilio.StreamTwiML(wsURL, map[string]string{"prompt": agentPrompt})
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(doc))
}

// ListCalls returns recorded calls, newest first.
func (h *Handler) ListCalls(c *gin.Context) {
	params := utils.ParsePagination(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	query := h.mongoClient.NewQuery("calls").
		Sort("created_at", false).
		Skip(int64((params.Page - 1) * params.Limit)).
		Limit(int64(params.Limit))

	calls, err := query.Find(ctx)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	total, err := h.mongoClient.NewQuery("calls").Count(ctx)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, utils.PaginatedResponse{
		Data:  calls,
		Page:  params.Page,
		Limit: params.Limit,
		Total: total,
	})
}

// GetCall returns one call record by SID.
func (h *Handler) GetCall(c *gin.Context) {
	callSID := c.Param("call_sid")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	call, err := h.mongoClient.NewQuery("calls").
		Select("*").
		Eq("call_sid", callSID).
		FindOne(ctx)

	if err != nil || call == nil {
		errors.NotFound(c, "call not found")
		return
	}

	c.JSON(http.StatusOK, call)
}

// publicHost is the externally reachable host Twilio uses for callbacks.
func (h *Handler) publicHost(c *gin.Context) string {
	if h.cfg.PublicBaseURL != "" {
		host := strings.TrimPrefix(h.cfg.PublicBaseURL, "https://")
		host = strings.TrimPrefix(host, "http://")
		return strings.TrimSuffix(host, "/")
	}
	return c.Request.Host
}
