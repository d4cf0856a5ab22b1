package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/mongo"
	"github.com/troikatech/voice-bridge/pkg/otel"
	"github.com/troikatech/voice-bridge/pkg/utils"
)

// callRecorder persists relay session lifecycle into the calls collection.
// All writes are best-effort; record-keeping never interferes with a live
// call.
type callRecorder struct {
	mongoClient *mongo.Client
	logger      *zap.Logger
}

func (r *callRecorder) SessionStarted(ctx context.Context, streamSid, callSid, callee string) {
	update := map[string]interface{}{
		"stream_sid":        streamSid,
		"status":            "in_progress",
		"stream_started_at": time.Now().Format(time.RFC3339),
	}
	if callee != "" {
		update["to_number"] = callee
	}

	_, _, err := otel.ExecuteUpdate(ctx, "calls", func() ([]byte, int64, error) {
		res, err := r.mongoClient.NewQuery("calls").
			Upsert(ctx, map[string]interface{}{"call_sid": callSid}, update)
		if err != nil {
			return nil, 0, err
		}
		return nil, res.ModifiedCount + res.UpsertedCount, nil
	})
	if err != nil {
		r.logger.Warn("Failed to record session start",
			zap.String("call_sid", callSid),
			zap.String("stream_sid", streamSid),
			zap.String("callee", utils.MaskPhoneNumber(callee)),
			zap.Error(err),
		)
	}
}

func (r *callRecorder) SessionClosed(ctx context.Context, streamSid, callSid string, notified bool) {
	update := map[string]interface{}{
		"status":          "completed",
		"notified":        notified,
		"stream_ended_at": time.Now().Format(time.RFC3339),
	}

	_, _, err := otel.ExecuteUpdate(ctx, "calls", func() ([]byte, int64, error) {
		res, err := r.mongoClient.NewQuery("calls").
			Eq("stream_sid", streamSid).
			UpdateOne(ctx, update)
		if err != nil {
			return nil, 0, err
		}
		return nil, res.ModifiedCount, nil
	})
	if err != nil {
		r.logger.Warn("Failed to record session close",
			zap.String("call_sid", callSid),
			zap.String("stream_sid", streamSid),
			zap.Error(err),
		)
	}
}
