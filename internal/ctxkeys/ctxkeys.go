package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	streamIDKey  contextKey = "stream_id"
	sideKey      contextKey = "side"
	requestIDKey contextKey = "request_id"
)

// WithStreamID 设置关联 ID
func WithStreamID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, streamIDKey, id)
}

// StreamID 获取关联 ID
func StreamID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(streamIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithSide 设置通道端（host / consumer）
func WithSide(ctx context.Context, side string) context.Context {
	return context.WithValue(ctx, sideKey, side)
}

// Side 获取通道端
func Side(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sideKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRequestID 设置 HTTP 请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取 HTTP 请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Logger 返回附带 context 中已知字段的 logger
func Logger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	var fields []zap.Field
	if id, ok := StreamID(ctx); ok {
		fields = append(fields, zap.String("stream_id", id))
	}
	if side, ok := Side(ctx); ok {
		fields = append(fields, zap.String("side", side))
	}
	if id, ok := RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
