package wrap

import (
	"context"
)

type (
	// LogCtx holds contextual information for logging
	LogCtx struct {
		Action    string
		SessionID string
		RouteID   string
		DeviceID  string
		RequestID string
	}

	// logCtxKeyStruct is an unexported type for context keys defined in this package.
	logCtxKeyStruct struct{}
)

// logCtxKey is the key for log context values
var LogCtxKey = &logCtxKeyStruct{}

// WithLogCtx returns a new context with the provided LogCtx
func WithLogCtx(ctx context.Context, newLc LogCtx) context.Context {
	// Check if there's an existing LogCtx and merge values
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		if newLc.Action == "" {
			newLc.Action = lc.Action
		}
		if newLc.SessionID == "" {
			newLc.SessionID = lc.SessionID
		}
		if newLc.RouteID == "" {
			newLc.RouteID = lc.RouteID
		}
		if newLc.DeviceID == "" {
			newLc.DeviceID = lc.DeviceID
		}
		if newLc.RequestID == "" {
			newLc.RequestID = lc.RequestID
		}
		return context.WithValue(ctx, LogCtxKey, newLc)
	}
	return context.WithValue(ctx, LogCtxKey, newLc)
}

// WithSessionID adds or updates the SessionID in the LogCtx within the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	lc, _ := ctx.Value(LogCtxKey).(LogCtx)
	lc.SessionID = sessionID
	return context.WithValue(ctx, LogCtxKey, lc)
}

// WithRouteID adds or updates the RouteID in the LogCtx within the context
func WithRouteID(ctx context.Context, routeID string) context.Context {
	lc, _ := ctx.Value(LogCtxKey).(LogCtx)
	lc.RouteID = routeID
	return context.WithValue(ctx, LogCtxKey, lc)
}

// WithDeviceID adds or updates the DeviceID in the LogCtx within the context
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	lc, _ := ctx.Value(LogCtxKey).(LogCtx)
	lc.DeviceID = deviceID
	return context.WithValue(ctx, LogCtxKey, lc)
}

// WithRequestID adds or updates the RequestID in the LogCtx within the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	lc, _ := ctx.Value(LogCtxKey).(LogCtx)
	lc.RequestID = requestID
	return context.WithValue(ctx, LogCtxKey, lc)
}

// WithAction adds or updates the Action in the LogCtx within the context
func WithAction(ctx context.Context, action string) context.Context {
	lc, _ := ctx.Value(LogCtxKey).(LogCtx)
	lc.Action = action
	return context.WithValue(ctx, LogCtxKey, lc)
}

// FromContext returns the LogCtx stored in ctx, if any.
func FromContext(ctx context.Context) LogCtx {
	lc, _ := ctx.Value(LogCtxKey).(LogCtx)
	return lc
}
