package wrap

import (
	"context"
	"errors"
)

// errorWithLogCtx carries the LogCtx that was active where the error was produced.
type errorWithLogCtx struct {
	err    error
	logCtx LogCtx
}

func (e *errorWithLogCtx) Error() string {
	return e.err.Error()
}

func (e *errorWithLogCtx) Unwrap() error {
	return e.err
}

// Error attaches the current LogCtx to err. Nil stays nil.
func Error(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	// Already wrapped: refresh the context but keep a single layer.
	var e *errorWithLogCtx
	if errors.As(err, &e) {
		if x, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
			e.logCtx = x
		}
		return err
	}

	return &errorWithLogCtx{
		err:    err,
		logCtx: FromContext(ctx),
	}
}

// ActionError is Error with the action replaced first.
func ActionError(ctx context.Context, action string, err error) error {
	return Error(WithAction(ctx, action), err)
}

// ErrorCtx restores the LogCtx captured by Error, so the log line points at the failure site.
func ErrorCtx(ctx context.Context, err error) context.Context {
	var e *errorWithLogCtx
	if errors.As(err, &e) && e != nil {
		return context.WithValue(ctx, LogCtxKey, e.logCtx)
	}
	return ctx
}
