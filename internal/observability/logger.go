package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// contextField is a request-scoped id that WithContextLogger copies onto
// log entries under its name.
type contextField struct{ name string }

var (
	correlationIDField = &contextField{name: "correlationId"}
	requestIDField     = &contextField{name: "requestId"}

	contextFields = []*contextField{correlationIDField, requestIDField}
)

// NewLogger builds the JSON production logger used by every binary.
// An empty level means info.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "" {
		return zapcore.InfoLevel, nil
	}

	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withField(ctx, correlationIDField, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	return fieldFrom(ctx, correlationIDField)
}

// WithRequestID stores the id of the send request being processed.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withField(ctx, requestIDField, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return fieldFrom(ctx, requestIDField)
}

func withField(ctx context.Context, f *contextField, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, f, value)
}

// fieldFrom treats an empty value as missing.
func fieldFrom(ctx context.Context, f *contextField) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(f).(string)
	return value, ok && value != ""
}

// WithContextLogger attaches the correlation and request ids found in ctx.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	var fields []zap.Field
	for _, f := range contextFields {
		if value, ok := fieldFrom(ctx, f); ok {
			fields = append(fields, zap.String(f.name, value))
		}
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
