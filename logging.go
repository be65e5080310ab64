package main

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// newLogger builds the root logger. Output goes to w as JSON lines; stdout is
// reserved for CLI output, so callers pass stderr.
func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "shared-chat-fetcher").Logger()
}

// invocationLogger derives the logger for a single request. Inside Lambda the
// AWS request id is reused so log lines match the platform's.
func invocationLogger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	return base.With().Str("request_id", requestID(ctx)).Logger()
}

func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}
