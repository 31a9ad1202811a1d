// Package reporting forwards server errors to Sentry.
package reporting

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

type Config struct {
	DSN         string
	Environment string
	Release     string
	ServerName  string
}

// Init initializes Sentry. An empty DSN leaves reporting disabled and is not
// an error.
func Init(cfg Config, logger *zap.Logger) error {
	if cfg.DSN == "" {
		logger.Warn("Sentry DSN not configured - error tracking disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		ServerName:  cfg.ServerName,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			return scrub(event)
		},
	})
	if err != nil {
		logger.Error("Failed to initialize Sentry", zap.Error(err))
		return fmt.Errorf("sentry init: %w", err)
	}

	logger.Info("Sentry initialized",
		zap.String("environment", cfg.Environment),
		zap.String("release", cfg.Release))
	return nil
}

// scrub drops credentials from captured requests; the record API token
// travels in the Authorization header.
func scrub(event *sentry.Event) *sentry.Event {
	if event != nil && event.Request != nil && event.Request.Headers != nil {
		delete(event.Request.Headers, "Authorization")
		delete(event.Request.Headers, "Cookie")
	}
	return event
}

// CaptureException reports err with extra context on an isolated scope. It
// is a no-op when err is nil or Sentry is not initialized.
func CaptureException(err error, context map[string]interface{}) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for key, value := range context {
			scope.SetContext(key, sentry.Context{"value": value})
		}
		sentry.CaptureException(err)
	})
}

// Flush waits for queued events to be sent.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}
