package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"cicadagallery/internal/infrastructure"
)

const componentName = "license"

// logAction logs a license action with trace correlation. License strings
// and emails must go through HashLicense and MaskEmail first.
func logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	logger := infrastructure.LoggerWithContext(ctx)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		infrastructure.AddSpanEvent(ctx, "license."+action, map[string]interface{}{
			"action": action,
			"result": result,
		})
	}

	allAttrs := []slog.Attr{
		slog.String("component", componentName),
		slog.String("action", action),
	}
	if traceID := infrastructure.TraceIDFromContext(ctx); traceID != "" {
		allAttrs = append(allAttrs, slog.String("otel_trace_id", traceID))
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(ctx, level, result, allAttrs...)
}

func logDebug(ctx context.Context, action, result string, attrs ...slog.Attr) {
	logAction(ctx, slog.LevelDebug, action, result, attrs...)
}

func logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	logAction(ctx, slog.LevelInfo, action, result, attrs...)
}

func logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

func logError(ctx context.Context, action, result string, attrs ...slog.Attr) {
	logAction(ctx, slog.LevelError, action, result, attrs...)
}

// MaskEmail hides the local part of an address, keeping the domain
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.LastIndex(email, "@")
	if at == -1 {
		return "****"
	}

	username, domain := email[:at], email[at:]
	if len(username) <= 2 {
		return "**" + domain
	}
	return username[:1] + "****" + username[len(username)-1:] + domain
}

// HashLicense returns a short, stable fingerprint of a license string for
// correlating log lines without exposing the license.
func HashLicense(licenseString string) string {
	if licenseString == "" {
		return ""
	}
	h := sha256.Sum256([]byte(strings.TrimSpace(licenseString)))
	return hex.EncodeToString(h[:])[:16]
}
