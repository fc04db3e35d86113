package httpapi

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr             = ":8080"
	defaultAllowedOrigin          = "http://localhost:5173"
	defaultSessionIssuer          = "tauth"
	defaultSessionCookie          = "app_session"
	defaultWebhookSignatureHeader = "X-Webhook-Signature"
	defaultRequestTimeout         = 5 * time.Second
	defaultShutdownTimeout        = 5 * time.Second
	maxWebhookBodyBytes           = 1 << 20
	revenueWindowMonths           = 11
)

// Config aggregates runtime settings for the HTTP API.
type Config struct {
	ListenAddr             string
	AllowedOrigins         []string
	SessionSigningKey      string
	SessionIssuer          string
	SessionCookieName      string
	WebhookSignatureHeader string
	RequestTimeout         time.Duration
}

// Validate fills defaults and rejects settings the server cannot start with.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	cfg.WebhookSignatureHeader = defaultIfEmpty(cfg.WebhookSignatureHeader, defaultWebhookSignatureHeader)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
