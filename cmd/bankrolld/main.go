package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/internal/httpapi"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix = "BANKROLL"

	flagListenAddr             = "listen-addr"
	flagGRPCListenAddr         = "grpc-listen-addr"
	flagDatabaseURL            = "database-url"
	flagLedgerStore            = "ledger-store"
	flagAllowedOrigins         = "allowed-origins"
	flagJWTSigningKey          = "jwt-signing-key"
	flagJWTIssuer              = "jwt-issuer"
	flagJWTCookieName          = "jwt-cookie-name"
	flagWebhookSecret          = "webhook-secret"
	flagWebhookSignatureHeader = "webhook-signature-header"
	flagCheckoutBaseURL        = "checkout-base-url"
	flagCheckoutAPIKey         = "checkout-api-key"
	flagCheckoutReturnURL      = "checkout-return-url"
	flagCheckoutCompletionURL  = "checkout-completion-url"
	flagEventsBackend          = "events-backend"
	flagKafkaBrokers           = "kafka-brokers"
	flagKafkaTopic             = "kafka-topic"
	flagRedisAddr              = "redis-addr"
	flagRedisChannel           = "redis-channel"
	flagHealthInterval         = "health-interval"
	flagRequestTimeout         = "request-timeout"
	flagLogLevel               = "log-level"
	flagLogDevelopment         = "log-development"
	flagSteps                  = "steps"

	defaultListenAddr      = ":8080"
	defaultGRPCListenAddr  = ":7000"
	defaultDatabaseURL     = "sqlite:///tmp/bankroll.db"
	defaultAllowedOrigins  = "http://localhost:5173"
	defaultJWTIssuer       = "tauth"
	defaultJWTCookieName   = "app_session"
	defaultSignatureHeader = "X-Webhook-Signature"
	defaultCheckoutBaseURL = "https://api.abacatepay.com"
	defaultEventsBackend   = "none"
	defaultKafkaTopic      = "bankroll.events"
	defaultRedisChannel    = "bankroll.events"
	defaultHealthInterval  = 15 * time.Second
	defaultRequestTimeout  = 5 * time.Second
	defaultLogLevel        = "info"

	ledgerStoreGorm = "gorm"
	ledgerStorePgx  = "pgx"
)

type runtimeConfig struct {
	ListenAddr             string
	GRPCListenAddr         string
	DatabaseURL            string
	LedgerStore            string
	AllowedOrigins         []string
	JWTSigningKey          string
	JWTIssuer              string
	JWTCookieName          string
	WebhookSecret          string
	WebhookSignatureHeader string
	CheckoutBaseURL        string
	CheckoutAPIKey         string
	CheckoutReturnURL      string
	CheckoutCompletionURL  string
	EventsBackend          string
	KafkaBrokers           []string
	KafkaTopic             string
	RedisAddr              string
	RedisChannel           string
	HealthInterval         time.Duration
	RequestTimeout         time.Duration
	LogLevel               string
	LogDevelopment         bool
}

func (cfg runtimeConfig) httpConfig() httpapi.Config {
	return httpapi.Config{
		ListenAddr:             cfg.ListenAddr,
		AllowedOrigins:         cfg.AllowedOrigins,
		SessionSigningKey:      cfg.JWTSigningKey,
		SessionIssuer:          cfg.JWTIssuer,
		SessionCookieName:      cfg.JWTCookieName,
		WebhookSignatureHeader: cfg.WebhookSignatureHeader,
		RequestTimeout:         cfg.RequestTimeout,
	}
}

func main() {
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "bankrolld: %v\n", err)
		os.Exit(1)
	}
	cmd := newRootCommand(viper.New())
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bankrolld: %v\n", err)
		os.Exit(1)
	}
}

// loadDotEnv exports the file's variables unless they are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newRootCommand(settings *viper.Viper) *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "bankrolld",
		Short:         "Bankroll ledger, payment webhook and access server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, settings, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.String(flagDatabaseURL, defaultDatabaseURL, "sqlite path, sqlite:// URL or postgres:// DSN")
	persistent.String(flagLogLevel, defaultLogLevel, "log level (debug, info, warn, error)")
	persistent.Bool(flagLogDevelopment, false, "human readable development logs")

	flags := cmd.Flags()
	flags.String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	flags.String(flagGRPCListenAddr, defaultGRPCListenAddr, "gRPC health listen address")
	flags.String(flagLedgerStore, ledgerStoreGorm, "ledger store implementation (gorm, pgx); pgx requires postgres")
	flags.String(flagAllowedOrigins, defaultAllowedOrigins, "comma separated CORS origins")
	flags.String(flagJWTSigningKey, "", "TAuth session signing key")
	flags.String(flagJWTIssuer, defaultJWTIssuer, "TAuth session issuer")
	flags.String(flagJWTCookieName, defaultJWTCookieName, "TAuth session cookie name")
	flags.String(flagWebhookSecret, "", "payment webhook HMAC secret; empty rejects every delivery")
	flags.String(flagWebhookSignatureHeader, defaultSignatureHeader, "header carrying the webhook signature")
	flags.String(flagCheckoutBaseURL, defaultCheckoutBaseURL, "payment gateway base URL")
	flags.String(flagCheckoutAPIKey, "", "payment gateway API key; empty disables checkout")
	flags.String(flagCheckoutReturnURL, "", "URL the gateway returns to when checkout is abandoned")
	flags.String(flagCheckoutCompletionURL, "", "URL the gateway redirects to after payment")
	flags.String(flagEventsBackend, defaultEventsBackend, "ledger event backend (none, kafka, redis)")
	flags.String(flagKafkaBrokers, "", "comma separated kafka brokers")
	flags.String(flagKafkaTopic, defaultKafkaTopic, "kafka topic for ledger events")
	flags.String(flagRedisAddr, "", "redis address for ledger events")
	flags.String(flagRedisChannel, defaultRedisChannel, "redis channel for ledger events")
	flags.Duration(flagHealthInterval, defaultHealthInterval, "database health probe interval")
	flags.Duration(flagRequestTimeout, defaultRequestTimeout, "per-request timeout")

	cmd.AddCommand(newMigrateCommand(cfg))
	cmd.AddCommand(newPromoteAdminCommand(cfg))
	return cmd
}

func loadConfig(cmd *cobra.Command, settings *viper.Viper, cfg *runtimeConfig) error {
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	if err := settings.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg.DatabaseURL = strings.TrimSpace(settings.GetString(flagDatabaseURL))
	cfg.LogLevel = settings.GetString(flagLogLevel)
	cfg.LogDevelopment = settings.GetBool(flagLogDevelopment)
	cfg.ListenAddr = settings.GetString(flagListenAddr)
	cfg.GRPCListenAddr = settings.GetString(flagGRPCListenAddr)
	cfg.LedgerStore = strings.ToLower(strings.TrimSpace(settings.GetString(flagLedgerStore)))
	cfg.AllowedOrigins = httpapi.ParseAllowedOrigins(settings.GetString(flagAllowedOrigins))
	cfg.JWTSigningKey = settings.GetString(flagJWTSigningKey)
	cfg.JWTIssuer = settings.GetString(flagJWTIssuer)
	cfg.JWTCookieName = settings.GetString(flagJWTCookieName)
	cfg.WebhookSecret = settings.GetString(flagWebhookSecret)
	cfg.WebhookSignatureHeader = settings.GetString(flagWebhookSignatureHeader)
	cfg.CheckoutBaseURL = settings.GetString(flagCheckoutBaseURL)
	cfg.CheckoutAPIKey = settings.GetString(flagCheckoutAPIKey)
	cfg.CheckoutReturnURL = settings.GetString(flagCheckoutReturnURL)
	cfg.CheckoutCompletionURL = settings.GetString(flagCheckoutCompletionURL)
	cfg.EventsBackend = settings.GetString(flagEventsBackend)
	cfg.KafkaBrokers = splitList(settings.GetString(flagKafkaBrokers))
	cfg.KafkaTopic = settings.GetString(flagKafkaTopic)
	cfg.RedisAddr = settings.GetString(flagRedisAddr)
	cfg.RedisChannel = settings.GetString(flagRedisChannel)
	cfg.HealthInterval = settings.GetDuration(flagHealthInterval)
	cfg.RequestTimeout = settings.GetDuration(flagRequestTimeout)

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	switch cfg.LedgerStore {
	case "", ledgerStoreGorm:
		cfg.LedgerStore = ledgerStoreGorm
	case ledgerStorePgx:
		if !isPostgresURL(cfg.DatabaseURL) {
			return fmt.Errorf("%s=%s requires a postgres database url", flagLedgerStore, ledgerStorePgx)
		}
	default:
		return fmt.Errorf("unknown %s %q", flagLedgerStore, cfg.LedgerStore)
	}
	return nil
}

// validateServe checks the settings only the server needs.
func (cfg runtimeConfig) validateServe() error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen addr is required")
	}
	if strings.TrimSpace(cfg.GRPCListenAddr) == "" {
		return fmt.Errorf("grpc listen addr is required")
	}
	if strings.TrimSpace(cfg.JWTSigningKey) == "" {
		return fmt.Errorf("jwt signing key is required")
	}
	if strings.TrimSpace(cfg.JWTIssuer) == "" {
		return fmt.Errorf("jwt issuer is required")
	}
	return nil
}

func contextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(parent, timeout)
}

func splitList(raw string) []string {
	values := []string{}
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
