package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teemow/inboxpilot/internal/api"
	"github.com/teemow/inboxpilot/internal/relay"
	"github.com/teemow/inboxpilot/internal/server"
)

// serveConfig holds the settings of the serve command.
type serveConfig struct {
	HTTPAddr           string
	UpstreamURL        string
	Model              string
	UpstreamTimeout    time.Duration
	GoogleClientID     string
	GoogleClientSecret string
	BaseURL            string
	UIURL              string
	AllowedOrigins     []string
	MaxBodyBytes       int64
	SecureCookies      bool
	MetricsEnabled     bool
	MetricsAddr        string
}

func defaultServeConfig() serveConfig {
	return serveConfig{
		HTTPAddr:        ":3000",
		UpstreamURL:     relay.DefaultEndpoint,
		Model:           relay.DefaultModel,
		UpstreamTimeout: relay.DefaultTimeout,
		BaseURL:         "http://localhost:3000",
		UIURL:           "/",
		AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
		MaxBodyBytes:    api.DefaultMaxBodyBytes,
		MetricsEnabled:  true,
		MetricsAddr:     server.DefaultMetricsAddr,
	}
}

func (c *serveConfig) bindFlags(fs *pflag.FlagSet) {
	c.bindUpstreamFlags(fs)
	c.bindGoogleFlags(fs)
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP listen address. Can also use HTTP_ADDR env var.")
	fs.StringVar(&c.BaseURL, "base-url", c.BaseURL, "Public base URL of this server, used for the OAuth callback. Can also use BASE_URL env var.")
	fs.StringVar(&c.UIURL, "ui-url", c.UIURL, "Where the browser lands after signing in. Can also use UI_URL env var.")
	fs.StringSliceVar(&c.AllowedOrigins, "cors-allowed-origins", c.AllowedOrigins, "Origins allowed to call the API (comma-separated). Can also use CORS_ALLOWED_ORIGINS env var.")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", c.MaxBodyBytes, "Largest accepted request body. Can also use MAX_BODY_BYTES env var.")
	fs.BoolVar(&c.SecureCookies, "secure-cookies", c.SecureCookies, "Mark cookies Secure (serve over HTTPS). Can also use SECURE_COOKIES env var.")
	fs.BoolVar(&c.MetricsEnabled, "metrics-enabled", c.MetricsEnabled, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
}

func (c *serveConfig) bindUpstreamFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.UpstreamURL, "upstream-url", c.UpstreamURL, "Ollama chat endpoint. Can also use OLLAMA_URL env var.")
	fs.StringVar(&c.Model, "model", c.Model, "Model used for every generation. Can also use OLLAMA_MODEL env var.")
	fs.DurationVar(&c.UpstreamTimeout, "upstream-timeout", c.UpstreamTimeout, "Deadline of one generation, 0 for none. Can also use UPSTREAM_TIMEOUT env var.")
}

func (c *serveConfig) bindGoogleFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.GoogleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	fs.StringVar(&c.GoogleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
}

// loadEnv overrides every setting whose flag was not set explicitly with
// its environment variable, when present.
func (c *serveConfig) loadEnv(cmd *cobra.Command) error {
	flags := cmd.Flags()
	var errs []string

	str := func(flag, env string, dst *string) {
		if v, ok := lookupEnv(flags, flag, env); ok {
			*dst = v
		}
	}
	boolean := func(flag, env string, dst *bool) {
		if v, ok := lookupEnv(flags, flag, env); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", env, err))
				return
			}
			*dst = b
		}
	}

	str("http-addr", "HTTP_ADDR", &c.HTTPAddr)
	str("upstream-url", "OLLAMA_URL", &c.UpstreamURL)
	str("model", "OLLAMA_MODEL", &c.Model)
	str("google-client-id", "GOOGLE_CLIENT_ID", &c.GoogleClientID)
	str("google-client-secret", "GOOGLE_CLIENT_SECRET", &c.GoogleClientSecret)
	str("base-url", "BASE_URL", &c.BaseURL)
	str("ui-url", "UI_URL", &c.UIURL)
	str("metrics-addr", "METRICS_ADDR", &c.MetricsAddr)
	boolean("secure-cookies", "SECURE_COOKIES", &c.SecureCookies)
	boolean("metrics-enabled", "METRICS_ENABLED", &c.MetricsEnabled)

	if v, ok := lookupEnv(flags, "upstream-timeout", "UPSTREAM_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("UPSTREAM_TIMEOUT: %v", err))
		} else {
			c.UpstreamTimeout = d
		}
	}
	if v, ok := lookupEnv(flags, "max-body-bytes", "MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("MAX_BODY_BYTES: %v", err))
		} else {
			c.MaxBodyBytes = n
		}
	}
	if v, ok := lookupEnv(flags, "cors-allowed-origins", "CORS_ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = parseCommaSeparatedList(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validate checks settings that cannot be defaulted.
func (c *serveConfig) validate() error {
	if c.UpstreamTimeout < 0 {
		return fmt.Errorf("upstream timeout must not be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.GoogleClientID != "" && c.GoogleClientSecret == "" {
		return fmt.Errorf("google client secret is required when a client id is set")
	}
	return nil
}

// callbackURL is the OAuth redirect URL registered with Google.
func (c *serveConfig) callbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/callback"
}

func lookupEnv(flags *pflag.FlagSet, flag, env string) (string, bool) {
	if flags.Changed(flag) {
		return "", false
	}
	v, ok := os.LookupEnv(env)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
