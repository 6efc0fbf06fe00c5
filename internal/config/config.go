// Package config loads and validates the resolver's runtime configuration
// from environment variables, with sensible defaults for everything.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/polymorfiq/dns-server/internal/protocol"
)

// Config holds every tunable the resolver reads at startup.
type Config struct {
	// Listener settings
	ListenAddr string // host:port the resolver's UDP and TCP sockets bind

	// Upstream settings
	ForeignNameServers []string      // host:port upstreams the Delegator fans out to
	UpstreamTimeout    time.Duration // bound on how long Delegate waits for any upstream

	// QueryTimeout bounds one client query end to end, including
	// delegation: it is the Facade's backstop against a Processor that
	// never returns, and should exceed UpstreamTimeout.
	QueryTimeout time.Duration

	// Wire-format limits (spec.md §6 configuration keys)
	UDPTruncateSize      int // octet threshold before a UDP reply is replaced with TC=1
	MessageMaxLabelLen   int // RFC 1035 §3.1 label length limit
	MessageMaxNameLen    int // RFC 1035 §3.1 name length limit

	// Rate limiting / client filtering
	RateLimitThreshold int           // max queries/second per source IP
	RateLimitCooldown  time.Duration // drop duration once a source exceeds the threshold
	RateLimitMaxEntries int          // bound on distinct tracked source IPs
	AllowedClientCIDRs []string      // empty means accept every source

	// Metrics
	MetricsAddr string // host:port the Prometheus handler listens on

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // "json" or "console"
}

// Default returns a configuration usable out of the box: listens on
// 0.0.0.0:53, forwards to the two well-known public resolvers, and
// accepts every client.
func Default() *Config {
	return &Config{
		ListenAddr:           "0.0.0.0:53",
		ForeignNameServers:   []string{"8.8.8.8:53", "1.1.1.1:53"},
		UpstreamTimeout:      protocol.DefaultQueryTimeout,
		QueryTimeout:         2 * protocol.DefaultQueryTimeout,
		UDPTruncateSize:      protocol.DefaultUDPTruncateSize,
		MessageMaxLabelLen:   protocol.MaxLabelLength,
		MessageMaxNameLen:    protocol.MaxNameLength,
		RateLimitThreshold:   100,
		RateLimitCooldown:    60 * time.Second,
		RateLimitMaxEntries:  10000,
		AllowedClientCIDRs:   nil,
		MetricsAddr:          "127.0.0.1:9153",
		LogLevel:             "info",
		LogFormat:            "console",
	}
}

// FromEnv builds a Config starting from Default and overriding any field
// whose environment variable is set.
func FromEnv() (*Config, error) {
	c := Default()

	if v, ok := os.LookupEnv("DNS_LISTEN_ADDR"); ok {
		c.ListenAddr = v
	}
	if v, ok := os.LookupEnv("DNS_FOREIGN_NAME_SERVERS"); ok {
		c.ForeignNameServers = splitCSV(v)
	}
	if v, ok := os.LookupEnv("DNS_UPSTREAM_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("DNS_UPSTREAM_TIMEOUT: %w", err)
		}
		c.UpstreamTimeout = d
	}
	if v, ok := os.LookupEnv("DNS_QUERY_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("DNS_QUERY_TIMEOUT: %w", err)
		}
		c.QueryTimeout = d
	}
	if v, ok := os.LookupEnv("DNS_UDP_TRUNCATE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DNS_UDP_TRUNCATE_SIZE: %w", err)
		}
		c.UDPTruncateSize = n
	}
	if v, ok := os.LookupEnv("DNS_MESSAGE_MAX_LABEL_LENGTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DNS_MESSAGE_MAX_LABEL_LENGTH: %w", err)
		}
		c.MessageMaxLabelLen = n
	}
	if v, ok := os.LookupEnv("DNS_MESSAGE_MAX_NAME_LENGTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DNS_MESSAGE_MAX_NAME_LENGTH: %w", err)
		}
		c.MessageMaxNameLen = n
	}
	if v, ok := os.LookupEnv("DNS_RATE_LIMIT_THRESHOLD"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DNS_RATE_LIMIT_THRESHOLD: %w", err)
		}
		c.RateLimitThreshold = n
	}
	if v, ok := os.LookupEnv("DNS_RATE_LIMIT_COOLDOWN"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("DNS_RATE_LIMIT_COOLDOWN: %w", err)
		}
		c.RateLimitCooldown = d
	}
	if v, ok := os.LookupEnv("DNS_RATE_LIMIT_MAX_ENTRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DNS_RATE_LIMIT_MAX_ENTRIES: %w", err)
		}
		c.RateLimitMaxEntries = n
	}
	if v, ok := os.LookupEnv("DNS_ALLOWED_CLIENT_CIDRS"); ok {
		c.AllowedClientCIDRs = splitCSV(v)
	}
	if v, ok := os.LookupEnv("DNS_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok := os.LookupEnv("DNS_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv("DNS_LOG_FORMAT"); ok {
		c.LogFormat = v
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks that c describes a runnable resolver.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	if len(c.ForeignNameServers) == 0 {
		return fmt.Errorf("at least one foreign name server is required")
	}

	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive, got %v", c.UpstreamTimeout)
	}

	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive, got %v", c.QueryTimeout)
	}

	if c.UDPTruncateSize <= 0 {
		return fmt.Errorf("UDP truncate size must be positive, got %d", c.UDPTruncateSize)
	}

	if c.MessageMaxLabelLen <= 0 || c.MessageMaxLabelLen > 63 {
		return fmt.Errorf("message max label length must be in (0, 63], got %d", c.MessageMaxLabelLen)
	}

	if c.MessageMaxNameLen <= 0 || c.MessageMaxNameLen > 255 {
		return fmt.Errorf("message max name length must be in (0, 255], got %d", c.MessageMaxNameLen)
	}

	if c.RateLimitThreshold <= 0 {
		return fmt.Errorf("rate limit threshold must be positive, got %d", c.RateLimitThreshold)
	}

	if c.RateLimitCooldown <= 0 {
		return fmt.Errorf("rate limit cooldown must be positive, got %v", c.RateLimitCooldown)
	}

	if c.RateLimitMaxEntries <= 0 {
		return fmt.Errorf("rate limit max entries must be positive, got %d", c.RateLimitMaxEntries)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("invalid log format %q, must be 'json' or 'console'", c.LogFormat)
	}

	return nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
