package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	platformstrings "libreg/pkg/platform/strings"
)

// Server captures process-level configuration.
type Server struct {
	Addr         string
	LogLevel     string
	DatabaseURL  string
	Redis        RedisConfig
	Kafka        KafkaConfig
	Registration RegistrationConfig
	RateLimit    RateLimitConfig

	// TrustedProxies are the peers allowed to name the client through
	// X-Forwarded-For or X-Real-IP.
	TrustedProxies []netip.Prefix
}

// RedisConfig configures the place resolution cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PlaceTTL     time.Duration
}

// KafkaConfig configures the audit stream. No brokers means audit events are
// only logged.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// RegistrationConfig tunes the registration handshake.
type RegistrationConfig struct {
	// DefaultNation is the abbreviation of the nation that scopes bare place names.
	DefaultNation    string
	GazetteerPath    string
	RootFetchTimeout time.Duration
	FetchTimeout     time.Duration
	MaxLogoBytes     int64
	MaxFeedBytes     int64
}

// RateLimitConfig throttles registration attempts per client IP.
type RateLimitConfig struct {
	Disabled bool
	Requests int
	Window   time.Duration
}

const (
	defaultAddr          = ":8080"
	defaultLogLevel      = "info"
	defaultPlaceCacheTTL = 10 * time.Minute
	defaultFetchTimeout  = 30 * time.Second
	defaultMaxLogoBytes  = 5 << 20
	defaultMaxFeedBytes  = 10 << 20
	defaultAuditTopic    = "libreg.audit"
	defaultRateRequests  = 10
	defaultRateWindow    = time.Minute
)

// Load reads envFile (when present) into the environment and then builds the
// configuration. Variables already set in the environment win over the file.
func Load(envFile string) (Server, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Server{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var errs []error
	cfg := Server{
		Addr:        stringEnv("REGISTRY_ADDR", defaultAddr),
		LogLevel:    stringEnv("LOG_LEVEL", defaultLogLevel),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intEnv("REDIS_POOL_SIZE", 10, &errs),
			MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2, &errs),
			DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second, &errs),
			ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second, &errs),
			WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second, &errs),
			PlaceTTL:     durationEnv("REGISTRY_PLACE_CACHE_TTL", defaultPlaceCacheTTL, &errs),
		},
		Kafka: KafkaConfig{
			Brokers:    listEnv("KAFKA_BROKERS"),
			AuditTopic: stringEnv("KAFKA_AUDIT_TOPIC", defaultAuditTopic),
		},
		Registration: RegistrationConfig{
			DefaultNation:    os.Getenv("REGISTRY_DEFAULT_NATION"),
			GazetteerPath:    os.Getenv("REGISTRY_GAZETTEER_PATH"),
			RootFetchTimeout: durationEnv("REGISTRY_ROOT_FETCH_TIMEOUT", defaultFetchTimeout, &errs),
			FetchTimeout:     durationEnv("REGISTRY_FETCH_TIMEOUT", defaultFetchTimeout, &errs),
			MaxLogoBytes:     int64(intEnv("REGISTRY_MAX_LOGO_BYTES", defaultMaxLogoBytes, &errs)),
			MaxFeedBytes:     int64(intEnv("REGISTRY_MAX_FEED_BYTES", defaultMaxFeedBytes, &errs)),
		},
		RateLimit: RateLimitConfig{
			Disabled: os.Getenv("DISABLE_RATE_LIMITING") == "true",
			Requests: intEnv("REGISTRY_RATE_LIMIT_REQUESTS", defaultRateRequests, &errs),
			Window:   durationEnv("REGISTRY_RATE_LIMIT_WINDOW", defaultRateWindow, &errs),
		},
		TrustedProxies: prefixListEnv("REGISTRY_TRUSTED_PROXIES", &errs),
	}
	if err := errors.Join(errs...); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*errs = append(*errs, fmt.Errorf("%s: expected a non-negative integer, got %q", key, v))
		return fallback
	}
	return n
}

func durationEnv(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: expected a positive duration, got %q", key, v))
		return fallback
	}
	return d
}

func listEnv(key string) []string {
	return platformstrings.SplitList(os.Getenv(key), ",")
}

// prefixListEnv reads a comma-separated list of CIDR ranges. A bare address
// stands for itself.
func prefixListEnv(key string, errs *[]error) []netip.Prefix {
	var out []netip.Prefix
	for _, item := range listEnv(key) {
		if prefix, err := netip.ParsePrefix(item); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("%s: expected an address or CIDR range, got %q", key, item))
			continue
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}
