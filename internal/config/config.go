package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Env             string        // dev, prod
	HTTPPort        string        // default 8080
	PostgresDSN     string        // required
	PGMaxConns      int           // pool size
	PGStmtTimeout   time.Duration // server-side statement_timeout, 0 disables
	RedisURL        string        // REDIS_URL as given; carries TLS, DB and auth
	RedisAddr       string        // host:port
	RedisUsername   string        // redis username
	RedisPassword   string        // redis password
	RedisDB         int           // logical database
	RedisTLS        bool          // rediss:// scheme
	LockTTL         time.Duration // how long a Redis appointment lock lives
	LockRetries     int           // attempts to acquire a busy appointment lock
	LockRetryDelay  time.Duration // pause between lock attempts
	ShutdownTimeout time.Duration // graceful shutdown timeout
	LogLevel        string        // debug, info, warn, error
	LogFormat       string        // json, console
	MigrateOnStart  bool          // run embedded migrations before serving

	Timezone          *time.Location // facility wall clock for rules and slots
	SlotDuration      time.Duration  // slot granularity
	SerialPrefix      string         // facility code in front of serial numbers
	SerialWidth       int            // zero padding of the serial counter
	DefaultWindowDays int            // availability window when the caller gives none
	MaxWindowDays     int            // widest availability window a caller may request
}

// Load reads the environment (and .env when present). Malformed values are
// reported together rather than silently replaced by defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	env := &envReader{}
	cfg := Config{
		Env:               env.str("APP_ENV", "dev"),
		HTTPPort:          env.str("HTTP_PORT", "8080"),
		PostgresDSN:       env.str("POSTGRES_DSN", ""),
		PGMaxConns:        env.integer("PG_MAX_CONNS", 10),
		PGStmtTimeout:     env.duration("PG_STATEMENT_TIMEOUT", 5*time.Second),
		LockTTL:           env.duration("LOCK_TTL", 5*time.Second),
		LockRetries:       env.integer("LOCK_RETRIES", 5),
		LockRetryDelay:    env.duration("LOCK_RETRY_DELAY", 50*time.Millisecond),
		ShutdownTimeout:   env.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:          env.str("LOG_LEVEL", "info"),
		LogFormat:         env.str("LOG_FORMAT", "json"),
		MigrateOnStart:    env.boolean("MIGRATE_ON_START", false),
		Timezone:          env.location("FACILITY_TIMEZONE", time.UTC),
		SlotDuration:      env.durationIn("SLOT_DURATION", 30*time.Minute, time.Minute),
		SerialPrefix:      strings.ToUpper(env.str("SERIAL_PREFIX", "XH")),
		SerialWidth:       env.integer("SERIAL_WIDTH", 3),
		DefaultWindowDays: env.integer("DEFAULT_WINDOW_DAYS", 7),
		MaxWindowDays:     env.integer("MAX_WINDOW_DAYS", 31),
	}
	cfg.loadRedis(env)

	if cfg.PostgresDSN == "" {
		return Config{}, errors.New("POSTGRES_DSN is required")
	}
	if len(env.errs) > 0 {
		return Config{}, errors.Join(env.errs...)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// REDIS_URL wins over the discrete REDIS_* variables.
func (c *Config) loadRedis(env *envReader) {
	raw := env.str("REDIS_URL", "")
	if raw == "" {
		c.RedisAddr = env.str("REDIS_ADDR", "127.0.0.1:6379")
		c.RedisUsername = env.str("REDIS_USERNAME", "")
		c.RedisPassword = env.str("REDIS_PASSWORD", "")
		return
	}
	opt, err := redis.ParseURL(raw)
	if err != nil {
		env.errs = append(env.errs, fmt.Errorf("invalid REDIS_URL: %w", err))
		return
	}
	c.RedisURL = raw
	c.RedisAddr, c.RedisUsername, c.RedisPassword = opt.Addr, opt.Username, opt.Password
	c.RedisDB = opt.DB
	c.RedisTLS = opt.TLSConfig != nil
}

func (c Config) validate() error {
	if c.SlotDuration < time.Minute || c.SlotDuration%time.Minute != 0 {
		return fmt.Errorf("SLOT_DURATION must be a whole number of minutes, got %s", c.SlotDuration)
	}
	if c.PGMaxConns < 1 {
		return fmt.Errorf("PG_MAX_CONNS must be positive, got %d", c.PGMaxConns)
	}
	if c.SerialWidth < 1 {
		return fmt.Errorf("SERIAL_WIDTH must be positive, got %d", c.SerialWidth)
	}
	if c.DefaultWindowDays < 1 || c.MaxWindowDays < c.DefaultWindowDays {
		return fmt.Errorf("window days invalid: default=%d max=%d", c.DefaultWindowDays, c.MaxWindowDays)
	}
	return nil
}

type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (r *envReader) fail(key, v, kind string) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q is not a valid %s", key, v, kind))
}

func (r *envReader) str(key, def string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return def
}

// Bare integers are seconds, so LOCK_TTL=3 and LOCK_TTL=3s agree.
func (r *envReader) duration(key string, def time.Duration) time.Duration {
	return r.durationIn(key, def, time.Second)
}

// durationIn reads a duration whose bare integer form counts unit.
func (r *envReader) durationIn(key string, def, unit time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * unit
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, "duration")
		return def
	}
	return d
}

func (r *envReader) integer(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "integer")
		return def
	}
	return n
}

func (r *envReader) boolean(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, "bool")
		return def
	}
	return b
}

func (r *envReader) location(key string, def *time.Location) *time.Location {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		r.fail(key, v, "IANA time zone")
		return def
	}
	return loc
}
