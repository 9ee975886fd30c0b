package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"streamretry/internal/shared"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Retry struct {
		// Order places the retry advisor among other interceptors; lower runs first
		Order            int
		ProxyTargetClass bool
		// PolicyFile is a YAML declaration table, optional
		PolicyFile string
		// CatalogDB is a SQLite declaration catalog, optional
		CatalogDB     string
		CacheIdleTTL  time.Duration `validate:"gt=0"`
		SweepSchedule string        `validate:"required"`
	}
	Demo struct {
		Enabled  bool
		Interval time.Duration `validate:"gt=0"`
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var (
		c    Config
		errs []error
	)
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/retryd.log")

	c.Retry.Order = getint("RETRY_ORDER", 0, &errs)
	c.Retry.ProxyTargetClass = getbool("RETRY_PROXY_TARGET_CLASS", false, &errs)
	c.Retry.PolicyFile = os.Getenv("RETRY_POLICY_FILE")
	c.Retry.CatalogDB = os.Getenv("RETRY_CATALOG_DB")
	c.Retry.CacheIdleTTL = getduration("RETRY_CACHE_IDLE_TTL", 30*time.Minute, &errs)
	c.Retry.SweepSchedule = getenv("RETRY_SWEEP_SCHEDULE", "@every 5m")

	c.Demo.Enabled = getbool("DEMO_ENABLED", false, &errs)
	c.Demo.Interval = getduration("DEMO_INTERVAL", 10*time.Second, &errs)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := validate.Struct(c); err != nil {
		return Config{}, shared.Wrap(shared.MarkKind(err, shared.KindValidation), "config")
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, shared.Wrapf(shared.ErrValidation, "config: %s=%q is not an integer", k, v))
		return def
	}
	return n
}

func getbool(k string, def bool, errs *[]error) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, shared.Wrapf(shared.ErrValidation, "config: %s=%q is not a boolean", k, v))
		return def
	}
	return b
}

func getduration(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, shared.Wrapf(shared.ErrValidation, "config: %s=%q is not a duration", k, v))
		return def
	}
	return d
}
