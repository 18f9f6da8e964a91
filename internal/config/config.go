package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/cropper/internal/pipeline"
	"github.com/dunamismax/cropper/internal/transform"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Normalizer NormalizerConfig `mapstructure:"normalizer"`
	Cropper    CropperConfig    `mapstructure:"cropper"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Log        LogConfig        `mapstructure:"log"`
}

type APIConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
	SessionTTL     time.Duration `mapstructure:"session_ttl" validate:"gte=0"`
}

type NormalizerConfig struct {
	MaxWidth int     `mapstructure:"max_width" validate:"gt=0"`
	Quality  float64 `mapstructure:"quality" validate:"gt=0,lte=1"`
	Format   string  `mapstructure:"format" validate:"oneof=jpeg jpg png webp"`
}

func (n NormalizerConfig) Options() pipeline.Options {
	return pipeline.Options{
		MaxWidth: n.MaxWidth,
		Quality:  n.Quality,
		Format:   n.Format,
	}
}

// CropperConfig describes the external cropping widget. Only the zoom limits
// are enforced server side; the rest is reported to the UI.
type CropperConfig struct {
	MinZoom     float64 `mapstructure:"min_zoom" validate:"gt=0"`
	MaxZoom     float64 `mapstructure:"max_zoom" validate:"gtefield=MinZoom"`
	AspectRatio string  `mapstructure:"aspect_ratio" validate:"required"`
	Width       int     `mapstructure:"width" validate:"gt=0"`
	Height      int     `mapstructure:"height" validate:"gt=0"`
}

func (c CropperConfig) Limits() transform.Limits {
	return transform.Limits{Min: c.MinZoom, Max: c.MaxZoom}
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type RateLimitConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Capacity     int           `mapstructure:"capacity" validate:"gt=0"`
	Window       time.Duration `mapstructure:"window" validate:"gt=0"`
	UserIDHeader string        `mapstructure:"user_id_header"`
}

type TracingConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	Exporter     string `mapstructure:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

type WebhookConfig struct {
	URL           string        `mapstructure:"url" validate:"omitempty,url"`
	SigningSecret string        `mapstructure:"signing_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"gte=0"`
	IncludeData   bool          `mapstructure:"include_data"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type binding struct {
	key      string
	env      string
	fallback any
}

var bindings = []binding{
	{"api.addr", "CROPPER_API_ADDR", ":8080"},
	{"api.max_upload_bytes", "CROPPER_MAX_UPLOAD_BYTES", int64(20 << 20)},
	{"api.session_ttl", "CROPPER_SESSION_TTL", 30 * time.Minute},

	{"normalizer.max_width", "CROPPER_MAX_WIDTH", pipeline.DefaultMaxWidth},
	{"normalizer.quality", "CROPPER_QUALITY", pipeline.DefaultQuality},
	{"normalizer.format", "CROPPER_FORMAT", pipeline.DefaultFormat},

	{"cropper.min_zoom", "CROPPER_MIN_ZOOM", transform.DefaultMinZoom},
	{"cropper.max_zoom", "CROPPER_MAX_ZOOM", transform.DefaultMaxZoom},
	{"cropper.aspect_ratio", "CROPPER_ASPECT_RATIO", "4:3"},
	{"cropper.width", "CROPPER_WIDGET_WIDTH", 400},
	{"cropper.height", "CROPPER_WIDGET_HEIGHT", 300},

	{"redis.addr", "REDIS_ADDR", ""},
	{"redis.password", "REDIS_PASSWORD", ""},
	{"redis.db", "REDIS_DB", 0},

	{"ratelimit.enabled", "CROPPER_RATE_LIMIT_ENABLED", false},
	{"ratelimit.capacity", "CROPPER_RATE_LIMIT_CAPACITY", 60},
	{"ratelimit.window", "CROPPER_RATE_LIMIT_WINDOW", time.Minute},
	{"ratelimit.user_id_header", "CROPPER_RATE_LIMIT_USER_HEADER", "X-User-ID"},

	{"tracing.service_name", "TRACE_SERVICE_NAME", "cropper-api"},
	{"tracing.exporter", "TRACE_EXPORTER", "none"},
	{"tracing.otlp_endpoint", "OTLP_ENDPOINT", ""},
	{"tracing.otlp_insecure", "OTLP_INSECURE", false},

	{"webhook.url", "WEBHOOK_URL", ""},
	{"webhook.signing_secret", "WEBHOOK_SIGNING_SECRET", ""},
	{"webhook.timeout", "WEBHOOK_TIMEOUT", 10 * time.Second},
	{"webhook.max_attempts", "WEBHOOK_MAX_ATTEMPTS", 3},
	{"webhook.include_data", "WEBHOOK_INCLUDE_DATA", false},

	{"log.level", "LOG_LEVEL", "info"},
	{"log.format", "LOG_FORMAT", "json"},
}

// Load reads configuration from the environment, optionally layered over the
// file named by CROPPER_CONFIG.
func Load() (Config, error) {
	v := viper.New()
	for _, b := range bindings {
		v.SetDefault(b.key, b.fallback)
		if err := v.BindEnv(b.key, b.env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", b.env, err)
		}
	}

	if err := v.BindEnv("config_file", "CROPPER_CONFIG"); err != nil {
		return Config{}, fmt.Errorf("bind env CROPPER_CONFIG: %w", err)
	}
	if path := strings.TrimSpace(v.GetString("config_file")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalizer.Format = strings.ToLower(strings.TrimSpace(cfg.Normalizer.Format))
	cfg.Tracing.Exporter = strings.ToLower(strings.TrimSpace(cfg.Tracing.Exporter))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := ParseAspectRatio(c.Cropper.AspectRatio); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Normalizer.Format == "webp" && pipeline.Backend() != "govips" {
		return fmt.Errorf("invalid config: webp output needs the govips backend, running %s", pipeline.Backend())
	}
	if c.RateLimit.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("invalid config: rate limiting requires REDIS_ADDR")
	}
	if c.Tracing.Exporter == "otlp" && strings.TrimSpace(c.Tracing.OTLPEndpoint) == "" {
		return errors.New("invalid config: otlp exporter requires OTLP_ENDPOINT")
	}
	return nil
}

// ParseAspectRatio accepts "W:H", "W/H" or a plain decimal.
func ParseAspectRatio(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	sep := strings.IndexAny(raw, ":/")
	if sep < 0 {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil || !positiveFinite(ratio) {
			return 0, fmt.Errorf("aspect ratio %q must be positive", raw)
		}
		return ratio, nil
	}

	w, errW := strconv.ParseFloat(strings.TrimSpace(raw[:sep]), 64)
	h, errH := strconv.ParseFloat(strings.TrimSpace(raw[sep+1:]), 64)
	if errW != nil || errH != nil || !positiveFinite(w) || !positiveFinite(h) {
		return 0, fmt.Errorf("aspect ratio %q must look like 4:3", raw)
	}
	return w / h, nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
