// Package config loads the server configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// BINDERY_* environment variables. Command-line flags are applied by the
// caller before Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "BINDERY_"

// Config is the full server configuration.
type Config struct {
	Listen             string   `yaml:"listen" env:"LISTEN" validate:"required"`
	Database           string   `yaml:"database" env:"DATABASE" validate:"required"`
	SpecsDir           string   `yaml:"specs_dir" env:"SPECS_DIR" validate:"required"`
	PageSize           int      `yaml:"page_size" env:"PAGE_SIZE" validate:"min=1"`
	DefaultPermissions []string `yaml:"default_permissions" env:"DEFAULT_PERMISSIONS" envSeparator:","`
	LogFormat          string   `yaml:"log_format" env:"LOG_FORMAT" validate:"oneof=text json"`

	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	Transport TransportConfig `yaml:"transport" envPrefix:"TRANSPORT_"`
}

// AuthConfig configures connection authentication.
type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret" env:"JWT_SECRET" validate:"required_unless=AllowAnonymous true"`
	Issuer         string `yaml:"issuer" env:"ISSUER"`
	AllowAnonymous bool   `yaml:"allow_anonymous" env:"ALLOW_ANONYMOUS"`
}

// TransportConfig configures websocket connections.
type TransportConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gt=0"`
	PongTimeout     time.Duration `yaml:"pong_timeout" env:"PONG_TIMEOUT" validate:"gt=0"`
	PingInterval    time.Duration `yaml:"ping_interval" env:"PING_INTERVAL" validate:"gt=0,ltfield=PongTimeout"`
	MaxMessageBytes int64         `yaml:"max_message_bytes" env:"MAX_MESSAGE_BYTES" validate:"min=1"`
	RateLimit       float64       `yaml:"rate_limit" env:"RATE_LIMIT" validate:"gt=0"`
	RateBurst       int           `yaml:"rate_burst" env:"RATE_BURST" validate:"min=1"`
}

// Default returns the built-in defaults. Database and SpecsDir have none.
func Default() Config {
	return Config{
		Listen:             ":8080",
		PageSize:           25,
		DefaultPermissions: []string{"is_admin"},
		LogFormat:          "text",
		Transport: TransportConfig{
			WriteTimeout:    10 * time.Second,
			PongTimeout:     60 * time.Second,
			PingInterval:    54 * time.Second,
			MaxMessageBytes: 1 << 20,
			RateLimit:       50,
			RateBurst:       100,
		},
	}
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty), and the environment. environ overrides the process
// environment when non-nil. The result is not validated.
func Load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// decodeYAML rejects unknown keys so typos fail loudly.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and reports every invalid field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fieldPath(fe), tagWithParam(fe)))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// fieldPath renders "Config.Transport.PingInterval" as "transport.ping_interval".
func fieldPath(fe validator.FieldError) string {
	parts := strings.Split(fe.Namespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func tagWithParam(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
