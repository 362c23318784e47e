// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"buttcom/internal/model"
)

const envPrefix = "BUTTCOM"

// Config represents the application configuration
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Pacing  PacingConfig  `mapstructure:"pacing"`
	Session SessionConfig `mapstructure:"session"`
	Logging LoggingConfig `mapstructure:"logging"`
	App     AppConfig     `mapstructure:"app"`
}

// SerialConfig names the device. Framing is fixed by the firmware and is
// not configurable.
type SerialConfig struct {
	Port         string   `mapstructure:"port"`
	PortPatterns []string `mapstructure:"port_patterns"`
}

// PacingConfig holds the delays the device needs between inputs
type PacingConfig struct {
	CommandDelay time.Duration `mapstructure:"command_delay"`
	CharDelay    time.Duration `mapstructure:"char_delay"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
}

// SessionConfig selects what the session does
type SessionConfig struct {
	Procedure    string `mapstructure:"procedure" validate:"required"`
	DrainOnClear bool   `mapstructure:"drain_on_clear"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// BindFlags registers the command line flags that override config keys
func BindFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "path to a config file")
	fs.StringP("port", "p", "", "serial device the Butterfly is attached to")
	fs.StringP("procedure", "r", "", "procedure to run: "+strings.Join(procedureNames(), ", "))
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-output", "", "log output: stdout, stderr or a file path")
	fs.Duration("command-delay", 0, "pause after each whole command")
	fs.Duration("char-delay", 0, "pause after each character in per-character pacing")
	fs.Bool("list-ports", false, "list serial ports and exit")
}

var flagKeys = map[string]string{
	"port":          "serial.port",
	"procedure":     "session.procedure",
	"log-level":     "logging.level",
	"log-output":    "logging.output",
	"command-delay": "pacing.command_delay",
	"char-delay":    "pacing.char_delay",
}

// Load loads configuration from defaults, an optional file, environment
// variables and flags, in increasing order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("buttcom")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/buttcom")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		for name, key := range flagKeys {
			if flag := fs.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
		if flag := fs.Lookup("config"); flag != nil && flag.Value.String() != "" {
			v.SetConfigFile(flag.Value.String())
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.port_patterns", []string{
		"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*", "/dev/cu.*", "COM*",
	})

	v.SetDefault("pacing.command_delay", "1s")
	v.SetDefault("pacing.char_delay", "100ms")
	v.SetDefault("pacing.settle_delay", "1s")

	v.SetDefault("session.procedure", "hello")
	v.SetDefault("session.drain_on_clear", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	v.SetDefault("app.name", "buttcom")
	v.SetDefault("app.version", "1.0.0")
}

// validate validates the configuration
func validate(config *Config) error {
	if _, err := model.ParseProcedure(config.Session.Procedure); err != nil {
		return fmt.Errorf("session.procedure must be one of: %v", procedureNames())
	}

	if config.Pacing.CommandDelay < 0 || config.Pacing.CharDelay < 0 || config.Pacing.SettleDelay < 0 {
		return fmt.Errorf("pacing delays must not be negative")
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// RequirePort checks that a device path was supplied. Port listing works
// without one, every procedure needs it.
func (c *Config) RequirePort() error {
	if strings.TrimSpace(c.Serial.Port) == "" {
		return fmt.Errorf("serial.port is required (flag --port or env %s_SERIAL_PORT)", envPrefix)
	}
	return nil
}

func procedureNames() []string {
	var names []string
	for _, p := range model.Procedures() {
		names = append(names, string(p))
	}
	return names
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
