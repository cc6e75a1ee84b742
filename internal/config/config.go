// Package config loads rack-power configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/rack-power/internal/logic"
)

// ErrNoConfig is returned by Load when the path is empty.
var ErrNoConfig = errors.New("no config file given")

// Config is the root configuration structure.
type Config struct {
	Timings   TimingsConfig `yaml:"timings"`
	Poll      time.Duration `yaml:"poll"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	GPIO      GPIOConfig    `yaml:"gpio"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	HTTP      HTTPConfig    `yaml:"http"`
	Logging   LoggingConfig `yaml:"logging"`
}

// TimingsConfig holds the sequence dwell periods.
type TimingsConfig struct {
	SignalSettle      time.Duration `yaml:"signal_settle"`
	BootSettle        time.Duration `yaml:"boot_settle"`
	Stabilize         time.Duration `yaml:"stabilize"`
	ShutdownRetrigger time.Duration `yaml:"shutdown_retrigger"`
	// ShutdownWarnAfter raises a STALLED warning when the companion computer
	// has not acknowledged shutdown in time. Power is never cut. Zero disables.
	ShutdownWarnAfter time.Duration `yaml:"shutdown_warn_after"`
}

// Engine returns the timings in the form the sequence engine takes.
func (t TimingsConfig) Engine() logic.Timings {
	return logic.Timings{
		SignalSettle:      t.SignalSettle,
		BootSettle:        t.BootSettle,
		Stabilize:         t.Stabilize,
		ShutdownRetrigger: t.ShutdownRetrigger,
	}
}

// GPIOConfig describes the chip and every line used.
type GPIOConfig struct {
	Chip        string       `yaml:"chip"`
	Switch      InputConfig  `yaml:"switch"`
	ShutdownAck InputConfig  `yaml:"shutdown_ack"`
	Mixer       OutputConfig `yaml:"mixer"`
	Computer    OutputConfig `yaml:"computer"`
	Subwoofers  OutputConfig `yaml:"subwoofers"`
	RunSignal   OutputConfig `yaml:"run_signal"`
	Indicator   OutputConfig `yaml:"indicator"`
	Liveness    OutputConfig `yaml:"liveness"`

	// LivenessBlink is the half-period of the liveness LED. Zero disables it.
	LivenessBlink time.Duration `yaml:"liveness_blink"`
}

// InputConfig describes an input line.
type InputConfig struct {
	Pin       int           `yaml:"pin"`
	ActiveLow bool          `yaml:"active_low"`
	Bias      string        `yaml:"bias"`
	Debounce  time.Duration `yaml:"debounce"`
}

// OutputConfig describes an output line. A negative pin disables it.
type OutputConfig struct {
	Pin       int  `yaml:"pin"`
	ActiveLow bool `yaml:"active_low"`
	OpenDrain bool `yaml:"open_drain"`
}

// MQTTConfig contains broker settings. An empty broker disables publishing.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	BufferSize  int    `yaml:"buffer_size"`
}

// HTTPConfig contains the status server settings. An empty addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Timings: TimingsConfig{
			SignalSettle:      500 * time.Millisecond,
			BootSettle:        5 * time.Second,
			Stabilize:         1 * time.Second,
			ShutdownRetrigger: 500 * time.Millisecond,
			ShutdownWarnAfter: 2 * time.Minute,
		},
		Poll:      10 * time.Millisecond,
		Heartbeat: 15 * time.Minute,
		GPIO: GPIOConfig{
			Chip:        "gpiochip0",
			Switch:      InputConfig{Pin: 17, ActiveLow: true, Bias: "pull-up", Debounce: 100 * time.Millisecond},
			ShutdownAck: InputConfig{Pin: 27, Bias: "pull-down", Debounce: 10 * time.Millisecond},
			Mixer:       OutputConfig{Pin: 22, ActiveLow: true},
			Computer:    OutputConfig{Pin: 24, ActiveLow: true, OpenDrain: true},
			Subwoofers:  OutputConfig{Pin: 23, ActiveLow: true},
			RunSignal:   OutputConfig{Pin: 25},
			Indicator:   OutputConfig{Pin: 5},
			Liveness:    OutputConfig{Pin: -1},

			LivenessBlink: 1 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://192.168.1.200:1883",
			ClientID:    "rack-power",
			TopicPrefix: "audio/rack/power",
			BufferSize:  100,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrNoConfig
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
// Environment variables follow the pattern: RACKPOWER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("RACKPOWER_MQTT_BROKER"); ok {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("RACKPOWER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("RACKPOWER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v, ok := os.LookupEnv("RACKPOWER_HTTP_ADDR"); ok {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("RACKPOWER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RACKPOWER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if err := c.Timings.Engine().Validate(); err != nil {
		errs = append(errs, "timings."+err.Error())
	}
	if c.Timings.ShutdownWarnAfter < 0 {
		errs = append(errs, "timings.shutdown_warn_after must not be negative")
	}
	if c.Poll <= 0 {
		errs = append(errs, "poll must be positive")
	}
	if c.Heartbeat < 0 {
		errs = append(errs, "heartbeat must not be negative")
	}
	if c.GPIO.LivenessBlink < 0 {
		errs = append(errs, "gpio.liveness_blink must not be negative")
	}

	if c.GPIO.Chip == "" {
		errs = append(errs, "gpio.chip is required")
	}
	inputs := map[string]InputConfig{
		"switch":       c.GPIO.Switch,
		"shutdown_ack": c.GPIO.ShutdownAck,
	}
	for _, name := range []string{"switch", "shutdown_ack"} {
		in := inputs[name]
		if in.Pin < 0 {
			errs = append(errs, fmt.Sprintf("gpio.%s.pin is required", name))
		}
		if in.Debounce < 0 {
			errs = append(errs, fmt.Sprintf("gpio.%s.debounce must not be negative", name))
		}
		switch in.Bias {
		case "", "pull-up", "pull-down", "disabled":
		default:
			errs = append(errs, fmt.Sprintf("gpio.%s.bias %q is not one of pull-up, pull-down, disabled", name, in.Bias))
		}
	}

	// The relay channels and run signal are mandatory; the LEDs are optional.
	used := map[int]string{
		c.GPIO.Switch.Pin:      "switch",
		c.GPIO.ShutdownAck.Pin: "shutdown_ack",
	}
	if c.GPIO.Switch.Pin == c.GPIO.ShutdownAck.Pin {
		errs = append(errs, fmt.Sprintf("gpio.shutdown_ack.pin %d already used by switch", c.GPIO.ShutdownAck.Pin))
	}
	outputs := []struct {
		name     string
		out      OutputConfig
		required bool
	}{
		{"mixer", c.GPIO.Mixer, true},
		{"computer", c.GPIO.Computer, true},
		{"subwoofers", c.GPIO.Subwoofers, true},
		{"run_signal", c.GPIO.RunSignal, true},
		{"indicator", c.GPIO.Indicator, false},
		{"liveness", c.GPIO.Liveness, false},
	}
	for _, o := range outputs {
		if o.out.Pin < 0 {
			if o.required {
				errs = append(errs, fmt.Sprintf("gpio.%s.pin is required", o.name))
			}
			continue
		}
		if other, ok := used[o.out.Pin]; ok {
			errs = append(errs, fmt.Sprintf("gpio.%s.pin %d already used by %s", o.name, o.out.Pin, other))
			continue
		}
		used[o.out.Pin] = o.name
	}

	if c.MQTT.Broker != "" {
		if c.MQTT.ClientID == "" {
			errs = append(errs, "mqtt.client_id is required when a broker is set")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when a broker is set")
		}
		if c.MQTT.BufferSize <= 0 {
			errs = append(errs, "mqtt.buffer_size must be positive")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q is not one of json, text", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
