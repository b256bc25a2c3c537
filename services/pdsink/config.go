package pdsink

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pdsink-go/x/strx"
)

// Config is the YAML-facing service configuration.
type Config struct {
	Sink SinkConfig `yaml:"sink"`
}

type SinkConfig struct {
	ID string `yaml:"id"`

	// Bus address; 0 selects the controller default.
	Addr uint16 `yaml:"addr"`

	PollIntervalMs      int `yaml:"poll_interval_ms"`
	NegotiateTimeoutMs  int `yaml:"negotiate_timeout_ms"`
	TelemetryIntervalMs int `yaml:"telemetry_interval_ms"`

	// Initial operating point. Zero voltage means "stay on vSafe5V".
	Initial *TargetConfig `yaml:"initial"`

	Thresholds *ThresholdConfig `yaml:"thresholds"`
}

type TargetConfig struct {
	Voltage_mV int32 `yaml:"voltage_mV"`
	Current_mA int32 `yaml:"current_mA"`
}

type ThresholdConfig struct {
	UVP_pct    int32 `yaml:"uvp_pct"` // 80, 75 or 70; 0 keeps the hardware default
	OVP_mV     int32 `yaml:"ovp_mV"`
	OCP_mA     int32 `yaml:"ocp_mA"`
	OTP_C      int32 `yaml:"otp_C"`
	Derating_C int32 `yaml:"derating_C"`
	SelMin_mV  int32 `yaml:"selmin_mV"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks configuration correctness. It performs declarative
// validation only and MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	s := cfg.Sink
	if s.PollIntervalMs < 0 {
		return fmt.Errorf("sink %q: poll_interval_ms must not be negative", s.ID)
	}
	if s.TelemetryIntervalMs < 0 {
		return fmt.Errorf("sink %q: telemetry_interval_ms must not be negative", s.ID)
	}
	if s.NegotiateTimeoutMs < 0 {
		return fmt.Errorf("sink %q: negotiate_timeout_ms must not be negative", s.ID)
	}
	if t := s.Initial; t != nil {
		if t.Voltage_mV < 0 || t.Current_mA < 0 {
			return fmt.Errorf("sink %q: initial target must not be negative", s.ID)
		}
		if t.Voltage_mV > 0 && t.Current_mA == 0 {
			return fmt.Errorf("sink %q: initial target needs a current", s.ID)
		}
	}
	if th := s.Thresholds; th != nil {
		if th.OVP_mV < 0 || th.OCP_mA < 0 || th.OTP_C < 0 || th.Derating_C < 0 || th.SelMin_mV < 0 {
			return fmt.Errorf("sink %q: thresholds must not be negative", s.ID)
		}
		if th.UVP_pct != 0 && th.UVP_pct != 80 && th.UVP_pct != 75 && th.UVP_pct != 70 {
			return fmt.Errorf("sink %q: uvp_pct must be 80, 75 or 70", s.ID)
		}
	}
	return nil
}

// Defaults applied at service start; the config file stays as written.
const (
	defaultID                = "main"
	defaultPollInterval      = 10 * time.Millisecond
	defaultTelemetryInterval = time.Second
	defaultNegotiateTimeout  = time.Second
)

func (s SinkConfig) id() string { return strx.Coalesce(s.ID, defaultID) }

func (s SinkConfig) pollInterval() time.Duration {
	if s.PollIntervalMs <= 0 {
		return defaultPollInterval
	}
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

func (s SinkConfig) telemetryInterval() time.Duration {
	if s.TelemetryIntervalMs <= 0 {
		return defaultTelemetryInterval
	}
	return time.Duration(s.TelemetryIntervalMs) * time.Millisecond
}

func (s SinkConfig) negotiateTimeout() time.Duration {
	if s.NegotiateTimeoutMs <= 0 {
		return defaultNegotiateTimeout
	}
	return time.Duration(s.NegotiateTimeoutMs) * time.Millisecond
}
