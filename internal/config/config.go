// Package config loads the receiver configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Serial     SerialConfig    `yaml:"serial"`
	MQTT       MQTTConfig      `yaml:"mqtt"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Log        LogConfig       `yaml:"log"`
	RawLogFile string          `yaml:"raw_log_file"`
}

// PipelineConfig sizes the sample buffer and tunes the detector.
type PipelineConfig struct {
	BufferCapacity  int     `yaml:"buffer_capacity"`
	SubcarrierCount int     `yaml:"subcarrier_count"`
	WindowSize      int     `yaml:"window_size"`
	Threshold       float64 `yaml:"threshold"`
	Stride          int     `yaml:"stride"`
	ReportInterval  int     `yaml:"report_interval"`
	// ExpectedSource is the transmitter MAC. Empty accepts every source.
	ExpectedSource string `yaml:"expected_source"`
}

type SerialConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	QueueLength int           `yaml:"queue_length"`
}

type MQTTConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Broker       string `yaml:"broker"`
	Topic        string `yaml:"topic"`
	QoS          byte   `yaml:"qos"`
	Retain       bool   `yaml:"retain"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ClientPrefix string `yaml:"client_prefix"`
}

// TelemetryConfig points the sampler at a line-protocol UDP listener such as
// Telegraf. An empty UDPAddr disables it.
type TelemetryConfig struct {
	UDPAddr     string        `yaml:"udp_addr"`
	Interval    time.Duration `yaml:"interval"`
	Measurement string        `yaml:"measurement"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type LogConfig struct {
	File  string `yaml:"file"`
	Debug bool   `yaml:"debug"`
}

const (
	DefaultSubcarrierCount = 57
	DefaultBufferFrames    = 400
	DefaultWindowSize      = 100
	DefaultThreshold       = 6.0
	DefaultStride          = 50
	DefaultReportInterval  = 10
	DefaultExpectedSource  = "1a:00:00:00:00:00"
	DefaultTopic           = "/esp32/csi"
	DefaultBaudRate        = 921600
)

// Default returns the configuration the receiver firmware ships with.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			BufferCapacity:  DefaultSubcarrierCount * DefaultBufferFrames,
			SubcarrierCount: DefaultSubcarrierCount,
			WindowSize:      DefaultWindowSize,
			Threshold:       DefaultThreshold,
			Stride:          DefaultStride,
			ReportInterval:  DefaultReportInterval,
			ExpectedSource:  DefaultExpectedSource,
		},
		Serial: SerialConfig{
			BaudRate:    DefaultBaudRate,
			ReadTimeout: 5 * time.Millisecond,
			QueueLength: 20,
		},
		MQTT: MQTTConfig{
			Enabled:      true,
			Broker:       "tcp://192.168.3.3:1883",
			Topic:        DefaultTopic,
			QoS:          1,
			ClientPrefix: "csi_recv",
		},
		Telemetry: TelemetryConfig{
			Interval:    time.Second,
			Measurement: "csi",
		},
		Log: LogConfig{
			File: "csi_recv.logs",
		},
	}
}

// Load reads filename over the defaults and validates the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the construction-time preconditions of every component.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate))
	}
	if c.Serial.QueueLength < 0 {
		errs = append(errs, fmt.Errorf("serial.queue_length must not be negative, got %d", c.Serial.QueueLength))
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if c.MQTT.Topic == "" {
			errs = append(errs, errors.New("mqtt.topic is required when mqtt is enabled"))
		}
		if c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
		}
	}
	if c.Telemetry.UDPAddr != "" && c.Telemetry.Interval <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.interval must be positive, got %s", c.Telemetry.Interval))
	}
	return errors.Join(errs...)
}

// Validate checks the buffer geometry and scheduler settings.
func (p PipelineConfig) Validate() error {
	var errs []error
	if p.BufferCapacity <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.buffer_capacity must be positive, got %d", p.BufferCapacity))
	}
	if p.SubcarrierCount <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.subcarrier_count must be positive, got %d", p.SubcarrierCount))
	}
	if p.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.window_size must be positive, got %d", p.WindowSize))
	}
	if p.BufferCapacity > 0 && p.SubcarrierCount > 0 && p.WindowSize > 0 &&
		p.WindowSize*p.SubcarrierCount > p.BufferCapacity {
		errs = append(errs, fmt.Errorf("pipeline window of %d frames x %d subcarriers does not fit in buffer_capacity %d",
			p.WindowSize, p.SubcarrierCount, p.BufferCapacity))
	}
	if p.Stride <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.stride must be positive, got %d", p.Stride))
	}
	if p.ReportInterval <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.report_interval must be positive, got %d", p.ReportInterval))
	}
	if _, err := p.ExpectedSourceAddr(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ExpectedSourceAddr parses ExpectedSource. It returns nil for an empty value.
func (p PipelineConfig) ExpectedSourceAddr() (net.HardwareAddr, error) {
	if p.ExpectedSource == "" {
		return nil, nil
	}
	addr, err := net.ParseMAC(p.ExpectedSource)
	if err != nil {
		return nil, fmt.Errorf("pipeline.expected_source: %w", err)
	}
	if len(addr) != 6 {
		return nil, fmt.Errorf("pipeline.expected_source %q is not a 6-byte address", p.ExpectedSource)
	}
	return addr, nil
}
