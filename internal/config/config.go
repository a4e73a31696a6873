package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a config file accepted by Load.
const MaxConfigFileBytes = 1 << 20

// SerialConfig describes the serial link to the mount controller (Arduino).
type SerialConfig struct {
	Port   string `yaml:"port"`    // e.g., "/dev/ttyACM0"
	Baud   int    `yaml:"baud"`    // e.g., 115200
	ReadMs int    `yaml:"read_ms"` // read timeout of the background reader (ms)
}

// StepperConfig holds the configuration for a stepper motor.
type StepperConfig struct {
	StepPin       int `yaml:"step_pin"`
	DirPin        int `yaml:"dir_pin"`
	EnablePin     int `yaml:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev   int `yaml:"steps_per_rev"`
	Microstepping int `yaml:"microstepping"`
}

// DirectDriveConfig replaces the serial link by pan/tilt steppers wired to GPIO.
type DirectDriveConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MockGPIO    bool          `yaml:"mock_gpio"` // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	PanStepper  StepperConfig `yaml:"pan_stepper"`
	TiltStepper StepperConfig `yaml:"tilt_stepper"`
	StepDelayUs int           `yaml:"step_delay_us"` // initial half-cycle delay of a STEP pulse
}

// CameraConfig describes one camera. One entry per physical camera; the
// transport decides which capture strategies apply.
type CameraConfig struct {
	Name           string `yaml:"name"`             // e.g., "hd"
	Model          string `yaml:"model"`            // e.g., "HD USB Camera"
	Transport      string `yaml:"transport"`        // "mjpeg", "rtsp" or "device"
	Host           string `yaml:"host"`             // streaming server host (default: localhost)
	VideoPort      int    `yaml:"video_port"`       // MJPEG server port
	RTSPPort       int    `yaml:"rtsp_port"`        // RTSP server port
	RTSPPath       string `yaml:"rtsp_path"`        // RTSP path (default: "cam")
	Device         string `yaml:"device"`           // e.g., "/dev/video0"; empty = unknown
	WarmupFrames   int    `yaml:"warmup_frames"`    // frames discarded on direct capture
	GuideRotate180 bool   `yaml:"guide_rotate_180"` // rotate guide frames by 180°
}

// GuidanceConfig holds defaults for the auto-centre loop.
type GuidanceConfig struct {
	IntervalS    float64  `yaml:"interval_s"`    // seconds between correction attempts
	ThresholdPct *float64 `yaml:"threshold_pct"` // dead-zone in percent of frame size; nil = 10
	StepsCmd     string   `yaml:"steps_cmd"`     // e.g., "s=100"
	SpeedCmd     string   `yaml:"speed_cmd"`     // e.g., "sp=50"
}

// CalibrationConfig holds parameters of the rotation check.
type CalibrationConfig struct {
	SettleMs int    `yaml:"settle_ms"` // wait between move and second frame (ms)
	DebugDir string `yaml:"debug_dir"` // where debug frames go when requested
}

// WebConfig holds the HTTP control server settings.
type WebConfig struct {
	Port int `yaml:"port"`
}

// MQTTConfig is optional: guide and calibration events are published when Broker is set.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g., "tcp://localhost:1883"
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	DirectDrive DirectDriveConfig `yaml:"direct_drive"`
	Cameras     []CameraConfig    `yaml:"cameras"`
	Guidance    GuidanceConfig    `yaml:"guidance"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Web         WebConfig         `yaml:"web"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files located directly in a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if strings.Contains(filepath.ToSlash(clean), "../") || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("config path %q must not traverse directories", path)
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
// A .env file in the working directory is loaded first; SCOPEGO_* variables
// override the file values.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() error {
	if len(cfg.Cameras) == 0 {
		return errors.New("at least one camera is required")
	}
	seen := make(map[string]bool)
	for i := range cfg.Cameras {
		c := &cfg.Cameras[i]
		if c.Name == "" {
			return fmt.Errorf("cameras[%d].name is required", i)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return fmt.Errorf("duplicate camera name %q", c.Name)
		}
		seen[key] = true

		switch c.Transport {
		case "mjpeg", "rtsp", "device":
		case "":
			return fmt.Errorf("cameras[%d].transport is required", i)
		default:
			return fmt.Errorf("cameras[%d].transport %q unsupported (mjpeg, rtsp, device)", i, c.Transport)
		}
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Transport == "mjpeg" && c.VideoPort <= 0 {
			return fmt.Errorf("cameras[%d].video_port is required for mjpeg", i)
		}
		if c.Transport == "rtsp" && c.RTSPPort <= 0 {
			c.RTSPPort = 8554
		}
		if c.RTSPPath == "" {
			c.RTSPPath = "cam"
		}
		if c.Transport == "device" && c.Device == "" {
			return fmt.Errorf("cameras[%d].device is required for device transport", i)
		}
		if c.WarmupFrames <= 0 {
			c.WarmupFrames = 5
		}
	}

	if !cfg.DirectDrive.Enabled {
		if cfg.Serial.Port == "" {
			cfg.Serial.Port = "/dev/ttyACM0"
		}
		if cfg.Serial.Baud <= 0 {
			cfg.Serial.Baud = 115200
		}
		if cfg.Serial.ReadMs <= 0 {
			cfg.Serial.ReadMs = 100
		}
	} else if cfg.DirectDrive.StepDelayUs <= 0 {
		cfg.DirectDrive.StepDelayUs = 1000
	}

	g := &cfg.Guidance
	if g.IntervalS <= 0 {
		g.IntervalS = 2 // 2s between corrections
	}
	if g.ThresholdPct == nil {
		def := 10.0
		g.ThresholdPct = &def
	}
	if t := *g.ThresholdPct; math.IsNaN(t) || t < 0 || t > 100 {
		return fmt.Errorf("guidance.threshold_pct must be between 0 and 100, got %.2f", t)
	}
	if g.StepsCmd == "" {
		g.StepsCmd = "s=100"
	}
	if g.SpeedCmd == "" {
		g.SpeedCmd = "sp=50"
	}

	if cfg.Calibration.SettleMs <= 0 {
		cfg.Calibration.SettleMs = 5000
	}
	if cfg.Calibration.DebugDir == "" {
		cfg.Calibration.DebugDir = "debug"
	}

	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 5000
	}
	if cfg.Web.Port > 65535 {
		return fmt.Errorf("web.port must be 1-65535, got %d", cfg.Web.Port)
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "scopego"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "scopego"
	}
	return nil
}

// applyEnv overrides selected values from SCOPEGO_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("SCOPEGO_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("SCOPEGO_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("SCOPEGO_WEB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCOPEGO_WEB_PORT: %w", err)
		}
		cfg.Web.Port = port
	}
	if v := os.Getenv("SCOPEGO_DEBUG_LEVEL"); v != "" {
		lvl, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCOPEGO_DEBUG_LEVEL: %w", err)
		}
		cfg.Defaults.DebugLevel = lvl
	}
	return nil
}

// GuideInterval returns the default delay between two guide cycles.
func (c *Config) GuideInterval() time.Duration {
	return time.Duration(c.Guidance.IntervalS * float64(time.Second))
}

// GuideThreshold returns the default dead-zone in percent. Zero is a valid setting.
func (c *Config) GuideThreshold() float64 {
	if c.Guidance.ThresholdPct == nil {
		return 10
	}
	return *c.Guidance.ThresholdPct
}

// SettleTime returns how long the mount is given to finish a calibration move.
func (c *Config) SettleTime() time.Duration {
	return time.Duration(c.Calibration.SettleMs) * time.Millisecond
}

// StepDelay returns the initial half-cycle delay of direct-drive steppers.
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.DirectDrive.StepDelayUs) * time.Microsecond
}

// SerialReadTimeout returns the read timeout used by the serial background reader.
func (c *Config) SerialReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadMs) * time.Millisecond
}
