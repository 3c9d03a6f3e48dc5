package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env     string        `yaml:"env" env:"HEVT_ENV" env-default:"prod"`
	Network NetworkConfig `yaml:"network"`
	Frame   FrameConfig   `yaml:"frame"`
	Notify  NotifyConfig  `yaml:"notify"`
	History HistoryConfig `yaml:"history"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

type NetworkConfig struct {
	BindIP        string        `yaml:"bind_ip" env:"HEVT_BIND_IP"`
	DeviceIP      string        `yaml:"device_ip" env:"HEVT_DEVICE_IP" env-default:"192.168.5.11"`
	ReportPort    int           `yaml:"report_port" env-default:"1234"`
	ImagePort     int           `yaml:"image_port" env-default:"1235"`
	ReportTimeout time.Duration `yaml:"report_timeout" env-default:"1s"`
	ImageTimeout  time.Duration `yaml:"image_timeout" env-default:"2s"`
	MaxDatagram   int           `yaml:"max_datagram" env-default:"2048"`
}

type FrameConfig struct {
	Deadline      time.Duration `yaml:"deadline" env-default:"2s"`
	DiffThreshold float64       `yaml:"diff_threshold" env-default:"2.0"`
	LockPeer      bool          `yaml:"lock_peer" env-default:"false"`
	DisplayMin    float64       `yaml:"display_min" env-default:"20"`
	DisplayMax    float64       `yaml:"display_max" env-default:"60"`
}

type NotifyConfig struct {
	SettingsPath  string        `yaml:"settings_path" env:"HEVT_SETTINGS_PATH" env-default:"config/line_config.json"`
	Endpoint      string        `yaml:"endpoint" env-default:"https://api.line.me/v2/bot/message/push"`
	Timeout       time.Duration `yaml:"timeout" env-default:"8s"`
	QueueSize     int           `yaml:"queue_size" env-default:"64"`
	Workers       int           `yaml:"workers" env-default:"1"`
	RatePerMinute float64       `yaml:"rate_per_minute" env-default:"30"`
	Burst         int           `yaml:"burst" env-default:"5"`
	DryRun        bool          `yaml:"dry_run" env:"HEVT_NOTIFY_DRY_RUN" env-default:"false"`
	Retry         RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env-default:"1"`
	InitialDelay time.Duration `yaml:"initial_delay" env-default:"1s"`
	MaxDelay     time.Duration `yaml:"max_delay" env-default:"10s"`
}

type HistoryConfig struct {
	Enabled bool          `yaml:"enabled" env-default:"true"`
	Path    string        `yaml:"path" env-default:"/var/lib/hevt/history.db"`
	MaxAge  time.Duration `yaml:"max_age" env-default:"720h"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env:"HEVT_HTTP_ADDRESS" env-default:":8080"`
}

type LogConfig struct {
	Level  string `yaml:"level" env-default:"info"`
	Format string `yaml:"format" env-default:"json"`
}

// ReportAddr is the local address the report/command socket binds to.
func (n NetworkConfig) ReportAddr() string {
	return net.JoinHostPort(n.BindIP, strconv.Itoa(n.ReportPort))
}

func (n NetworkConfig) ImageAddr() string {
	return net.JoinHostPort(n.BindIP, strconv.Itoa(n.ImagePort))
}

// DeviceAddr is where outbound commands are sent.
func (n NetworkConfig) DeviceAddr() string {
	return net.JoinHostPort(n.DeviceIP, strconv.Itoa(n.ReportPort))
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func Load(configPath string) (*Config, error) {
	// .env is optional; values already in the environment win.
	_ = godotenv.Load(".env")

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := c.Network.Validate(); err != nil {
		return err
	}
	if c.Network.MaxDatagram <= 0 {
		return fmt.Errorf("network.max_datagram must be > 0")
	}
	if c.Frame.Deadline <= 0 {
		return fmt.Errorf("frame.deadline must be > 0")
	}
	if c.Notify.Workers <= 0 {
		c.Notify.Workers = 1
	}
	if c.Notify.QueueSize <= 0 {
		c.Notify.QueueSize = 1
	}
	if c.Notify.Retry.MaxAttempts <= 0 {
		c.Notify.Retry.MaxAttempts = 1
	}
	return nil
}

// Validate checks the addressing fields; it is also used when the network is
// changed at runtime.
func (n NetworkConfig) Validate() error {
	if n.ReportPort <= 0 || n.ReportPort > 65535 {
		return fmt.Errorf("network.report_port out of range: %d", n.ReportPort)
	}
	if n.ImagePort <= 0 || n.ImagePort > 65535 {
		return fmt.Errorf("network.image_port out of range: %d", n.ImagePort)
	}
	if n.ReportPort == n.ImagePort {
		return fmt.Errorf("network.report_port and network.image_port must differ")
	}
	if n.ReportTimeout <= 0 || n.ImageTimeout <= 0 {
		return fmt.Errorf("network receive timeouts must be > 0")
	}
	if n.BindIP != "" && net.ParseIP(n.BindIP) == nil {
		return fmt.Errorf("network.bind_ip is not an IP address: %q", n.BindIP)
	}
	if net.ParseIP(n.DeviceIP) == nil {
		return fmt.Errorf("network.device_ip is not an IP address: %q", n.DeviceIP)
	}
	return nil
}
