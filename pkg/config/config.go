package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Network   NetworkConfig   `yaml:"network"`
	Nodes     NodesConfig     `yaml:"nodes"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Security  SecurityConfig  `yaml:"security"`
	Payment   PaymentConfig   `yaml:"payment"`
	Logger    LoggerConfig    `yaml:"logger"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
}

type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	User            string `yaml:"user"`
	DBName          string `yaml:"name"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

// NetworkConfig pins the Symbol network the watcher observes.
type NetworkConfig struct {
	// XYMMosaicID is the network currency mosaic (6BED913FA20223F8 on mainnet).
	XYMMosaicID string `yaml:"xym_mosaic_id"`
	// EpochAdjustment converts chain timestamps (ms since nemesis) to wall
	// time: wall = epoch_adjustment seconds + chain ms.
	EpochAdjustment int64 `yaml:"epoch_adjustment"`
}

type NodeConfig struct {
	URL      string        `yaml:"url"`
	Name     string        `yaml:"name"`
	Priority int           `yaml:"priority"`
	Timeout  time.Duration `yaml:"timeout"`
	Region   string        `yaml:"region"`
}

type NodesConfig struct {
	Endpoints []NodeConfig `yaml:"endpoints"`
	// UnhealthyThreshold consecutive failures flip a node unhealthy.
	UnhealthyThreshold int `yaml:"unhealthy_threshold"`
	// ProbeInterval is the background health probe cadence.
	ProbeInterval time.Duration `yaml:"probe_interval"`
	// ProbeCooldown is the minimum wait before re-probing an unhealthy node.
	ProbeCooldown time.Duration `yaml:"probe_cooldown"`
}

type MonitorConfig struct {
	// PollInterval is the cadence of a session's match attempts.
	PollInterval time.Duration `yaml:"poll_interval"`
	// PageSize bounds the confirmed-transactions page fetched per scan.
	PageSize int `yaml:"page_size"`
	// ResumeBatchSize bounds how many pending payments are loaded per page
	// when re-attaching sessions after a restart.
	ResumeBatchSize int `yaml:"resume_batch_size"`
}

type ExchangeConfig struct {
	// Provider selects the rate capability by id; selection is configuration,
	// not code.
	Provider         string `yaml:"provider"`
	FiatCurrency     string `yaml:"fiat_currency"`
	BaseURL          string `yaml:"base_url"`
	APIKey           string `yaml:"api_key"`
	Timeout          int    `yaml:"timeout"`
	MaxRetries       int    `yaml:"max_retries"`
	RetryBackoffBase int    `yaml:"retry_backoff_base"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	CheckOrigin     bool          `yaml:"check_origin"`
	PingPeriod      time.Duration `yaml:"ping_period"`
}

type SecurityConfig struct {
	APIKey string `yaml:"api_key"`
}

type PaymentConfig struct {
	// ExpireAfter is the fixed lifetime of a payment window, set at creation
	// and never extended.
	ExpireAfter time.Duration `yaml:"expire_after"`
	// MessageLength is the length of the generated reference message.
	MessageLength int `yaml:"message_length"`
}

type LoggerConfig struct {
	Level      string `yaml:"level"`
	TimeFormat string `yaml:"time_format"`
	Pretty     bool   `yaml:"pretty"`
}

func Load() (*Config, error) {
	// Missing .env is fine in containerized deployments.
	_ = godotenv.Load()

	configData, err := os.ReadFile("./config.yaml")
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Nodes.UnhealthyThreshold <= 0 {
		c.Nodes.UnhealthyThreshold = 3
	}
	if c.Nodes.ProbeInterval <= 0 {
		c.Nodes.ProbeInterval = 45 * time.Second
	}
	if c.Nodes.ProbeCooldown <= 0 {
		c.Nodes.ProbeCooldown = 15 * time.Second
	}
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = 5 * time.Second
	}
	if c.Monitor.PageSize <= 0 {
		c.Monitor.PageSize = 25
	}
	if c.Monitor.ResumeBatchSize <= 0 {
		c.Monitor.ResumeBatchSize = 100
	}
	if c.Payment.ExpireAfter <= 0 {
		c.Payment.ExpireAfter = 30 * time.Minute
	}
	if c.Payment.MessageLength <= 0 {
		c.Payment.MessageLength = 8
	}
	if c.Exchange.FiatCurrency == "" {
		c.Exchange.FiatCurrency = "USD"
	}
	for i := range c.Nodes.Endpoints {
		if c.Nodes.Endpoints[i].Timeout <= 0 {
			c.Nodes.Endpoints[i].Timeout = 10 * time.Second
		}
	}
}

func (c *Config) validate() error {
	if len(c.Nodes.Endpoints) == 0 {
		return fmt.Errorf("at least one node endpoint must be configured")
	}
	if c.Network.XYMMosaicID == "" {
		return fmt.Errorf("network.xym_mosaic_id is required")
	}
	if c.Network.EpochAdjustment == 0 {
		return fmt.Errorf("network.epoch_adjustment is required")
	}
	return nil
}
