// Package config provides configuration loading and management for dsf and dsfd.
package config

import (
	"time"
)

// LogConfig holds logging configuration shared by both dsf and dsfd
type LogConfig struct {
	Level        string   `mapstructure:"level"`         // debug, info, warn, error
	Format       string   `mapstructure:"format"`        // text, json, pretty
	Output       string   `mapstructure:"output"`        // stdout, stderr, or file path
	FilePath     string   `mapstructure:"file_path"`     // rotated log file in addition to output
	MaxSizeMB    int      `mapstructure:"max_size_mb"`   // max size in MB before rotation
	MaxBackups   int      `mapstructure:"max_backups"`   // max number of old log files to keep
	MaxAgeDays   int      `mapstructure:"max_age_days"`  // max days to retain old log files
	EnableCaller bool     `mapstructure:"enable_caller"` // include source file/line in logs
	NoColor      bool     `mapstructure:"no_color"`      // disable colored output (pretty format only)
	AuditPath    string   `mapstructure:"audit_path"`    // request audit log, empty to disable
	RedactFields []string `mapstructure:"redact_fields"` // field names to redact from logs
}

// OutputConfig holds output formatting options (dsf CLI only)
type OutputConfig struct {
	Format string `mapstructure:"format"` // table, json, yaml, quiet
	Color  bool   `mapstructure:"color"`
}

// ConnectionConfig tells the CLI how to reach the daemon
type ConnectionConfig struct {
	// Address is a unix socket path, a named pipe (\\.\pipe\...) or host:port.
	Address string        `mapstructure:"address"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Retries is how many times a read-only request is resent after a timeout.
	Retries int `mapstructure:"retries"`
}

// ServerConfig holds daemon process configuration
type ServerConfig struct {
	PIDFile string `mapstructure:"pid_file"`
	DataDir string `mapstructure:"data_dir"`
}

// RPCConfig holds the control-plane listener configuration
type RPCConfig struct {
	// Socket is the unix socket path (named pipe on Windows).
	Socket string `mapstructure:"socket"`
	// TCPAddress optionally exposes the control plane on TCP as well.
	TCPAddress string `mapstructure:"tcp_address"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds requests per control-plane connection
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// MetricsConfig holds the prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// P2PConfig holds peer network configuration for the daemon
type P2PConfig struct {
	// Enabled controls whether the daemon joins the peer network
	Enabled bool `mapstructure:"enabled"`

	// KeyPath is the PEM-encoded Ed25519 node identity.
	// If empty, defaults to <data_dir>/identity.pem
	KeyPath string `mapstructure:"key_path"`

	// ListenAddresses in multiaddr format
	ListenAddresses []string `mapstructure:"listen_addresses"`

	// ExternalAddresses are announced in addition to listen addresses
	ExternalAddresses []string `mapstructure:"external_addresses"`

	ConnManager ConnManagerConfig `mapstructure:"connection_manager"`

	// BootstrapPeers is a list of peer multiaddrs (with /p2p/ suffix)
	BootstrapPeers []string `mapstructure:"bootstrap_peers"`

	// DHTMode is "auto", "server" or "client"
	DHTMode string `mapstructure:"dht_mode"`

	// ConnectTimeout bounds a connect request without its own timeout
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// MDNS announces and discovers peers on the local network
	MDNS bool `mapstructure:"mdns"`

	// ReplicaTTL is how long a located replica is trusted without a refresh
	ReplicaTTL time.Duration `mapstructure:"replica_ttl"`
}

// ConnManagerConfig holds connection manager settings
type ConnManagerConfig struct {
	LowWatermark  int           `mapstructure:"low_watermark"`
	HighWatermark int           `mapstructure:"high_watermark"`
	GracePeriod   time.Duration `mapstructure:"grace_period"`
}

// DatabaseConfig holds storage layer configuration
type DatabaseConfig struct {
	// Path is the SQLite database file. Defaults to <data_dir>/dsfd.db
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// SubscriptionConfig controls the subscription ledger
type SubscriptionConfig struct {
	// TTL is how long an entry lives without a keep-alive
	TTL time.Duration `mapstructure:"ttl"`
	// SweepInterval is how often expired entries are removed
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DsfConfig is the complete configuration for the dsf CLI
type DsfConfig struct {
	Log        LogConfig        `mapstructure:"log"`
	Output     OutputConfig     `mapstructure:"output"`
	Connection ConnectionConfig `mapstructure:"connection"`
}

// DsfdConfig is the complete configuration for the dsfd daemon
type DsfdConfig struct {
	Log           LogConfig          `mapstructure:"log"`
	Server        ServerConfig       `mapstructure:"server"`
	RPC           RPCConfig          `mapstructure:"rpc"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	P2P           P2PConfig          `mapstructure:"p2p"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Subscriptions SubscriptionConfig `mapstructure:"subscriptions"`
}

var defaultRedactFields = []string{"secret", "private_key", "password", "token"}

// DefaultDsfConfig returns sensible defaults for the dsf CLI
func DefaultDsfConfig() *DsfConfig {
	return &DsfConfig{
		Log: LogConfig{
			Level:        "warn",
			Format:       "text",
			Output:       "stderr",
			MaxSizeMB:    100,
			MaxBackups:   3,
			MaxAgeDays:   28,
			RedactFields: defaultRedactFields,
		},
		Output: OutputConfig{
			Format: "table",
			Color:  true,
		},
		Connection: ConnectionConfig{
			Address: DefaultSocketPath(),
			Timeout: 10 * time.Second,
			Retries: 1,
		},
	}
}

// DefaultDsfdConfig returns sensible defaults for the dsfd daemon
func DefaultDsfdConfig() *DsfdConfig {
	return &DsfdConfig{
		Log: LogConfig{
			Level:        "info",
			Format:       "pretty",
			Output:       "stdout",
			MaxSizeMB:    100,
			MaxBackups:   3,
			MaxAgeDays:   28,
			EnableCaller: true,
			RedactFields: defaultRedactFields,
		},
		Server: ServerConfig{
			PIDFile: "",
			DataDir: "~/.local/share/dsfd",
		},
		RPC: RPCConfig{
			Socket: DefaultSocketPath(),
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 200,
				Burst:             400,
			},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
		P2P: P2PConfig{
			Enabled: true,
			ListenAddresses: []string{
				"/ip4/0.0.0.0/tcp/10100",
				"/ip4/0.0.0.0/udp/10100/quic-v1",
			},
			ConnManager: ConnManagerConfig{
				LowWatermark:  50,
				HighWatermark: 200,
				GracePeriod:   30 * time.Second,
			},
			BootstrapPeers: []string{},
			DHTMode:        "auto",
			ConnectTimeout: 10 * time.Second,
			MDNS:           true,
			ReplicaTTL:     30 * time.Minute,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 1,
		},
		Subscriptions: SubscriptionConfig{
			TTL:           10 * time.Minute,
			SweepInterval: time.Minute,
		},
	}
}
