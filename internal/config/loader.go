package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	AppDsf  = "dsf"
	AppDsfd = "dsfd"
)

// configSearchPaths returns the paths to search for config files in order of precedence
// (later paths have higher priority in Viper)
func configSearchPaths(appName string) []string {
	paths := []string{filepath.Join("/etc", appName)}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appName))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, cwd)
	}
	return paths
}

// UserConfigDir returns the user-specific config directory for the app
func UserConfigDir(appName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// newViper creates and configures a new Viper instance for the given app
func newViper(appName string) *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range configSearchPaths(appName) {
		v.AddConfigPath(path)
	}

	// DSF_CONNECTION_ADDRESS, DSFD_RPC_SOCKET, ...
	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadDsf loads the configuration for the dsf CLI
func LoadDsf(cfgFile string) (*DsfConfig, error) {
	cfg, _, err := load[DsfConfig](AppDsf, cfgFile, DefaultDsfConfig())
	return cfg, err
}

// LoadDsfd loads the configuration for the dsfd daemon and returns the file
// that was used, if any.
func LoadDsfd(cfgFile string) (*DsfdConfig, string, error) {
	cfg, used, err := load[DsfdConfig](AppDsfd, cfgFile, DefaultDsfdConfig())
	if err != nil {
		return nil, "", err
	}
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, used, err
	}
	return cfg, used, nil
}

func load[T any](appName, cfgFile string, defaults *T) (*T, string, error) {
	v := newViper(appName)
	setViperDefaults(v, defaults)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	if err := readConfig(v); err != nil {
		return nil, "", err
	}
	cfg, err := decode[T](v)
	if err != nil {
		return nil, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// no file; defaults + env vars
	}
	return nil
}

func decode[T any](v *viper.Viper) (*T, error) {
	var cfg T
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := resolveSecrets(&cfg); err != nil {
		return nil, fmt.Errorf("failed to resolve secrets: %w", err)
	}
	return &cfg, nil
}

// configKeys flattens a config struct into viper keys
func configKeys(cfg any) map[string]any {
	keys := map[string]any{}
	switch c := cfg.(type) {
	case *DsfConfig:
		logKeys(keys, c.Log)
		keys["output.format"] = c.Output.Format
		keys["output.color"] = c.Output.Color
		keys["connection.address"] = c.Connection.Address
		keys["connection.timeout"] = c.Connection.Timeout
		keys["connection.retries"] = c.Connection.Retries
	case *DsfdConfig:
		logKeys(keys, c.Log)
		keys["server.pid_file"] = c.Server.PIDFile
		keys["server.data_dir"] = c.Server.DataDir
		keys["rpc.socket"] = c.RPC.Socket
		keys["rpc.tcp_address"] = c.RPC.TCPAddress
		keys["rpc.rate_limit.enabled"] = c.RPC.RateLimit.Enabled
		keys["rpc.rate_limit.requests_per_second"] = c.RPC.RateLimit.RequestsPerSecond
		keys["rpc.rate_limit.burst"] = c.RPC.RateLimit.Burst
		keys["metrics.enabled"] = c.Metrics.Enabled
		keys["metrics.address"] = c.Metrics.Address
		keys["p2p.enabled"] = c.P2P.Enabled
		keys["p2p.key_path"] = c.P2P.KeyPath
		keys["p2p.listen_addresses"] = c.P2P.ListenAddresses
		keys["p2p.external_addresses"] = c.P2P.ExternalAddresses
		keys["p2p.connection_manager.low_watermark"] = c.P2P.ConnManager.LowWatermark
		keys["p2p.connection_manager.high_watermark"] = c.P2P.ConnManager.HighWatermark
		keys["p2p.connection_manager.grace_period"] = c.P2P.ConnManager.GracePeriod
		keys["p2p.bootstrap_peers"] = c.P2P.BootstrapPeers
		keys["p2p.dht_mode"] = c.P2P.DHTMode
		keys["p2p.connect_timeout"] = c.P2P.ConnectTimeout
		keys["p2p.mdns"] = c.P2P.MDNS
		keys["p2p.replica_ttl"] = c.P2P.ReplicaTTL
		keys["database.path"] = c.Database.Path
		keys["database.max_open_conns"] = c.Database.MaxOpenConns
		keys["subscriptions.ttl"] = c.Subscriptions.TTL
		keys["subscriptions.sweep_interval"] = c.Subscriptions.SweepInterval
	}
	return keys
}

func logKeys(keys map[string]any, l LogConfig) {
	keys["log.level"] = l.Level
	keys["log.format"] = l.Format
	keys["log.output"] = l.Output
	keys["log.file_path"] = l.FilePath
	keys["log.max_size_mb"] = l.MaxSizeMB
	keys["log.max_backups"] = l.MaxBackups
	keys["log.max_age_days"] = l.MaxAgeDays
	keys["log.enable_caller"] = l.EnableCaller
	keys["log.no_color"] = l.NoColor
	keys["log.audit_path"] = l.AuditPath
	keys["log.redact_fields"] = l.RedactFields
}

// setViperDefaults sets default values in Viper from a config struct
func setViperDefaults(v *viper.Viper, cfg any) {
	for k, val := range configKeys(cfg) {
		v.SetDefault(k, val)
	}
}

// NewViperFromConfig creates a viper instance populated with values from a config struct
func NewViperFromConfig(cfg any) *viper.Viper {
	v := viper.New()
	for k, val := range configKeys(cfg) {
		v.Set(k, val)
	}
	return v
}

func (c *DsfdConfig) expandPaths() {
	c.Server.DataDir = ExpandPath(c.Server.DataDir)
	if c.P2P.KeyPath == "" {
		c.P2P.KeyPath = filepath.Join(c.Server.DataDir, "identity.pem")
	}
	c.P2P.KeyPath = ExpandPath(c.P2P.KeyPath)
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.Server.DataDir, "dsfd.db")
	}
	c.Database.Path = ExpandPath(c.Database.Path)
	c.Log.FilePath = ExpandPath(c.Log.FilePath)
	c.Log.AuditPath = ExpandPath(c.Log.AuditPath)
}
