package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	validLevels  = []string{"debug", "info", "warn", "warning", "error"}
	validFormats = []string{"text", "json", "pretty"}
	validOutputs = []string{"table", "json", "yaml", "quiet"}
	validDHT     = []string{"auto", "server", "client"}
)

func oneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return nil
		}
	}
	return fmt.Errorf("%s: %q is not one of %s", field, value, strings.Join(allowed, ", "))
}

// Validate checks the log settings.
func (l LogConfig) Validate() error {
	var errs []error
	if l.Level != "" {
		errs = append(errs, oneOf("log.level", l.Level, validLevels))
	}
	if l.Format != "" {
		errs = append(errs, oneOf("log.format", l.Format, validFormats))
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log: rotation limits must not be negative"))
	}
	return errors.Join(errs...)
}

// Validate checks the CLI configuration.
func (c *DsfConfig) Validate() error {
	var errs []error
	errs = append(errs, c.Log.Validate())
	errs = append(errs, oneOf("output.format", c.Output.Format, validOutputs))
	if c.Connection.Address == "" {
		errs = append(errs, errors.New("connection.address is required"))
	}
	if c.Connection.Timeout <= 0 {
		errs = append(errs, errors.New("connection.timeout must be positive"))
	}
	if c.Connection.Retries < 0 {
		errs = append(errs, errors.New("connection.retries must not be negative"))
	}
	return errors.Join(errs...)
}

// Validate checks the daemon configuration and reports every problem found.
func (c *DsfdConfig) Validate() error {
	var errs []error
	errs = append(errs, c.Log.Validate())

	if c.Server.DataDir == "" {
		errs = append(errs, errors.New("server.data_dir is required"))
	}
	if c.RPC.Socket == "" && c.RPC.TCPAddress == "" {
		errs = append(errs, errors.New("rpc: one of socket or tcp_address is required"))
	}
	if rl := c.RPC.RateLimit; rl.Enabled && (rl.RequestsPerSecond <= 0 || rl.Burst <= 0) {
		errs = append(errs, errors.New("rpc.rate_limit: requests_per_second and burst must be positive"))
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics.address is required when metrics are enabled"))
	}
	if c.P2P.Enabled {
		if len(c.P2P.ListenAddresses) == 0 {
			errs = append(errs, errors.New("p2p.listen_addresses must not be empty"))
		}
		errs = append(errs, oneOf("p2p.dht_mode", c.P2P.DHTMode, validDHT))
		if cm := c.P2P.ConnManager; cm.LowWatermark > cm.HighWatermark {
			errs = append(errs, errors.New("p2p.connection_manager: low_watermark exceeds high_watermark"))
		}
	}
	if c.Subscriptions.TTL < 0 {
		errs = append(errs, errors.New("subscriptions.ttl must not be negative"))
	}
	if c.Subscriptions.SweepInterval <= 0 {
		errs = append(errs, errors.New("subscriptions.sweep_interval must be positive"))
	}
	return errors.Join(errs...)
}
