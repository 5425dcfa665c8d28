package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"dsf/internal/cli/output"
	"dsf/internal/config"
	"dsf/internal/domain"
	"dsf/internal/rpc"

	"github.com/spf13/cobra"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage local configuration and daemon addresses",
		Long: `Manage configuration.

add-address and remove-address change the external addresses the daemon
announces. init, path and show act on local config files; pass --daemon
to act on the dsfd file instead.`,
	}
	cmd.AddCommand(
		newConfigAddressCommand("add-address", "Announce an additional external address", func(a domain.Address) rpc.RequestKind {
			return rpc.ConfigAddAddress{Address: a}
		}, "added"),
		newConfigAddressCommand("remove-address", "Stop announcing an external address", func(a domain.Address) rpc.RequestKind {
			return rpc.ConfigRemoveAddress{Address: a}
		}, "removed"),
		newConfigInitCommand(),
		newConfigPathCommand(),
		newConfigShowCommand(),
	)
	return cmd
}

func newConfigAddressCommand(use, short string, build func(domain.Address) rpc.RequestKind, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <address>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := domain.ParseAddress(args[0])
			if err != nil {
				return err
			}
			return done(cmd, build(addr), fmt.Sprintf("%s %s", verb, addr))
		},
	}
}

func appName(daemon bool) string {
	if daemon {
		return config.AppDsfd
	}
	return config.AppDsf
}

func newConfigInitCommand() *cobra.Command {
	var (
		daemon bool
		force  bool
		format = "yaml"
		dir    string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appName(daemon)
			if dir == "" {
				d, err := config.UserConfigDir(app)
				if err != nil {
					return err
				}
				dir = d
			}
			target := filepath.Join(dir, "config."+format)
			if force {
				if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("remove existing config: %w", err)
				}
			}
			path, err := config.GenerateConfig(app, format, dir)
			if err != nil {
				return err
			}
			newWriter(cmd).Success("configuration written to " + path)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&daemon, "daemon", false, "write the dsfd configuration")
	f.BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	f.Var(&enumValue{value: &format, allowed: config.SupportedFormats}, "format", "file format (yaml, toml, json)")
	f.StringVar(&dir, "dir", "", "directory to write into (default is the user config directory)")
	return cmd
}

func newConfigPathCommand() *cobra.Command {
	var daemon bool
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the user configuration directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" && !daemon {
				newWriter(cmd).Println(cfgFile)
				return nil
			}
			dir, err := config.UserConfigDir(appName(daemon))
			if err != nil {
				return err
			}
			newWriter(cmd).Println(dir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&daemon, "daemon", false, "print the dsfd directory")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var daemon bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var settings map[string]any
			if daemon {
				d, _, err := config.LoadDsfd("")
				if err != nil {
					return err
				}
				settings = config.NewViperFromConfig(d).AllSettings()
			} else {
				settings = config.NewViperFromConfig(cfg).AllSettings()
			}
			w := newWriter(cmd)
			if w.Format() == output.FormatJSON {
				return w.Write(settings)
			}
			return w.WithFormat(output.FormatYAML).Write(settings)
		},
	}
	cmd.Flags().BoolVar(&daemon, "daemon", false, "show the dsfd configuration")
	return cmd
}
