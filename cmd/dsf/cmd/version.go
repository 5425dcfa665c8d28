package cmd

import (
	"context"
	"time"

	"dsf/internal/cli/output"
	"dsf/internal/grpc/client"
	"dsf/internal/rpc"
	"dsf/internal/version"

	"github.com/spf13/cobra"
)

// versionInfo adds the daemon reachability to the build information.
type versionInfo struct {
	version.Info
	Daemon   string `json:"daemon" yaml:"daemon"`
	DaemonID string `json:"daemon_id,omitempty" yaml:"daemon_id,omitempty"`
}

func newVersionCommand() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{Info: version.Get(), Daemon: "not checked"}
			if !offline {
				info.Daemon, info.DaemonID = probeDaemon(cmd.Context())
			}

			w := newWriter(cmd)
			if w.Format() == output.FormatTable {
				w.Println(info.Full())
				w.Printf("Daemon: %s\n", info.Daemon)
				if info.DaemonID != "" {
					w.Printf("Daemon ID: %s\n", info.DaemonID)
				}
				return nil
			}
			return w.Write(info)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "do not contact the daemon")
	return cmd
}

// probeDaemon asks for status with a short timeout and never fails.
func probeDaemon(ctx context.Context) (string, string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	c, err := GetClient(ctx)
	if err != nil {
		return "unreachable", ""
	}
	st, err := rpc.Call[rpc.StatusResponse](ctx, c, rpc.Status{})
	switch {
	case client.IsTimeout(err):
		return "timeout", ""
	case err != nil:
		return "error: " + err.Error(), ""
	}
	return "running", st.ID.String()
}
