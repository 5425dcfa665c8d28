package cmd

import (
	"fmt"

	"dsf/internal/cli/output"
	"dsf/internal/rpc"

	"github.com/spf13/cobra"
)

func newStreamCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Print a service's data as it is published",
		Long: `Print a service's data pages as they arrive, until interrupted.

A remote service that is not subscribed is joined for the lifetime of the
stream. Table output prints one line per page; other formats print one
document per page.`,
		Args: cobra.NoArgs,
	}
	ident := addIdentifierFlags(cmd.Flags(), "service")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := ident.Validate(); err != nil {
			return err
		}
		ctx := cmd.Context()
		c, err := GetClient(ctx)
		if err != nil {
			return err
		}

		req := rpc.NewRequest(rpc.Stream{StreamOptions: rpc.StreamOptions{Service: ident.Identifier()}})
		responses, err := c.Stream(ctx, req)
		if err != nil {
			return err
		}

		w := newWriter(cmd)
		for resp := range responses {
			switch k := resp.Kind.(type) {
			case rpc.Error:
				return k
			case rpc.Unrecognised:
				return &rpc.UnknownKindError{Name: rpc.KindStream, Request: true}
			case rpc.DataResponse:
				if err := printPages(w, k); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: stream answered with %s", rpc.ErrUnexpectedResponse, k.Kind())
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: daemon ended the stream", rpc.ErrClosed)
	}
	return cmd
}

func printPages(w *output.Writer, resp rpc.DataResponse) error {
	if w.Format() != output.FormatTable {
		return w.Write(output.FromResponse(resp))
	}
	table := output.FromResponse(resp).TableData()
	for _, row := range table.Rows {
		// index, kind, body, published
		w.Printf("%s  #%s  %-8s %s\n", row[3], row[0], row[1], row[2])
	}
	return nil
}
