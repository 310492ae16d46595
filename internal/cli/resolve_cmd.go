package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/45Drives/studio-share-sub000/internal/resolve"
)

func newResolveCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which transport uploads would use on this machine",
		Long: `Resolve the transport binaries for this platform and report whether
rsync supports --info=progress2. Nothing is sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("transport") {
				transport = GetConfig().Transfer.Transport
			}
			r, err := newResolver(transport)
			if err != nil {
				return err
			}
			rt := r.Resolve(GetContext(), resolve.Current())

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, rt)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Platform:\t%s\n", rt.Platform.OS)
			fmt.Fprintf(tw, "Transport:\t%s\n", rt.Kind)
			fmt.Fprintf(tw, "Executable:\t%s\n", orNone(rt.Executable))
			if rt.Host != "" {
				fmt.Fprintf(tw, "Rsync host:\t%s\n", rt.Host)
			}
			fmt.Fprintf(tw, "SSH client:\t%s\n", orNone(rt.SSHExecutable))
			if rt.Version != "" {
				fmt.Fprintf(tw, "Rsync version:\t%s\n", rt.Version)
			}
			fmt.Fprintf(tw, "Rich progress:\t%t\n", rt.SupportsRichProgress)
			fmt.Fprintf(tw, "Protect args:\t%t\n", rt.ProtectArgs)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&transport, "transport", "t", "", "Force a transport: rsync, scp, ssh-stream or sftp")
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
