package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/45Drives/studio-share-sub000/internal/config"
	"github.com/45Drives/studio-share-sub000/internal/history"
	"github.com/45Drives/studio-share-sub000/internal/transfer"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit     int
		pruneDays int
		dbPath    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				p, err := config.HistoryPath()
				if err != nil {
					return err
				}
				dbPath = p
			}
			store, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if pruneDays > 0 {
				n, err := store.Prune(time.Now().AddDate(0, 0, -pruneDays))
				if err != nil {
					return err
				}
				GetLogger().Info().Int("removed", n).Msg("pruned history")
			}

			infos, err := store.Recent(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(out, "No transfers recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FINISHED\tSTATE\tTRANSPORT\tSIZE\tDURATION\tSOURCE\tDESTINATION")
			for _, info := range infos {
				fmt.Fprintln(tw, historyRow(info))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of transfers to show (0 for all)")
	cmd.Flags().IntVar(&pruneDays, "prune-days", 0, "Remove transfers older than this many days first")
	cmd.Flags().StringVar(&dbPath, "db", "", "History database path")
	return cmd
}

func historyRow(info transfer.Info) string {
	transport := string(info.Transport)
	if transport == "" {
		transport = "-"
	}
	state := string(info.State)
	if info.Error != "" && info.State == transfer.StateFailed {
		state += ": " + truncate(info.Error, 40)
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s\t%s",
		humanize.Time(info.FinishedAt),
		state,
		transport,
		humanize.Bytes(uint64(info.Bytes)),
		info.Duration().Round(time.Second),
		info.Source,
		info.Destination,
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
