package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(proxiesCmd)
}

var proxiesCmd = &cobra.Command{
	Use:   "proxies [probe-url]",
	Short: "Prints the health of every tracked proxy endpoint, probing them first when a url is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}

		// the registry starts empty in a one-shot process, so health data
		// only exists after a probe round
		if len(args) == 1 {
			svc.ProbeProxies(cmd.Context(), args[0])
		}

		snapshot := svc.Registry().Snapshot()
		if len(snapshot) == 0 {
			fmt.Fprintln(os.Stderr, "no health data recorded; pass a probe url to exercise the proxies")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Endpoint", "Success", "Failure", "Rate", "Avg Latency", "Suspended Until"})

		for _, s := range snapshot {
			endpoint := s.Endpoint
			if endpoint == "" {
				endpoint = "(direct)"
			}
			suspended := "-"
			if s.Suspended {
				suspended = s.SuspendedUntil.Format(time.RFC3339)
			}
			t.AppendRow(table.Row{
				endpoint,
				s.SuccessCount,
				s.FailureCount,
				s.SuccessRate,
				s.AvgLatency,
				suspended,
			})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
