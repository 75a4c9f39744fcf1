package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(compareCmd)
}

var compareCmd = &cobra.Command{
	Use:   "compare <search term...>",
	Short: "Acquires and ranks records for a search term across all configured platforms.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}

		results := svc.AcquireComparison(cmd.Context(), strings.Join(args, " "))
		if len(results) == 0 {
			fmt.Fprintln(os.Stderr, "no platform returned a record")
			return nil
		}
		renderRecords(results...)
		return nil
	},
}
